/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/api/middleware"
)

type Api struct {
	economy *economy.Economy
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/health", a.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/accounts", a.CreateAccount)
	router.GET("/accounts/:id", a.GetAccount)
	router.DELETE("/accounts/:id", a.DeleteAccount)
	router.PUT("/accounts/:id/balance", a.SetBalance)
	router.GET("/accounts/:id/transactions", a.GetTransactions)
	router.GET("/accounts/:id/summary", a.GetSummary)
	router.GET("/accounts/:id/tax", a.GetTax)
	router.POST("/transfers", a.Transfer)
	router.GET("/leaderboard", a.Leaderboard)

	router.GET("/loans", a.GetAllLoans)
	router.POST("/loans", a.ApplyForLoan)
	router.GET("/loans/:owner", a.GetLoan)
	router.POST("/loans/:owner/repay", a.RepayLoan)
	router.GET("/credit/:owner", a.GetCredit)

	router.POST("/recurring", a.CreateRecurring)
	router.GET("/recurring/:owner", a.GetRecurring)
	router.DELETE("/recurring/:owner/:id", a.DeleteRecurring)
	router.POST("/recurring/:owner/:id/pause", a.PauseRecurring)
	router.POST("/recurring/:owner/:id/resume", a.ResumeRecurring)

	router.POST("/savings", a.OpenSavings)
	router.GET("/savings/:owner", a.GetSavings)
	router.POST("/savings/:owner/:id/withdraw", a.WithdrawSavings)
	router.POST("/savings/:owner/:id/close", a.CloseSavings)

	router.GET("/treasury", a.GetTreasury)
	router.POST("/treasury/collect", a.CollectTax)
	router.GET("/overdraft", a.GetDebts)
	router.GET("/overdraft/:id", a.GetOverdraft)

	router.GET("/prices/:kind", a.GetPrice)
	router.GET("/price-events", a.GetPriceEvents)
	router.POST("/price-events", a.CreatePriceEvent)

	router.GET("/backup", a.Backup)
	return a.router
}

func NewAPI(e *economy.Economy) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf := e.Config

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.SecretKeyAuthMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{economy: e, router: r}
}
