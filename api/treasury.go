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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/economy"
	model2 "github.com/blnkfinance/economy/api/model"
)

func (a Api) Health(c *gin.Context) {
	status := http.StatusOK
	if !a.economy.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":    status == http.StatusOK,
		"day":        a.economy.Clock.Today(),
		"components": a.economy.Health(),
	})
}

func (a Api) GetTreasury(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"account_id": economy.TreasuryAccountID,
		"balance":    a.economy.Treasury.Balance(),
	})
}

func (a Api) CollectTax(c *gin.Context) {
	collections, total := a.economy.Treasury.CollectAllTax(c.Request.Context())
	if collections == nil {
		collections = []economy.TaxCollection{}
	}
	c.JSON(http.StatusOK, gin.H{
		"collections": collections,
		"total":       total,
		"balance":     a.economy.Treasury.Balance(),
	})
}

func (a Api) GetDebts(c *gin.Context) {
	debts := a.economy.Overdraft.Debts()
	statuses := make([]economy.OverdraftStatus, 0, len(debts))
	for _, debt := range debts {
		statuses = append(statuses, a.economy.Overdraft.Status(debt.Owner))
	}
	c.JSON(http.StatusOK, statuses)
}

func (a Api) GetOverdraft(c *gin.Context) {
	c.JSON(http.StatusOK, a.economy.Overdraft.Status(c.Param("id")))
}

func (a Api) GetPrice(c *gin.Context) {
	kind := c.Param("kind")
	day := a.economy.Clock.Today()
	if v := c.Query("day"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			invalidInput(c, "day must be a non-negative integer", err)
			return
		}
		day = parsed
	}

	response := gin.H{
		"kind":       kind,
		"day":        day,
		"multiplier": a.economy.Pricing.Multiplier(kind, day),
	}
	if v := c.Query("base"); v != "" {
		base, err := strconv.ParseFloat(v, 64)
		if err != nil {
			invalidInput(c, "base must be a number", err)
			return
		}
		response["price"] = a.economy.Pricing.Price(kind, base, day)
	}
	c.JSON(http.StatusOK, response)
}

func (a Api) GetPriceEvents(c *gin.Context) {
	c.JSON(http.StatusOK, a.economy.Pricing.ActiveEvents(a.economy.Clock.Today()))
}

func (a Api) CreatePriceEvent(c *gin.Context) {
	var req model2.CreatePriceEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid price event", err)
		return
	}
	if err := req.ValidateCreatePriceEvent(); err != nil {
		invalidInput(c, "invalid price event", err)
		return
	}

	event := economy.PriceEvent{
		Name:       req.Name,
		Kind:       req.Kind,
		Multiplier: req.Multiplier,
		StartDay:   req.StartDay,
		EndDay:     req.EndDay,
	}
	if err := a.economy.Pricing.AddEvent(event); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}
