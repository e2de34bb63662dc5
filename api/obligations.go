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

	model2 "github.com/blnkfinance/economy/api/model"
	"github.com/blnkfinance/economy/internal/apierror"
	"github.com/blnkfinance/economy/model"
)

// LoanOffer is what a player would be offered for one tier.
type LoanOffer struct {
	Tier     model.LoanTier `json:"tier"`
	Amount   float64        `json:"amount"`
	Rate     float64        `json:"rate"`
	Days     int64          `json:"duration_days"`
	Eligible bool           `json:"eligible"`
}

type CreditReport struct {
	model.CreditRecord
	Rating model.CreditRating `json:"rating"`
	Offers []LoanOffer        `json:"offers"`
}

func (a Api) GetAllLoans(c *gin.Context) {
	c.JSON(http.StatusOK, a.economy.Loans.Loans())
}

func (a Api) GetLoan(c *gin.Context) {
	loan, ok := a.economy.Loans.GetLoan(c.Param("owner"))
	if !ok {
		notFound(c, "no outstanding loan")
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (a Api) ApplyForLoan(c *gin.Context) {
	var req model2.ApplyLoan
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid loan application", err)
		return
	}
	if err := req.ValidateApplyLoan(); err != nil {
		invalidInput(c, "invalid loan application", err)
		return
	}

	loan, err := a.economy.Loans.ApplyForLoan(c.Request.Context(), req.Owner, req.Tier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (a Api) RepayLoan(c *gin.Context) {
	owner := c.Param("owner")
	paid, err := a.economy.Loans.RepayLoan(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "paid": paid, "balance": a.economy.Ledger.GetBalance(owner)})
}

func (a Api) GetCredit(c *gin.Context) {
	credit := a.economy.Credit
	if credit == nil {
		notFound(c, "credit scoring is disabled")
		return
	}

	owner := c.Param("owner")
	report := CreditReport{CreditRecord: credit.Record(owner), Rating: credit.Rating(owner)}
	for _, tier := range []model.LoanTier{model.LoanSmall, model.LoanMedium, model.LoanLarge} {
		terms, rate, ok := a.economy.Loans.Terms(owner, tier)
		if !ok {
			continue
		}
		report.Offers = append(report.Offers, LoanOffer{
			Tier:     tier,
			Amount:   terms.Amount,
			Rate:     rate,
			Days:     terms.DurationDays,
			Eligible: credit.CanTakeLoan(owner, tier),
		})
	}
	c.JSON(http.StatusOK, report)
}

func (a Api) CreateRecurring(c *gin.Context) {
	var req model2.CreateRecurring
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid recurring payment", err)
		return
	}
	if err := req.ValidateCreateRecurring(); err != nil {
		invalidInput(c, "invalid recurring payment", err)
		return
	}

	payment, err := a.economy.Recurring.Create(c.Request.Context(), req.From, req.To, req.Amount, req.IntervalDays, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (a Api) GetRecurring(c *gin.Context) {
	c.JSON(http.StatusOK, a.economy.Recurring.List(c.Param("owner")))
}

// recurringAction runs a lookup-by-prefix operation and reports a miss with
// the closest id the owner has.
func (a Api) recurringAction(c *gin.Context, action func(owner, id string) bool) {
	owner, id := c.Param("owner"), c.Param("id")
	if action(owner, id) {
		c.JSON(http.StatusOK, a.economy.Recurring.List(owner))
		return
	}

	details := gin.H{}
	if hint := a.economy.Recurring.Suggest(owner, id); hint != "" {
		details["did_you_mean"] = hint
	}
	respondError(c, apierror.NewAPIError(apierror.ErrNotFound, "no recurring payment matches "+id, details))
}

func (a Api) DeleteRecurring(c *gin.Context) {
	a.recurringAction(c, a.economy.Recurring.Delete)
}

func (a Api) PauseRecurring(c *gin.Context) {
	a.recurringAction(c, a.economy.Recurring.Pause)
}

func (a Api) ResumeRecurring(c *gin.Context) {
	a.recurringAction(c, a.economy.Recurring.Resume)
}

func (a Api) OpenSavings(c *gin.Context) {
	var req model2.OpenSavings
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid savings deposit", err)
		return
	}
	if err := req.ValidateOpenSavings(); err != nil {
		invalidInput(c, "invalid savings deposit", err)
		return
	}

	account, err := a.economy.Savings.CreateAccount(c.Request.Context(), req.Owner, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (a Api) GetSavings(c *gin.Context) {
	owner := c.Param("owner")
	c.JSON(http.StatusOK, gin.H{
		"accounts": a.economy.Savings.List(owner),
		"total":    a.economy.Savings.TotalSavings(owner),
	})
}

func (a Api) WithdrawSavings(c *gin.Context) {
	var req model2.WithdrawSavings
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid withdrawal", err)
		return
	}
	req.Owner = c.Param("owner")
	if err := req.ValidateWithdrawSavings(); err != nil {
		invalidInput(c, "invalid withdrawal", err)
		return
	}

	withdrawal, err := a.economy.Savings.Withdraw(c.Request.Context(), req.Owner, c.Param("id"), req.Amount, req.Forced)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawal)
}

func (a Api) CloseSavings(c *gin.Context) {
	withdrawal, err := a.economy.Savings.Close(c.Request.Context(), c.Param("owner"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawal)
}
