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

	model2 "github.com/blnkfinance/economy/api/model"
	"github.com/blnkfinance/economy/model"
)

const (
	defaultTransactionLimit = 50
	defaultLeaderboardLimit = 10
)

// AccountSummary is the reporting view of one player's finances.
type AccountSummary struct {
	ID            string              `json:"id"`
	Balance       float64             `json:"balance"`
	TotalIncome   float64             `json:"total_income"`
	TotalExpenses float64             `json:"total_expenses"`
	Savings       float64             `json:"savings"`
	Loan          *model.Loan         `json:"loan,omitempty"`
	Credit        *model.CreditRecord `json:"credit,omitempty"`
	TaxOwed       float64             `json:"tax_owed"`
	InDebt        bool                `json:"in_debt"`
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (a Api) CreateAccount(c *gin.Context) {
	var req model2.CreateAccount
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid account data", err)
		return
	}
	if err := req.ValidateCreateAccount(); err != nil {
		invalidInput(c, "invalid account data", err)
		return
	}

	if err := a.economy.Ledger.CreateAccount(c.Request.Context(), req.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.Account{ID: req.ID, Balance: a.economy.Ledger.GetBalance(req.ID)})
}

func (a Api) GetAccount(c *gin.Context) {
	id := c.Param("id")
	if !a.economy.Ledger.HasAccount(id) {
		notFound(c, "account not found")
		return
	}
	c.JSON(http.StatusOK, model.Account{ID: id, Balance: a.economy.Ledger.GetBalance(id)})
}

func (a Api) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if !a.economy.Ledger.DeleteAccount(c.Request.Context(), id) {
		notFound(c, "account not found")
		return
	}
	a.economy.History.Delete(id)
	c.Status(http.StatusNoContent)
}

func (a Api) SetBalance(c *gin.Context) {
	id := c.Param("id")
	var req model2.SetBalance
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid balance", err)
		return
	}
	if err := req.ValidateSetBalance(); err != nil {
		invalidInput(c, "invalid balance", err)
		return
	}

	if err := a.economy.Ledger.SetBalance(c.Request.Context(), id, *req.Balance); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Account{ID: id, Balance: a.economy.Ledger.GetBalance(id)})
}

func (a Api) Transfer(c *gin.Context) {
	var req model2.Transfer
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid transfer", err)
		return
	}
	if err := req.ValidateTransfer(); err != nil {
		invalidInput(c, "invalid transfer", err)
		return
	}

	ok, err := a.economy.Ledger.Transfer(c.Request.Context(), req.From, req.To, req.Amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"transferred": false, "balance": a.economy.Ledger.GetBalance(req.From)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferred": true, "balance": a.economy.Ledger.GetBalance(req.From)})
}

func (a Api) GetTransactions(c *gin.Context) {
	id := c.Param("id")
	limit := queryInt(c, "limit", defaultTransactionLimit)

	var records []model.TransactionRecord
	if txType := c.Query("type"); txType != "" {
		records = a.economy.History.GetTransactionsByType(id, model.TransactionType(txType))
		// newest first, like GetRecentTransactions
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
		if len(records) > limit {
			records = records[:limit]
		}
	} else {
		records = a.economy.History.GetRecentTransactions(id, limit)
	}
	if records == nil {
		records = []model.TransactionRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (a Api) GetSummary(c *gin.Context) {
	id := c.Param("id")
	e := a.economy
	if !e.Ledger.HasAccount(id) {
		notFound(c, "account not found")
		return
	}

	summary := AccountSummary{
		ID:            id,
		Balance:       e.Ledger.GetBalance(id),
		TotalIncome:   e.History.GetTotalIncome(id),
		TotalExpenses: e.History.GetTotalExpenses(id),
		Savings:       e.Savings.TotalSavings(id),
		TaxOwed:       e.Treasury.TaxOwed(id),
	}
	if loan, ok := e.Loans.GetLoan(id); ok {
		summary.Loan = &loan
	}
	if e.Credit != nil {
		record := e.Credit.Record(id)
		summary.Credit = &record
	}
	_, summary.InDebt = e.Overdraft.Get(id)
	c.JSON(http.StatusOK, summary)
}

func (a Api) GetTax(c *gin.Context) {
	id := c.Param("id")
	balance := a.economy.Ledger.GetBalance(id)
	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"balance":  balance,
		"tax_owed": a.economy.Treasury.TaxOwed(id),
	})
}

func (a Api) Leaderboard(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLeaderboardLimit)
	c.JSON(http.StatusOK, gin.H{
		"accounts":     a.economy.Ledger.TopBalances(limit),
		"total_supply": a.economy.Ledger.TotalSupply(),
	})
}
