package model

import "time"

type LoanTier string

const (
	LoanSmall  LoanTier = "SMALL"
	LoanMedium LoanTier = "MEDIUM"
	LoanLarge  LoanTier = "LARGE"
)

// LoanTerms are the fixed terms of a loan tier.
type LoanTerms struct {
	Amount       float64 `json:"amount"`
	BaseRate     float64 `json:"base_rate"`
	DurationDays int64   `json:"duration_days"`
	MinScore     int     `json:"min_score"`
}

type Loan struct {
	LoanID       string    `json:"loan_id"`
	Owner        string    `json:"owner"`
	Tier         LoanTier  `json:"tier"`
	Principal    float64   `json:"principal"`
	InterestRate float64   `json:"interest_rate"`
	Remaining    float64   `json:"remaining"`
	DailyPayment float64   `json:"daily_payment"`
	TotalPaid    float64   `json:"total_paid"`
	StartDay     int64     `json:"start_day"`
	Defaulted    bool      `json:"defaulted"`
	CreatedAt    time.Time `json:"created_at"`
	Schedule     `json:"schedule"`
}
