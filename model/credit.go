package model

import "time"

type CreditRating string

const (
	RatingExcellent CreditRating = "EXCELLENT"
	RatingGood      CreditRating = "GOOD"
	RatingFair      CreditRating = "FAIR"
	RatingPoor      CreditRating = "POOR"
	RatingBad       CreditRating = "BAD"
)

// CreditRecord is the payment history a credit score is derived from.
type CreditRecord struct {
	Owner          string    `json:"owner"`
	Score          int       `json:"score"`
	OnTimePayments int       `json:"on_time_payments"`
	MissedPayments int       `json:"missed_payments"`
	LoansCompleted int       `json:"loans_completed"`
	LoansDefaulted int       `json:"loans_defaulted"`
	TotalRepaid    float64   `json:"total_repaid"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DebtRecord tracks an account whose balance went negative.
type DebtRecord struct {
	Owner              string `json:"owner"`
	DebtStartDay       int64  `json:"debt_start_day"`
	AutoRepayAttempted bool   `json:"auto_repay_attempted"`
	Sentenced          bool   `json:"sentenced"`
}
