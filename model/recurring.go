package model

import "time"

// RecurringPayment is a scheduled transfer from one account to another.
type RecurringPayment struct {
	PaymentID       string    `json:"payment_id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Amount          float64   `json:"amount"`
	Description     string    `json:"description"`
	CreatedDay      int64     `json:"created_day"`
	LastExecutedDay int64     `json:"last_executed_day"`
	Executions      int       `json:"executions"`
	TotalPaid       float64   `json:"total_paid"`
	CreatedAt       time.Time `json:"created_at"`
	Schedule        `json:"schedule"`
}
