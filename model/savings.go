package model

import "time"

// SavingsAccount is a locked sub-account owned by a player, separate from the main ledger balance.
type SavingsAccount struct {
	AccountID      string    `json:"account_id"`
	Owner          string    `json:"owner"`
	Balance        float64   `json:"balance"`
	TotalDeposits  float64   `json:"total_deposits"`
	InterestEarned float64   `json:"interest_earned"`
	CreatedDay     int64     `json:"created_day"`
	LockDays       int64     `json:"lock_days"`
	CreatedAt      time.Time `json:"created_at"`
	Schedule       `json:"schedule"`
}

// Unlocked reports whether the lock period has elapsed on day.
func (s *SavingsAccount) Unlocked(day int64) bool {
	return day-s.CreatedDay >= s.LockDays
}

// InterestAccount tracks weekly interest payouts for a ledger account.
type InterestAccount struct {
	Owner      string  `json:"owner"`
	LastPayout float64 `json:"last_payout"`
	TotalPaid  float64 `json:"total_paid"`
	Schedule   `json:"schedule"`
}

// SavingsWithdrawal describes the money moved by a savings withdrawal or closure.
type SavingsWithdrawal struct {
	AccountID string  `json:"account_id"`
	Amount    float64 `json:"amount"`
	Penalty   float64 `json:"penalty"`
	Payout    float64 `json:"payout"`
	Closed    bool    `json:"closed"`
}
