package model

import "time"

type TransactionType string

const (
	TransactionDeposit          TransactionType = "DEPOSIT"
	TransactionWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionTransfer         TransactionType = "TRANSFER"
	TransactionFee              TransactionType = "FEE"
	TransactionInterest         TransactionType = "INTEREST"
	TransactionLoanDisbursement TransactionType = "LOAN_DISBURSEMENT"
	TransactionLoanRepayment    TransactionType = "LOAN_REPAYMENT"
	TransactionAdminSet         TransactionType = "ADMIN_SET"
	TransactionRecurring        TransactionType = "RECURRING_PAYMENT"
	TransactionSavingsDeposit   TransactionType = "SAVINGS_DEPOSIT"
	TransactionSavingsWithdraw  TransactionType = "SAVINGS_WITHDRAWAL"
	TransactionTax              TransactionType = "TAX"
	TransactionPenalty          TransactionType = "PENALTY"
)

// TransactionRecord is an immutable entry in an account's history. Amount is signed:
// credits are positive and debits negative, from the point of view of the owning account.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description"`
	Balance     float64         `json:"balance_after"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (r TransactionRecord) IsIncome() bool {
	return r.Amount > 0
}
