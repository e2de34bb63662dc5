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

package economy

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

var (
	ErrDuplicateAccount = errors.New("account already exists")
	ErrInvalidAmount    = errors.New("amount must be a finite, non-negative number")
	ErrSelfTransfer     = errors.New("cannot transfer to the same account")
	ErrAccountNotFound  = errors.New("account not found")
)

var ledgerTracer = otel.Tracer("economy.ledger")

const DefaultAccountsDocument = "accounts.json"

// LedgerOptions configures a Ledger.
type LedgerOptions struct {
	// StartingBalance is credited to accounts opened with CreateAccount.
	StartingBalance float64
	DocumentName    string
}

// Ledger is the balance store every other component moves money through.
// A single mutex serializes all balance mutations.
type Ledger struct {
	mu              sync.RWMutex
	balances        map[string]float64
	history         *History
	doc             *document
	startingBalance float64
}

type ledgerDocument struct {
	Accounts map[string]float64 `json:"accounts"`
}

type entry struct {
	txType      model.TransactionType
	description string
}

// EntryOption customizes the transaction record a ledger mutation appends.
type EntryOption func(*entry)

func WithType(t model.TransactionType) EntryOption {
	return func(e *entry) { e.txType = t }
}

func WithDescription(description string) EntryOption {
	return func(e *entry) { e.description = description }
}

func buildEntry(defaultType model.TransactionType, opts []EntryOption) entry {
	e := entry{txType: defaultType}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func NewLedger(store database.Store, history *History, opts LedgerOptions) *Ledger {
	name := opts.DocumentName
	if name == "" {
		name = DefaultAccountsDocument
	}
	return &Ledger{
		balances:        make(map[string]float64),
		history:         history,
		doc:             newDocument(store, "ledger", name),
		startingBalance: opts.StartingBalance,
	}
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0) && amount >= 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

func (l *Ledger) CreateAccount(ctx context.Context, id string) error {
	_, span := ledgerTracer.Start(ctx, "CreateAccount")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[id]; ok {
		span.RecordError(ErrDuplicateAccount)
		return ErrDuplicateAccount
	}
	l.balances[id] = l.startingBalance
	l.doc.markDirty()
	if l.startingBalance > 0 {
		l.appendLocked(id, entry{txType: model.TransactionDeposit, description: "Starting balance"}, "", id, l.startingBalance)
	}
	span.AddEvent("Account created", trace.WithAttributes(attribute.String("account.id", id)))
	return nil
}

func (l *Ledger) HasAccount(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.balances[id]
	return ok
}

// GetBalance returns 0 for unknown accounts.
func (l *Ledger) GetBalance(id string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// DeleteAccount removes the account and its transaction log.
func (l *Ledger) DeleteAccount(ctx context.Context, id string) bool {
	_, span := ledgerTracer.Start(ctx, "DeleteAccount")
	defer span.End()

	l.mu.Lock()
	_, ok := l.balances[id]
	if ok {
		delete(l.balances, id)
		l.doc.markDirty()
	}
	l.mu.Unlock()

	if ok && l.history != nil {
		l.history.Delete(id)
	}
	return ok
}

// Deposit credits amount, creating the account at zero if it does not exist.
func (l *Ledger) Deposit(ctx context.Context, id string, amount float64, opts ...EntryOption) error {
	_, span := ledgerTracer.Start(ctx, "Deposit")
	defer span.End()

	if !validAmount(amount) {
		observeLedger("deposit", false)
		span.RecordError(ErrInvalidAmount)
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.depositLocked(id, amount, buildEntry(model.TransactionDeposit, opts), "", id); err != nil {
		observeLedger("deposit", false)
		span.RecordError(err)
		return err
	}
	observeLedger("deposit", true)
	return nil
}

// Withdraw debits amount if the account holds at least that much.
func (l *Ledger) Withdraw(ctx context.Context, id string, amount float64, opts ...EntryOption) bool {
	_, span := ledgerTracer.Start(ctx, "Withdraw")
	defer span.End()

	if !validAmount(amount) {
		observeLedger("withdraw", false)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok := l.withdrawLocked(id, amount, buildEntry(model.TransactionWithdrawal, opts), id, "")
	observeLedger("withdraw", ok)
	if !ok {
		span.AddEvent("Insufficient funds", trace.WithAttributes(attribute.String("account.id", id)))
	}
	return ok
}

// Charge debits amount even when that drives the balance negative. Used for
// tax and fines, whose debt is tracked by the overdraft tracker.
func (l *Ledger) Charge(ctx context.Context, id string, amount float64, opts ...EntryOption) error {
	_, span := ledgerTracer.Start(ctx, "Charge")
	defer span.End()

	if !validAmount(amount) {
		observeLedger("charge", false)
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := sub(l.balances[id], amount)
	if !finite(next) {
		observeLedger("charge", false)
		return ErrInvalidAmount
	}
	l.balances[id] = next
	l.doc.markDirty()
	l.appendLocked(id, buildEntry(model.TransactionFee, opts), id, "", -amount)
	observeLedger("charge", true)
	return nil
}

// SetBalance overwrites the balance. Negative values are allowed.
func (l *Ledger) SetBalance(ctx context.Context, id string, amount float64, opts ...EntryOption) error {
	_, span := ledgerTracer.Start(ctx, "SetBalance")
	defer span.End()

	if !finite(amount) {
		observeLedger("set_balance", false)
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delta := sub(amount, l.balances[id])
	l.balances[id] = amount
	l.doc.markDirty()
	l.appendLocked(id, buildEntry(model.TransactionAdminSet, opts), "", id, delta)
	observeLedger("set_balance", true)
	return nil
}

// Transfer moves amount from one account to another as one operation. It
// returns false for invalid amounts and insufficient funds.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount float64, description string, opts ...EntryOption) (bool, error) {
	_, span := ledgerTracer.Start(ctx, "Transfer")
	defer span.End()

	if from == to {
		observeLedger("transfer", false)
		span.RecordError(ErrSelfTransfer)
		return false, ErrSelfTransfer
	}
	if !validAmount(amount) {
		observeLedger("transfer", false)
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := buildEntry(model.TransactionTransfer, append([]EntryOption{WithDescription(description)}, opts...))
	if !l.withdrawLocked(from, amount, e, from, to) {
		observeLedger("transfer", false)
		return false, nil
	}
	if err := l.depositLocked(to, amount, e, from, to); err != nil {
		// credit side refused, put the funds back
		l.balances[from] = add(l.balances[from], amount)
		l.appendLocked(from, entry{txType: e.txType, description: "Reversal: " + e.description}, to, from, amount)
		logrus.Warnf("transfer %s -> %s of %.2f rolled back: %v", from, to, amount, err)
		span.RecordError(err)
		observeLedger("transfer", false)
		return false, nil
	}
	span.AddEvent("Transfer applied", trace.WithAttributes(
		attribute.String("transfer.from", from),
		attribute.String("transfer.to", to),
		attribute.Float64("transfer.amount", amount),
	))
	observeLedger("transfer", true)
	return true, nil
}

func (l *Ledger) depositLocked(id string, amount float64, e entry, source, destination string) error {
	next := add(l.balances[id], amount)
	if !finite(next) {
		return ErrInvalidAmount
	}
	l.balances[id] = next
	l.doc.markDirty()
	l.appendLocked(id, e, source, destination, amount)
	return nil
}

func (l *Ledger) withdrawLocked(id string, amount float64, e entry, source, destination string) bool {
	balance, ok := l.balances[id]
	if !ok || balance < amount {
		return false
	}
	l.balances[id] = sub(balance, amount)
	l.doc.markDirty()
	l.appendLocked(id, e, source, destination, -amount)
	return true
}

func (l *Ledger) appendLocked(id string, e entry, source, destination string, signed float64) {
	if l.history == nil {
		return
	}
	l.history.AddTransaction(id, model.TransactionRecord{
		ID:          model.GenerateUUIDWithSuffix("txn"),
		Type:        e.txType,
		Source:      source,
		Destination: destination,
		Amount:      signed,
		Description: e.description,
		Balance:     l.balances[id],
		Timestamp:   time.Now(),
	})
}

// Accounts returns every account sorted by id.
func (l *Ledger) Accounts() []model.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	accounts := make([]model.Account, 0, len(l.balances))
	for id, balance := range l.balances {
		accounts = append(accounts, model.Account{ID: id, Balance: balance})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

func (l *Ledger) TotalSupply() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, balance := range l.balances {
		total = total.Add(decimal.NewFromFloat(balance))
	}
	return total.InexactFloat64()
}

// TopBalances returns the n richest accounts, richest first.
func (l *Ledger) TopBalances(n int) []model.Account {
	accounts := l.Accounts()
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Balance > accounts[j].Balance })
	if n >= 0 && n < len(accounts) {
		accounts = accounts[:n]
	}
	return accounts
}

func (l *Ledger) Save(ctx context.Context) error {
	ctx, span := ledgerTracer.Start(ctx, "SaveAccounts")
	defer span.End()

	err := l.doc.save(ctx, func() interface{} {
		l.mu.RLock()
		defer l.mu.RUnlock()
		snapshot := ledgerDocument{Accounts: make(map[string]float64, len(l.balances))}
		for id, balance := range l.balances {
			snapshot.Accounts[id] = balance
		}
		return snapshot
	})
	if err != nil {
		span.RecordError(err)
		logrus.Errorf("failed to save accounts: %v", err)
	}
	return err
}

func (l *Ledger) SaveIfNeeded(ctx context.Context) error {
	if !l.doc.isDirty() {
		return nil
	}
	return l.Save(ctx)
}

// Load replaces the in-memory balances with the stored document. Non-finite
// balances in the document are dropped.
func (l *Ledger) Load(ctx context.Context) error {
	ctx, span := ledgerTracer.Start(ctx, "LoadAccounts")
	defer span.End()

	var stored ledgerDocument
	if err := l.doc.load(ctx, &stored); err != nil {
		span.RecordError(err)
		logrus.Errorf("failed to load accounts: %v", err)
		return err
	}

	balances := make(map[string]float64, len(stored.Accounts))
	for id, balance := range stored.Accounts {
		if !finite(balance) {
			logrus.Warnf("dropping account %s with invalid balance", id)
			continue
		}
		balances[id] = balance
	}

	l.mu.Lock()
	l.balances = balances
	l.mu.Unlock()
	logrus.Infof("loaded %d accounts", len(balances))
	return nil
}

func (l *Ledger) IsHealthy() bool {
	return l.doc.healthy()
}

func (l *Ledger) LastError() error {
	return l.doc.err()
}

func (l *Ledger) HealthInfo() model.HealthInfo {
	l.mu.RLock()
	records := len(l.balances)
	l.mu.RUnlock()
	return l.doc.info(records)
}
