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
	"fmt"
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
	ErrBelowMinimumDeposit = errors.New("deposit is below the savings minimum")
	ErrSavingsLimit        = errors.New("deposit would exceed the savings limit")
	ErrSavingsNotFound     = errors.New("savings account not found")
	ErrSavingsLocked       = errors.New("savings account is still locked")
)

var savingsTracer = otel.Tracer("economy.savings")

const (
	DefaultSavingsDocument = "savings.json"
	savingsIntervalDays    = 7
)

type SavingsOptions struct {
	MinDeposit   float64
	MaxPerPlayer float64
	WeeklyRate   float64
	LockDays     int64
	Penalty      float64
	DocumentName string
}

// SavingsProcessor holds locked sub-accounts that compound weekly. Early
// withdrawals pay a penalty to the treasury.
type SavingsProcessor struct {
	mu       sync.Mutex
	ledger   *Ledger
	clock    *Clock
	treasury *Treasury
	notifier Notifier
	hooks    *WebhookQueue
	accounts map[string]*model.SavingsAccount
	gate     dayGate
	opts     SavingsOptions
	doc      *document
}

func NewSavingsProcessor(ledger *Ledger, clock *Clock, treasury *Treasury, notifier Notifier, store database.Store, opts SavingsOptions) *SavingsProcessor {
	if opts.DocumentName == "" {
		opts.DocumentName = DefaultSavingsDocument
	}
	return &SavingsProcessor{
		ledger:   ledger,
		clock:    clock,
		treasury: treasury,
		notifier: notifier,
		accounts: make(map[string]*model.SavingsAccount),
		gate:     newDayGate(),
		opts:     opts,
		doc:      newDocument(store, "savings", opts.DocumentName),
	}
}

func (p *SavingsProcessor) SetWebhooks(hooks *WebhookQueue) {
	p.hooks = hooks
}

func (p *SavingsProcessor) totalLocked(owner string) float64 {
	total := 0.0
	for _, account := range p.accounts {
		if account.Owner == owner {
			total = add(total, account.Balance)
		}
	}
	return total
}

func (p *SavingsProcessor) withinLimitLocked(owner string, amount float64) bool {
	if p.opts.MaxPerPlayer <= 0 {
		return true
	}
	return add(p.totalLocked(owner), amount) <= p.opts.MaxPerPlayer
}

// CreateAccount moves amount from the owner's balance into a new locked account.
func (p *SavingsProcessor) CreateAccount(ctx context.Context, owner string, amount float64) (model.SavingsAccount, error) {
	ctx, span := savingsTracer.Start(ctx, "CreateAccount")
	defer span.End()

	if !validAmount(amount) || amount == 0 {
		return model.SavingsAccount{}, ErrInvalidAmount
	}
	if amount < p.opts.MinDeposit {
		return model.SavingsAccount{}, ErrBelowMinimumDeposit
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.withinLimitLocked(owner, amount) {
		return model.SavingsAccount{}, ErrSavingsLimit
	}
	if !p.ledger.Withdraw(ctx, owner, amount, WithType(model.TransactionSavingsDeposit), WithDescription("Savings account opened")) {
		return model.SavingsAccount{}, ErrInsufficientBalance
	}

	today := p.clock.Today()
	account := &model.SavingsAccount{
		AccountID:     model.GenerateUUIDWithSuffix("savings"),
		Owner:         owner,
		Balance:       amount,
		TotalDeposits: amount,
		CreatedDay:    today,
		LockDays:      p.opts.LockDays,
		CreatedAt:     time.Now(),
		Schedule:      model.NewSchedule(today, savingsIntervalDays),
	}
	p.accounts[account.AccountID] = account
	p.doc.markDirty()

	box.tell(owner, fmt.Sprintf("Savings account opened with %s. Locked until day %d.", money(amount), today+account.LockDays))
	box.publish(EventSavingsCreated, *account)
	span.AddEvent("Savings account created", trace.WithAttributes(attribute.String("savings.id", account.AccountID)))
	return *account, nil
}

func (p *SavingsProcessor) ownedLocked(owner, id string) (*model.SavingsAccount, error) {
	account, ok := p.accounts[id]
	if !ok || account.Owner != owner {
		return nil, ErrSavingsNotFound
	}
	return account, nil
}

// Deposit adds amount from the owner's balance to an existing account.
func (p *SavingsProcessor) Deposit(ctx context.Context, owner, id string, amount float64) (model.SavingsAccount, error) {
	ctx, span := savingsTracer.Start(ctx, "Deposit")
	defer span.End()

	if !validAmount(amount) || amount == 0 {
		return model.SavingsAccount{}, ErrInvalidAmount
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.ownedLocked(owner, id)
	if err != nil {
		return model.SavingsAccount{}, err
	}
	if !p.withinLimitLocked(owner, amount) {
		return model.SavingsAccount{}, ErrSavingsLimit
	}
	if !p.ledger.Withdraw(ctx, owner, amount, WithType(model.TransactionSavingsDeposit), WithDescription("Savings deposit")) {
		return model.SavingsAccount{}, ErrInsufficientBalance
	}
	account.Balance = add(account.Balance, amount)
	account.TotalDeposits = add(account.TotalDeposits, amount)
	p.doc.markDirty()

	box.tell(owner, fmt.Sprintf("Deposited %s into savings. Balance: %s.", money(amount), money(account.Balance)))
	return *account, nil
}

// Withdraw pays amount back to the owner. Before the lock period ends it
// requires forced and routes the penalty share to the treasury. An account
// emptied by a withdrawal is closed.
func (p *SavingsProcessor) Withdraw(ctx context.Context, owner, id string, amount float64, forced bool) (model.SavingsWithdrawal, error) {
	ctx, span := savingsTracer.Start(ctx, "Withdraw")
	defer span.End()

	if !validAmount(amount) || amount == 0 {
		return model.SavingsWithdrawal{}, ErrInvalidAmount
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.ownedLocked(owner, id)
	if err != nil {
		return model.SavingsWithdrawal{}, err
	}
	if amount > account.Balance {
		return model.SavingsWithdrawal{}, ErrInsufficientBalance
	}
	if !forced && !account.Unlocked(p.clock.Today()) {
		return model.SavingsWithdrawal{}, ErrSavingsLocked
	}
	result, err := p.withdrawLocked(ctx, account, amount, &box)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// Close withdraws the full balance and removes the account. Closing a locked
// account pays the early withdrawal penalty.
func (p *SavingsProcessor) Close(ctx context.Context, owner, id string) (model.SavingsWithdrawal, error) {
	ctx, span := savingsTracer.Start(ctx, "Close")
	defer span.End()

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	account, err := p.ownedLocked(owner, id)
	if err != nil {
		return model.SavingsWithdrawal{}, err
	}
	if account.Balance <= 0 {
		p.removeLocked(account, &box)
		return model.SavingsWithdrawal{AccountID: id, Closed: true}, nil
	}
	result, err := p.withdrawLocked(ctx, account, account.Balance, &box)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (p *SavingsProcessor) penaltyFor(account *model.SavingsAccount, amount float64) float64 {
	if account.Unlocked(p.clock.Today()) {
		return 0
	}
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(p.opts.Penalty)).Round(2).InexactFloat64()
}

func (p *SavingsProcessor) withdrawLocked(ctx context.Context, account *model.SavingsAccount, amount float64, box *outbox) (model.SavingsWithdrawal, error) {
	penalty := p.penaltyFor(account, amount)
	result := model.SavingsWithdrawal{
		AccountID: account.AccountID,
		Amount:    amount,
		Penalty:   penalty,
		Payout:    sub(amount, penalty),
	}

	if err := p.ledger.Deposit(ctx, account.Owner, result.Payout,
		WithType(model.TransactionSavingsWithdraw), WithDescription("Savings withdrawal")); err != nil {
		return model.SavingsWithdrawal{}, err
	}
	if penalty > 0 {
		if err := p.treasury.Deposit(ctx, penalty,
			WithType(model.TransactionPenalty), WithDescription("Early withdrawal penalty from "+account.Owner)); err != nil {
			logrus.Errorf("failed to credit savings penalty to the treasury: %v", err)
			box.tell(account.Owner, fmt.Sprintf("Your %s early withdrawal penalty could not be credited to the treasury.", money(penalty)))
		}
	}

	account.Balance = sub(account.Balance, amount)
	p.doc.markDirty()

	msg := fmt.Sprintf("Withdrew %s from savings.", money(result.Payout))
	if penalty > 0 {
		msg = fmt.Sprintf("Withdrew %s from savings after a %s early withdrawal penalty.", money(result.Payout), money(penalty))
	}
	box.tell(account.Owner, msg)
	box.publish(EventSavingsWithdrawn, result)

	if account.Balance <= 0 {
		result.Closed = true
		p.removeLocked(account, box)
	}
	return result, nil
}

func (p *SavingsProcessor) removeLocked(account *model.SavingsAccount, box *outbox) {
	delete(p.accounts, account.AccountID)
	p.doc.markDirty()
	box.tell(account.Owner, "Savings account closed.")
	box.publish(EventSavingsClosed, *account)
}

// Liquidate force-withdraws from the owner's accounts, oldest first, until
// amount has been paid out to the owner or nothing is left. It returns the
// total paid out.
func (p *SavingsProcessor) Liquidate(ctx context.Context, owner string, amount float64) float64 {
	ctx, span := savingsTracer.Start(ctx, "Liquidate")
	defer span.End()

	if !validAmount(amount) || amount == 0 {
		return 0
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	recovered := 0.0
	for _, account := range p.listLocked(owner) {
		remaining := sub(amount, recovered)
		if remaining <= 0 {
			break
		}
		gross := remaining
		if !account.Unlocked(p.clock.Today()) && p.opts.Penalty > 0 {
			gross = decimal.NewFromFloat(remaining).
				Div(decimal.NewFromFloat(1 - p.opts.Penalty)).
				RoundCeil(2).InexactFloat64()
		}
		if gross > account.Balance {
			gross = account.Balance
		}
		result, err := p.withdrawLocked(ctx, p.accounts[account.AccountID], gross, &box)
		if err != nil {
			logrus.Errorf("failed to liquidate savings %s: %v", account.AccountID, err)
			continue
		}
		recovered = add(recovered, result.Payout)
	}
	span.AddEvent("Savings liquidated", trace.WithAttributes(
		attribute.String("savings.owner", owner),
		attribute.Float64("savings.recovered", recovered),
	))
	return recovered
}

// Tick compounds every account whose week has elapsed, once per day.
func (p *SavingsProcessor) Tick(ctx context.Context, dayTime int64) {
	day := p.clock.Day(dayTime)

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.gate.Enter(day) {
		return
	}

	_, span := savingsTracer.Start(ctx, "ProcessSavingsInterest", trace.WithAttributes(attribute.Int64("day", day)))
	defer span.End()

	rate := decimal.NewFromFloat(p.opts.WeeklyRate)
	for _, account := range p.sortedLocked() {
		if !account.Due(day) {
			continue
		}
		interest := decimal.NewFromFloat(account.Balance).Mul(rate).Round(2).InexactFloat64()
		account.Balance = add(account.Balance, interest)
		account.InterestEarned = add(account.InterestEarned, interest)
		account.Succeed()
		p.doc.markDirty()
		observeObligation("savings", outcomeSuccess)

		box.tell(account.Owner, fmt.Sprintf("Your savings earned %s interest. Balance: %s.", money(interest), money(account.Balance)))
		box.publish(EventSavingsInterest, *account)
	}
}

func (p *SavingsProcessor) sortedLocked() []*model.SavingsAccount {
	out := make([]*model.SavingsAccount, 0, len(p.accounts))
	for _, account := range p.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedDay != out[j].CreatedDay {
			return out[i].CreatedDay < out[j].CreatedDay
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out
}

func (p *SavingsProcessor) listLocked(owner string) []model.SavingsAccount {
	var out []model.SavingsAccount
	for _, account := range p.sortedLocked() {
		if account.Owner == owner {
			out = append(out, *account)
		}
	}
	return out
}

// List returns the owner's accounts, oldest first.
func (p *SavingsProcessor) List(owner string) []model.SavingsAccount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listLocked(owner)
}

func (p *SavingsProcessor) Get(id string) (model.SavingsAccount, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[id]
	if !ok {
		return model.SavingsAccount{}, false
	}
	return *account, true
}

func (p *SavingsProcessor) TotalSavings(owner string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLocked(owner)
}

func (p *SavingsProcessor) Save(ctx context.Context) error {
	err := p.doc.save(ctx, func() interface{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		snapshot := make(map[string]model.SavingsAccount, len(p.accounts))
		for id, account := range p.accounts {
			snapshot[id] = *account
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save savings accounts: %v", err)
	}
	return err
}

func (p *SavingsProcessor) SaveIfNeeded(ctx context.Context) error {
	if !p.doc.isDirty() {
		return nil
	}
	return p.Save(ctx)
}

func (p *SavingsProcessor) Load(ctx context.Context) error {
	stored := make(map[string]model.SavingsAccount)
	if err := p.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load savings accounts: %v", err)
		return err
	}
	accounts := make(map[string]*model.SavingsAccount, len(stored))
	for id, account := range stored {
		account := account
		account.AccountID = id
		accounts[id] = &account
	}
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
	return nil
}

func (p *SavingsProcessor) HealthInfo() model.HealthInfo {
	p.mu.Lock()
	records := len(p.accounts)
	p.mu.Unlock()
	return p.doc.info(records)
}
