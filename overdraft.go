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
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

var overdraftTracer = otel.Tracer("economy.overdraft")

const (
	DefaultOverdraftDocument = "overdraft.json"
	DefaultAutoRepayDay      = 7
	DefaultPrisonDay         = 28
	DefaultDebtPerPrisonDay  = 1000
)

// DebtRecoverer pays money back into a debtor's account, e.g. by liquidating savings.
type DebtRecoverer interface {
	Liquidate(ctx context.Context, owner string, amount float64) float64
}

// SentenceHandler applies the punishment for long-standing debt in the game.
type SentenceHandler interface {
	Sentence(playerID string, days int64, debt float64)
}

type SentenceFunc func(playerID string, days int64, debt float64)

func (f SentenceFunc) Sentence(playerID string, days int64, debt float64) {
	f(playerID, days, debt)
}

type OverdraftOptions struct {
	AutoRepayDay     int64
	PrisonDay        int64
	DebtPerPrisonDay float64
	DocumentName     string
}

// OverdraftStatus is a debtor's position on the overdraft timeline.
type OverdraftStatus struct {
	AccountID          string  `json:"account_id"`
	Balance            float64 `json:"balance"`
	InDebt             bool    `json:"in_debt"`
	DebtStartDay       int64   `json:"debt_start_day,omitempty"`
	DaysInDebt         int64   `json:"days_in_debt"`
	DaysUntilAutoRepay int64   `json:"days_until_auto_repay"`
	DaysUntilPrison    int64   `json:"days_until_prison"`
	PenaltyDays        int64   `json:"penalty_days"`
}

type sentence struct {
	playerID string
	days     int64
	debt     float64
}

// OverdraftTracker follows accounts with a negative balance from the day the
// debt began, recovering savings on the auto-repay day and sentencing the
// debtor on the prison day.
type OverdraftTracker struct {
	mu        sync.Mutex
	ledger    *Ledger
	clock     *Clock
	notifier  Notifier
	hooks     *WebhookQueue
	recoverer DebtRecoverer
	sentencer SentenceHandler
	debts     map[string]*model.DebtRecord
	gate      dayGate
	opts      OverdraftOptions
	doc       *document
}

func NewOverdraftTracker(ledger *Ledger, clock *Clock, notifier Notifier, store database.Store, opts OverdraftOptions) *OverdraftTracker {
	if opts.AutoRepayDay <= 0 {
		opts.AutoRepayDay = DefaultAutoRepayDay
	}
	if opts.PrisonDay <= 0 {
		opts.PrisonDay = DefaultPrisonDay
	}
	if opts.DebtPerPrisonDay <= 0 {
		opts.DebtPerPrisonDay = DefaultDebtPerPrisonDay
	}
	if opts.DocumentName == "" {
		opts.DocumentName = DefaultOverdraftDocument
	}
	return &OverdraftTracker{
		ledger:   ledger,
		clock:    clock,
		notifier: notifier,
		debts:    make(map[string]*model.DebtRecord),
		gate:     newDayGate(),
		opts:     opts,
		doc:      newDocument(store, "overdraft", opts.DocumentName),
	}
}

func (o *OverdraftTracker) SetWebhooks(hooks *WebhookQueue) {
	o.hooks = hooks
}

func (o *OverdraftTracker) SetRecoverer(recoverer DebtRecoverer) {
	o.recoverer = recoverer
}

func (o *OverdraftTracker) SetSentenceHandler(handler SentenceHandler) {
	o.sentencer = handler
}

// PenaltyDays maps a debt to a sentence length, one day per started
// DebtPerPrisonDay.
func (o *OverdraftTracker) PenaltyDays(debt float64) int64 {
	if debt <= 0 {
		return 0
	}
	return int64(math.Ceil(debt / o.opts.DebtPerPrisonDay))
}

// Tick opens and clears debt records and applies the auto-repay and prison
// consequences, once per day.
func (o *OverdraftTracker) Tick(ctx context.Context, dayTime int64) {
	day := o.clock.Day(dayTime)

	var box outbox
	var sentences []sentence
	defer func() {
		box.flush(o.notifier, o.hooks)
		for _, s := range sentences {
			if o.sentencer != nil {
				o.sentencer.Sentence(s.playerID, s.days, s.debt)
			}
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.gate.Enter(day) {
		return
	}

	ctx, span := overdraftTracer.Start(ctx, "ProcessOverdrafts", trace.WithAttributes(attribute.Int64("day", day)))
	defer span.End()

	negative := make(map[string]float64)
	for _, account := range o.ledger.Accounts() {
		if account.Balance < 0 && account.ID != TreasuryAccountID {
			negative[account.ID] = account.Balance
		}
	}

	for id := range o.debts {
		if _, ok := negative[id]; !ok {
			delete(o.debts, id)
			o.doc.markDirty()
			box.tell(id, "Your debt has been cleared.")
		}
	}

	ids := make([]string, 0, len(negative))
	for id := range negative {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		record, ok := o.debts[id]
		if !ok {
			record = &model.DebtRecord{Owner: id, DebtStartDay: day}
			o.debts[id] = record
			o.doc.markDirty()
			box.tell(id, fmt.Sprintf("Your account is overdrawn by %s. Savings will be used to repay it in %d days.",
				money(-negative[id]), o.opts.AutoRepayDay))
			continue
		}
		if s, ok := o.enforceLocked(ctx, record, day, &box); ok {
			sentences = append(sentences, s)
		}
	}
}

func (o *OverdraftTracker) enforceLocked(ctx context.Context, record *model.DebtRecord, day int64, box *outbox) (sentence, bool) {
	days := day - record.DebtStartDay

	if days >= o.opts.AutoRepayDay && !record.AutoRepayAttempted {
		record.AutoRepayAttempted = true
		o.doc.markDirty()
		debt := -o.ledger.GetBalance(record.Owner)
		recovered := 0.0
		if o.recoverer != nil && debt > 0 {
			recovered = o.recoverer.Liquidate(ctx, record.Owner, debt)
		}
		observeObligation("overdraft", outcomeSuccess)
		box.publish(EventOverdraftAutoRepay, map[string]interface{}{"owner": record.Owner, "debt": debt, "recovered": recovered})
		if recovered > 0 {
			box.tell(record.Owner, fmt.Sprintf("Recovered %s from your savings towards your %s debt.", money(recovered), money(debt)))
		} else {
			box.tell(record.Owner, fmt.Sprintf("Automatic repayment found nothing to recover. Repay your %s debt within %d days.",
				money(debt), o.opts.PrisonDay-days))
		}
		if o.ledger.GetBalance(record.Owner) >= 0 {
			delete(o.debts, record.Owner)
			box.tell(record.Owner, "Your debt has been cleared.")
			return sentence{}, false
		}
	}

	if days >= o.opts.PrisonDay && !record.Sentenced {
		record.Sentenced = true
		o.doc.markDirty()
		debt := -o.ledger.GetBalance(record.Owner)
		penalty := o.PenaltyDays(debt)
		observeObligation("overdraft", outcomeDeactivated)
		logrus.Warnf("%s sentenced to %d days for %s debt", record.Owner, penalty, money(debt))
		box.tell(record.Owner, fmt.Sprintf("You have been in debt for %d days and are sentenced to %d days.", days, penalty))
		box.publish(EventOverdraftPrison, map[string]interface{}{"owner": record.Owner, "debt": debt, "days": penalty})
		return sentence{playerID: record.Owner, days: penalty, debt: debt}, true
	}
	return sentence{}, false
}

func (o *OverdraftTracker) Get(id string) (model.DebtRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	record, ok := o.debts[id]
	if !ok {
		return model.DebtRecord{}, false
	}
	return *record, true
}

// DaysInDebt is zero for accounts that are not tracked as debtors.
func (o *OverdraftTracker) DaysInDebt(id string) int64 {
	record, ok := o.Get(id)
	if !ok {
		return 0
	}
	days := o.clock.Today() - record.DebtStartDay
	if days < 0 {
		return 0
	}
	return days
}

func (o *OverdraftTracker) DaysUntilAutoRepay(id string) int64 {
	if _, ok := o.Get(id); !ok {
		return 0
	}
	return max(o.opts.AutoRepayDay-o.DaysInDebt(id), 0)
}

func (o *OverdraftTracker) DaysUntilPrison(id string) int64 {
	if _, ok := o.Get(id); !ok {
		return 0
	}
	return max(o.opts.PrisonDay-o.DaysInDebt(id), 0)
}

func (o *OverdraftTracker) Status(id string) OverdraftStatus {
	balance := o.ledger.GetBalance(id)
	record, ok := o.Get(id)
	status := OverdraftStatus{AccountID: id, Balance: balance, InDebt: ok}
	if !ok {
		return status
	}
	status.DebtStartDay = record.DebtStartDay
	status.DaysInDebt = o.DaysInDebt(id)
	status.DaysUntilAutoRepay = o.DaysUntilAutoRepay(id)
	status.DaysUntilPrison = o.DaysUntilPrison(id)
	status.PenaltyDays = o.PenaltyDays(-balance)
	return status
}

func (o *OverdraftTracker) Debts() []model.DebtRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.DebtRecord, 0, len(o.debts))
	for _, record := range o.debts {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

func (o *OverdraftTracker) Save(ctx context.Context) error {
	err := o.doc.save(ctx, func() interface{} {
		o.mu.Lock()
		defer o.mu.Unlock()
		snapshot := make(map[string]model.DebtRecord, len(o.debts))
		for id, record := range o.debts {
			snapshot[id] = *record
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save overdraft records: %v", err)
	}
	return err
}

func (o *OverdraftTracker) SaveIfNeeded(ctx context.Context) error {
	if !o.doc.isDirty() {
		return nil
	}
	return o.Save(ctx)
}

func (o *OverdraftTracker) Load(ctx context.Context) error {
	stored := make(map[string]model.DebtRecord)
	if err := o.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load overdraft records: %v", err)
		return err
	}
	debts := make(map[string]*model.DebtRecord, len(stored))
	for id, record := range stored {
		record := record
		record.Owner = id
		debts[id] = &record
	}
	o.mu.Lock()
	o.debts = debts
	o.mu.Unlock()
	return nil
}

func (o *OverdraftTracker) HealthInfo() model.HealthInfo {
	o.mu.Lock()
	records := len(o.debts)
	o.mu.Unlock()
	return o.doc.info(records)
}
