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
	"embed"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

//go:embed sql
var SQLFiles embed.FS

// component is anything that persists its own document.
type component interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	SaveIfNeeded(ctx context.Context) error
	HealthInfo() model.HealthInfo
}

// Economy wires the ledger to every processor. The host game loop owns one
// instance and drives it through Tick.
type Economy struct {
	Config    *config.Configuration
	Clock     *Clock
	Store     database.Store
	History   *History
	Ledger    *Ledger
	Credit    *CreditScore
	Treasury  *Treasury
	Interest  *InterestProcessor
	Loans     *LoanProcessor
	Recurring *RecurringProcessor
	Savings   *SavingsProcessor
	Overdraft *OverdraftTracker
	Pricing   *PricingEngine

	mu   sync.Mutex
	gate dayGate
}

// NewEconomy builds every service from cfg. notifier and hooks may be nil.
func NewEconomy(cfg *config.Configuration, store database.Store, notifier Notifier, hooks *WebhookQueue) *Economy {
	clock := NewClock(cfg.Simulation.TicksPerDay)
	history := NewHistory(store, cfg.Files.Transactions, cfg.Ledger.HistoryLimit)
	ledger := NewLedger(store, history, LedgerOptions{
		StartingBalance: cfg.Ledger.StartingBalance,
		DocumentName:    cfg.Files.Accounts,
	})
	treasury := NewTreasury(ledger, cfg.Tax, notifier)

	e := &Economy{
		Config:   cfg,
		Clock:    clock,
		Store:    store,
		History:  history,
		Ledger:   ledger,
		Treasury: treasury,
		Pricing:  NewPricingEngine(cfg.Pricing),
		gate:     newDayGate(),
	}

	var scorer CreditScorer
	if !cfg.Loans.DisableCreditScore {
		e.Credit = NewCreditScore(store, cfg.Files.Credit, cfg.Loans.Tiers)
		scorer = e.Credit
	}

	e.Interest = NewInterestProcessor(ledger, clock, notifier, store, InterestOptions{
		WeeklyRate:   cfg.Interest.WeeklyRate,
		MaxPerPayout: cfg.Interest.MaxPerPayout,
		IntervalDays: cfg.Interest.IntervalDays,
		DocumentName: cfg.Files.Interest,
	})
	e.Loans = NewLoanProcessor(ledger, clock, scorer, notifier, store, LoanOptions{
		Tiers:        cfg.Loans.Tiers,
		MinBalance:   cfg.Loans.MinBalance,
		DocumentName: cfg.Files.Loans,
	})
	e.Recurring = NewRecurringProcessor(ledger, clock, notifier, store, RecurringOptions{
		MaxPerPlayer: cfg.Recurring.MaxPerPlayer,
		DocumentName: cfg.Files.Recurring,
	})
	e.Savings = NewSavingsProcessor(ledger, clock, treasury, notifier, store, SavingsOptions{
		MinDeposit:   cfg.Savings.MinDeposit,
		MaxPerPlayer: cfg.Savings.MaxPerPlayer,
		WeeklyRate:   cfg.Savings.WeeklyRate,
		LockDays:     cfg.Savings.LockDays,
		Penalty:      cfg.Savings.EarlyWithdrawalPenalty,
		DocumentName: cfg.Files.Savings,
	})
	e.Overdraft = NewOverdraftTracker(ledger, clock, notifier, store, OverdraftOptions{
		AutoRepayDay:     cfg.Overdraft.AutoRepayDay,
		PrisonDay:        cfg.Overdraft.PrisonDay,
		DebtPerPrisonDay: cfg.Overdraft.DebtPerPrisonDay,
		DocumentName:     cfg.Files.Overdraft,
	})
	e.Overdraft.SetRecoverer(e.Savings)

	if hooks != nil {
		treasury.SetWebhooks(hooks)
		e.Interest.SetWebhooks(hooks)
		e.Loans.SetWebhooks(hooks)
		e.Recurring.SetWebhooks(hooks)
		e.Savings.SetWebhooks(hooks)
		e.Overdraft.SetWebhooks(hooks)
	}
	return e
}

func (e *Economy) components() []component {
	list := []component{e.Ledger, e.History, e.Interest, e.Loans, e.Recurring, e.Savings, e.Overdraft}
	if e.Credit != nil {
		list = append(list, e.Credit)
	}
	return list
}

// Tick advances the clock and runs every processor. Overdraft runs last so it
// sees the balances the other processors left behind.
func (e *Economy) Tick(ctx context.Context, dayTime int64) {
	e.Clock.Observe(dayTime)

	e.Interest.Tick(ctx, dayTime)
	e.Loans.Tick(ctx, dayTime)
	e.Recurring.Tick(ctx, dayTime)
	e.Savings.Tick(ctx, dayTime)
	e.Overdraft.Tick(ctx, dayTime)

	day := e.Clock.Day(dayTime)
	e.mu.Lock()
	newDay := e.gate.Enter(day)
	e.mu.Unlock()
	if newDay {
		currentDay.Set(float64(day))
		moneySupply.Set(e.Ledger.TotalSupply())
		if pruned := e.Pricing.PruneEvents(day); pruned > 0 {
			logrus.Infof("removed %d expired price events", pruned)
		}
	}
}

// Load restores every component. Missing documents leave a component empty.
func (e *Economy) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range e.components() {
		c := c
		g.Go(func() error { return c.Load(ctx) })
	}
	return g.Wait()
}

// SaveIfNeeded writes every dirty component. A failing component does not
// stop the others from saving.
func (e *Economy) SaveIfNeeded(ctx context.Context) error {
	var g errgroup.Group
	for _, c := range e.components() {
		c := c
		g.Go(func() error { return c.SaveIfNeeded(ctx) })
	}
	err := g.Wait()
	e.observeHealth()
	return err
}

// SaveAll writes every component regardless of its dirty flag.
func (e *Economy) SaveAll(ctx context.Context) error {
	var g errgroup.Group
	for _, c := range e.components() {
		c := c
		g.Go(func() error { return c.Save(ctx) })
	}
	err := g.Wait()
	e.observeHealth()
	return err
}

func (e *Economy) observeHealth() {
	for _, info := range e.Health() {
		v := 0.0
		if info.Healthy {
			v = 1
		}
		componentHealthy.WithLabelValues(info.Component).Set(v)
	}
}

func (e *Economy) Health() []model.HealthInfo {
	components := e.components()
	out := make([]model.HealthInfo, 0, len(components))
	for _, c := range components {
		out = append(out, c.HealthInfo())
	}
	return out
}

func (e *Economy) Healthy() bool {
	for _, info := range e.Health() {
		if !info.Healthy {
			return false
		}
	}
	return true
}

// Documents lists the names every component persists under.
func (e *Economy) Documents() []string {
	f := e.Config.Files
	docs := []string{
		nameOr(f.Accounts, DefaultAccountsDocument),
		nameOr(f.Transactions, DefaultTransactionsDocument),
		nameOr(f.Interest, DefaultInterestDocument),
		nameOr(f.Loans, DefaultLoansDocument),
		nameOr(f.Recurring, DefaultRecurringDocument),
		nameOr(f.Savings, DefaultSavingsDocument),
		nameOr(f.Overdraft, DefaultOverdraftDocument),
	}
	if e.Credit != nil {
		docs = append(docs, nameOr(f.Credit, DefaultCreditDocument))
	}
	return docs
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
