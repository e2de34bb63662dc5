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
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

var interestTracer = otel.Tracer("economy.interest")

const (
	DefaultInterestDocument     = "interest.json"
	DefaultInterestIntervalDays = 7
)

type InterestOptions struct {
	WeeklyRate   float64
	MaxPerPayout float64
	IntervalDays int64
	DocumentName string
}

// InterestProcessor credits periodic interest on positive ledger balances.
// Accounts are enrolled the first day they are seen with money in them.
type InterestProcessor struct {
	mu       sync.Mutex
	ledger   *Ledger
	clock    *Clock
	notifier Notifier
	hooks    *WebhookQueue
	accounts map[string]*model.InterestAccount
	gate     dayGate
	opts     InterestOptions
	doc      *document
}

func NewInterestProcessor(ledger *Ledger, clock *Clock, notifier Notifier, store database.Store, opts InterestOptions) *InterestProcessor {
	if opts.IntervalDays <= 0 {
		opts.IntervalDays = DefaultInterestIntervalDays
	}
	if opts.DocumentName == "" {
		opts.DocumentName = DefaultInterestDocument
	}
	return &InterestProcessor{
		ledger:   ledger,
		clock:    clock,
		notifier: notifier,
		accounts: make(map[string]*model.InterestAccount),
		gate:     newDayGate(),
		opts:     opts,
		doc:      newDocument(store, "interest", opts.DocumentName),
	}
}

func (p *InterestProcessor) SetWebhooks(hooks *WebhookQueue) {
	p.hooks = hooks
}

func (p *InterestProcessor) payout(balance float64) float64 {
	interest := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(p.opts.WeeklyRate)).Round(2)
	if p.opts.MaxPerPayout > 0 {
		interest = decimal.Min(interest, decimal.NewFromFloat(p.opts.MaxPerPayout))
	}
	return interest.InexactFloat64()
}

// Tick enrolls new accounts and pays interest on every due one, once per day.
func (p *InterestProcessor) Tick(ctx context.Context, dayTime int64) {
	day := p.clock.Day(dayTime)

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.gate.Enter(day) {
		return
	}

	ctx, span := interestTracer.Start(ctx, "ProcessInterest", trace.WithAttributes(attribute.Int64("day", day)))
	defer span.End()

	balances := make(map[string]float64)
	for _, account := range p.ledger.Accounts() {
		if account.ID == TreasuryAccountID {
			continue
		}
		balances[account.ID] = account.Balance
	}

	for id := range p.accounts {
		if _, ok := balances[id]; !ok {
			delete(p.accounts, id)
			p.doc.markDirty()
		}
	}

	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	paid := 0
	for _, id := range ids {
		account, ok := p.accounts[id]
		if !ok {
			if balances[id] <= 0 {
				continue
			}
			account = &model.InterestAccount{Owner: id, Schedule: model.NewSchedule(day, p.opts.IntervalDays)}
			p.accounts[id] = account
			p.doc.markDirty()
			continue
		}
		if !account.Due(day) {
			continue
		}

		interest := p.payout(balances[id])
		account.Succeed()
		p.doc.markDirty()
		if interest <= 0 {
			continue
		}
		if err := p.ledger.Deposit(ctx, id, interest, WithType(model.TransactionInterest), WithDescription("Weekly interest")); err != nil {
			logrus.Errorf("failed to pay interest to %s: %v", id, err)
			observeObligation("interest", outcomeFailure)
			box.tell(id, fmt.Sprintf("Your %s interest payment could not be credited.", money(interest)))
			continue
		}
		account.LastPayout = interest
		account.TotalPaid = add(account.TotalPaid, interest)
		paid++
		observeObligation("interest", outcomeSuccess)
		box.tell(id, fmt.Sprintf("You earned %s interest on your balance.", money(interest)))
		box.publish(EventInterestPaid, *account)
	}
	if paid > 0 {
		logrus.Infof("paid interest to %d accounts on day %d", paid, day)
	}
}

func (p *InterestProcessor) Get(id string) (model.InterestAccount, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[id]
	if !ok {
		return model.InterestAccount{}, false
	}
	return *account, true
}

func (p *InterestProcessor) Save(ctx context.Context) error {
	err := p.doc.save(ctx, func() interface{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		snapshot := make(map[string]model.InterestAccount, len(p.accounts))
		for id, account := range p.accounts {
			snapshot[id] = *account
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save interest accounts: %v", err)
	}
	return err
}

func (p *InterestProcessor) SaveIfNeeded(ctx context.Context) error {
	if !p.doc.isDirty() {
		return nil
	}
	return p.Save(ctx)
}

func (p *InterestProcessor) Load(ctx context.Context) error {
	stored := make(map[string]model.InterestAccount)
	if err := p.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load interest accounts: %v", err)
		return err
	}
	accounts := make(map[string]*model.InterestAccount, len(stored))
	for id, account := range stored {
		account := account
		account.Owner = id
		accounts[id] = &account
	}
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
	return nil
}

func (p *InterestProcessor) HealthInfo() model.HealthInfo {
	p.mu.Lock()
	records := len(p.accounts)
	p.mu.Unlock()
	return p.doc.info(records)
}
