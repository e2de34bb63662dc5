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
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

var (
	ErrInvalidInterval = errors.New("interval must be at least one day")
	ErrRecurringLimit  = errors.New("maximum number of recurring payments reached")
)

var recurringTracer = otel.Tracer("economy.recurring")

const (
	DefaultRecurringDocument     = "recurring_payments.json"
	DefaultMaxRecurringPerPlayer = 10

	recurringIDPrefix = "recurring_"
	shortIDLength     = 8
)

type RecurringOptions struct {
	MaxPerPlayer int
	DocumentName string
}

// RecurringProcessor executes scheduled transfers between two accounts.
type RecurringProcessor struct {
	mu       sync.Mutex
	ledger   *Ledger
	clock    *Clock
	notifier Notifier
	hooks    *WebhookQueue
	payments map[string]*model.RecurringPayment
	gate     dayGate
	opts     RecurringOptions
	doc      *document
}

func NewRecurringProcessor(ledger *Ledger, clock *Clock, notifier Notifier, store database.Store, opts RecurringOptions) *RecurringProcessor {
	if opts.MaxPerPlayer <= 0 {
		opts.MaxPerPlayer = DefaultMaxRecurringPerPlayer
	}
	if opts.DocumentName == "" {
		opts.DocumentName = DefaultRecurringDocument
	}
	return &RecurringProcessor{
		ledger:   ledger,
		clock:    clock,
		notifier: notifier,
		payments: make(map[string]*model.RecurringPayment),
		gate:     newDayGate(),
		opts:     opts,
		doc:      newDocument(store, "recurring", opts.DocumentName),
	}
}

func (p *RecurringProcessor) SetWebhooks(hooks *WebhookQueue) {
	p.hooks = hooks
}

// ShortID is the abbreviated form of a payment id shown to players.
func ShortID(id string) string {
	short := strings.TrimPrefix(id, recurringIDPrefix)
	if len(short) > shortIDLength {
		short = short[:shortIDLength]
	}
	return short
}

// Create schedules a transfer of amount every intervalDays, first due one
// interval after today.
func (p *RecurringProcessor) Create(ctx context.Context, from, to string, amount float64, intervalDays int64, description string) (model.RecurringPayment, error) {
	_, span := recurringTracer.Start(ctx, "Create")
	defer span.End()

	switch {
	case from == to:
		return model.RecurringPayment{}, ErrSelfTransfer
	case !validAmount(amount) || amount == 0:
		return model.RecurringPayment{}, ErrInvalidAmount
	case intervalDays <= 0:
		return model.RecurringPayment{}, ErrInvalidInterval
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.countLocked(from) >= p.opts.MaxPerPlayer {
		span.RecordError(ErrRecurringLimit)
		return model.RecurringPayment{}, ErrRecurringLimit
	}

	today := p.clock.Today()
	payment := &model.RecurringPayment{
		PaymentID:       model.GenerateUUIDWithSuffix("recurring"),
		From:            from,
		To:              to,
		Amount:          amount,
		Description:     description,
		CreatedDay:      today,
		LastExecutedDay: -1,
		CreatedAt:       time.Now(),
		Schedule:        model.NewSchedule(today, intervalDays),
	}
	p.payments[payment.PaymentID] = payment
	p.doc.markDirty()

	box.tell(from, fmt.Sprintf("Recurring payment %s created: %s to %s every %d days, first on day %d.",
		ShortID(payment.PaymentID), money(amount), to, intervalDays, payment.NextExecutionDay))
	box.publish(EventRecurringCreated, *payment)
	span.AddEvent("Recurring payment created", trace.WithAttributes(attribute.String("recurring.id", payment.PaymentID)))
	return *payment, nil
}

func (p *RecurringProcessor) countLocked(owner string) int {
	n := 0
	for _, payment := range p.payments {
		if payment.From == owner {
			n++
		}
	}
	return n
}

// resolveLocked finds the owner's payment by full id, short id or unambiguous
// prefix. On a miss it returns the message to tell the owner instead: the
// matching short ids when the prefix is ambiguous, otherwise the closest id.
func (p *RecurringProcessor) resolveLocked(owner, idOrPrefix string) (*model.RecurringPayment, string) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, notFoundMessage(idOrPrefix, "")
	}
	if payment, ok := p.payments[idOrPrefix]; ok && payment.From == owner {
		return payment, ""
	}

	var matches []*model.RecurringPayment
	for id, payment := range p.payments {
		if payment.From != owner {
			continue
		}
		if strings.HasPrefix(id, idOrPrefix) || strings.HasPrefix(strings.TrimPrefix(id, recurringIDPrefix), idOrPrefix) {
			matches = append(matches, payment)
		}
	}
	if len(matches) == 1 {
		return matches[0], ""
	}
	if len(matches) > 1 {
		return nil, ambiguousMessage(idOrPrefix, matches)
	}
	return nil, notFoundMessage(idOrPrefix, p.closestLocked(owner, idOrPrefix))
}

func (p *RecurringProcessor) closestLocked(owner, input string) string {
	best, bestDistance := "", -1
	for id, payment := range p.payments {
		if payment.From != owner {
			continue
		}
		target := ShortID(id)
		if len(input) > shortIDLength {
			target = id
		}
		distance := levenshtein.DistanceForStrings([]rune(input), []rune(target), levenshtein.DefaultOptions)
		if bestDistance < 0 || distance < bestDistance || (distance == bestDistance && ShortID(id) < best) {
			best, bestDistance = ShortID(id), distance
		}
	}
	if bestDistance < 0 || bestDistance > len([]rune(input))/2 {
		return ""
	}
	return best
}

// Suggest returns the owner's payment id closest to a mistyped one.
func (p *RecurringProcessor) Suggest(owner, input string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closestLocked(owner, input)
}

func notFoundMessage(idOrPrefix, hint string) string {
	msg := fmt.Sprintf("No recurring payment matches %q.", idOrPrefix)
	if hint != "" {
		msg += fmt.Sprintf(" Did you mean %s?", hint)
	}
	return msg
}

func ambiguousMessage(idOrPrefix string, matches []*model.RecurringPayment) string {
	ids := make([]string, 0, len(matches))
	for _, payment := range matches {
		ids = append(ids, ShortID(payment.PaymentID))
	}
	sort.Strings(ids)
	return fmt.Sprintf("Several recurring payments match %q: %s. Use a longer id.", idOrPrefix, strings.Join(ids, ", "))
}

// Delete removes one of owner's payments. Unknown or ambiguous ids return false.
func (p *RecurringProcessor) Delete(owner, idOrPrefix string) bool {
	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	payment, miss := p.resolveLocked(owner, idOrPrefix)
	if payment == nil {
		box.tell(owner, miss)
		return false
	}
	delete(p.payments, payment.PaymentID)
	p.doc.markDirty()
	box.tell(owner, fmt.Sprintf("Recurring payment %s to %s cancelled.", ShortID(payment.PaymentID), payment.To))
	return true
}

func (p *RecurringProcessor) Pause(owner, idOrPrefix string) bool {
	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	payment, miss := p.resolveLocked(owner, idOrPrefix)
	if payment == nil {
		box.tell(owner, miss)
		return false
	}
	payment.Pause()
	p.doc.markDirty()
	box.tell(owner, fmt.Sprintf("Recurring payment %s paused.", ShortID(payment.PaymentID)))
	return true
}

// Resume reactivates a paused or deactivated payment, next due one interval
// from today.
func (p *RecurringProcessor) Resume(owner, idOrPrefix string) bool {
	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	payment, miss := p.resolveLocked(owner, idOrPrefix)
	if payment == nil {
		box.tell(owner, miss)
		return false
	}
	payment.Resume(p.clock.Today())
	p.doc.markDirty()
	box.tell(owner, fmt.Sprintf("Recurring payment %s resumed, next on day %d.", ShortID(payment.PaymentID), payment.NextExecutionDay))
	return true
}

// Tick executes every due payment, once per day.
func (p *RecurringProcessor) Tick(ctx context.Context, dayTime int64) {
	day := p.clock.Day(dayTime)

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.gate.Enter(day) {
		return
	}

	ctx, span := recurringTracer.Start(ctx, "ProcessRecurringPayments", trace.WithAttributes(attribute.Int64("day", day)))
	defer span.End()

	ids := make([]string, 0, len(p.payments))
	for id, payment := range p.payments {
		if payment.Due(day) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		p.executeLocked(ctx, p.payments[id], day, &box)
	}
}

func (p *RecurringProcessor) executeLocked(ctx context.Context, payment *model.RecurringPayment, day int64, box *outbox) {
	description := payment.Description
	if description == "" {
		description = "Recurring payment " + ShortID(payment.PaymentID)
	}

	ok, err := p.ledger.Transfer(ctx, payment.From, payment.To, payment.Amount, description, WithType(model.TransactionRecurring))
	if err != nil {
		logrus.Errorf("recurring payment %s: %v", payment.PaymentID, err)
	}
	p.doc.markDirty()

	if ok {
		payment.Succeed()
		payment.LastExecutedDay = day
		payment.Executions++
		payment.TotalPaid = add(payment.TotalPaid, payment.Amount)
		observeObligation("recurring", outcomeSuccess)
		box.tell(payment.From, fmt.Sprintf("Recurring payment of %s sent to %s.", money(payment.Amount), payment.To))
		box.tell(payment.To, fmt.Sprintf("Received recurring payment of %s from %s.", money(payment.Amount), payment.From))
		box.publish(EventRecurringExecuted, *payment)
		return
	}

	if payment.Fail(day, MaxFailures) {
		observeObligation("recurring", outcomeDeactivated)
		logrus.Errorf("recurring payment %s from %s deactivated after %d failures", payment.PaymentID, payment.From, payment.FailureCount)
		box.tell(payment.From, fmt.Sprintf("Recurring payment %s to %s was deactivated after %d failed attempts. Resume it once you have funds.",
			ShortID(payment.PaymentID), payment.To, payment.FailureCount))
		box.publish(EventRecurringDeactivated, *payment)
		return
	}

	observeObligation("recurring", outcomeFailure)
	logrus.Warnf("recurring payment %s failed for %s (%d/%d)", payment.PaymentID, payment.From, payment.FailureCount, MaxFailures)
	box.tell(payment.From, fmt.Sprintf("Recurring payment of %s to %s failed: insufficient funds (%d/%d). Retrying tomorrow.",
		money(payment.Amount), payment.To, payment.FailureCount, MaxFailures))
	box.publish(EventRecurringFailed, *payment)
}

func (p *RecurringProcessor) Get(id string) (model.RecurringPayment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[id]
	if !ok {
		return model.RecurringPayment{}, false
	}
	return *payment, true
}

// List returns the payments owner pays, ordered by creation.
func (p *RecurringProcessor) List(owner string) []model.RecurringPayment {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.RecurringPayment
	for _, payment := range p.payments {
		if payment.From == owner {
			out = append(out, *payment)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PaymentID < out[j].PaymentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (p *RecurringProcessor) Save(ctx context.Context) error {
	err := p.doc.save(ctx, func() interface{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		snapshot := make(map[string]model.RecurringPayment, len(p.payments))
		for id, payment := range p.payments {
			snapshot[id] = *payment
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save recurring payments: %v", err)
	}
	return err
}

func (p *RecurringProcessor) SaveIfNeeded(ctx context.Context) error {
	if !p.doc.isDirty() {
		return nil
	}
	return p.Save(ctx)
}

func (p *RecurringProcessor) Load(ctx context.Context) error {
	stored := make(map[string]model.RecurringPayment)
	if err := p.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load recurring payments: %v", err)
		return err
	}
	payments := make(map[string]*model.RecurringPayment, len(stored))
	for id, payment := range stored {
		payment := payment
		payment.PaymentID = id
		payments[id] = &payment
	}
	p.mu.Lock()
	p.payments = payments
	p.mu.Unlock()
	return nil
}

func (p *RecurringProcessor) HealthInfo() model.HealthInfo {
	p.mu.Lock()
	records := len(p.payments)
	p.mu.Unlock()
	return p.doc.info(records)
}
