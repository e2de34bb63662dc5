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

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/model"
)

var (
	ErrUnknownLoanTier     = errors.New("unknown loan tier")
	ErrLoanOutstanding     = errors.New("an outstanding loan must be repaid first")
	ErrBalanceTooLow       = errors.New("balance is below the loan eligibility minimum")
	ErrCreditDenied        = errors.New("credit score too low for this loan tier")
	ErrLoanNotFound        = errors.New("no outstanding loan")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

var loanTracer = otel.Tracer("economy.loans")

const DefaultLoansDocument = "loans.json"

type LoanOptions struct {
	Tiers        map[model.LoanTier]model.LoanTerms
	MinBalance   float64
	DocumentName string
}

// LoanProcessor originates loans and collects one amortized payment per day.
// With a nil CreditScorer every tier is open to everyone at its base rate.
type LoanProcessor struct {
	mu       sync.Mutex
	ledger   *Ledger
	clock    *Clock
	credit   CreditScorer
	notifier Notifier
	hooks    *WebhookQueue
	loans    map[string]*model.Loan
	gate     dayGate
	opts     LoanOptions
	doc      *document
}

func NewLoanProcessor(ledger *Ledger, clock *Clock, credit CreditScorer, notifier Notifier, store database.Store, opts LoanOptions) *LoanProcessor {
	if len(opts.Tiers) == 0 {
		opts.Tiers = config.DefaultLoanTiers()
	}
	if opts.DocumentName == "" {
		opts.DocumentName = DefaultLoansDocument
	}
	return &LoanProcessor{
		ledger:   ledger,
		clock:    clock,
		credit:   credit,
		notifier: notifier,
		loans:    make(map[string]*model.Loan),
		gate:     newDayGate(),
		opts:     opts,
		doc:      newDocument(store, "loans", opts.DocumentName),
	}
}

// SetWebhooks attaches the queue lifecycle events are published to.
func (p *LoanProcessor) SetWebhooks(hooks *WebhookQueue) {
	p.hooks = hooks
}

// Terms returns the tier table with the rate the owner would be charged.
func (p *LoanProcessor) Terms(owner string, tier model.LoanTier) (model.LoanTerms, float64, bool) {
	terms, ok := p.opts.Tiers[tier]
	if !ok {
		return model.LoanTerms{}, 0, false
	}
	rate := terms.BaseRate
	if p.credit != nil {
		rate = p.credit.EffectiveInterestRate(owner, tier)
	}
	return terms, rate, true
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// ApplyForLoan disburses the tier's principal and starts daily collection
// from the next day.
func (p *LoanProcessor) ApplyForLoan(ctx context.Context, owner string, tier model.LoanTier) (model.Loan, error) {
	ctx, span := loanTracer.Start(ctx, "ApplyForLoan")
	defer span.End()

	terms, rate, ok := p.Terms(owner, tier)
	if !ok {
		span.RecordError(ErrUnknownLoanTier)
		return model.Loan{}, ErrUnknownLoanTier
	}

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.loans[owner]; exists {
		return model.Loan{}, ErrLoanOutstanding
	}
	if p.ledger.GetBalance(owner) < p.opts.MinBalance {
		return model.Loan{}, ErrBalanceTooLow
	}
	if p.credit != nil && !p.credit.CanTakeLoan(owner, tier) {
		span.AddEvent("Credit denied", trace.WithAttributes(attribute.String("loan.owner", owner)))
		return model.Loan{}, ErrCreditDenied
	}

	principal := decimal.NewFromFloat(terms.Amount)
	remaining := principal.Mul(decimal.NewFromFloat(1 + rate)).Round(2)
	daily := remaining.Div(decimal.NewFromInt(terms.DurationDays)).RoundCeil(2)

	today := p.clock.Today()
	loan := &model.Loan{
		LoanID:       model.GenerateUUIDWithSuffix("loan"),
		Owner:        owner,
		Tier:         tier,
		Principal:    terms.Amount,
		InterestRate: rate,
		Remaining:    remaining.InexactFloat64(),
		DailyPayment: daily.InexactFloat64(),
		StartDay:     today,
		CreatedAt:    time.Now(),
		Schedule:     model.NewSchedule(today, 1),
	}

	err := p.ledger.Deposit(ctx, owner, terms.Amount,
		WithType(model.TransactionLoanDisbursement),
		WithDescription(fmt.Sprintf("%s loan disbursement", tier)))
	if err != nil {
		span.RecordError(err)
		return model.Loan{}, err
	}

	p.loans[owner] = loan
	p.doc.markDirty()

	box.tell(owner, fmt.Sprintf("Loan approved: %s received. Repay %s over %d days at %s per day.",
		money(terms.Amount), money(loan.Remaining), terms.DurationDays, money(loan.DailyPayment)))
	box.publish(EventLoanCreated, *loan)
	span.AddEvent("Loan created", trace.WithAttributes(attribute.String("loan.id", loan.LoanID)))
	logrus.Infof("loan %s created for %s: %s %s", loan.LoanID, owner, tier, money(loan.Remaining))
	return *loan, nil
}

// RepayLoan pays off the whole remaining balance in one withdrawal. Defaulted
// loans can be repaid this way too.
func (p *LoanProcessor) RepayLoan(ctx context.Context, owner string) (float64, error) {
	ctx, span := loanTracer.Start(ctx, "RepayLoan")
	defer span.End()

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	loan, ok := p.loans[owner]
	if !ok {
		return 0, ErrLoanNotFound
	}
	amount := loan.Remaining
	if !p.ledger.Withdraw(ctx, owner, amount, WithType(model.TransactionLoanRepayment), WithDescription("Loan payoff")) {
		box.tell(owner, fmt.Sprintf("You need %s to repay your loan.", money(amount)))
		return 0, ErrInsufficientBalance
	}
	loan.TotalPaid = add(loan.TotalPaid, amount)
	loan.Remaining = 0
	p.completeLocked(loan, &box)
	return amount, nil
}

func (p *LoanProcessor) completeLocked(loan *model.Loan, box *outbox) {
	delete(p.loans, loan.Owner)
	p.doc.markDirty()
	if p.credit != nil {
		p.credit.RecordLoanCompleted(loan.Owner, loan.TotalPaid)
	}
	observeObligation("loans", outcomeCompleted)
	box.tell(loan.Owner, fmt.Sprintf("Your loan is fully repaid. Total paid: %s.", money(loan.TotalPaid)))
	box.publish(EventLoanCompleted, *loan)
}

// Tick collects the daily payment of every due loan, once per day.
func (p *LoanProcessor) Tick(ctx context.Context, dayTime int64) {
	day := p.clock.Day(dayTime)

	var box outbox
	defer func() { box.flush(p.notifier, p.hooks) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.gate.Enter(day) {
		return
	}

	ctx, span := loanTracer.Start(ctx, "ProcessLoans", trace.WithAttributes(attribute.Int64("day", day)))
	defer span.End()

	owners := make([]string, 0, len(p.loans))
	for owner := range p.loans {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		loan := p.loans[owner]
		if !loan.Due(day) {
			continue
		}
		p.collectLocked(ctx, loan, day, &box)
	}
}

func (p *LoanProcessor) collectLocked(ctx context.Context, loan *model.Loan, day int64, box *outbox) {
	payment := loan.DailyPayment
	if loan.Remaining < payment {
		payment = loan.Remaining
	}

	if p.ledger.Withdraw(ctx, loan.Owner, payment,
		WithType(model.TransactionLoanRepayment),
		WithDescription(fmt.Sprintf("%s loan payment", loan.Tier))) {
		loan.Remaining = sub(loan.Remaining, payment)
		loan.TotalPaid = add(loan.TotalPaid, payment)
		loan.Succeed()
		p.doc.markDirty()
		if p.credit != nil {
			p.credit.RecordOnTimePayment(loan.Owner)
		}
		observeObligation("loans", outcomeSuccess)

		if loan.Remaining <= 0 {
			loan.Remaining = 0
			p.completeLocked(loan, box)
			return
		}
		box.tell(loan.Owner, fmt.Sprintf("Loan payment of %s collected. %s remaining.", money(payment), money(loan.Remaining)))
		box.publish(EventLoanPayment, *loan)
		return
	}

	if p.credit != nil {
		p.credit.RecordMissedPayment(loan.Owner)
	}
	deactivated := loan.Fail(day, MaxFailures)
	p.doc.markDirty()

	if deactivated {
		loan.Defaulted = true
		if p.credit != nil {
			p.credit.RecordLoanDefaulted(loan.Owner)
		}
		observeObligation("loans", outcomeDeactivated)
		logrus.Errorf("loan %s for %s defaulted with %s outstanding", loan.LoanID, loan.Owner, money(loan.Remaining))
		box.tell(loan.Owner, fmt.Sprintf("Your loan has defaulted after %d missed payments. %s is still owed.", loan.FailureCount, money(loan.Remaining)))
		box.publish(EventLoanDefaulted, *loan)
		return
	}

	observeObligation("loans", outcomeFailure)
	logrus.Warnf("loan payment missed by %s (%d/%d)", loan.Owner, loan.FailureCount, MaxFailures)
	box.tell(loan.Owner, fmt.Sprintf("Missed loan payment of %s (%d/%d). Retrying tomorrow.", money(payment), loan.FailureCount, MaxFailures))
}

// GetLoan returns the owner's outstanding loan.
func (p *LoanProcessor) GetLoan(owner string) (model.Loan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loan, ok := p.loans[owner]
	if !ok {
		return model.Loan{}, false
	}
	return *loan, true
}

func (p *LoanProcessor) Loans() []model.Loan {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Loan, 0, len(p.loans))
	for _, loan := range p.loans {
		out = append(out, *loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

func (p *LoanProcessor) Save(ctx context.Context) error {
	err := p.doc.save(ctx, func() interface{} {
		p.mu.Lock()
		defer p.mu.Unlock()
		snapshot := make(map[string]model.Loan, len(p.loans))
		for owner, loan := range p.loans {
			snapshot[owner] = *loan
		}
		return snapshot
	})
	if err != nil {
		logrus.Errorf("failed to save loans: %v", err)
	}
	return err
}

func (p *LoanProcessor) SaveIfNeeded(ctx context.Context) error {
	if !p.doc.isDirty() {
		return nil
	}
	return p.Save(ctx)
}

func (p *LoanProcessor) Load(ctx context.Context) error {
	stored := make(map[string]model.Loan)
	if err := p.doc.load(ctx, &stored); err != nil {
		logrus.Errorf("failed to load loans: %v", err)
		return err
	}
	loans := make(map[string]*model.Loan, len(stored))
	for owner, loan := range stored {
		loan := loan
		loan.Owner = owner
		loans[owner] = &loan
	}
	p.mu.Lock()
	p.loans = loans
	p.mu.Unlock()
	return nil
}

func (p *LoanProcessor) HealthInfo() model.HealthInfo {
	p.mu.Lock()
	records := len(p.loans)
	p.mu.Unlock()
	return p.doc.info(records)
}
