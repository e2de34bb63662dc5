package economy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/model"
)

// recordingNotifier keeps every message sent to a player.
type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: make(map[string][]string)}
}

func (r *recordingNotifier) Notify(playerID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[playerID] = append(r.messages[playerID], message)
}

func (r *recordingNotifier) For(playerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages[playerID]...)
}

const testTicks int64 = 100

func dayTime(day int64) int64 {
	return day * testTicks
}

type loanFixture struct {
	ledger   *Ledger
	clock    *Clock
	credit   *CreditScore
	loans    *LoanProcessor
	notifier *recordingNotifier
}

func newLoanFixture(t *testing.T, withCredit bool) *loanFixture {
	t.Helper()
	ledger, _ := newTestLedger(t)
	clock := NewClock(testTicks)
	notifier := newRecordingNotifier()
	f := &loanFixture{ledger: ledger, clock: clock, notifier: notifier}
	var scorer CreditScorer
	if withCredit {
		f.credit = NewCreditScore(newTestStore(t), "", config.DefaultLoanTiers())
		scorer = f.credit
	}
	f.loans = NewLoanProcessor(ledger, clock, scorer, notifier, newTestStore(t), LoanOptions{MinBalance: 1000})
	return f
}

// tickDay advances the clock to day and ticks the processor.
func (f *loanFixture) tickDay(day int64) {
	f.clock.Observe(dayTime(day))
	f.loans.Tick(context.Background(), dayTime(day))
}

func TestLoan_SmallLoanFullRepayment(t *testing.T) {
	f := newLoanFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.ledger.SetBalance(ctx, "alice", 10000))

	loan, err := f.loans.ApplyForLoan(ctx, "alice", model.LoanSmall)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, f.ledger.GetBalance("alice"))
	assert.Equal(t, 5500.0, loan.Remaining)
	assert.Equal(t, 392.86, loan.DailyPayment)
	assert.Equal(t, int64(1), loan.NextExecutionDay)

	for day := int64(1); day <= 14; day++ {
		f.tickDay(day)
	}

	_, ok := f.loans.GetLoan("alice")
	assert.False(t, ok)
	assert.InDelta(t, 9500.0, f.ledger.GetBalance("alice"), 1e-9)
	assert.Contains(t, f.notifier.For("alice")[len(f.notifier.For("alice"))-1], "fully repaid")
}

func TestLoan_IdempotentWithinDay(t *testing.T) {
	f := newLoanFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.ledger.SetBalance(ctx, "alice", 10000))
	_, err := f.loans.ApplyForLoan(ctx, "alice", model.LoanSmall)
	require.NoError(t, err)

	f.clock.Observe(dayTime(1))
	for _, tick := range []int64{dayTime(1), dayTime(1) + 10, dayTime(1) + 99} {
		f.loans.Tick(ctx, tick)
	}

	loan, ok := f.loans.GetLoan("alice")
	require.True(t, ok)
	assert.InDelta(t, 5500-392.86, loan.Remaining, 1e-9)
	assert.InDelta(t, 15000-392.86, f.ledger.GetBalance("alice"), 1e-9)
}

func TestLoan_ApplyRejections(t *testing.T) {
	f := newLoanFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.ledger.SetBalance(ctx, "poor", 999))
	_, err := f.loans.ApplyForLoan(ctx, "poor", model.LoanSmall)
	assert.ErrorIs(t, err, ErrBalanceTooLow)
	assert.Equal(t, 999.0, f.ledger.GetBalance("poor"))

	require.NoError(t, f.ledger.SetBalance(ctx, "bob", 50000))
	_, err = f.loans.ApplyForLoan(ctx, "bob", model.LoanTier("HUGE"))
	assert.ErrorIs(t, err, ErrUnknownLoanTier)

	// 600 is below the LARGE tier minimum
	_, err = f.loans.ApplyForLoan(ctx, "bob", model.LoanLarge)
	assert.ErrorIs(t, err, ErrCreditDenied)

	_, err = f.loans.ApplyForLoan(ctx, "bob", model.LoanMedium)
	require.NoError(t, err)
	_, err = f.loans.ApplyForLoan(ctx, "bob", model.LoanSmall)
	assert.ErrorIs(t, err, ErrLoanOutstanding)
}

func TestLoan_CreditAdjustsRate(t *testing.T) {
	f := newLoanFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.ledger.SetBalance(ctx, "carol", 10000))

	loan, err := f.loans.ApplyForLoan(ctx, "carol", model.LoanMedium)
	require.NoError(t, err)
	assert.Equal(t, 0.15, loan.InterestRate, "no history borrows at the base rate")
	assert.Equal(t, 28750.0, loan.Remaining)

	// FAIR rating once a record exists: 0.15 * 1.2
	require.NoError(t, f.ledger.SetBalance(ctx, "chris", 10000))
	f.credit.RecordMissedPayment("chris")
	loan, err = f.loans.ApplyForLoan(ctx, "chris", model.LoanMedium)
	require.NoError(t, err)
	assert.Equal(t, 0.18, loan.InterestRate)
	assert.Equal(t, 29500.0, loan.Remaining)
}

func TestLoan_DefaultAfterThreeMisses(t *testing.T) {
	f := newLoanFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.ledger.SetBalance(ctx, "dave", 1000))

	_, err := f.loans.ApplyForLoan(ctx, "dave", model.LoanSmall)
	require.NoError(t, err)
	require.True(t, f.ledger.Withdraw(ctx, "dave", 6000))

	f.tickDay(1)
	f.tickDay(2)
	loan, _ := f.loans.GetLoan("dave")
	assert.Equal(t, 2, loan.FailureCount)
	assert.True(t, loan.Active)

	f.tickDay(3)
	loan, ok := f.loans.GetLoan("dave")
	require.True(t, ok)
	assert.False(t, loan.Active)
	assert.True(t, loan.Defaulted)
	assert.Equal(t, 5500.0, loan.Remaining)

	// no further attempts once defaulted
	require.NoError(t, f.ledger.Deposit(ctx, "dave", 10000))
	f.tickDay(4)
	loan, _ = f.loans.GetLoan("dave")
	assert.Equal(t, 5500.0, loan.Remaining)
	assert.Equal(t, 10000.0, f.ledger.GetBalance("dave"))

	rec := f.credit.Record("dave")
	assert.Equal(t, 3, rec.MissedPayments)
	assert.Equal(t, 1, rec.LoansDefaulted)
	assert.Equal(t, InitialCreditScore+3*missedPaymentPoints+loanDefaultedPoints, rec.Score)

	_, err = f.loans.ApplyForLoan(ctx, "dave", model.LoanSmall)
	assert.ErrorIs(t, err, ErrLoanOutstanding)

	// a defaulted loan can still be paid off
	paid, err := f.loans.RepayLoan(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, 5500.0, paid)
	_, ok = f.loans.GetLoan("dave")
	assert.False(t, ok)
}

func TestLoan_RepayLoan(t *testing.T) {
	f := newLoanFixture(t, true)
	ctx := context.Background()

	_, err := f.loans.RepayLoan(ctx, "erin")
	assert.ErrorIs(t, err, ErrLoanNotFound)

	require.NoError(t, f.ledger.SetBalance(ctx, "erin", 1000))
	_, err = f.loans.ApplyForLoan(ctx, "erin", model.LoanSmall)
	require.NoError(t, err)
	require.True(t, f.ledger.Withdraw(ctx, "erin", 1000))

	_, err = f.loans.RepayLoan(ctx, "erin")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	loan, ok := f.loans.GetLoan("erin")
	require.True(t, ok)
	assert.Equal(t, 5500.0, loan.Remaining)

	require.NoError(t, f.ledger.Deposit(ctx, "erin", 1000))
	paid, err := f.loans.RepayLoan(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 5500.0, paid)
	assert.Equal(t, 500.0, f.ledger.GetBalance("erin"))
	assert.Equal(t, InitialCreditScore+loanCompletedPoints, f.credit.Score("erin"))
}

func TestLoan_PersistenceRoundTrip(t *testing.T) {
	f := newLoanFixture(t, false)
	ctx := context.Background()
	store := newTestStore(t)
	f.loans = NewLoanProcessor(f.ledger, f.clock, nil, f.notifier, store, LoanOptions{MinBalance: 1000})

	require.NoError(t, f.ledger.SetBalance(ctx, "frank", 5000))
	_, err := f.loans.ApplyForLoan(ctx, "frank", model.LoanSmall)
	require.NoError(t, err)
	f.tickDay(1)
	require.NoError(t, f.loans.SaveIfNeeded(ctx))

	restored := NewLoanProcessor(f.ledger, f.clock, nil, f.notifier, store, LoanOptions{MinBalance: 1000})
	require.NoError(t, restored.Load(ctx))
	want, _ := f.loans.GetLoan("frank")
	got, ok := restored.GetLoan("frank")
	require.True(t, ok)
	assert.Equal(t, want.LoanID, got.LoanID)
	assert.Equal(t, want.Remaining, got.Remaining)
	assert.Equal(t, want.Schedule, got.Schedule)
	assert.Equal(t, want.TotalPaid, got.TotalPaid)
	assert.True(t, restored.HealthInfo().Healthy)
	assert.Equal(t, 1, restored.HealthInfo().Records)
}
