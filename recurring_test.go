package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/model"
)

func newTestRecurring(t *testing.T) (*RecurringProcessor, *Ledger, *Clock, *recordingNotifier) {
	t.Helper()
	ledger, _ := newTestLedger(t)
	clock := NewClock(testTicks)
	notifier := newRecordingNotifier()
	return NewRecurringProcessor(ledger, clock, notifier, newTestStore(t), RecurringOptions{MaxPerPlayer: 2}), ledger, clock, notifier
}

func tickRecurring(p *RecurringProcessor, clock *Clock, day int64) {
	clock.Observe(dayTime(day))
	p.Tick(context.Background(), dayTime(day))
}

func TestRecurring_CreateValidation(t *testing.T) {
	p, _, _, _ := newTestRecurring(t)
	ctx := context.Background()

	_, err := p.Create(ctx, "alice", "alice", 10, 7, "")
	assert.ErrorIs(t, err, ErrSelfTransfer)
	_, err = p.Create(ctx, "alice", "bob", 0, 7, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.Create(ctx, "alice", "bob", -5, 7, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.Create(ctx, "alice", "bob", 10, 0, "")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = p.Create(ctx, "alice", "bob", 10, 7, "rent")
	require.NoError(t, err)
	_, err = p.Create(ctx, "alice", "carol", 10, 7, "wages")
	require.NoError(t, err)
	_, err = p.Create(ctx, "alice", "dave", 10, 7, "")
	assert.ErrorIs(t, err, ErrRecurringLimit)

	assert.Len(t, p.List("alice"), 2)
	assert.Empty(t, p.List("bob"))
}

func TestRecurring_ExecutesOnSchedule(t *testing.T) {
	p, ledger, clock, notifier := newTestRecurring(t)
	ctx := context.Background()
	require.NoError(t, ledger.SetBalance(ctx, "alice", 2000))

	payment, err := p.Create(ctx, "alice", "bob", 500, 7, "rent")
	require.NoError(t, err)
	assert.Equal(t, int64(7), payment.NextExecutionDay)

	for day := int64(1); day < 7; day++ {
		tickRecurring(p, clock, day)
	}
	assert.Equal(t, 2000.0, ledger.GetBalance("alice"))

	tickRecurring(p, clock, 7)
	p.Tick(ctx, dayTime(7)+50)
	assert.Equal(t, 1500.0, ledger.GetBalance("alice"))
	assert.Equal(t, 500.0, ledger.GetBalance("bob"))

	got, ok := p.Get(payment.PaymentID)
	require.True(t, ok)
	assert.Equal(t, int64(14), got.NextExecutionDay)
	assert.Equal(t, int64(7), got.LastExecutedDay)
	assert.Equal(t, 1, got.Executions)
	assert.Equal(t, 500.0, got.TotalPaid)

	assert.NotEmpty(t, notifier.For("bob"))
}

func TestRecurring_DeactivatesAfterThreeFailures(t *testing.T) {
	p, ledger, clock, notifier := newTestRecurring(t)
	ctx := context.Background()
	require.NoError(t, ledger.SetBalance(ctx, "alice", 499))

	payment, err := p.Create(ctx, "alice", "bob", 500, 7, "")
	require.NoError(t, err)

	tickRecurring(p, clock, 7)
	got, _ := p.Get(payment.PaymentID)
	assert.Equal(t, 1, got.FailureCount)
	assert.Equal(t, int64(8), got.NextExecutionDay)
	assert.True(t, got.Active)

	tickRecurring(p, clock, 8)
	tickRecurring(p, clock, 9)
	got, _ = p.Get(payment.PaymentID)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.FailureCount)

	// a fourth due date never reaches the ledger
	require.NoError(t, ledger.Deposit(ctx, "alice", 1000))
	tickRecurring(p, clock, 10)
	tickRecurring(p, clock, 16)
	assert.Equal(t, 1499.0, ledger.GetBalance("alice"))
	assert.Equal(t, 0.0, ledger.GetBalance("bob"))
	assert.Len(t, notifier.For("alice"), 4)
	assert.Contains(t, notifier.For("alice")[3], "deactivated")
}

func TestRecurring_PauseResume(t *testing.T) {
	p, ledger, clock, _ := newTestRecurring(t)
	ctx := context.Background()
	require.NoError(t, ledger.SetBalance(ctx, "alice", 5000))

	payment, err := p.Create(ctx, "alice", "bob", 100, 7, "")
	require.NoError(t, err)

	assert.False(t, p.Pause("mallory", payment.PaymentID))
	require.True(t, p.Pause("alice", payment.PaymentID))
	tickRecurring(p, clock, 7)
	assert.Equal(t, 5000.0, ledger.GetBalance("alice"))

	require.True(t, p.Resume("alice", ShortID(payment.PaymentID)))
	got, _ := p.Get(payment.PaymentID)
	assert.True(t, got.Active)
	assert.Equal(t, int64(14), got.NextExecutionDay)

	tickRecurring(p, clock, 14)
	assert.Equal(t, 4900.0, ledger.GetBalance("alice"))
}

func TestRecurring_DeleteByPrefix(t *testing.T) {
	p, _, _, notifier := newTestRecurring(t)
	ctx := context.Background()

	payment, err := p.Create(ctx, "alice", "bob", 100, 7, "")
	require.NoError(t, err)
	short := ShortID(payment.PaymentID)

	assert.False(t, p.Delete("bob", short))

	typo := "z" + short[1:]
	assert.False(t, p.Delete("alice", typo))
	assert.Equal(t, short, p.Suggest("alice", typo))
	msgs := notifier.For("alice")
	assert.Contains(t, msgs[len(msgs)-1], "Did you mean "+short)

	assert.True(t, p.Delete("alice", short[:4]))
	_, ok := p.Get(payment.PaymentID)
	assert.False(t, ok)
	assert.False(t, p.Delete("alice", payment.PaymentID))
}

func TestRecurring_AmbiguousPrefixListsMatches(t *testing.T) {
	p, _, _, notifier := newTestRecurring(t)
	ctx := context.Background()

	for _, to := range []string{"bob", "carol"} {
		_, err := p.Create(ctx, "alice", to, 100, 7, "")
		require.NoError(t, err)
	}

	// give both payments ids that share their first characters
	renamed := map[string]string{"bob": recurringIDPrefix + "abcd1111-tail", "carol": recurringIDPrefix + "abcd2222-tail"}
	payments := p.payments
	p.payments = make(map[string]*model.RecurringPayment, len(payments))
	for _, payment := range payments {
		payment.PaymentID = renamed[payment.To]
		p.payments[payment.PaymentID] = payment
	}

	assert.False(t, p.Delete("alice", "abcd"))
	assert.False(t, p.Pause("alice", "abc"))
	msgs := notifier.For("alice")
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Contains(t, last, "Several recurring payments match")
	assert.Contains(t, last, "abcd1111, abcd2222")
	assert.NotContains(t, last, "No recurring payment")
	assert.Len(t, p.List("alice"), 2)

	require.True(t, p.Delete("alice", "abcd2"))
	assert.Len(t, p.List("alice"), 1)
}

func TestRecurring_PersistenceRoundTrip(t *testing.T) {
	ledger, _ := newTestLedger(t)
	clock := NewClock(testTicks)
	store := newTestStore(t)
	ctx := context.Background()

	p := NewRecurringProcessor(ledger, clock, nil, store, RecurringOptions{})
	payment, err := p.Create(ctx, "alice", "bob", 250, 3, "allowance")
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx))

	restored := NewRecurringProcessor(ledger, clock, nil, store, RecurringOptions{})
	require.NoError(t, restored.Load(ctx))
	got, ok := restored.Get(payment.PaymentID)
	require.True(t, ok)
	assert.Equal(t, payment.Schedule, got.Schedule)
	assert.Equal(t, "allowance", got.Description)
	assert.Equal(t, []model.RecurringPayment{got}, restored.List("alice"))
}
