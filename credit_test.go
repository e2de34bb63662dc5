package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/model"
)

func TestRating(t *testing.T) {
	tests := []struct {
		score    int
		rating   model.CreditRating
		modifier float64
	}{
		{850, model.RatingExcellent, 0.8},
		{750, model.RatingExcellent, 0.8},
		{749, model.RatingGood, 1.0},
		{650, model.RatingGood, 1.0},
		{600, model.RatingFair, 1.2},
		{550, model.RatingFair, 1.2},
		{450, model.RatingPoor, 1.35},
		{449, model.RatingBad, 1.5},
		{300, model.RatingBad, 1.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.rating, Rating(tt.score), "score %d", tt.score)
		assert.Equal(t, tt.modifier, RateModifier(Rating(tt.score)), "score %d", tt.score)
	}
}

func TestCreditScore_Adjustments(t *testing.T) {
	credit := NewCreditScore(newTestStore(t), "", nil)

	assert.Equal(t, InitialCreditScore, credit.Score("alice"))
	assert.Equal(t, model.RatingFair, credit.Rating("alice"))

	credit.RecordOnTimePayment("alice")
	credit.RecordOnTimePayment("alice")
	credit.RecordMissedPayment("alice")
	credit.RecordLoanCompleted("alice", 5500)

	rec := credit.Record("alice")
	assert.Equal(t, 600+5+5-25+40, rec.Score)
	assert.Equal(t, 2, rec.OnTimePayments)
	assert.Equal(t, 1, rec.MissedPayments)
	assert.Equal(t, 1, rec.LoansCompleted)
	assert.Equal(t, 5500.0, rec.TotalRepaid)
}

func TestCreditScore_Clamped(t *testing.T) {
	credit := NewCreditScore(nil, "", nil)

	for i := 0; i < 5; i++ {
		credit.RecordLoanDefaulted("bob")
	}
	assert.Equal(t, MinCreditScore, credit.Score("bob"))

	for i := 0; i < 20; i++ {
		credit.RecordLoanCompleted("carol", 0)
	}
	assert.Equal(t, MaxCreditScore, credit.Score("carol"))
}

func TestCreditScore_Eligibility(t *testing.T) {
	credit := NewCreditScore(nil, "", nil)

	assert.True(t, credit.CanTakeLoan("dave", model.LoanSmall))
	assert.True(t, credit.CanTakeLoan("dave", model.LoanMedium))
	assert.False(t, credit.CanTakeLoan("dave", model.LoanLarge))
	assert.False(t, credit.CanTakeLoan("dave", model.LoanTier("HUGE")))
	assert.Equal(t, 0.1, credit.EffectiveInterestRate("dave", model.LoanSmall))

	credit.RecordLoanCompleted("dave", 0)
	credit.RecordLoanCompleted("dave", 0)
	assert.True(t, credit.CanTakeLoan("dave", model.LoanLarge))
	assert.Equal(t, 0.2, credit.EffectiveInterestRate("dave", model.LoanLarge))

	credit.RecordLoanCompleted("dave", 0)
	credit.RecordLoanCompleted("dave", 0)
	assert.Equal(t, model.RatingExcellent, credit.Rating("dave"))
	assert.Equal(t, 0.08, credit.EffectiveInterestRate("dave", model.LoanSmall))
	assert.Equal(t, 0.0, credit.EffectiveInterestRate("dave", model.LoanTier("HUGE")))
}

func TestCreditScore_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	credit := NewCreditScore(store, "", nil)
	credit.RecordMissedPayment("erin")
	credit.RecordOnTimePayment("frank")

	require.NoError(t, credit.SaveIfNeeded(ctx))
	assert.False(t, credit.HealthInfo().Dirty)

	restored := NewCreditScore(store, "", nil)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 575, restored.Score("erin"))
	assert.Equal(t, 605, restored.Score("frank"))
	assert.Len(t, restored.Records(), 2)
	assert.Equal(t, 2, restored.HealthInfo().Records)
}

func TestCreditScore_FirstRecordAppliesRating(t *testing.T) {
	credit := NewCreditScore(nil, "", nil)

	assert.Equal(t, model.RatingFair, credit.Rating("gina"))
	assert.Equal(t, 0.15, credit.EffectiveInterestRate("gina", model.LoanMedium))

	credit.RecordMissedPayment("gina")
	assert.Equal(t, model.RatingFair, credit.Rating("gina"))
	assert.Equal(t, 0.18, credit.EffectiveInterestRate("gina", model.LoanMedium))
}
