package economy

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/config"
)

func TestPricing_StaysInBand(t *testing.T) {
	engine := NewPricingEngine(config.PricingConfig{MinMultiplier: 0.5, MaxMultiplier: 2.0, Amplitude: 0.25, PeriodDays: 28})

	for i := 0; i < 200; i++ {
		kind := gofakeit.Word()
		day := int64(gofakeit.Number(0, 10000))
		m := engine.Multiplier(kind, day)
		assert.GreaterOrEqual(t, m, 0.75-1e-9)
		assert.LessOrEqual(t, m, 1.25+1e-9)
	}
}

func TestPricing_Deterministic(t *testing.T) {
	engine := NewPricingEngine(config.PricingConfig{Amplitude: 0.25, PeriodDays: 28})
	assert.Equal(t, engine.Multiplier("wine", 3), engine.Multiplier("wine", 3))
	assert.Equal(t, engine.Multiplier("wine", 3), engine.Multiplier("wine", 31))
}

func TestPricing_FlatWithoutAmplitude(t *testing.T) {
	engine := NewPricingEngine(config.PricingConfig{MinMultiplier: 0.5, MaxMultiplier: 2.0, PeriodDays: 28})
	assert.Equal(t, 1.0, engine.Multiplier("beer", 10))
	assert.Equal(t, 12.5, engine.Price("beer", 12.5, 10))
	assert.Equal(t, 0.0, engine.Price("beer", -1, 10))
}

func TestPricing_EventsStackAndClamp(t *testing.T) {
	engine := NewPricingEngine(config.PricingConfig{MinMultiplier: 0.5, MaxMultiplier: 2.0, PeriodDays: 28})

	assert.ErrorIs(t, engine.AddEvent(PriceEvent{Name: "broken", Multiplier: 0, StartDay: 1, EndDay: 2}), ErrInvalidPriceEvent)
	assert.ErrorIs(t, engine.AddEvent(PriceEvent{Name: "backwards", Multiplier: 1.5, StartDay: 5, EndDay: 2}), ErrInvalidPriceEvent)

	require.NoError(t, engine.AddEvent(PriceEvent{Name: "harvest festival", Multiplier: 1.5, StartDay: 10, EndDay: 12}))
	require.NoError(t, engine.AddEvent(PriceEvent{Name: "wine shortage", Kind: "wine", Multiplier: 1.2, StartDay: 11, EndDay: 20}))

	assert.Equal(t, 1.0, engine.Multiplier("wine", 9))
	assert.Equal(t, 1.5, engine.Multiplier("wine", 10))
	assert.Equal(t, 1.8, engine.Multiplier("wine", 11))
	assert.Equal(t, 1.5, engine.Multiplier("beer", 11))
	assert.Equal(t, 1.2, engine.Multiplier("wine", 13))
	assert.Len(t, engine.ActiveEvents(11), 2)

	require.NoError(t, engine.AddEvent(PriceEvent{Name: "gold rush", Multiplier: 3, StartDay: 11, EndDay: 11}))
	assert.Equal(t, 2.0, engine.Multiplier("wine", 11))

	assert.Equal(t, 2, engine.PruneEvents(13))
	assert.Len(t, engine.ActiveEvents(15), 1)
}
