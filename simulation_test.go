package economy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redlock "github.com/blnkfinance/economy/internal/lock"
)

func TestSimulation_StepAdvancesClock(t *testing.T) {
	e := newTestEconomy(t, newTestStore(t))
	sim := NewSimulation(e, time.Millisecond)
	ctx := context.Background()

	for i := 0; i < int(testTicks)*2; i++ {
		require.True(t, sim.Step(ctx))
	}
	assert.Equal(t, testTicks*2, sim.DayTime())
	assert.Equal(t, int64(2), e.Clock.Today())
}

func TestSimulation_CheckpointRestoresClock(t *testing.T) {
	store := newTestStore(t)
	e := newTestEconomy(t, store)
	sim := NewSimulation(e, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, e.Ledger.SetBalance(ctx, "alice", 500))
	for i := 0; i < 5; i++ {
		sim.Step(ctx)
	}
	require.NoError(t, sim.Checkpoint(ctx))
	assert.False(t, sim.HealthInfo().Dirty)

	restored := NewSimulation(newTestEconomy(t, store), time.Millisecond)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, int64(5), restored.DayTime())
	assert.Equal(t, int64(5), restored.economy.Clock.DayTime())
	assert.Contains(t, restored.Documents(), DefaultClockDocument)
}

func TestSimulation_RunStopsOnCancel(t *testing.T) {
	e := newTestEconomy(t, nil)
	sim := NewSimulation(e, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, sim.Run(ctx))
	assert.Greater(t, sim.DayTime(), int64(0))
}

func TestSimulation_OnlyLeaderTicks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	store := newTestStore(t)
	first := NewSimulation(newTestEconomy(t, store), time.Millisecond)
	first.SetLeader(redlock.NewLocker(client, "economy:tick", "host-a"), time.Minute)
	second := NewSimulation(newTestEconomy(t, store), time.Millisecond)
	second.SetLeader(redlock.NewLocker(client, "economy:tick", "host-b"), time.Minute)

	require.True(t, first.Step(ctx))
	require.NoError(t, first.economy.Ledger.SetBalance(ctx, "alice", 750))
	assert.False(t, second.Step(ctx))
	assert.False(t, second.Leading())
	assert.NoError(t, second.Checkpoint(ctx))

	require.True(t, first.Step(ctx))
	require.NoError(t, first.Shutdown(ctx))
	first.release()

	require.True(t, second.Step(ctx))
	assert.True(t, second.Leading())
	assert.Equal(t, int64(3), second.DayTime())
	assert.Equal(t, 750.0, second.economy.Ledger.GetBalance("alice"))
}
