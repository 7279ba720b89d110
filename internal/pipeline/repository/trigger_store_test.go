package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreReserveClaimsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTriggerStore(time.Minute)

	claimed, prior, err := store.Reserve(ctx, "daily:20260828", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, prior)

	claimed, prior, err = store.Reserve(ctx, "daily:20260828", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, prior)
	assert.Equal(t, entity.TriggerStatusPending, prior.Status)
}

func TestMemoryStoreReserveUnderContention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTriggerStore(time.Minute)

	const callers = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		loses int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := store.Reserve(ctx, "intraday:20260828T093000", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, time.Minute)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Error(err)
				return
			}
			if claimed {
				wins++
			} else {
				loses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, loses)
}

func TestMemoryStoreRecordOverwritesOutcome(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTriggerStore(time.Minute)

	claimed, _, err := store.Reserve(ctx, "full:20260828", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Record(ctx, "full:20260828", &dto.TriggerOutcome{Status: entity.TriggerStatusSucceeded}, time.Minute))

	outcome, err := store.Get(ctx, "full:20260828")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, entity.TriggerStatusSucceeded, outcome.Status)
}

func TestMemoryStoreGetUnknownKey(t *testing.T) {
	store := NewMemoryTriggerStore(time.Minute)

	outcome, err := store.Get(context.Background(), "never-reserved")
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestMemoryStoreReserveAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTriggerStore(time.Minute)

	claimed, _, err := store.Reserve(ctx, "daily:20260827", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(20 * time.Millisecond)

	claimed, prior, err := store.Reserve(ctx, "daily:20260827", &dto.TriggerOutcome{Status: entity.TriggerStatusPending}, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, prior)
}
