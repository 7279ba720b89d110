package service

import (
	"testing"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T, timezone string) SchedulerService {
	t.Helper()
	cfg := testConfig()
	cfg.Scheduler.Timezone = timezone
	svc, err := NewSchedulerService(cfg, nil, nil, nil, logger.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Timezone = "Not/AZone"
	_, err := NewSchedulerService(cfg, nil, nil, nil, logger.NewNop())
	require.Error(t, err)
}

func TestKeyForBucketsIntradayToFifteenMinutes(t *testing.T) {
	svc := newScheduler(t, "UTC")

	a := svc.KeyFor(entity.TriggerTypeIntraday, time.Date(2026, 8, 28, 9, 31, 0, 0, time.UTC))
	b := svc.KeyFor(entity.TriggerTypeIntraday, time.Date(2026, 8, 28, 9, 44, 59, 0, time.UTC))
	c := svc.KeyFor(entity.TriggerTypeIntraday, time.Date(2026, 8, 28, 9, 45, 0, 0, time.UTC))

	assert.Equal(t, "intraday:20260828T093000", a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKeyForBucketsDailyTriggersToMarketDay(t *testing.T) {
	svc := newScheduler(t, "America/New_York")

	morning := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 28, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, svc.KeyFor(entity.TriggerTypeFull, morning), svc.KeyFor(entity.TriggerTypeFull, evening))

	// 03:00 UTC is still the previous exchange-local day
	lateNight := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, svc.KeyFor(entity.TriggerTypeFull, evening), svc.KeyFor(entity.TriggerTypeFull, lateNight))

	nextDay := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	assert.NotEqual(t, svc.KeyFor(entity.TriggerTypeFull, evening), svc.KeyFor(entity.TriggerTypeFull, nextDay))
}

func TestKeyForSeparatesTriggerTypes(t *testing.T) {
	svc := newScheduler(t, "UTC")

	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t,
		svc.KeyFor(entity.TriggerTypeDaily, at),
		svc.KeyFor(entity.TriggerTypeFundamentals, at))
}

func TestStartRejectsUnknownTriggerType(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Timezone = "UTC"
	cfg.Scheduler.Schedules = []config.TriggerSchedule{{Type: "quarterly", Cron: "0 0 1 * *"}}

	svc, err := NewSchedulerService(cfg, nil, nil, nil, logger.NewNop())
	require.NoError(t, err)
	require.ErrorIs(t, svc.Start(), dto.ErrInvalidTrigger)
}

func TestStartRejectsMalformedCron(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Timezone = "UTC"
	cfg.Scheduler.Schedules = []config.TriggerSchedule{{Type: "daily", Cron: "not a cron"}}

	svc, err := NewSchedulerService(cfg, nil, nil, nil, logger.NewNop())
	require.NoError(t, err)
	require.Error(t, svc.Start())
}
