package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/utils"

	"github.com/robfig/cron/v3"
)

// SchedulerService fires the configured pipeline triggers on their cron
// schedules. Every fire derives its idempotency key from the trigger type and
// a time bucket, so a redelivered or doubly-scheduled fire inside one bucket
// is deduplicated by the dispatcher.
type SchedulerService interface {
	Start() error
	Stop() context.Context
	KeyFor(triggerType entity.TriggerType, at time.Time) string
}

// NewSchedulerService creates a new trigger scheduler.
func NewSchedulerService(
	cfg *config.Config,
	dispatcher DispatcherService,
	strategy StrategyService,
	ingestion IngestionService,
	log *logger.Logger,
) (SchedulerService, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	sweep, err := time.ParseDuration(cfg.Scheduler.ExpirySweep)
	if err != nil || sweep <= 0 {
		sweep = 15 * time.Minute
	}
	return &schedulerService{
		cfg:        cfg,
		dispatcher: dispatcher,
		strategy:   strategy,
		ingestion:  ingestion,
		logger:     log,
		location:   loc,
		sweep:      sweep,
		cron:       cron.New(cron.WithLocation(loc)),
	}, nil
}

type schedulerService struct {
	cfg        *config.Config
	dispatcher DispatcherService
	strategy   StrategyService
	ingestion  IngestionService
	logger     *logger.Logger
	location   *time.Location
	sweep      time.Duration
	cron       *cron.Cron
}

// Start registers every configured schedule plus the signal expiry sweep and
// the daily provider counter reset, then starts the cron runner.
func (s *schedulerService) Start() error {
	for _, schedule := range s.cfg.Scheduler.Schedules {
		triggerType := entity.TriggerType(schedule.Type)
		if !entity.ValidTriggerType(triggerType) {
			return fmt.Errorf("%w: %q in schedule config", dto.ErrInvalidTrigger, schedule.Type)
		}

		spec := schedule.Cron
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid cron expression %q for trigger %s: %w", spec, triggerType, err)
		}
		if _, err := s.cron.AddFunc(spec, func() { s.fire(triggerType) }); err != nil {
			return err
		}
		s.logger.Info("Registered trigger schedule",
			logger.StringField("trigger_type", string(triggerType)),
			logger.StringField("cron", spec))
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.sweep), s.sweepExpired); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * *", s.ingestion.ResetProviderCounters); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		logger.StringField("timezone", s.cfg.Scheduler.Timezone),
		logger.IntField("schedules", len(s.cfg.Scheduler.Schedules)))
	return nil
}

// Stop halts the cron runner; the returned context is done once in-flight
// jobs finish.
func (s *schedulerService) Stop() context.Context {
	return s.cron.Stop()
}

// KeyFor derives the idempotency key for a scheduled fire. Intraday triggers
// bucket to 15 minutes; everything else buckets to the exchange-local day.
func (s *schedulerService) KeyFor(triggerType entity.TriggerType, at time.Time) string {
	var bucket time.Time
	if triggerType == entity.TriggerTypeIntraday {
		bucket = utils.TimeBucket(at, 15*time.Minute)
	} else {
		bucket = utils.MarketDay(at, s.location)
	}
	return fmt.Sprintf("%s:%s", triggerType, bucket.In(s.location).Format("20060102T150405"))
}

func (s *schedulerService) fire(triggerType entity.TriggerType) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := s.KeyFor(triggerType, time.Now())
	outcome, err := s.dispatcher.Dispatch(ctx, triggerType, key, dto.DispatchRequest{})
	if err != nil {
		s.logger.Error("Scheduled trigger dispatch failed", logger.ErrorField(err),
			logger.StringField("trigger_type", string(triggerType)),
			logger.StringField("idempotency_key", key))
		return
	}
	if outcome.Duplicate {
		s.logger.Info("Scheduled trigger already dispatched this bucket",
			logger.StringField("trigger_type", string(triggerType)),
			logger.StringField("idempotency_key", key))
	}
}

func (s *schedulerService) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.strategy.ExpireStale(ctx); err != nil {
		s.logger.Error("Signal expiry sweep failed", logger.ErrorField(err))
	}
}
