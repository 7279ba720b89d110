package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/common"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// DispatcherService accepts schedule and ad-hoc trigger events, deduplicates
// them by idempotency key, and hands accepted triggers to the matching
// pipeline stage via the trigger stream. The stream delivers at-least-once;
// the key window is what makes redelivery safe.
type DispatcherService interface {
	Dispatch(ctx context.Context, triggerType entity.TriggerType, idempotencyKey string, payload dto.DispatchRequest) (*dto.TriggerOutcome, error)
	Outcome(ctx context.Context, idempotencyKey string) (*dto.TriggerOutcome, error)
	ProcessTask(ctx context.Context)
}

// StageRunner executes one pipeline stage for a trigger and reports its
// structured outcome.
type StageRunner func(ctx context.Context, task dto.TriggerTask) (entity.TriggerStatus, json.RawMessage, error)

// NewDispatcherService creates a new dispatcher.
func NewDispatcherService(
	cfg *config.Config,
	redisClient *redis.Client,
	store repository.TriggerStore,
	execRepo repository.TriggerExecutionRepository,
	stages map[entity.TriggerType]StageRunner,
	log *logger.Logger,
) DispatcherService {
	outcomeTTL, err := time.ParseDuration(cfg.Scheduler.OutcomeTTL)
	if err != nil || outcomeTTL <= 0 {
		outcomeTTL = 24 * time.Hour
	}
	stageDeadline, err := time.ParseDuration(cfg.Scheduler.StageDeadline)
	if err != nil || stageDeadline <= 0 {
		stageDeadline = 10 * time.Minute
	}
	readWait, err := time.ParseDuration(cfg.Scheduler.StreamReadWait)
	if err != nil || readWait <= 0 {
		readWait = 2 * time.Second
	}
	return &dispatcherService{
		cfg:           cfg,
		redisClient:   redisClient,
		store:         store,
		execRepo:      execRepo,
		stages:        stages,
		logger:        log,
		outcomeTTL:    outcomeTTL,
		stageDeadline: stageDeadline,
		readWait:      readWait,
	}
}

type dispatcherService struct {
	cfg           *config.Config
	redisClient   *redis.Client
	store         repository.TriggerStore
	execRepo      repository.TriggerExecutionRepository
	stages        map[entity.TriggerType]StageRunner
	logger        *logger.Logger
	outcomeTTL    time.Duration
	stageDeadline time.Duration
	readWait      time.Duration
}

// Dispatch validates the trigger, claims the idempotency key, and enqueues
// the stage. A repeated key within the retention window returns the recorded
// outcome without re-executing side effects.
func (s *dispatcherService) Dispatch(ctx context.Context, triggerType entity.TriggerType, idempotencyKey string, payload dto.DispatchRequest) (*dto.TriggerOutcome, error) {
	if !entity.ValidTriggerType(triggerType) {
		return nil, fmt.Errorf("%w: %q", dto.ErrInvalidTrigger, triggerType)
	}
	if _, ok := s.stages[triggerType]; !ok {
		return nil, fmt.Errorf("%w: no stage registered for %q", dto.ErrInvalidTrigger, triggerType)
	}

	now := time.Now()
	pending := &dto.TriggerOutcome{
		TriggerType:    triggerType,
		IdempotencyKey: idempotencyKey,
		Status:         entity.TriggerStatusPending,
		StartedAt:      now,
	}

	claimed, prior, err := s.store.Reserve(ctx, idempotencyKey, pending, s.outcomeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !claimed {
		if prior == nil {
			prior = pending
		}
		prior.Duplicate = true
		s.logger.Info("Duplicate trigger short-circuited",
			logger.StringField("trigger_type", string(triggerType)),
			logger.StringField("idempotency_key", idempotencyKey),
			logger.StringField("status", string(prior.Status)))
		return prior, nil
	}

	payloadJSON, _ := json.Marshal(payload)
	exec := &entity.TriggerExecution{
		TriggerType:    triggerType,
		IdempotencyKey: idempotencyKey,
		Status:         entity.TriggerStatusPending,
		Payload:        payloadJSON,
		StartedAt:      now,
	}
	if err := s.execRepo.Create(ctx, exec); err != nil {
		s.logger.Error("Failed to create trigger execution record", logger.ErrorField(err),
			logger.StringField("idempotency_key", idempotencyKey))
	}

	task := dto.TriggerTask{
		TriggerType:    triggerType,
		IdempotencyKey: idempotencyKey,
		Symbols:        payload.Symbols,
		EnqueuedAt:     now,
	}
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger task: %w", err)
	}

	if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamPipelineTrigger,
		Values: map[string]interface{}{"payload": taskJSON},
		MaxLen: s.cfg.Redis.StreamMaxLen,
	}).Err(); err != nil {
		failed := *pending
		failed.Status = entity.TriggerStatusFailed
		failed.Error = err.Error()
		if recErr := s.store.Record(ctx, idempotencyKey, &failed, s.outcomeTTL); recErr != nil {
			s.logger.Error("Failed to record enqueue failure", logger.ErrorField(recErr))
		}
		return nil, fmt.Errorf("failed to enqueue trigger: %w", err)
	}

	s.logger.Info("Trigger dispatched",
		logger.StringField("trigger_type", string(triggerType)),
		logger.StringField("idempotency_key", idempotencyKey))
	return pending, nil
}

// Outcome returns the recorded outcome for a key, or nil when unknown.
func (s *dispatcherService) Outcome(ctx context.Context, idempotencyKey string) (*dto.TriggerOutcome, error) {
	return s.store.Get(ctx, idempotencyKey)
}

// ProcessTask dequeues and executes one trigger task from the stream.
func (s *dispatcherService) ProcessTask(ctx context.Context) {
	streams, err := s.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamPipelineTrigger, ">"},
		Count:    1,
		Block:    s.readWait,
		NoAck:    true,
	}).Result()
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded || err == redis.Nil {
			return
		}
		s.logger.Error("Failed to read from trigger stream", logger.ErrorField(err))
		return
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return
	}

	message := streams[0].Messages[0]
	raw, ok := message.Values["payload"].(string)
	if !ok {
		s.logger.Error("field 'payload' not found or not a string in stream message",
			logger.StringField("message_id", message.ID))
		return
	}

	var task dto.TriggerTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		s.logger.Error("Failed to unmarshal trigger task", logger.ErrorField(err),
			logger.StringField("message_id", message.ID))
		return
	}

	s.Execute(ctx, task)
}

// Execute runs the stage for a delivered task under the configured stage
// deadline and records its completion. Partial results written before a
// deadline lapse stay valid; there is no rollback.
func (s *dispatcherService) Execute(ctx context.Context, task dto.TriggerTask) {
	runner, ok := s.stages[task.TriggerType]
	if !ok {
		s.logger.Error("No stage registered for delivered trigger",
			logger.StringField("trigger_type", string(task.TriggerType)))
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageDeadline)
	defer cancel()

	s.logger.Info("Executing trigger stage",
		logger.StringField("trigger_type", string(task.TriggerType)),
		logger.StringField("idempotency_key", task.IdempotencyKey))

	status, detail, err := runner(stageCtx, task)

	now := time.Now()
	outcome := &dto.TriggerOutcome{
		TriggerType:    task.TriggerType,
		IdempotencyKey: task.IdempotencyKey,
		Status:         status,
		Detail:         detail,
		StartedAt:      task.EnqueuedAt,
		CompletedAt:    &now,
	}
	if err != nil {
		outcome.Status = entity.TriggerStatusFailed
		outcome.Error = err.Error()
		s.logger.Error("Trigger stage failed", logger.ErrorField(err),
			logger.StringField("trigger_type", string(task.TriggerType)),
			logger.StringField("idempotency_key", task.IdempotencyKey))
	}

	// Recording uses the background context so a lapsed stage deadline
	// cannot lose the outcome.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer recordCancel()

	if recErr := s.store.Record(recordCtx, task.IdempotencyKey, outcome, s.outcomeTTL); recErr != nil {
		s.logger.Error("Failed to record trigger outcome", logger.ErrorField(recErr),
			logger.StringField("idempotency_key", task.IdempotencyKey))
	}
	s.updateAudit(recordCtx, task, outcome)
}

func (s *dispatcherService) updateAudit(ctx context.Context, task dto.TriggerTask, outcome *dto.TriggerOutcome) {
	exec, err := s.execRepo.FindByKey(ctx, task.IdempotencyKey)
	if err != nil {
		s.logger.Error("Failed to load trigger execution record", logger.ErrorField(err),
			logger.StringField("idempotency_key", task.IdempotencyKey))
		return
	}
	exec.Status = outcome.Status
	exec.Outcome = []byte(outcome.Detail)
	if outcome.Error != "" {
		exec.ErrorMessage = sql.NullString{String: outcome.Error, Valid: true}
	}
	if outcome.CompletedAt != nil {
		exec.CompletedAt = sql.NullTime{Time: *outcome.CompletedAt, Valid: true}
	}
	if err := s.execRepo.Update(ctx, exec); err != nil {
		s.logger.Error("Failed to update trigger execution record", logger.ErrorField(err),
			logger.StringField("idempotency_key", task.IdempotencyKey))
	}
}
