package repository

import (
	"context"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
)

// TriggerExecutionRepository defines the interface for the trigger audit
// trail.
type TriggerExecutionRepository interface {
	Create(ctx context.Context, exec *entity.TriggerExecution) error
	Update(ctx context.Context, exec *entity.TriggerExecution) error
	FindByKey(ctx context.Context, idempotencyKey string) (*entity.TriggerExecution, error)
	FindRecent(ctx context.Context, limit int) ([]entity.TriggerExecution, error)
}

// NewTriggerExecutionRepository creates a new GORM-based trigger execution
// repository.
func NewTriggerExecutionRepository(db *gorm.DB) TriggerExecutionRepository {
	return &triggerExecutionRepository{db: db}
}

type triggerExecutionRepository struct {
	db *gorm.DB
}

// Create records a newly dispatched trigger.
func (r *triggerExecutionRepository) Create(ctx context.Context, exec *entity.TriggerExecution) error {
	return r.db.WithContext(ctx).Create(exec).Error
}

// Update records completion status and outcome.
func (r *triggerExecutionRepository) Update(ctx context.Context, exec *entity.TriggerExecution) error {
	return r.db.WithContext(ctx).Save(exec).Error
}

// FindByKey retrieves an execution by idempotency key.
func (r *triggerExecutionRepository) FindByKey(ctx context.Context, idempotencyKey string) (*entity.TriggerExecution, error) {
	var exec entity.TriggerExecution
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&exec).Error
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// FindRecent returns the newest executions.
func (r *triggerExecutionRepository) FindRecent(ctx context.Context, limit int) ([]entity.TriggerExecution, error) {
	var execs []entity.TriggerExecution
	err := r.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&execs).Error
	if err != nil {
		return nil, err
	}
	return execs, nil
}
