package repository

import (
	"context"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
)

// TradeSignalRepository defines the interface for trade signal storage. Only
// the strategy engine transitions signal states.
type TradeSignalRepository interface {
	Create(ctx context.Context, signal *entity.TradeSignal) error
	Update(ctx context.Context, signal *entity.TradeSignal) error
	ActiveBySymbol(ctx context.Context, symbol string) (*entity.TradeSignal, error)
	AllActive(ctx context.Context) ([]entity.TradeSignal, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// NewTradeSignalRepository creates a new GORM-based trade signal repository.
func NewTradeSignalRepository(db *gorm.DB) TradeSignalRepository {
	return &tradeSignalRepository{db: db}
}

type tradeSignalRepository struct {
	db *gorm.DB
}

// Create persists a new signal.
func (r *tradeSignalRepository) Create(ctx context.Context, signal *entity.TradeSignal) error {
	return r.db.WithContext(ctx).Create(signal).Error
}

// Update persists a state transition.
func (r *tradeSignalRepository) Update(ctx context.Context, signal *entity.TradeSignal) error {
	return r.db.WithContext(ctx).Save(signal).Error
}

// ActiveBySymbol returns the symbol's active signal, if any.
func (r *tradeSignalRepository) ActiveBySymbol(ctx context.Context, symbol string) (*entity.TradeSignal, error) {
	var signal entity.TradeSignal
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND state = ?", symbol, entity.SignalStateActive).
		Order("created_at desc").
		First(&signal).Error
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

// AllActive returns every active signal.
func (r *tradeSignalRepository) AllActive(ctx context.Context) ([]entity.TradeSignal, error) {
	var signals []entity.TradeSignal
	err := r.db.WithContext(ctx).
		Where("state = ?", entity.SignalStateActive).
		Order("created_at desc").
		Find(&signals).Error
	if err != nil {
		return nil, err
	}
	return signals, nil
}

// ExpireDue transitions active signals whose deadline has passed to expired.
func (r *tradeSignalRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.TradeSignal{}).
		Where("state = ? AND expires_at IS NOT NULL AND expires_at < ?", entity.SignalStateActive, now).
		Update("state", entity.SignalStateExpired)
	return res.RowsAffected, res.Error
}
