package repository

import (
	"context"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
)

// PositionRepository defines the interface for position storage. Only the
// portfolio ledger mutates positions.
type PositionRepository interface {
	Save(ctx context.Context, position *entity.Position) error
	ActiveBySymbol(ctx context.Context, symbol string) (*entity.Position, error)
	AllActive(ctx context.Context) ([]entity.Position, error)
	History(ctx context.Context, limit int) ([]entity.Position, error)
}

// NewPositionRepository creates a new GORM-based position repository.
func NewPositionRepository(db *gorm.DB) PositionRepository {
	return &positionRepository{db: db}
}

type positionRepository struct {
	db *gorm.DB
}

// Save creates or updates a position.
func (r *positionRepository) Save(ctx context.Context, position *entity.Position) error {
	return r.db.WithContext(ctx).Save(position).Error
}

// ActiveBySymbol returns the symbol's active position, if any.
func (r *positionRepository) ActiveBySymbol(ctx context.Context, symbol string) (*entity.Position, error) {
	var position entity.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, entity.PositionStatusActive).
		First(&position).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// AllActive returns every active position.
func (r *positionRepository) AllActive(ctx context.Context) ([]entity.Position, error) {
	var positions []entity.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.PositionStatusActive).
		Order("symbol asc").
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// History returns closed positions, most recently closed first.
func (r *positionRepository) History(ctx context.Context, limit int) ([]entity.Position, error) {
	var positions []entity.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.PositionStatusClosed).
		Order("closed_at desc").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// TransactionRepository defines the interface for the immutable transaction
// record.
type TransactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	FindRecent(ctx context.Context, limit int) ([]entity.Transaction, error)
}

// NewTransactionRepository creates a new GORM-based transaction repository.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

type transactionRepository struct {
	db *gorm.DB
}

// Create records one executed transaction.
func (r *transactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindRecent returns the newest transactions.
func (r *transactionRepository) FindRecent(ctx context.Context, limit int) ([]entity.Transaction, error) {
	var txs []entity.Transaction
	err := r.db.WithContext(ctx).
		Order("executed_at desc").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// RiskStateRepository defines the interface for per-symbol risk counters.
type RiskStateRepository interface {
	GetOrCreate(ctx context.Context, symbol string) (*entity.RiskState, error)
	Save(ctx context.Context, state *entity.RiskState) error
	FindAll(ctx context.Context) ([]entity.RiskState, error)
}

// NewRiskStateRepository creates a new GORM-based risk state repository.
func NewRiskStateRepository(db *gorm.DB) RiskStateRepository {
	return &riskStateRepository{db: db}
}

type riskStateRepository struct {
	db *gorm.DB
}

// GetOrCreate returns the symbol's risk state, creating a zeroed row on
// first use.
func (r *riskStateRepository) GetOrCreate(ctx context.Context, symbol string) (*entity.RiskState, error) {
	var state entity.RiskState
	err := r.db.WithContext(ctx).
		Where(entity.RiskState{Symbol: symbol}).
		FirstOrCreate(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save persists updated risk counters.
func (r *riskStateRepository) Save(ctx context.Context, state *entity.RiskState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

// FindAll returns all risk states.
func (r *riskStateRepository) FindAll(ctx context.Context) ([]entity.RiskState, error) {
	var states []entity.RiskState
	if err := r.db.WithContext(ctx).Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}
