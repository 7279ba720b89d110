package repository

import (
	"context"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
)

// RecommendationRepository defines the interface for the append-only
// recommendation log. There is deliberately no update or delete.
type RecommendationRepository interface {
	Append(ctx context.Context, rec *entity.Recommendation) error
	LatestBySymbol(ctx context.Context, symbol string) (*entity.Recommendation, error)
	FindSince(ctx context.Context, since time.Time) ([]entity.Recommendation, error)
}

// NewRecommendationRepository creates a new GORM-based recommendation log.
func NewRecommendationRepository(db *gorm.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

type recommendationRepository struct {
	db *gorm.DB
}

// Append writes one recommendation verbatim.
func (r *recommendationRepository) Append(ctx context.Context, rec *entity.Recommendation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// LatestBySymbol returns the newest recommendation for the symbol.
func (r *recommendationRepository) LatestBySymbol(ctx context.Context, symbol string) (*entity.Recommendation, error) {
	var rec entity.Recommendation
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindSince returns recommendations created after since, oldest first.
func (r *recommendationRepository) FindSince(ctx context.Context, since time.Time) ([]entity.Recommendation, error) {
	var recs []entity.Recommendation
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}
