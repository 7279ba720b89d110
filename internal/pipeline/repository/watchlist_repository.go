package repository

import (
	"context"
	"errors"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
)

// WatchlistRepository defines the interface for watchlist data operations.
type WatchlistRepository interface {
	Upsert(ctx context.Context, item *entity.WatchlistItem) error
	FindBySymbol(ctx context.Context, symbol string) (*entity.WatchlistItem, error)
	FindAll(ctx context.Context) ([]entity.WatchlistItem, error)
	Delete(ctx context.Context, symbol string) error
	Symbols(ctx context.Context) ([]string, error)
}

// NewWatchlistRepository creates a new GORM-based watchlist repository.
func NewWatchlistRepository(db *gorm.DB) WatchlistRepository {
	return &watchlistRepository{db: db}
}

type watchlistRepository struct {
	db *gorm.DB
}

// Upsert creates the item, or returns the existing row when the symbol is
// already watched. Adding a duplicate is not an error.
func (r *watchlistRepository) Upsert(ctx context.Context, item *entity.WatchlistItem) error {
	var existing entity.WatchlistItem
	err := r.db.WithContext(ctx).Where("symbol = ?", item.Symbol).First(&existing).Error
	if err == nil {
		*item = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// FindBySymbol retrieves a watchlist item by symbol.
func (r *watchlistRepository) FindBySymbol(ctx context.Context, symbol string) (*entity.WatchlistItem, error) {
	var item entity.WatchlistItem
	if err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindAll retrieves the watchlist ordered by priority.
func (r *watchlistRepository) FindAll(ctx context.Context) ([]entity.WatchlistItem, error) {
	var items []entity.WatchlistItem
	if err := r.db.WithContext(ctx).Order("priority desc, symbol asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a symbol from the watchlist.
func (r *watchlistRepository) Delete(ctx context.Context, symbol string) error {
	return r.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&entity.WatchlistItem{}).Error
}

// Symbols returns just the watched symbols, priority order.
func (r *watchlistRepository) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).Model(&entity.WatchlistItem{}).
		Order("priority desc, symbol asc").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}
