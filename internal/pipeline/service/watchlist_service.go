package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"gorm.io/gorm"
)

// WatchlistService manages the tracked symbol universe.
type WatchlistService interface {
	Add(ctx context.Context, req dto.AddWatchlistRequest) (*entity.WatchlistItem, error)
	Get(ctx context.Context, symbol string) (*entity.WatchlistItem, error)
	List(ctx context.Context) ([]entity.WatchlistItem, error)
	Remove(ctx context.Context, symbol string) error
}

// NewWatchlistService creates a new watchlist service.
func NewWatchlistService(watchlistRepo repository.WatchlistRepository, log *logger.Logger) WatchlistService {
	return &watchlistService{watchlistRepo: watchlistRepo, logger: log}
}

type watchlistService struct {
	watchlistRepo repository.WatchlistRepository
	logger        *logger.Logger
}

// Add watches a symbol. Adding an already-watched symbol returns the
// existing entry unchanged.
func (s *watchlistService) Add(ctx context.Context, req dto.AddWatchlistRequest) (*entity.WatchlistItem, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	item := &entity.WatchlistItem{
		Symbol:   symbol,
		AddedBy:  req.AddedBy,
		Priority: req.Priority,
		Notes:    req.Notes,
	}
	if err := s.watchlistRepo.Upsert(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info("Symbol watched", logger.StringField("symbol", symbol))
	return item, nil
}

// Get returns one watched symbol.
func (s *watchlistService) Get(ctx context.Context, symbol string) (*entity.WatchlistItem, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	item, err := s.watchlistRepo.FindBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", dto.ErrSymbolNotFound, symbol)
		}
		return nil, err
	}
	return item, nil
}

// List returns the watchlist in priority order.
func (s *watchlistService) List(ctx context.Context) ([]entity.WatchlistItem, error) {
	return s.watchlistRepo.FindAll(ctx)
}

// Remove stops watching a symbol. Historical market data for it is kept.
func (s *watchlistService) Remove(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := s.watchlistRepo.FindBySymbol(ctx, symbol); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", dto.ErrSymbolNotFound, symbol)
		}
		return err
	}
	if err := s.watchlistRepo.Delete(ctx, symbol); err != nil {
		return err
	}
	s.logger.Info("Symbol unwatched", logger.StringField("symbol", symbol))
	return nil
}
