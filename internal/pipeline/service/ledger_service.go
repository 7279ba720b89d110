package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/symlock"

	"gorm.io/gorm"
)

// LedgerService executes simulated fills for accepted signals and owns all
// position mutation. Buys merge into the weighted average cost; sells never
// change it. The portfolio summary is recomputed by full aggregation after
// every mutation, never adjusted incrementally.
type LedgerService interface {
	ApplySignal(ctx context.Context, signal *entity.TradeSignal) (*entity.Transaction, error)
	ProcessActiveSignals(ctx context.Context) (applied int, err error)
	RefreshValues(ctx context.Context) (updated int, err error)
	ActivePositions(ctx context.Context) ([]entity.Position, error)
	Summary(ctx context.Context) (*dto.PortfolioSummary, error)
	HoldingsPerformance(ctx context.Context) ([]dto.HoldingPerformance, error)
	Transactions(ctx context.Context, limit int) ([]entity.Transaction, error)
}

// NewLedgerService creates a new portfolio ledger.
func NewLedgerService(
	cfg *config.Config,
	positionRepo repository.PositionRepository,
	transactionRepo repository.TransactionRepository,
	riskStateRepo repository.RiskStateRepository,
	signalRepo repository.TradeSignalRepository,
	marketDataRepo repository.MarketDataRepository,
	locks *symlock.Table,
	log *logger.Logger,
) LedgerService {
	return &ledgerService{
		cfg:             cfg,
		positionRepo:    positionRepo,
		transactionRepo: transactionRepo,
		riskStateRepo:   riskStateRepo,
		signalRepo:      signalRepo,
		marketDataRepo:  marketDataRepo,
		locks:           locks,
		logger:          log,
	}
}

type ledgerService struct {
	cfg             *config.Config
	positionRepo    repository.PositionRepository
	transactionRepo repository.TransactionRepository
	riskStateRepo   repository.RiskStateRepository
	signalRepo      repository.TradeSignalRepository
	marketDataRepo  repository.MarketDataRepository
	locks           *symlock.Table
	logger          *logger.Logger
}

// ApplySignal fills one active signal at its price limit, falling back to
// the latest close, with the configured fee rate applied. The signal leaves
// the active state on success so redelivery cannot fill it twice.
func (s *ledgerService) ApplySignal(ctx context.Context, signal *entity.TradeSignal) (*entity.Transaction, error) {
	unlock := s.locks.Lock(signal.Symbol)
	defer unlock()

	if signal.State != entity.SignalStateActive {
		return nil, fmt.Errorf("signal %d for %s is %s, not active", signal.ID, signal.Symbol, signal.State)
	}
	now := time.Now()
	if signal.PastExpiry(now) {
		signal.State = entity.SignalStateExpired
		if err := s.signalRepo.Update(ctx, signal); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("signal %d for %s expired before execution", signal.ID, signal.Symbol)
	}

	price := signal.PriceLimit
	if price <= 0 {
		latest, err := s.marketDataRepo.LatestClose(ctx, signal.Symbol)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", dto.ErrNoPriceData, signal.Symbol)
			}
			return nil, err
		}
		price = latest
	}

	tx := &entity.Transaction{
		Symbol:     signal.Symbol,
		Type:       entity.TransactionType(signal.Verdict),
		Quantity:   signal.Quantity,
		Price:      price,
		Fees:       float64(signal.Quantity) * price * s.cfg.Ledger.FeeRate,
		OrderID:    fmt.Sprintf("%s-%s-%d", signal.Symbol, signal.Verdict, now.UnixNano()),
		ExecutedAt: now,
	}

	if err := s.applyLocked(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	signal.State = entity.SignalStateSuperseded
	signal.Reasoning = fmt.Sprintf("%s; filled by order %s", signal.Reasoning, tx.OrderID)
	if err := s.signalRepo.Update(ctx, signal); err != nil {
		return nil, err
	}

	s.logger.Info("Executed simulated fill",
		logger.StringField("symbol", tx.Symbol),
		logger.StringField("type", string(tx.Type)),
		logger.Field("quantity", tx.Quantity),
		logger.Field("price", tx.Price),
		logger.StringField("order_id", tx.OrderID))

	if summary, err := s.Summary(ctx); err == nil {
		s.logger.Info("Portfolio summary recomputed",
			logger.IntField("active_positions", summary.ActivePositionsCount),
			logger.Field("market_value", summary.TotalMarketValue),
			logger.Field("unrealized_pnl", summary.TotalUnrealizedPnL))
	}
	return tx, nil
}

// ProcessActiveSignals fills every currently active signal. Failures are
// isolated per signal.
func (s *ledgerService) ProcessActiveSignals(ctx context.Context) (int, error) {
	signals, err := s.signalRepo.AllActive(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range signals {
		if _, err := s.ApplySignal(ctx, &signals[i]); err != nil {
			s.logger.Warn("Skipping signal execution", logger.ErrorField(err),
				logger.StringField("symbol", signals[i].Symbol))
			continue
		}
		applied++
	}
	return applied, nil
}

// applyLocked mutates the position for one fill. The caller holds the symbol
// lock. A sell larger than the held quantity fails without any mutation.
func (s *ledgerService) applyLocked(ctx context.Context, tx *entity.Transaction) error {
	position, err := s.positionRepo.ActiveBySymbol(ctx, tx.Symbol)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	switch tx.Type {
	case entity.TransactionTypeBuy:
		return s.applyBuy(ctx, tx, position)
	case entity.TransactionTypeSell:
		return s.applySell(ctx, tx, position)
	default:
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}
}

func (s *ledgerService) applyBuy(ctx context.Context, tx *entity.Transaction, position *entity.Position) error {
	if position == nil {
		position = &entity.Position{
			Symbol:      tx.Symbol,
			Quantity:    tx.Quantity,
			AverageCost: tx.Price,
			Status:      entity.PositionStatusActive,
			OpenedAt:    tx.ExecutedAt,
		}
	} else {
		newQuantity := position.Quantity + tx.Quantity
		position.AverageCost = (float64(position.Quantity)*position.AverageCost + float64(tx.Quantity)*tx.Price) / float64(newQuantity)
		position.Quantity = newQuantity
	}
	position.CurrentPrice = tx.Price
	position.MarketValue = float64(position.Quantity) * tx.Price
	position.UnrealizedPnL = (tx.Price - position.AverageCost) * float64(position.Quantity)
	if err := s.positionRepo.Save(ctx, position); err != nil {
		return err
	}

	state, err := s.riskStateRepo.GetOrCreate(ctx, tx.Symbol)
	if err != nil {
		return err
	}
	state.Exposure += float64(tx.Quantity) * tx.Price
	return s.riskStateRepo.Save(ctx, state)
}

func (s *ledgerService) applySell(ctx context.Context, tx *entity.Transaction, position *entity.Position) error {
	if position == nil || position.Quantity < tx.Quantity {
		held := int64(0)
		if position != nil {
			held = position.Quantity
		}
		return fmt.Errorf("%w: %s holds %d, sell of %d requested", dto.ErrInsufficientPosition, tx.Symbol, held, tx.Quantity)
	}

	realized := (tx.Price - position.AverageCost) * float64(tx.Quantity)

	position.Quantity -= tx.Quantity
	position.CurrentPrice = tx.Price
	position.MarketValue = float64(position.Quantity) * tx.Price
	position.UnrealizedPnL = (tx.Price - position.AverageCost) * float64(position.Quantity)
	if position.Quantity == 0 {
		position.Status = entity.PositionStatusClosed
		closedAt := tx.ExecutedAt
		position.ClosedAt = &closedAt
	}
	if err := s.positionRepo.Save(ctx, position); err != nil {
		return err
	}

	state, err := s.riskStateRepo.GetOrCreate(ctx, tx.Symbol)
	if err != nil {
		return err
	}
	state.Exposure -= float64(tx.Quantity) * position.AverageCost
	if state.Exposure < 0 {
		state.Exposure = 0
	}
	if realized < 0 {
		state.DailyRealizedLoss += realized
	}
	if err := s.riskStateRepo.Save(ctx, state); err != nil {
		return err
	}

	s.logger.Info("Realized P&L on sell",
		logger.StringField("symbol", tx.Symbol),
		logger.Field("quantity", tx.Quantity),
		logger.Field("realized_pnl", realized))
	return nil
}

// RefreshValues marks every active position to the latest close.
func (s *ledgerService) RefreshValues(ctx context.Context) (int, error) {
	positions, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range positions {
		position := &positions[i]
		price, err := s.marketDataRepo.LatestClose(ctx, position.Symbol)
		if err != nil {
			s.logger.Warn("No price available to refresh position",
				logger.StringField("symbol", position.Symbol), logger.ErrorField(err))
			continue
		}

		unlock := s.locks.Lock(position.Symbol)
		position.CurrentPrice = price
		position.MarketValue = float64(position.Quantity) * price
		position.UnrealizedPnL = (price - position.AverageCost) * float64(position.Quantity)
		err = s.positionRepo.Save(ctx, position)
		unlock()

		if err != nil {
			s.logger.Error("Failed to refresh position value", logger.ErrorField(err),
				logger.StringField("symbol", position.Symbol))
			continue
		}
		updated++
	}
	return updated, nil
}

// ActivePositions returns every open holding.
func (s *ledgerService) ActivePositions(ctx context.Context) ([]entity.Position, error) {
	return s.positionRepo.AllActive(ctx)
}

// Summary aggregates the active positions.
func (s *ledgerService) Summary(ctx context.Context) (*dto.PortfolioSummary, error) {
	positions, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return nil, err
	}

	summary := &dto.PortfolioSummary{
		ActivePositionsCount: len(positions),
		LastUpdated:          time.Now(),
	}
	for _, p := range positions {
		summary.TotalMarketValue += p.MarketValue
		summary.TotalCostBasis += float64(p.Quantity) * p.AverageCost
		summary.TotalUnrealizedPnL += p.UnrealizedPnL
	}
	if summary.TotalCostBasis > 0 {
		summary.UnrealizedReturnPct = summary.TotalUnrealizedPnL / summary.TotalCostBasis * 100
	}
	return summary, nil
}

// HoldingsPerformance breaks the unrealized return down per holding.
func (s *ledgerService) HoldingsPerformance(ctx context.Context) ([]dto.HoldingPerformance, error) {
	positions, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]dto.HoldingPerformance, 0, len(positions))
	for _, p := range positions {
		h := dto.HoldingPerformance{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AverageCost:   p.AverageCost,
			CurrentPrice:  p.CurrentPrice,
			MarketValue:   p.MarketValue,
			UnrealizedPnL: p.UnrealizedPnL,
		}
		if p.AverageCost > 0 {
			h.ReturnPct = (p.CurrentPrice - p.AverageCost) / p.AverageCost * 100
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// Transactions returns the newest fills.
func (s *ledgerService) Transactions(ctx context.Context, limit int) ([]entity.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.transactionRepo.FindRecent(ctx, limit)
}
