package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/symlock"
	"github.com/dhumphrey11/moda-trading/pkg/telegram"
	"github.com/dhumphrey11/moda-trading/pkg/utils"

	"gorm.io/gorm"
)

// StrategyService turns recommendations into risk-checked trade signals. All
// state transitions for a symbol happen under that symbol's lock, which keeps
// the one-active-signal-per-symbol invariant under concurrent evaluation.
// Rejections are recorded as rejected signals with a reason, never dropped.
type StrategyService interface {
	GenerateSignal(ctx context.Context, symbol string) (*entity.TradeSignal, error)
	ProcessRecommendations(ctx context.Context, since time.Time) (accepted, rejected int, err error)
	ActiveSignals(ctx context.Context) ([]entity.TradeSignal, error)
	ExpireStale(ctx context.Context) (int64, error)
	RiskStatus(ctx context.Context) (*dto.RiskStatus, error)
}

// NewStrategyService creates a new strategy engine.
func NewStrategyService(
	cfg *config.Config,
	recommendationRepo repository.RecommendationRepository,
	signalRepo repository.TradeSignalRepository,
	positionRepo repository.PositionRepository,
	riskStateRepo repository.RiskStateRepository,
	marketDataRepo repository.MarketDataRepository,
	locks *symlock.Table,
	notifier telegram.Notifier,
	log *logger.Logger,
) StrategyService {
	signalTTL, err := time.ParseDuration(cfg.Risk.SignalTTL)
	if err != nil || signalTTL <= 0 {
		signalTTL = 24 * time.Hour
	}
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &strategyService{
		cfg:                cfg,
		recommendationRepo: recommendationRepo,
		signalRepo:         signalRepo,
		positionRepo:       positionRepo,
		riskStateRepo:      riskStateRepo,
		marketDataRepo:     marketDataRepo,
		locks:              locks,
		notifier:           notifier,
		logger:             log,
		signalTTL:          signalTTL,
		location:           loc,
	}
}

type strategyService struct {
	cfg                *config.Config
	recommendationRepo repository.RecommendationRepository
	signalRepo         repository.TradeSignalRepository
	positionRepo       repository.PositionRepository
	riskStateRepo      repository.RiskStateRepository
	marketDataRepo     repository.MarketDataRepository
	locks              *symlock.Table
	notifier           telegram.Notifier
	logger             *logger.Logger
	signalTTL          time.Duration
	location           *time.Location
}

// GenerateSignal evaluates the symbol's latest recommendation against the
// risk gates. A hold verdict produces no signal and leaves any active signal
// in place. Returns the created signal, which is rejected (with a reason)
// when a gate fired.
func (s *strategyService) GenerateSignal(ctx context.Context, symbol string) (*entity.TradeSignal, error) {
	rec, err := s.recommendationRepo.LatestBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", dto.ErrNoRecommendation, symbol)
		}
		return nil, err
	}
	return s.evaluate(ctx, rec)
}

// ProcessRecommendations evaluates every recommendation appended since the
// given time, newest per symbol. Called by the full pipeline stage after a
// scoring batch.
func (s *strategyService) ProcessRecommendations(ctx context.Context, since time.Time) (int, int, error) {
	recs, err := s.recommendationRepo.FindSince(ctx, since)
	if err != nil {
		return 0, 0, err
	}

	// FindSince returns oldest first, so the map ends up holding the newest
	// recommendation per symbol.
	latest := make(map[string]*entity.Recommendation, len(recs))
	order := make([]string, 0, len(recs))
	for i := range recs {
		if _, seen := latest[recs[i].Symbol]; !seen {
			order = append(order, recs[i].Symbol)
		}
		latest[recs[i].Symbol] = &recs[i]
	}

	accepted, rejected := 0, 0
	for _, symbol := range order {
		signal, err := s.evaluate(ctx, latest[symbol])
		if err != nil {
			s.logger.Error("Failed to evaluate recommendation", logger.ErrorField(err),
				logger.StringField("symbol", symbol))
			continue
		}
		if signal == nil {
			continue
		}
		if signal.State == entity.SignalStateActive {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected, nil
}

// evaluate holds the symbol lock across the whole read-decide-write sequence.
func (s *strategyService) evaluate(ctx context.Context, rec *entity.Recommendation) (*entity.TradeSignal, error) {
	if rec.Verdict == entity.VerdictHold {
		return nil, nil
	}

	unlock := s.locks.Lock(rec.Symbol)
	defer unlock()

	price, err := s.marketDataRepo.LatestClose(ctx, rec.Symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", dto.ErrNoPriceData, rec.Symbol)
		}
		return nil, err
	}

	state, err := s.riskStateRepo.GetOrCreate(ctx, rec.Symbol)
	if err != nil {
		return nil, err
	}
	if err := s.maybeResetDaily(ctx, state); err != nil {
		return nil, err
	}

	position, err := s.positionRepo.ActiveBySymbol(ctx, rec.Symbol)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if gateErr := s.gate(ctx, rec, position, state, price); gateErr != nil {
		return s.reject(ctx, rec, gateErr)
	}

	signal := &entity.TradeSignal{
		Symbol:     rec.Symbol,
		Verdict:    rec.Verdict,
		Confidence: rec.Confidence,
		PriceLimit: price,
		State:      entity.SignalStateActive,
	}
	expiresAt := time.Now().Add(s.signalTTL)
	signal.ExpiresAt = &expiresAt

	switch rec.Verdict {
	case entity.VerdictBuy:
		signal.Quantity = s.positionSize(ctx, rec.Confidence, price)
		signal.StopLoss = price * (1 - s.cfg.Risk.StopLossPct)
		signal.TakeProfit = price * (1 + s.cfg.Risk.TakeProfitPct)
		signal.Reasoning = fmt.Sprintf("buy recommendation at %.1f%% confidence, model %s", rec.Confidence, rec.ModelVersion)
	case entity.VerdictSell:
		signal.Quantity = position.Quantity
		signal.Reasoning = fmt.Sprintf("sell recommendation at %.1f%% confidence, closing %d shares", rec.Confidence, position.Quantity)
	}

	if err := s.supersedeActive(ctx, rec.Symbol); err != nil {
		return nil, err
	}
	if err := s.signalRepo.Create(ctx, signal); err != nil {
		return nil, err
	}

	s.logger.Info("Trade signal accepted",
		logger.StringField("symbol", signal.Symbol),
		logger.StringField("verdict", string(signal.Verdict)),
		logger.Field("quantity", signal.Quantity),
		logger.Field("confidence", signal.Confidence))
	if err := s.notifier.NotifySignal(signal.Symbol, string(signal.Verdict), signal.Quantity, signal.Confidence); err != nil {
		s.logger.Warn("Failed to send signal notification", logger.ErrorField(err))
	}
	return signal, nil
}

// gate runs the risk checks in order and returns the first failure, or nil
// when the recommendation passes. Cap and loss-limit breaches wrap
// dto.ErrRiskLimitExceeded. Exposure here is the filled cost basis maintained
// by the ledger, so expired or superseded signals never count against it.
func (s *strategyService) gate(ctx context.Context, rec *entity.Recommendation, position *entity.Position, state *entity.RiskState, price float64) error {
	if rec.Confidence < s.cfg.Risk.MinConfidence {
		return fmt.Errorf("confidence %.1f below minimum %.1f", rec.Confidence, s.cfg.Risk.MinConfidence)
	}

	if rec.Verdict == entity.VerdictSell {
		if position == nil || position.Quantity <= 0 {
			return errors.New("no position held to sell")
		}
		return nil
	}

	if position != nil {
		return errors.New("position already open")
	}

	active, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to count active positions: %w", err)
	}
	if len(active) >= s.cfg.Risk.MaxActivePositions {
		return fmt.Errorf("%w: active position limit %d reached", dto.ErrRiskLimitExceeded, s.cfg.Risk.MaxActivePositions)
	}

	if state.DailyRealizedLoss <= -s.cfg.Risk.DailyLossLimit {
		return fmt.Errorf("%w: daily loss limit %.2f reached for %s", dto.ErrRiskLimitExceeded, s.cfg.Risk.DailyLossLimit, rec.Symbol)
	}

	portfolioValue := s.portfolioValue(active)
	quantity := s.positionSize(ctx, rec.Confidence, price)
	notional := float64(quantity) * price

	if state.Exposure+notional > s.cfg.Risk.MaxPositionSizePct*portfolioValue {
		return fmt.Errorf("%w: symbol exposure %.2f would exceed %.0f%% of portfolio value %.2f",
			dto.ErrRiskLimitExceeded, state.Exposure+notional, s.cfg.Risk.MaxPositionSizePct*100, portfolioValue)
	}

	total := notional
	states, err := s.riskStateRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load risk states: %w", err)
	}
	for _, st := range states {
		total += st.Exposure
	}
	if total > s.cfg.Risk.MaxTotalExposurePct*portfolioValue {
		return fmt.Errorf("%w: total exposure %.2f would exceed %.0f%% of portfolio value %.2f",
			dto.ErrRiskLimitExceeded, total, s.cfg.Risk.MaxTotalExposurePct*100, portfolioValue)
	}
	return nil
}

func (s *strategyService) reject(ctx context.Context, rec *entity.Recommendation, gateErr error) (*entity.TradeSignal, error) {
	signal := &entity.TradeSignal{
		Symbol:       rec.Symbol,
		Verdict:      rec.Verdict,
		Confidence:   rec.Confidence,
		State:        entity.SignalStateRejected,
		RejectReason: gateErr.Error(),
	}
	if err := s.signalRepo.Create(ctx, signal); err != nil {
		return nil, err
	}
	s.logger.Info("Trade signal rejected",
		logger.StringField("symbol", rec.Symbol),
		logger.StringField("verdict", string(rec.Verdict)),
		logger.StringField("reason", signal.RejectReason))
	if err := s.notifier.NotifyRejection(rec.Symbol, signal.RejectReason); err != nil {
		s.logger.Warn("Failed to send rejection notification", logger.ErrorField(err))
	}
	return signal, nil
}

// supersedeActive transitions the symbol's current active signal, if any, so
// at most one signal per symbol is active at any instant.
func (s *strategyService) supersedeActive(ctx context.Context, symbol string) error {
	current, err := s.signalRepo.ActiveBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	current.State = entity.SignalStateSuperseded
	if err := s.signalRepo.Update(ctx, current); err != nil {
		return err
	}
	s.logger.Info("Superseded prior active signal",
		logger.StringField("symbol", symbol),
		logger.Field("signal_id", current.ID))
	return nil
}

// positionSize scales the allocation with confidence, capped by the per-
// position limit, and always buys at least one share.
func (s *strategyService) positionSize(ctx context.Context, confidence, price float64) int64 {
	if price <= 0 {
		return 0
	}
	active, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		active = nil
	}
	portfolioValue := s.portfolioValue(active)

	allocPct := math.Min(s.cfg.Risk.MaxPositionSizePct, confidence/1000)
	allocation := allocPct * (confidence / 100) * portfolioValue
	quantity := int64(math.Floor(allocation / price))
	if quantity < 1 {
		quantity = 1
	}
	return quantity
}

func (s *strategyService) portfolioValue(active []entity.Position) float64 {
	total := 0.0
	for _, p := range active {
		if p.MarketValue > 0 {
			total += p.MarketValue
		} else {
			total += float64(p.Quantity) * p.AverageCost
		}
	}
	if total <= 0 {
		total = s.cfg.Risk.BasePortfolioValue
	}
	return total
}

// maybeResetDaily zeroes the daily loss counter when the exchange-local
// calendar day has rolled over since the last reset.
func (s *strategyService) maybeResetDaily(ctx context.Context, state *entity.RiskState) error {
	today := utils.MarketDay(time.Now(), s.location)
	if !state.LastResetDate.Before(today) {
		return nil
	}
	state.DailyRealizedLoss = 0
	state.LastResetDate = today
	return s.riskStateRepo.Save(ctx, state)
}

// ActiveSignals returns every signal currently in the active state.
func (s *strategyService) ActiveSignals(ctx context.Context) ([]entity.TradeSignal, error) {
	return s.signalRepo.AllActive(ctx)
}

// ExpireStale transitions active signals past their deadline to expired.
// Runs on a background sweep; signals are also checked lazily on read.
func (s *strategyService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.signalRepo.ExpireDue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired stale trade signals", logger.Field("count", n))
	}
	return n, nil
}

// RiskStatus reports the engine's current posture.
func (s *strategyService) RiskStatus(ctx context.Context) (*dto.RiskStatus, error) {
	active, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return nil, err
	}
	states, err := s.riskStateRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	losses := make(map[string]float64, len(states))
	for _, st := range states {
		if st.DailyRealizedLoss != 0 {
			losses[st.Symbol] = st.DailyRealizedLoss
		}
	}

	return &dto.RiskStatus{
		PortfolioValue:         s.portfolioValue(active),
		ActivePositions:        len(active),
		MaxPositionSizePct:     s.cfg.Risk.MaxPositionSizePct,
		StopLossPct:            s.cfg.Risk.StopLossPct,
		MinConfidence:          s.cfg.Risk.MinConfidence,
		DailyLossLimit:         s.cfg.Risk.DailyLossLimit,
		DailyRealizedLossBySym: losses,
	}, nil
}
