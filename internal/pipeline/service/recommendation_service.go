package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
)

// RecommendationService assembles feature snapshots from the market data
// store, calls the external scoring function, validates what comes back, and
// appends accepted results to the recommendation log. A malformed or
// out-of-range score rejects that symbol only; the batch continues.
type RecommendationService interface {
	Generate(ctx context.Context, req dto.RecommendRequest) (*dto.RecommendationBatch, error)
	BuildFeatures(ctx context.Context, symbol string) (*dto.FeatureSnapshot, error)
}

// NewRecommendationService creates a new recommendation orchestrator.
func NewRecommendationService(
	cfg *config.Config,
	scoringRepo repository.ScoringRepository,
	recommendationRepo repository.RecommendationRepository,
	marketDataRepo repository.MarketDataRepository,
	watchlistRepo repository.WatchlistRepository,
	log *logger.Logger,
) RecommendationService {
	scoreTimeout, err := time.ParseDuration(cfg.Scoring.Timeout)
	if err != nil || scoreTimeout <= 0 {
		scoreTimeout = 30 * time.Second
	}
	maxInFlight := cfg.Scoring.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &recommendationService{
		scoringRepo:        scoringRepo,
		recommendationRepo: recommendationRepo,
		marketDataRepo:     marketDataRepo,
		watchlistRepo:      watchlistRepo,
		logger:             log,
		scoreTimeout:       scoreTimeout,
		maxInFlight:        maxInFlight,
	}
}

type recommendationService struct {
	scoringRepo        repository.ScoringRepository
	recommendationRepo repository.RecommendationRepository
	marketDataRepo     repository.MarketDataRepository
	watchlistRepo      repository.WatchlistRepository
	logger             *logger.Logger
	scoreTimeout       time.Duration
	maxInFlight        int
}

// Generate scores the requested symbols, defaulting to the full watchlist.
func (s *recommendationService) Generate(ctx context.Context, req dto.RecommendRequest) (*dto.RecommendationBatch, error) {
	symbols := dedupe(req.Symbols)
	if len(symbols) == 0 {
		watched, err := s.watchlistRepo.Symbols(ctx)
		if err != nil {
			return nil, err
		}
		symbols = watched
	}

	s.logger.Info("Starting scoring batch", logger.IntField("symbols", len(symbols)))

	batch := &dto.RecommendationBatch{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxInFlight)

	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			rec, failure := s.scoreSymbol(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				batch.Failures = append(batch.Failures, *failure)
				return
			}
			batch.Recommendations = append(batch.Recommendations, *rec)
		}()
	}
	wg.Wait()

	s.logger.Info("Scoring batch finished",
		logger.IntField("recommendations", len(batch.Recommendations)),
		logger.IntField("failures", len(batch.Failures)))
	return batch, nil
}

func (s *recommendationService) scoreSymbol(ctx context.Context, symbol string) (*entity.Recommendation, *dto.SymbolFailure) {
	features, err := s.BuildFeatures(ctx, symbol)
	if err != nil {
		return nil, &dto.SymbolFailure{Symbol: symbol, Reason: err.Error()}
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()

	score, err := s.scoringRepo.Score(scoreCtx, *features)
	if err != nil {
		s.logger.Error("Scoring call failed", logger.ErrorField(err),
			logger.StringField("symbol", symbol))
		return nil, &dto.SymbolFailure{Symbol: symbol, Reason: fmt.Sprintf("scoring call failed: %v", err)}
	}

	if err := validateScore(score); err != nil {
		s.logger.Warn("Rejecting malformed score",
			logger.StringField("symbol", symbol),
			logger.StringField("verdict", score.Verdict),
			logger.Field("confidence", score.Confidence),
			logger.ErrorField(err))
		return nil, &dto.SymbolFailure{Symbol: symbol, Reason: err.Error()}
	}

	featureJSON, err := json.Marshal(features)
	if err != nil {
		return nil, &dto.SymbolFailure{Symbol: symbol, Reason: fmt.Sprintf("failed to marshal features: %v", err)}
	}

	rec := &entity.Recommendation{
		Symbol:       symbol,
		Verdict:      entity.Verdict(score.Verdict),
		Confidence:   score.Confidence,
		PriceTarget:  score.PriceTarget,
		StopLoss:     score.StopLoss,
		ModelVersion: score.ModelVersion,
		Features:     featureJSON,
	}
	if err := s.recommendationRepo.Append(ctx, rec); err != nil {
		s.logger.Error("Failed to append recommendation", logger.ErrorField(err),
			logger.StringField("symbol", symbol))
		return nil, &dto.SymbolFailure{Symbol: symbol, Reason: fmt.Sprintf("failed to persist recommendation: %v", err)}
	}
	return rec, nil
}

// validateScore enforces the scoring contract: a known verdict and a
// confidence inside [0, 100]. Anything else is treated as a scoring failure
// for the symbol, never silently clamped.
func validateScore(score *dto.ScoreResult) error {
	if !entity.ValidVerdict(entity.Verdict(score.Verdict)) {
		return fmt.Errorf("unknown verdict %q", score.Verdict)
	}
	if math.IsNaN(score.Confidence) || score.Confidence < 0 || score.Confidence > 100 {
		return fmt.Errorf("confidence %v outside [0, 100]", score.Confidence)
	}
	return nil
}

// BuildFeatures derives the typed feature snapshot for one symbol as of the
// most recent ingestion.
func (s *recommendationService) BuildFeatures(ctx context.Context, symbol string) (*dto.FeatureSnapshot, error) {
	bars, err := s.marketDataRepo.LatestBars(ctx, symbol, 21)
	if err != nil {
		return nil, fmt.Errorf("failed to load price bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", dto.ErrNoPriceData, symbol)
	}

	// bars come back newest first
	features := &dto.FeatureSnapshot{
		Symbol:      symbol,
		LatestClose: bars[0].Close,
	}
	if len(bars) > 5 && bars[5].Close != 0 {
		features.Return5d = bars[0].Close/bars[5].Close - 1
	}
	if len(bars) > 20 && bars[20].Close != 0 {
		features.Return20d = bars[0].Close/bars[20].Close - 1
	}
	features.Volatility20d = dailyReturnStddev(bars)
	features.AvgVolume20d = avgVolume(bars)

	fundamentals, err := s.marketDataRepo.LatestFundamentals(ctx, symbol)
	if err == nil && fundamentals != nil {
		features.PERatio = fundamentals.PERatio
		features.EPS = fundamentals.EPS
	}

	news, err := s.marketDataRepo.RecentNews(ctx, symbol, time.Now().AddDate(0, 0, -7))
	if err == nil && len(news) > 0 {
		features.NewsCount7d = len(news)
		sum := 0.0
		for _, n := range news {
			sum += n.Sentiment
		}
		features.NewsSentiment = sum / float64(len(news))
	}

	return features, nil
}

// dailyReturnStddev computes the sample standard deviation of day-over-day
// returns across the window.
func dailyReturnStddev(bars []entity.PriceBar) float64 {
	if len(bars) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 0; i < len(bars)-1; i++ {
		if bars[i+1].Close == 0 {
			continue
		}
		returns = append(returns, bars[i].Close/bars[i+1].Close-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

func avgVolume(bars []entity.PriceBar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := int64(0)
	for _, b := range bars {
		sum += b.Volume
	}
	return float64(sum) / float64(len(bars))
}
