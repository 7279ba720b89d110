package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recommendationFixture struct {
	svc       RecommendationService
	scorer    *fakeScoringRepo
	recs      *fakeRecommendationRepo
	market    *fakeMarketDataRepo
	watchlist *fakeWatchlistRepo
}

func newRecommendationFixture(scoreFn func(symbol string) (*dto.ScoreResult, error)) *recommendationFixture {
	f := &recommendationFixture{
		scorer:    &fakeScoringRepo{scoreFn: scoreFn},
		recs:      newFakeRecommendationRepo(),
		market:    newFakeMarketDataRepo(),
		watchlist: newFakeWatchlistRepo(),
	}
	cfg := testConfig()
	cfg.Scoring = config.Scoring{Provider: "http", Timeout: "5s", MaxInFlight: 2, ModelVersion: "v1"}
	f.svc = NewRecommendationService(cfg, f.scorer, f.recs, f.market, f.watchlist, logger.NewNop())
	return f
}

func TestGenerateAppendsValidRecommendation(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(func(symbol string) (*dto.ScoreResult, error) {
		return &dto.ScoreResult{Symbol: symbol, Verdict: "buy", Confidence: 87.5, ModelVersion: "v1"}, nil
	})
	f.market.seedBars("AAPL", 100, 101, 102, 103, 104, 105)

	batch, err := f.svc.Generate(ctx, dto.RecommendRequest{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	require.Len(t, batch.Recommendations, 1)
	assert.Empty(t, batch.Failures)

	rec := batch.Recommendations[0]
	assert.Equal(t, entity.VerdictBuy, rec.Verdict)
	assert.InDelta(t, 87.5, rec.Confidence, 1e-9)
	assert.NotEmpty(t, rec.Features)

	stored, err := f.recs.LatestBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestGenerateRejectsConfidenceOutOfRange(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(func(symbol string) (*dto.ScoreResult, error) {
		return &dto.ScoreResult{Symbol: symbol, Verdict: "buy", Confidence: 150, ModelVersion: "v1"}, nil
	})
	f.market.seedBars("AAPL", 100)

	batch, err := f.svc.Generate(ctx, dto.RecommendRequest{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Empty(t, batch.Recommendations)
	require.Len(t, batch.Failures, 1)
	assert.Contains(t, batch.Failures[0].Reason, "confidence")

	_, err = f.recs.LatestBySymbol(ctx, "AAPL")
	require.Error(t, err)
}

func TestGenerateRejectsUnknownVerdict(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(func(symbol string) (*dto.ScoreResult, error) {
		return &dto.ScoreResult{Symbol: symbol, Verdict: "strong_buy", Confidence: 90, ModelVersion: "v1"}, nil
	})
	f.market.seedBars("AAPL", 100)

	batch, err := f.svc.Generate(ctx, dto.RecommendRequest{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Empty(t, batch.Recommendations)
	require.Len(t, batch.Failures, 1)
	assert.Contains(t, batch.Failures[0].Reason, "verdict")
}

func TestGenerateIsolatesSymbolFailures(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(func(symbol string) (*dto.ScoreResult, error) {
		if symbol == "MSFT" {
			return nil, errors.New("model unavailable")
		}
		return &dto.ScoreResult{Symbol: symbol, Verdict: "hold", Confidence: 60, ModelVersion: "v1"}, nil
	})
	f.market.seedBars("AAPL", 100)
	f.market.seedBars("MSFT", 200)

	batch, err := f.svc.Generate(ctx, dto.RecommendRequest{Symbols: []string{"AAPL", "MSFT"}})
	require.NoError(t, err)
	assert.Len(t, batch.Recommendations, 1)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "MSFT", batch.Failures[0].Symbol)
}

func TestGenerateSkipsSymbolWithoutPriceData(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(func(symbol string) (*dto.ScoreResult, error) {
		return &dto.ScoreResult{Symbol: symbol, Verdict: "buy", Confidence: 90, ModelVersion: "v1"}, nil
	})

	batch, err := f.svc.Generate(ctx, dto.RecommendRequest{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Empty(t, batch.Recommendations)
	require.Len(t, batch.Failures, 1)
	assert.Contains(t, batch.Failures[0].Reason, "no price data")
}

func TestBuildFeaturesDerivesReturns(t *testing.T) {
	ctx := context.Background()
	f := newRecommendationFixture(nil)
	// oldest to newest; 21 bars so both windows are covered
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	f.market.seedBars("AAPL", closes...)

	features, err := f.svc.BuildFeatures(ctx, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 120.0, features.LatestClose, 1e-9)
	assert.InDelta(t, 120.0/115.0-1, features.Return5d, 1e-9)
	assert.InDelta(t, 120.0/100.0-1, features.Return20d, 1e-9)
	assert.Greater(t, features.Volatility20d, 0.0)
	assert.InDelta(t, 1000.0, features.AvgVolume20d, 1e-9)
}
