package service

import (
	"context"
	"testing"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/symlock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type strategyFixture struct {
	svc       StrategyService
	recs      *fakeRecommendationRepo
	signals   *fakeSignalRepo
	positions *fakePositionRepo
	risk      *fakeRiskStateRepo
	market    *fakeMarketDataRepo
	notifier  *fakeNotifier
	cfg       *config.Config
}

func newStrategyFixture(cfg *config.Config) *strategyFixture {
	f := &strategyFixture{
		recs:      newFakeRecommendationRepo(),
		signals:   newFakeSignalRepo(),
		positions: newFakePositionRepo(),
		risk:      newFakeRiskStateRepo(),
		market:    newFakeMarketDataRepo(),
		notifier:  &fakeNotifier{},
		cfg:       cfg,
	}
	f.svc = NewStrategyService(cfg, f.recs, f.signals, f.positions, f.risk, f.market, symlock.New(), f.notifier, logger.NewNop())
	return f
}

func (f *strategyFixture) recommend(symbol string, verdict entity.Verdict, confidence float64) {
	_ = f.recs.Append(context.Background(), &entity.Recommendation{
		Symbol:       symbol,
		Verdict:      verdict,
		Confidence:   confidence,
		ModelVersion: "v1",
	})
}

func TestGenerateSignalAcceptsConfidentBuy(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	f.recommend("AAPL", entity.VerdictBuy, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, signal)

	assert.Equal(t, entity.SignalStateActive, signal.State)
	// alloc = min(0.10, 0.09) * 0.90 * 10000 = 810 -> 8 shares at 100
	assert.Equal(t, int64(8), signal.Quantity)
	assert.InDelta(t, 92.0, signal.StopLoss, 1e-9)
	assert.InDelta(t, 115.0, signal.TakeProfit, 1e-9)
	require.NotNil(t, signal.ExpiresAt)
	assert.True(t, signal.ExpiresAt.After(time.Now()))
	assert.Contains(t, f.notifier.signals, "AAPL:buy")

	// exposure is booked by the ledger on fill, never at acceptance
	state, err := f.risk.GetOrCreate(ctx, "AAPL")
	require.NoError(t, err)
	assert.Zero(t, state.Exposure)
}

func TestGenerateSignalAcceptsAfterUnfilledSignalExpires(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)

	f.recommend("AAPL", entity.VerdictBuy, 90)
	first, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	require.Equal(t, entity.SignalStateActive, first.State)

	past := time.Now().Add(-time.Minute)
	first.ExpiresAt = &past
	require.NoError(t, f.signals.Update(ctx, first))
	_, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)

	// the expired signal was never filled, so it must not count as exposure
	f.recommend("AAPL", entity.VerdictBuy, 90)
	second, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateActive, second.State)
	assert.Empty(t, second.RejectReason)
}

func TestGenerateSignalRejectsLowConfidence(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	f.recommend("AAPL", entity.VerdictBuy, 55)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, signal)

	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, "confidence")
	assert.NotEmpty(t, f.notifier.rejections)
}

func TestGenerateSignalHoldProducesNothing(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	f.recommend("AAPL", entity.VerdictHold, 95)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestGenerateSignalWithoutRecommendation(t *testing.T) {
	f := newStrategyFixture(testConfig())

	_, err := f.svc.GenerateSignal(context.Background(), "AAPL")
	require.ErrorIs(t, err, dto.ErrNoRecommendation)
}

func TestGenerateSignalSupersedesPriorActive(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)

	f.recommend("AAPL", entity.VerdictBuy, 90)
	first, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)

	f.recommend("AAPL", entity.VerdictBuy, 95)
	second, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	active, err := f.signals.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestGenerateSignalRejectsSellWithoutPosition(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	f.recommend("AAPL", entity.VerdictSell, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, "no position")
}

func TestGenerateSignalSellClosesFullQuantity(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	require.NoError(t, f.positions.Save(ctx, &entity.Position{
		Symbol: "AAPL", Quantity: 12, AverageCost: 90,
		Status: entity.PositionStatusActive, OpenedAt: time.Now(),
	}))
	f.recommend("AAPL", entity.VerdictSell, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateActive, signal.State)
	assert.Equal(t, int64(12), signal.Quantity)
}

func TestGenerateSignalRejectsWhenPositionOpen(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)
	require.NoError(t, f.positions.Save(ctx, &entity.Position{
		Symbol: "AAPL", Quantity: 10, AverageCost: 95,
		Status: entity.PositionStatusActive, OpenedAt: time.Now(),
	}))
	f.recommend("AAPL", entity.VerdictBuy, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, "position already open")
}

func TestGenerateSignalRejectsAtPositionLimit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Risk.MaxActivePositions = 1
	f := newStrategyFixture(cfg)
	f.market.seedBars("AAPL", 100)
	require.NoError(t, f.positions.Save(ctx, &entity.Position{
		Symbol: "MSFT", Quantity: 5, AverageCost: 200, MarketValue: 1000,
		Status: entity.PositionStatusActive, OpenedAt: time.Now(),
	}))
	f.recommend("AAPL", entity.VerdictBuy, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, "position limit")
}

func TestGenerateSignalRejectsAfterDailyLossLimit(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)

	state, err := f.risk.GetOrCreate(ctx, "AAPL")
	require.NoError(t, err)
	state.DailyRealizedLoss = -600
	require.NoError(t, f.risk.Save(ctx, state))

	f.recommend("AAPL", entity.VerdictBuy, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, dto.ErrRiskLimitExceeded.Error())
	assert.Contains(t, signal.RejectReason, "daily loss limit")
}

func TestGenerateSignalRejectsOverSymbolExposure(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)

	state, err := f.risk.GetOrCreate(ctx, "AAPL")
	require.NoError(t, err)
	state.Exposure = 950 // cap is 10% of 10000
	require.NoError(t, f.risk.Save(ctx, state))

	f.recommend("AAPL", entity.VerdictBuy, 90)

	signal, err := f.svc.GenerateSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, entity.SignalStateRejected, signal.State)
	assert.Contains(t, signal.RejectReason, dto.ErrRiskLimitExceeded.Error())
	assert.Contains(t, signal.RejectReason, "exposure")
}

func TestExpireStaleTransitionsOverdueSignals(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())

	past := time.Now().Add(-time.Hour)
	require.NoError(t, f.signals.Create(ctx, &entity.TradeSignal{
		Symbol: "AAPL", Verdict: entity.VerdictBuy, Quantity: 5,
		Confidence: 90, State: entity.SignalStateActive, ExpiresAt: &past,
	}))

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := f.signals.AllActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestProcessRecommendationsUsesNewestPerSymbol(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())
	f.market.seedBars("AAPL", 100)

	since := time.Now().Add(-time.Minute)
	f.recommend("AAPL", entity.VerdictBuy, 55) // would be rejected
	f.recommend("AAPL", entity.VerdictBuy, 90) // newest wins

	accepted, rejected, err := f.svc.ProcessRecommendations(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 0, rejected)
}

func TestRiskStatusReportsPosture(t *testing.T) {
	ctx := context.Background()
	f := newStrategyFixture(testConfig())

	status, err := f.svc.RiskStatus(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, status.PortfolioValue, 1e-9)
	assert.Equal(t, 0, status.ActivePositions)
	assert.InDelta(t, 80.0, status.MinConfidence, 1e-9)
}
