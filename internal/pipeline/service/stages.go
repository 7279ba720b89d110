package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
)

// NewStageRunners binds each trigger type to its pipeline stage. The full
// trigger chains collection, scoring, signal generation, and execution; the
// narrower triggers run a scoped collection only.
func NewStageRunners(
	ingestion IngestionService,
	recommendation RecommendationService,
	strategy StrategyService,
	ledger LedgerService,
	log *logger.Logger,
) map[entity.TriggerType]StageRunner {
	return map[entity.TriggerType]StageRunner{
		entity.TriggerTypeIntraday:     collectStage(ingestion, dto.DataKindPrice),
		entity.TriggerTypeDaily:        collectStage(ingestion, dto.DataKindPrice, dto.DataKindNews),
		entity.TriggerTypeFundamentals: collectStage(ingestion, dto.DataKindFundamentals),
		entity.TriggerTypeMarketNews:   collectStage(ingestion, dto.DataKindNews),
		entity.TriggerTypeFull:         fullPipelineStage(ingestion, recommendation, strategy, ledger, log),
	}
}

func collectStage(ingestion IngestionService, kinds ...dto.DataKind) StageRunner {
	return func(ctx context.Context, task dto.TriggerTask) (entity.TriggerStatus, json.RawMessage, error) {
		result, err := ingestion.Collect(ctx, dto.CollectRequest{Symbols: task.Symbols, Kinds: kinds})
		if err != nil {
			return entity.TriggerStatusFailed, nil, err
		}
		detail, _ := json.Marshal(result)
		return collectionStatus(result), detail, nil
	}
}

func collectionStatus(result *dto.CollectionResult) entity.TriggerStatus {
	switch result.Status() {
	case dto.SymbolStatusFailed:
		return entity.TriggerStatusFailed
	case dto.SymbolStatusPartial:
		return entity.TriggerStatusPartial
	default:
		return entity.TriggerStatusSucceeded
	}
}

type fullPipelineDetail struct {
	Collection      *dto.CollectionResult `json:"collection"`
	Recommendations int                   `json:"recommendations"`
	ScoringFailures int                   `json:"scoring_failures"`
	SignalsAccepted int                   `json:"signals_accepted"`
	SignalsRejected int                   `json:"signals_rejected"`
	FillsApplied    int                   `json:"fills_applied"`
	ValuesRefreshed int                   `json:"values_refreshed"`
}

// fullPipelineStage runs the whole decision chain. Each step consumes what
// the previous one persisted, so a partially failed collection still feeds
// the symbols it did cover into scoring.
func fullPipelineStage(
	ingestion IngestionService,
	recommendation RecommendationService,
	strategy StrategyService,
	ledger LedgerService,
	log *logger.Logger,
) StageRunner {
	return func(ctx context.Context, task dto.TriggerTask) (entity.TriggerStatus, json.RawMessage, error) {
		started := time.Now()
		detail := &fullPipelineDetail{}

		collection, err := ingestion.Collect(ctx, dto.CollectRequest{Symbols: task.Symbols})
		if err != nil {
			return entity.TriggerStatusFailed, nil, err
		}
		detail.Collection = collection

		batch, err := recommendation.Generate(ctx, dto.RecommendRequest{Symbols: task.Symbols})
		if err != nil {
			raw, _ := json.Marshal(detail)
			return entity.TriggerStatusFailed, raw, err
		}
		detail.Recommendations = len(batch.Recommendations)
		detail.ScoringFailures = len(batch.Failures)

		accepted, rejected, err := strategy.ProcessRecommendations(ctx, started)
		if err != nil {
			raw, _ := json.Marshal(detail)
			return entity.TriggerStatusFailed, raw, err
		}
		detail.SignalsAccepted = accepted
		detail.SignalsRejected = rejected

		applied, err := ledger.ProcessActiveSignals(ctx)
		if err != nil {
			raw, _ := json.Marshal(detail)
			return entity.TriggerStatusFailed, raw, err
		}
		detail.FillsApplied = applied

		refreshed, err := ledger.RefreshValues(ctx)
		if err != nil {
			log.Warn("Value refresh failed at end of full pipeline", logger.ErrorField(err))
		}
		detail.ValuesRefreshed = refreshed

		status := collectionStatus(collection)
		if status == entity.TriggerStatusSucceeded && (detail.ScoringFailures > 0) {
			status = entity.TriggerStatusPartial
		}
		raw, _ := json.Marshal(detail)
		return status, raw, nil
	}
}
