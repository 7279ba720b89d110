package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OrchestratorHandler handles trigger dispatch and pipeline status requests.
type OrchestratorHandler struct {
	dispatcher service.DispatcherService
	ingestion  service.IngestionService
	recommend  service.RecommendationService
	logger     *logger.Logger
}

// NewOrchestratorHandler creates a new OrchestratorHandler.
func NewOrchestratorHandler(
	dispatcher service.DispatcherService,
	ingestion service.IngestionService,
	recommend service.RecommendationService,
	log *logger.Logger,
) *OrchestratorHandler {
	return &OrchestratorHandler{
		dispatcher: dispatcher,
		ingestion:  ingestion,
		recommend:  recommend,
		logger:     log,
	}
}

// RegisterRoutes registers the orchestration routes to the Echo group.
func (h *OrchestratorHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/orchestrate/:type", h.Orchestrate)
	g.GET("/orchestrate/status/:key", h.OrchestrateStatus)
	g.GET("/status", h.Status)
	g.POST("/collect", h.Collect)
	g.POST("/recommend", h.Recommend)
}

// Orchestrate dispatches one pipeline trigger. The caller may pin an
// idempotency key via the Idempotency-Key header; without one each manual
// dispatch runs independently.
func (h *OrchestratorHandler) Orchestrate(c echo.Context) error {
	triggerType := entity.TriggerType(c.Param("type"))

	var req dto.DispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = fmt.Sprintf("%s:manual:%d", triggerType, time.Now().UnixNano())
	}

	outcome, err := h.dispatcher.Dispatch(c.Request().Context(), triggerType, key, req)
	if err != nil {
		if errors.Is(err, dto.ErrInvalidTrigger) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to dispatch trigger", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if outcome.Duplicate {
		return c.JSON(http.StatusOK, outcome)
	}
	return c.JSON(http.StatusAccepted, outcome)
}

// OrchestrateStatus returns the recorded outcome for an idempotency key.
func (h *OrchestratorHandler) OrchestrateStatus(c echo.Context) error {
	key := c.Param("key")

	outcome, err := h.dispatcher.Outcome(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("Failed to look up trigger outcome", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if outcome == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no outcome recorded for key"})
	}
	return c.JSON(http.StatusOK, outcome)
}

// Status reports orchestration counters.
func (h *OrchestratorHandler) Status(c echo.Context) error {
	status, err := h.ingestion.Status(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to build pipeline status", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, status)
}

// Collect runs a synchronous collection pass.
func (h *OrchestratorHandler) Collect(c echo.Context) error {
	var req dto.CollectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	result, err := h.ingestion.Collect(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("Collection run failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// Recommend runs a synchronous scoring batch.
func (h *OrchestratorHandler) Recommend(c echo.Context) error {
	var req dto.RecommendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	batch, err := h.recommend.Generate(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("Scoring batch failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, batch)
}
