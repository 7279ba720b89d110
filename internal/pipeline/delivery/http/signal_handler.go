package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalHandler handles trade signal and risk posture requests.
type SignalHandler struct {
	strategy service.StrategyService
	logger   *logger.Logger
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(strategy service.StrategyService, log *logger.Logger) *SignalHandler {
	return &SignalHandler{strategy: strategy, logger: log}
}

// RegisterRoutes registers the signal routes to the Echo group.
func (h *SignalHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/signals/generate/:symbol", h.GenerateSignal)
	g.GET("/signals/active", h.ActiveSignals)
	g.GET("/risk/status", h.RiskStatus)
}

// GenerateSignal evaluates the symbol's latest recommendation. The response
// carries the created signal, which may be in the rejected state with a
// reason when a risk gate fired.
func (h *SignalHandler) GenerateSignal(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))

	signal, err := h.strategy.GenerateSignal(c.Request().Context(), symbol)
	if err != nil {
		if errors.Is(err, dto.ErrNoRecommendation) || errors.Is(err, dto.ErrNoPriceData) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to generate signal", logger.ErrorField(err),
			logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if signal == nil {
		return c.JSON(http.StatusOK, echo.Map{"symbol": symbol, "result": "hold, no signal generated"})
	}
	return c.JSON(http.StatusOK, signal)
}

// ActiveSignals lists every signal currently in the active state.
func (h *SignalHandler) ActiveSignals(c echo.Context) error {
	signals, err := h.strategy.ActiveSignals(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list active signals", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, signals)
}

// RiskStatus reports the strategy engine's current posture.
func (h *SignalHandler) RiskStatus(c echo.Context) error {
	status, err := h.strategy.RiskStatus(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to build risk status", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, status)
}
