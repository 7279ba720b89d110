package http

import (
	"net/http"
	"strconv"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PortfolioHandler handles position, transaction, and performance requests.
type PortfolioHandler struct {
	ledger service.LedgerService
	logger *logger.Logger
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(ledger service.LedgerService, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{ledger: ledger, logger: log}
}

// RegisterRoutes registers the portfolio routes to the Echo group.
func (h *PortfolioHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/positions/active", h.ActivePositions)
	g.POST("/positions/update-values", h.UpdateValues)
	g.GET("/performance/holdings", h.HoldingsPerformance)
	g.GET("/transactions", h.Transactions)
	g.GET("/portfolio/summary", h.Summary)
}

// ActivePositions lists every open holding.
func (h *PortfolioHandler) ActivePositions(c echo.Context) error {
	positions, err := h.ledger.ActivePositions(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list active positions", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, positions)
}

// UpdateValues marks every active position to the latest close.
func (h *PortfolioHandler) UpdateValues(c echo.Context) error {
	updated, err := h.ledger.RefreshValues(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to refresh position values", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": updated})
}

// HoldingsPerformance returns the per-holding performance breakdown.
func (h *PortfolioHandler) HoldingsPerformance(c echo.Context) error {
	holdings, err := h.ledger.HoldingsPerformance(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to build holdings performance", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, holdings)
}

// Transactions lists the newest fills. Accepts a limit query parameter.
func (h *PortfolioHandler) Transactions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
		}
		limit = parsed
	}

	txs, err := h.ledger.Transactions(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list transactions", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, txs)
}

// Summary returns the aggregated portfolio summary.
func (h *PortfolioHandler) Summary(c echo.Context) error {
	summary, err := h.ledger.Summary(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to build portfolio summary", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}
