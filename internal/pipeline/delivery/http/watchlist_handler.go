package http

import (
	"errors"
	"net/http"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/labstack/echo/v4"
)

// WatchlistHandler handles watchlist requests.
type WatchlistHandler struct {
	watchlist service.WatchlistService
	logger    *logger.Logger
}

// NewWatchlistHandler creates a new WatchlistHandler.
func NewWatchlistHandler(watchlist service.WatchlistService, log *logger.Logger) *WatchlistHandler {
	return &WatchlistHandler{watchlist: watchlist, logger: log}
}

// RegisterRoutes registers the watchlist routes to the Echo group.
func (h *WatchlistHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/watchlist", h.Add)
	g.GET("/watchlist", h.List)
	g.GET("/watchlist/:symbol", h.Get)
	g.DELETE("/watchlist/:symbol", h.Remove)
}

// Add watches a symbol. Re-adding an existing symbol returns the stored
// entry unchanged.
func (h *WatchlistHandler) Add(c echo.Context) error {
	var req dto.AddWatchlistRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}
	if req.Symbol == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "symbol is required"})
	}

	item, err := h.watchlist.Add(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("Failed to add watchlist entry", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, item)
}

// List returns the watchlist in priority order.
func (h *WatchlistHandler) List(c echo.Context) error {
	items, err := h.watchlist.List(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list watchlist", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one watched symbol.
func (h *WatchlistHandler) Get(c echo.Context) error {
	item, err := h.watchlist.Get(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		if errors.Is(err, dto.ErrSymbolNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to load watchlist entry", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, item)
}

// Remove stops watching a symbol.
func (h *WatchlistHandler) Remove(c echo.Context) error {
	symbol := c.Param("symbol")

	if err := h.watchlist.Remove(c.Request().Context(), symbol); err != nil {
		if errors.Is(err, dto.ErrSymbolNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to remove watchlist entry", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
