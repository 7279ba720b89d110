package http

import (
	"net/http"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"

	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	health service.HealthService
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(health service.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// RegisterRoutes registers the health routes to the Echo group.
func (h *HealthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/health/services", h.Services)
}

// Health reports this service's own liveness.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.Health())
}

// Services reports aggregated dependency health.
func (h *HealthHandler) Services(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.CheckServices(c.Request().Context()))
}
