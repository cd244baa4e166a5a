// handlers_health.go - Health check endpoint
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is the gateway version reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	UpstreamConnected bool   `json:"upstream_connected"`
	ActiveSessions    int    `json:"active_sessions"`
	Timestamp         string `json:"timestamp"`
}

// HandleHealth handles GET /api/health
//
// Always returns 200; upstream reachability is reported in the body so
// the dashboard can show a degraded banner instead of failing outright.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	upstream := h.rest.Health(ctx) == nil

	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "ok",
		Version:           Version,
		UpstreamConnected: upstream,
		ActiveSessions:    h.sessions.Count(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	})
}
