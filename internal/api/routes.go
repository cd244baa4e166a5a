// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/api/health", h.HandleHealth)

	// Auth routes
	authGroup := e.Group("/api/auth")
	authGroup.POST("/login", h.HandleLogin)
	authGroup.POST("/restore", h.HandleRestore)
	authGroup.POST("/logout", h.HandleLogout)
	authGroup.GET("/me", h.HandleMe)

	// Grid data routes
	gridGroup := e.Group("/api/grid")
	gridGroup.GET("/voltage", h.HandleGetVoltage)
	gridGroup.GET("/voltage/msgpack", h.HandleGetVoltageMsgpack)
	gridGroup.GET("/power-quality", h.HandleGetPowerQuality)
	gridGroup.GET("/faults", h.HandleGetFaults)
	gridGroup.GET("/stats", h.HandleGetStats)
	gridGroup.GET("/status", h.HandleGetSensorStatus)
	gridGroup.GET("/live", h.HandleGetLive)

	// Transport mode and instrumentation
	e.GET("/api/mode", h.HandleGetMode)
	e.PUT("/api/mode", h.HandleSetMode)
	e.GET("/api/netlog", h.HandleGetNetlog)

	// Export routes
	exportGroup := e.Group("/api/export")
	exportGroup.GET("/jobs", h.HandleListExportJobs)
	exportGroup.GET("/jobs/:id", h.HandleGetExportJob)
	exportGroup.GET("/files", h.HandleListExports)
	exportGroup.GET("/download", h.HandleExportURL)
	exportGroup.POST("/:kind", h.HandleStartExport)

	// Preferences and demo tooling
	e.GET("/api/prefs/banner", h.HandleGetBanner)
	e.PUT("/api/prefs/banner", h.HandleDismissBanner)
	e.POST("/api/simulate/populate", h.HandleSimulatePopulate)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/ws/live", h.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
