// handlers.go - Grid data and preference endpoints
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/config"
	"github.com/grid-monitor/dashboard/internal/export"
	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/prefs"
	"github.com/grid-monitor/dashboard/internal/session"
)

// SessionHeader carries the gateway session ID on every authenticated request.
const SessionHeader = "X-Session-Id"

// Handler holds the dependencies shared by all API endpoints.
type Handler struct {
	sessions *session.Manager
	exports  *export.Manager
	rest     *fetch.RESTClient
	prefs    prefs.Store
	widgets  *config.WidgetConfig
	cfg      *config.AppConfig
	hub      *LiveHub
	logger   *zap.Logger
}

// NewHandler creates the API handler with its dependencies.
func NewHandler(
	sessions *session.Manager,
	exports *export.Manager,
	rest *fetch.RESTClient,
	store prefs.Store,
	widgets *config.WidgetConfig,
	cfg *config.AppConfig,
	hub *LiveHub,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		exports:  exports,
		rest:     rest,
		prefs:    store,
		widgets:  widgets,
		cfg:      cfg,
		hub:      hub,
		logger:   logger,
	}
}

// session resolves the caller's session from the X-Session-Id header.
func (h *Handler) session(c echo.Context) (*session.State, *APIError) {
	id := c.Request().Header.Get(SessionHeader)
	if id == "" {
		id = c.QueryParam("session")
	}
	if id == "" {
		return nil, NewUnauthorizedError("missing session ID")
	}
	st, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewUnauthorizedError("session not found or expired")
	}
	return st, nil
}

// queryInt parses an integer query parameter, falling back to a default.
func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// HandleGetVoltage handles GET /api/grid/voltage
func (h *Handler) HandleGetVoltage(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	limit := queryInt(c, "limit", h.widgets.Voltage.DefaultLimit)
	sensorID := c.QueryParam("sensor_id")

	readings, err := st.Fetcher.FetchVoltage(c.Request().Context(), limit, sensorID)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, readings)
}

// HandleGetVoltageMsgpack handles GET /api/grid/voltage/msgpack
//
// Same payload as the JSON endpoint but MessagePack-encoded; the chart
// widget polls this variant to cut payload size on high-frequency refresh.
func (h *Handler) HandleGetVoltageMsgpack(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	limit := queryInt(c, "limit", h.widgets.Voltage.DefaultLimit)
	sensorID := c.QueryParam("sensor_id")

	readings, err := st.Fetcher.FetchVoltage(c.Request().Context(), limit, sensorID)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}

	data, err := msgpack.Marshal(readings)
	if err != nil {
		return RespondWithError(c, NewInternalError("failed to encode readings", err))
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleGetPowerQuality handles GET /api/grid/power-quality
func (h *Handler) HandleGetPowerQuality(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	limit := queryInt(c, "limit", h.widgets.PowerQuality.DefaultLimit)
	sensorID := c.QueryParam("sensor_id")

	metrics, err := st.Fetcher.FetchPowerQuality(c.Request().Context(), limit, sensorID)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, metrics)
}

// HandleGetFaults handles GET /api/grid/faults
func (h *Handler) HandleGetFaults(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	limit := queryInt(c, "limit", h.widgets.Faults.DefaultLimit)
	severity := c.QueryParam("severity")

	faults, err := st.Fetcher.FetchFaults(c.Request().Context(), limit, severity)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, faults)
}

// HandleGetStats handles GET /api/grid/stats
func (h *Handler) HandleGetStats(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	stats, err := st.Fetcher.FetchStats(c.Request().Context())
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleGetSensorStatus handles GET /api/grid/status
func (h *Handler) HandleGetSensorStatus(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	statuses, err := st.Fetcher.FetchSensorStatus(c.Request().Context())
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, statuses)
}

// HandleGetLive handles GET /api/grid/live
//
// Returns the session's accumulated live window so a reconnecting
// dashboard can backfill its charts without waiting for new pushes.
func (h *Handler) HandleGetLive(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}
	return c.JSON(http.StatusOK, st.Live())
}

// HandleGetNetlog handles GET /api/netlog
func (h *Handler) HandleGetNetlog(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": st.NetLog.Records(),
		"count":   st.NetLog.Len(),
	})
}

// ModeResponse reports which transport the session's fetcher is using.
type ModeResponse struct {
	Mode       string `json:"mode"`
	UseGraphQL bool   `json:"use_graphql"`
}

// HandleGetMode handles GET /api/mode
func (h *Handler) HandleGetMode(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}
	mode := st.Fetcher.Mode()
	return c.JSON(http.StatusOK, ModeResponse{
		Mode:       string(mode),
		UseGraphQL: mode == fetch.ModeGraphQL,
	})
}

// HandleSetMode handles PUT /api/mode
func (h *Handler) HandleSetMode(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	var req struct {
		UseGraphQL bool `json:"use_graphql"`
	}
	if err := c.Bind(&req); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid request body", err))
	}

	if !h.sessions.SetMode(st.ID, req.UseGraphQL) {
		return RespondWithError(c, NewUnauthorizedError("session not found or expired"))
	}

	mode := st.Fetcher.Mode()
	return c.JSON(http.StatusOK, ModeResponse{
		Mode:       string(mode),
		UseGraphQL: mode == fetch.ModeGraphQL,
	})
}

// HandleGetBanner handles GET /api/prefs/banner
func (h *Handler) HandleGetBanner(c echo.Context) error {
	val, _ := h.prefs.Get(prefs.KeyBannerDismissed)
	return c.JSON(http.StatusOK, map[string]bool{"dismissed": val == "true"})
}

// HandleDismissBanner handles PUT /api/prefs/banner
func (h *Handler) HandleDismissBanner(c echo.Context) error {
	var req struct {
		Dismissed bool `json:"dismissed"`
	}
	if err := c.Bind(&req); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid request body", err))
	}

	value := "false"
	if req.Dismissed {
		value = "true"
	}
	if err := h.prefs.Set(prefs.KeyBannerDismissed, value); err != nil {
		return RespondWithError(c, NewInternalError("failed to save preference", err))
	}
	return c.JSON(http.StatusOK, map[string]bool{"dismissed": req.Dismissed})
}

// HandleSimulatePopulate handles POST /api/simulate/populate
func (h *Handler) HandleSimulatePopulate(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	hours := queryInt(c, "hours", 24)
	result, err := h.rest.Populate(c.Request().Context(), st.Token(), hours)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, result)
}
