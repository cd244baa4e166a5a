package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/config"
	"github.com/grid-monitor/dashboard/internal/export"
	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/models"
	"github.com/grid-monitor/dashboard/internal/prefs"
	"github.com/grid-monitor/dashboard/internal/session"
	"github.com/grid-monitor/dashboard/internal/testutil"
)

type testEnv struct {
	e        *echo.Echo
	h        *Handler
	upstream *testutil.Upstream
	sessions *session.Manager
}

func newTestEnv(t *testing.T, demoMode bool) *testEnv {
	t.Helper()

	u := testutil.NewUpstream()
	t.Cleanup(u.Close)
	u.Seed()

	logger := zap.NewNop()
	cfg := config.DefaultConfig()
	cfg.Upstream.DemoMode = demoMode

	rest := fetch.NewRESTClient(u.BaseURL(), "/sensors/stats", 5*time.Second, logger)
	gql := fetch.NewGraphQLClient(u.GraphQLURL(), 5*time.Second, logger)

	factory := func(sink fetch.RequestSink) *fetch.Fetcher {
		return fetch.NewFetcher(rest, gql, sink, logger)
	}
	sessions := session.NewManager(prefs.NewMemStore(), session.DefaultWindows(), factory, nil, logger)
	t.Cleanup(sessions.CloseAll)

	exports := export.NewManager(rest, time.Second, logger)
	hub := NewLiveHub(logger)
	store := prefs.NewMemStore()

	h := NewHandler(sessions, exports, rest, store, config.DefaultWidgetConfig(), cfg, hub, logger)
	return &testEnv{e: echo.New(), h: h, upstream: u, sessions: sessions}
}

// login performs the login handler call and returns the session ID.
func (env *testEnv) login(t *testing.T) string {
	t.Helper()
	body := `{"username":"` + testutil.Username + `","password":"` + testutil.Password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, env.h.HandleLogin(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

// get runs a GET handler with the session header set.
func (env *testEnv) get(t *testing.T, path, sessionID string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, handler(c))
	return rec
}

func TestLoginAndFetchVoltage(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	rec := env.get(t, "/api/grid/voltage", sessionID, env.h.HandleGetVoltage)
	require.Equal(t, http.StatusOK, rec.Code)

	var readings []models.VoltageReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	assert.Len(t, readings, 30)
	assert.Equal(t, "SENS-000", readings[0].SensorID)
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t, false)

	body := `{"username":"admin","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, env.h.HandleLogin(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDemoLoginSkipsUpstream(t *testing.T) {
	env := newTestEnv(t, true)

	body := `{"username":"demo","password":"demo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, env.h.HandleLogin(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "demo-token", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
}

func TestMissingSessionRejected(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api/grid/voltage", "", env.h.HandleGetVoltage)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestVoltageMsgpackVariant(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	rec := env.get(t, "/api/grid/voltage/msgpack?limit=5", sessionID, env.h.HandleGetVoltageMsgpack)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get(echo.HeaderContentType))

	var readings []models.VoltageReading
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &readings))
	assert.Len(t, readings, 5)
}

func TestModeSwitch(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	rec := env.get(t, "/api/mode", sessionID, env.h.HandleGetMode)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"rest"`)

	req := httptest.NewRequest(http.MethodPut, "/api/mode", strings.NewReader(`{"use_graphql":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(SessionHeader, sessionID)
	putRec := httptest.NewRecorder()
	c := env.e.NewContext(req, putRec)
	require.NoError(t, env.h.HandleSetMode(c))
	require.Equal(t, http.StatusOK, putRec.Code)
	assert.Contains(t, putRec.Body.String(), `"mode":"graphql"`)

	// Data now flows over GraphQL.
	before := env.upstream.GraphQLCalls
	rec = env.get(t, "/api/grid/faults", sessionID, env.h.HandleGetFaults)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, env.upstream.GraphQLCalls, before)
}

func TestNetlogEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	env.get(t, "/api/grid/voltage", sessionID, env.h.HandleGetVoltage)
	env.get(t, "/api/grid/stats", sessionID, env.h.HandleGetStats)

	rec := env.get(t, "/api/netlog", sessionID, env.h.HandleGetNetlog)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []models.RequestRecord `json:"entries"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "/sensors/voltage", resp.Entries[0].Endpoint)
}

func TestBannerPreference(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api/prefs/banner", "", env.h.HandleGetBanner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dismissed":false`)

	req := httptest.NewRequest(http.MethodPut, "/api/prefs/banner", strings.NewReader(`{"dismissed":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	putRec := httptest.NewRecorder()
	c := env.e.NewContext(req, putRec)
	require.NoError(t, env.h.HandleDismissBanner(c))

	rec = env.get(t, "/api/prefs/banner", "", env.h.HandleGetBanner)
	assert.Contains(t, rec.Body.String(), `"dismissed":true`)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api/health", "", env.h.HandleHealth)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.UpstreamConnected)
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	logout := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.Header.Set(SessionHeader, sessionID)
		rec := httptest.NewRecorder()
		c := env.e.NewContext(req, rec)
		require.NoError(t, env.h.HandleLogout(c))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, logout())
	assert.Equal(t, http.StatusOK, logout())

	// The session is gone; data endpoints reject it.
	rec := env.get(t, "/api/grid/voltage", sessionID, env.h.HandleGetVoltage)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenSurfacesAs401(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	env.upstream.ExpireToken = true
	rec := env.get(t, "/api/grid/voltage", sessionID, env.h.HandleGetVoltage)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
}

func TestExportFlow(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/export/voltage?hours=48", nil)
	req.Header.Set(SessionHeader, sessionID)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("kind")
	c.SetParamValues("voltage")
	require.NoError(t, env.h.HandleStartExport(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job export.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, export.KindVoltage, job.Kind)
	assert.Equal(t, 48, job.Hours)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/export/jobs/"+job.ID, nil)
		req.Header.Set(SessionHeader, sessionID)
		rec := httptest.NewRecorder()
		c := env.e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(job.ID)
		if err := env.h.HandleGetExportJob(c); err != nil {
			return false
		}
		var polled export.Job
		if err := json.Unmarshal(rec.Body.Bytes(), &polled); err != nil {
			return false
		}
		return polled.Status == export.StatusComplete
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartExportInvalidKind(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/export/telemetry", nil)
	req.Header.Set(SessionHeader, sessionID)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("kind")
	c.SetParamValues("telemetry")
	require.NoError(t, env.h.HandleStartExport(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	// Live channel is disabled in this env; the snapshot is empty but
	// well-formed.
	rec := env.get(t, "/api/grid/live", sessionID, env.h.HandleGetLive)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.LiveSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Empty(t, snap.Voltage)
	assert.Empty(t, snap.Faults)
}

func TestSimulatePopulate(t *testing.T) {
	env := newTestEnv(t, false)
	sessionID := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulate/populate?hours=12", nil)
	req.Header.Set(SessionHeader, sessionID)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, env.h.HandleSimulatePopulate(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "populated")
}

func TestFromFetchErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fetch.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{fetch.ErrNotInitialized, http.StatusInternalServerError, "NOT_INITIALIZED"},
		{fetch.ErrInvalidData, http.StatusBadGateway, "INVALID_UPSTREAM_DATA"},
		{&fetch.HTTPError{Status: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, "UPSTREAM_ERROR"},
		{context.DeadlineExceeded, http.StatusBadGateway, "UPSTREAM_UNREACHABLE"},
	}
	for _, tc := range cases {
		apiErr := FromFetchError(tc.err)
		assert.Equal(t, tc.status, apiErr.Status, "status for %v", tc.err)
		assert.Equal(t, tc.code, apiErr.Code, "code for %v", tc.err)
	}
}
