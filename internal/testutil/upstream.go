// upstream.go - In-process stand-in for the monitoring backend
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grid-monitor/dashboard/internal/models"
)

// Test credentials the stub backend accepts.
const (
	Username = "admin"
	Password = "secret"
	Token    = "test-token"
)

// Upstream emulates the monitoring backend over one httptest server:
// the REST API, the GraphQL endpoint, and the SSE stream. Handlers mirror
// the real backend's wire shapes, including GraphQL's camelCase field
// names, so normalization is exercised for real.
type Upstream struct {
	Server *httptest.Server

	mu       sync.Mutex
	Voltage  []models.VoltageReading
	Quality  []models.PowerQualityMetric
	Faults   []models.FaultEvent
	Stats    models.FleetStats
	Statuses []models.SensorStatus

	// ExpireToken makes every authenticated endpoint reject the token,
	// simulating upstream-side expiry.
	ExpireToken bool

	RESTCalls    int
	GraphQLCalls int

	subscribers map[chan string]bool
}

// NewUpstream starts the stub backend. Callers own Close.
func NewUpstream() *Upstream {
	u := &Upstream{
		subscribers: make(map[chan string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", u.handleLogin)
	mux.HandleFunc("/api/auth/me", u.restHandler(u.handleMe))
	mux.HandleFunc("/api/sensors/voltage", u.restHandler(u.handleVoltage))
	mux.HandleFunc("/api/sensors/power-quality", u.restHandler(u.handleQuality))
	mux.HandleFunc("/api/sensors/stats", u.restHandler(u.handleStats))
	mux.HandleFunc("/api/sensors/status", u.restHandler(u.handleStatus))
	mux.HandleFunc("/api/faults/recent", u.restHandler(u.handleRecentFaults))
	mux.HandleFunc("/api/faults", u.restHandler(u.handleCreateFault))
	mux.HandleFunc("/api/export/voltage", u.restHandler(u.handleExport))
	mux.HandleFunc("/api/export/faults", u.restHandler(u.handleExport))
	mux.HandleFunc("/api/export/list", u.restHandler(u.handleExportList))
	mux.HandleFunc("/api/export/", u.restHandler(u.handleExportURL))
	mux.HandleFunc("/api/simulate/populate", u.restHandler(u.handlePopulate))
	mux.HandleFunc("/api/graphql", u.handleGraphQL)
	mux.HandleFunc("/api/stream", u.handleStream)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	u.Server = httptest.NewServer(mux)
	return u
}

// Close shuts the stub down and disconnects stream subscribers.
func (u *Upstream) Close() {
	u.Server.Close()
	u.mu.Lock()
	for ch := range u.subscribers {
		close(ch)
	}
	u.subscribers = make(map[chan string]bool)
	u.mu.Unlock()
}

// BaseURL returns the REST root, including the /api prefix.
func (u *Upstream) BaseURL() string { return u.Server.URL + "/api" }

// GraphQLURL returns the GraphQL endpoint.
func (u *Upstream) GraphQLURL() string { return u.Server.URL + "/api/graphql" }

// StreamURL returns the SSE endpoint.
func (u *Upstream) StreamURL() string { return u.Server.URL + "/api/stream" }

// Push broadcasts one live envelope to every connected stream client.
func (u *Upstream) Push(env models.LiveEnvelope) {
	data, _ := json.Marshal(env)
	u.PushRaw(string(data))
}

// PushRaw broadcasts a raw SSE data payload, valid JSON or not.
func (u *Upstream) PushRaw(payload string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for ch := range u.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Seed installs a deterministic fixture dataset.
func (u *Upstream) Seed() {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u.mu.Lock()
	defer u.mu.Unlock()

	u.Voltage = nil
	for i := 0; i < 40; i++ {
		u.Voltage = append(u.Voltage, models.VoltageReading{
			ID:        int64(i + 1),
			SensorID:  fmt.Sprintf("SENS-%03d", i%4),
			Location:  "Substation A",
			VoltageL1: 229.5 + float64(i%3),
			VoltageL2: 230.1,
			VoltageL3: 230.8,
			Frequency: 50.01,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	u.Quality = nil
	for i := 0; i < 25; i++ {
		u.Quality = append(u.Quality, models.PowerQualityMetric{
			ID:               int64(i + 1),
			SensorID:         fmt.Sprintf("SENS-%03d", i%4),
			Location:         "Substation A",
			THDVoltage:       2.1,
			THDCurrent:       4.3,
			PowerFactor:      0.97,
			VoltageImbalance: 0.8,
			FlickerSeverity:  0.3,
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
		})
	}

	u.Faults = []models.FaultEvent{
		{ID: 1, EventID: "EVT-001", SensorID: "SENS-001", Severity: "critical", FaultType: "voltage_sag", Location: "Feeder 2", Timestamp: base, DurationMs: 420},
		{ID: 2, EventID: "EVT-002", SensorID: "SENS-002", Severity: "warning", FaultType: "harmonic_distortion", Location: "Feeder 3", Timestamp: base.Add(time.Hour), DurationMs: 1200},
	}

	u.Stats = models.FleetStats{
		TotalSensors:      12,
		ActiveSensors:     11,
		OfflineSensors:    1,
		TotalFaults24h:    2,
		QualityViolations: 5,
		AvgVoltage:        230.2,
		MinVoltage:        224.9,
		MaxVoltage:        234.1,
		AvgPowerFactor:    0.96,
	}

	u.Statuses = []models.SensorStatus{
		{SensorID: "SENS-000", SensorType: "voltage", Location: "Substation A", LastReadingTimestamp: base, IsOperational: true, SecondsSinceUpdate: 12, LatestValue: 230.4},
		{SensorID: "SENS-001", SensorType: "voltage", Location: "Substation A", LastReadingTimestamp: base.Add(-2 * time.Hour), IsOperational: false, SecondsSinceUpdate: 7200, LatestValue: 0},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// restHandler wraps an endpoint with the backend's bearer auth check.
func (u *Upstream) restHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.RESTCalls++
		expired := u.ExpireToken
		u.mu.Unlock()

		auth := r.Header.Get("Authorization")
		if expired || auth != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		next(w, r)
	}
}

func (u *Upstream) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad form"})
		return
	}
	if r.FormValue("username") != Username || r.FormValue("password") != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": Token,
		"token_type":   "bearer",
	})
}

func (u *Upstream) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"username": Username,
		"role":     "operator",
	})
}

func (u *Upstream) handleVoltage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var reading models.VoltageReading
		json.NewDecoder(r.Body).Decode(&reading)
		u.mu.Lock()
		reading.ID = int64(len(u.Voltage) + 1)
		u.Voltage = append(u.Voltage, reading)
		u.mu.Unlock()
		writeJSON(w, http.StatusOK, reading)
		return
	}

	limit := queryLimit(r, 30)
	u.mu.Lock()
	rows := filterVoltage(u.Voltage, r.URL.Query().Get("sensor_id"), limit)
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (u *Upstream) handleQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var metric models.PowerQualityMetric
		json.NewDecoder(r.Body).Decode(&metric)
		u.mu.Lock()
		metric.ID = int64(len(u.Quality) + 1)
		u.Quality = append(u.Quality, metric)
		u.mu.Unlock()
		writeJSON(w, http.StatusOK, metric)
		return
	}

	limit := queryLimit(r, 20)
	u.mu.Lock()
	rows := filterQuality(u.Quality, r.URL.Query().Get("sensor_id"), limit)
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (u *Upstream) handleRecentFaults(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	rows := append([]models.FaultEvent(nil), u.Faults...)
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (u *Upstream) handleCreateFault(w http.ResponseWriter, r *http.Request) {
	var fault models.FaultEvent
	json.NewDecoder(r.Body).Decode(&fault)
	u.mu.Lock()
	fault.ID = int64(len(u.Faults) + 1)
	u.Faults = append(u.Faults, fault)
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, fault)
}

func (u *Upstream) handleStats(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	stats := u.Stats
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (u *Upstream) handleStatus(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	rows := append([]models.SensorStatus(nil), u.Statuses...)
	u.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (u *Upstream) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := "voltage"
	if strings.HasSuffix(r.URL.Path, "/faults") {
		kind = "faults"
	}
	writeJSON(w, http.StatusOK, models.ExportResult{
		Status:  "success",
		Bucket:  "grid-exports",
		Key:     fmt.Sprintf("exports/%s-latest.csv", kind),
		Records: 42,
		Message: "export complete",
	})
}

func (u *Upstream) handleExportList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ExportListing{
		Status: "success",
		Files: []models.ExportFile{
			{Key: "exports/voltage-latest.csv", Size: 1337, LastModified: "2025-06-01T12:00:00Z"},
		},
	})
}

func (u *Upstream) handleExportURL(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/export/")
	writeJSON(w, http.StatusOK, models.PresignedURL{
		Status:    "success",
		Key:       key,
		URL:       u.Server.URL + "/download/" + key,
		ExpiresIn: 3600,
	})
}

func (u *Upstream) handlePopulate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "populated",
		"hours":  r.URL.Query().Get("hours"),
	})
}

// graphqlRequest is the POST body the GraphQL client sends.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (u *Upstream) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.GraphQLCalls++
	expired := u.ExpireToken
	u.mu.Unlock()

	if expired || r.Header.Get("Authorization") != "Bearer "+Token {
		// GraphQL auth failures come back as 200 with an errors array,
		// the way strawberry reports them.
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]string{{"message": "Not authenticated"}},
		})
		return
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}

	limit := 100
	if v, ok := req.Variables["limit"].(float64); ok {
		limit = int(v)
	}
	sensorID, _ := req.Variables["sensorId"].(string)

	u.mu.Lock()
	defer u.mu.Unlock()

	switch {
	case strings.Contains(req.Query, "voltageReadings"):
		rows := filterVoltage(u.Voltage, sensorID, limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"voltageReadings": gqlVoltageRows(rows)},
		})
	case strings.Contains(req.Query, "powerQuality") && !strings.Contains(req.Query, "ingestPowerQuality"):
		rows := filterQuality(u.Quality, sensorID, limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"powerQuality": gqlQualityRows(rows)},
		})
	case strings.Contains(req.Query, "faultEvents"):
		severity, _ := req.Variables["severity"].(string)
		rows := make([]map[string]any, 0)
		for _, f := range u.Faults {
			if severity != "" && f.Severity != severity {
				continue
			}
			if len(rows) >= limit {
				break
			}
			rows = append(rows, gqlFaultRow(f))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"faultEvents": rows},
		})
	case strings.Contains(req.Query, "sensorStats"):
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"sensorStats": map[string]any{
				"totalSensors":      u.Stats.TotalSensors,
				"activeSensors":     u.Stats.ActiveSensors,
				"offlineSensors":    u.Stats.OfflineSensors,
				"faultCount24h":     u.Stats.TotalFaults24h,
				"violationCount24h": u.Stats.QualityViolations,
				"avgVoltage":        u.Stats.AvgVoltage,
				"avgPowerFactor":    u.Stats.AvgPowerFactor,
				"minVoltage":        u.Stats.MinVoltage,
				"maxVoltage":        u.Stats.MaxVoltage,
			}},
		})
	case strings.Contains(req.Query, "ingestVoltageReading"):
		writeJSON(w, http.StatusOK, mutationOK("ingestVoltageReading"))
	case strings.Contains(req.Query, "ingestPowerQuality"):
		writeJSON(w, http.StatusOK, mutationOK("ingestPowerQuality"))
	case strings.Contains(req.Query, "createFaultEvent"):
		writeJSON(w, http.StatusOK, mutationOK("createFaultEvent"))
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]string{{"message": "unknown operation"}},
		})
	}
}

func mutationOK(field string) map[string]any {
	return map[string]any{
		"data": map[string]any{field: map[string]any{
			"success": true,
			"message": "ok",
			"id":      1,
		}},
	}
}

func (u *Upstream) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 16)
	u.mu.Lock()
	u.subscribers[ch] = true
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		delete(u.subscribers, ch)
		u.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func filterVoltage(rows []models.VoltageReading, sensorID string, limit int) []models.VoltageReading {
	out := make([]models.VoltageReading, 0, limit)
	for _, row := range rows {
		if sensorID != "" && row.SensorID != sensorID {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, row)
	}
	return out
}

func filterQuality(rows []models.PowerQualityMetric, sensorID string, limit int) []models.PowerQualityMetric {
	out := make([]models.PowerQualityMetric, 0, limit)
	for _, row := range rows {
		if sensorID != "" && row.SensorID != sensorID {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, row)
	}
	return out
}

func gqlVoltageRows(rows []models.VoltageReading) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"id":        row.ID,
			"sensorId":  row.SensorID,
			"location":  row.Location,
			"voltageL1": row.VoltageL1,
			"voltageL2": row.VoltageL2,
			"voltageL3": row.VoltageL3,
			"frequency": row.Frequency,
			"timestamp": row.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

func gqlQualityRows(rows []models.PowerQualityMetric) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"id":               row.ID,
			"sensorId":         row.SensorID,
			"location":         row.Location,
			"thdVoltage":       row.THDVoltage,
			"thdCurrent":       row.THDCurrent,
			"powerFactor":      row.PowerFactor,
			"voltageImbalance": row.VoltageImbalance,
			"flickerSeverity":  row.FlickerSeverity,
			"timestamp":        row.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

func gqlFaultRow(f models.FaultEvent) map[string]any {
	row := map[string]any{
		"id":         f.ID,
		"eventId":    f.EventID,
		"severity":   f.Severity,
		"eventType":  f.FaultType,
		"location":   f.Location,
		"timestamp":  f.Timestamp.Format(time.RFC3339),
		"durationMs": f.DurationMs,
		"resolved":   f.Resolved,
	}
	if f.ResolvedAt != nil {
		row["resolvedAt"] = f.ResolvedAt.Format(time.RFC3339)
	} else {
		row["resolvedAt"] = nil
	}
	return row
}
