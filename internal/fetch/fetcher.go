package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/models"
)

// Mode selects which transport serves a logical fetch.
type Mode string

const (
	ModeREST    Mode = "rest"
	ModeGraphQL Mode = "graphql"
)

// Default result limits per resource, matching the dashboard's widget
// window sizes.
const (
	DefaultVoltageLimit      = 30
	DefaultPowerQualityLimit = 20
	DefaultFaultLimit        = 10
)

// graphqlWindowHours is the server-side time filter the GraphQL path
// always requests. It is independent of limit: limit truncates results,
// hours bounds the window. The knobs are deliberately not unified.
const graphqlWindowHours = 24

// MutationResult is the GraphQL schema's generic mutation response.
type MutationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      *int64 `json:"id"`
}

// Fetcher is the orchestrator behind every dashboard data operation. It
// holds the current token and transport mode, dispatches each logical
// fetch to the selected transport, normalizes GraphQL results onto the
// REST shapes, and emits one instrumentation record per call when a sink
// is attached.
//
// Token and mode are mutated only through SetToken/SetMode; fetches may
// run concurrently and complete in any order.
type Fetcher struct {
	rest   *RESTClient
	gql    *GraphQLClient
	sink   RequestSink // optional; nil disables instrumentation only
	logger *zap.Logger

	mu    sync.RWMutex
	token string
	mode  Mode

	seq atomic.Int64
}

// NewFetcher creates a fetcher in REST mode with no token. sink may be nil.
func NewFetcher(rest *RESTClient, gql *GraphQLClient, sink RequestSink, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		rest:   rest,
		gql:    gql,
		sink:   sink,
		logger: logger,
		mode:   ModeREST,
	}
}

// SetToken updates the stored bearer token. When GraphQL mode is active
// the GraphQL client is re-armed immediately so the next request carries
// the fresh credential.
func (f *Fetcher) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	rearm := f.mode == ModeGraphQL
	f.mu.Unlock()

	if rearm {
		f.gql.SetToken(token)
	}
}

// SetMode switches the active transport. Switching into GraphQL re-arms
// the GraphQL client with the current token, guarding against a stale or
// never-set credential.
func (f *Fetcher) SetMode(useGraphQL bool) {
	f.mu.Lock()
	if useGraphQL {
		f.mode = ModeGraphQL
	} else {
		f.mode = ModeREST
	}
	token := f.token
	f.mu.Unlock()

	if useGraphQL {
		f.gql.SetToken(token)
	}
}

// Mode returns the active transport mode.
func (f *Fetcher) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// snapshot reads token and mode together under one lock.
func (f *Fetcher) snapshot() (string, Mode) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token, f.mode
}

// record emits one instrumentation record for a finished transport call.
// Every call path — success or failure — goes through here exactly once.
func (f *Fetcher) record(endpoint string, kind models.RequestKind, reqData any, start time.Time, summary string, err error) {
	id := f.seq.Add(1)
	if f.sink == nil {
		return
	}

	rec := models.RequestRecord{
		ID:          id,
		Endpoint:    endpoint,
		Kind:        kind,
		Outcome:     models.OutcomeSuccess,
		RequestData: reqData,
		Response:    summary,
		DurationMs:  time.Since(start).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		rec.Outcome = models.OutcomeError
		rec.Error = err.Error()
		rec.Response = ""
	}
	f.sink.Record(rec)
}

// FetchVoltage returns recent voltage readings. limit <= 0 means
// DefaultVoltageLimit; sensorID filters when non-empty.
func (f *Fetcher) FetchVoltage(ctx context.Context, limit int, sensorID string) ([]models.VoltageReading, error) {
	if limit <= 0 {
		limit = DefaultVoltageLimit
	}
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"limit": limit, "hours": graphqlWindowHours}
		if sensorID != "" {
			vars["sensorId"] = sensorID
		}
		var payload struct {
			VoltageReadings json.RawMessage `json:"voltageReadings"`
		}
		err := f.gql.Request(ctx, "VoltageReadings", queryVoltageReadings, vars, &payload)
		var readings []models.VoltageReading
		if err == nil {
			readings, err = normalizeVoltage(payload.VoltageReadings)
		}
		if err == nil && len(readings) > limit {
			readings = readings[:limit]
		}
		f.record("VoltageReadings", models.RequestKindGraphQL, vars, start, countSummary(len(readings)), err)
		if err != nil {
			f.logger.Error("voltage fetch failed", zap.String("mode", string(mode)), zap.Error(err))
			return nil, err
		}
		return readings, nil
	}

	readings, err := f.rest.Voltage(ctx, token, limit, sensorID)
	f.record("/sensors/voltage", models.RequestKindGet, map[string]any{"limit": limit, "sensor_id": sensorID}, start, countSummary(len(readings)), err)
	if err != nil {
		f.logger.Error("voltage fetch failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return readings, nil
}

// FetchPowerQuality returns recent power-quality metrics.
func (f *Fetcher) FetchPowerQuality(ctx context.Context, limit int, sensorID string) ([]models.PowerQualityMetric, error) {
	if limit <= 0 {
		limit = DefaultPowerQualityLimit
	}
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"limit": limit, "hours": graphqlWindowHours}
		if sensorID != "" {
			vars["sensorId"] = sensorID
		}
		var payload struct {
			PowerQuality json.RawMessage `json:"powerQuality"`
		}
		err := f.gql.Request(ctx, "PowerQuality", queryPowerQuality, vars, &payload)
		var metrics []models.PowerQualityMetric
		if err == nil {
			metrics, err = normalizePowerQuality(payload.PowerQuality)
		}
		if err == nil && len(metrics) > limit {
			metrics = metrics[:limit]
		}
		f.record("PowerQuality", models.RequestKindGraphQL, vars, start, countSummary(len(metrics)), err)
		if err != nil {
			f.logger.Error("power quality fetch failed", zap.String("mode", string(mode)), zap.Error(err))
			return nil, err
		}
		return metrics, nil
	}

	metrics, err := f.rest.PowerQuality(ctx, token, limit, sensorID)
	f.record("/sensors/power-quality", models.RequestKindGet, map[string]any{"limit": limit, "sensor_id": sensorID}, start, countSummary(len(metrics)), err)
	if err != nil {
		f.logger.Error("power quality fetch failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return metrics, nil
}

// FetchFaults returns recent fault events. On the REST path the backend
// exposes only a fixed recent-faults endpoint, so limit and severity are
// ignored there; the GraphQL path honors both. Known asymmetry, preserved
// as observed.
func (f *Fetcher) FetchFaults(ctx context.Context, limit int, severity string) ([]models.FaultEvent, error) {
	if limit <= 0 {
		limit = DefaultFaultLimit
	}
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"limit": limit, "hours": graphqlWindowHours}
		if severity != "" {
			vars["severity"] = severity
		}
		var payload struct {
			FaultEvents json.RawMessage `json:"faultEvents"`
		}
		err := f.gql.Request(ctx, "FaultEvents", queryFaultEvents, vars, &payload)
		var faults []models.FaultEvent
		if err == nil {
			faults, err = normalizeFaults(payload.FaultEvents)
		}
		f.record("FaultEvents", models.RequestKindGraphQL, vars, start, countSummary(len(faults)), err)
		if err != nil {
			f.logger.Error("fault fetch failed", zap.String("mode", string(mode)), zap.Error(err))
			return nil, err
		}
		return faults, nil
	}

	faults, err := f.rest.RecentFaults(ctx, token)
	f.record("/faults/recent", models.RequestKindGet, nil, start, countSummary(len(faults)), err)
	if err != nil {
		f.logger.Error("fault fetch failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return faults, nil
}

// FetchStats returns the fleet-wide statistics record. Optional fields a
// transport does not provide are left at their zero value; only a missing
// record is an error.
func (f *Fetcher) FetchStats(ctx context.Context) (*models.FleetStats, error) {
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		var payload struct {
			SensorStats *gqlSensorStats `json:"sensorStats"`
		}
		err := f.gql.Request(ctx, "SensorStats", querySensorStats, nil, &payload)
		var stats *models.FleetStats
		if err == nil {
			stats, err = normalizeStats(payload.SensorStats)
		}
		f.record("SensorStats", models.RequestKindGraphQL, nil, start, "stats", err)
		if err != nil {
			f.logger.Error("stats fetch failed", zap.String("mode", string(mode)), zap.Error(err))
			return nil, err
		}
		return stats, nil
	}

	stats, err := f.rest.Stats(ctx, token)
	f.record(f.rest.statsPath, models.RequestKindGet, nil, start, "stats", err)
	if err != nil {
		f.logger.Error("stats fetch failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return stats, nil
}

// FetchSensorStatus returns per-sensor health snapshots. The resource has
// no GraphQL equivalent, so this always goes over REST regardless of the
// active mode.
func (f *Fetcher) FetchSensorStatus(ctx context.Context) ([]models.SensorStatus, error) {
	token, _ := f.snapshot()
	start := time.Now()

	statuses, err := f.rest.SensorStatus(ctx, token)
	f.record("/sensors/status", models.RequestKindGet, nil, start, countSummary(len(statuses)), err)
	if err != nil {
		f.logger.Error("sensor status fetch failed", zap.Error(err))
		return nil, err
	}
	return statuses, nil
}

// IngestVoltage writes one voltage reading through the active transport.
func (f *Fetcher) IngestVoltage(ctx context.Context, reading models.VoltageReading) error {
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"reading": map[string]any{
			"sensorId":  reading.SensorID,
			"location":  reading.Location,
			"voltageL1": reading.VoltageL1,
			"voltageL2": reading.VoltageL2,
			"voltageL3": reading.VoltageL3,
			"frequency": reading.Frequency,
			"timestamp": reading.Timestamp.Format(time.RFC3339),
		}}
		var payload struct {
			IngestVoltageReading MutationResult `json:"ingestVoltageReading"`
		}
		err := f.gql.Mutate(ctx, "IngestVoltageReading", mutationIngestVoltage, vars, &payload)
		if err == nil && !payload.IngestVoltageReading.Success {
			err = fmt.Errorf("ingest rejected: %s", payload.IngestVoltageReading.Message)
		}
		f.record("IngestVoltageReading", models.RequestKindGraphQL, vars, start, payload.IngestVoltageReading.Message, err)
		return err
	}

	_, err := f.rest.IngestVoltage(ctx, token, reading)
	f.record("/sensors/voltage", models.RequestKindPost, reading, start, "created", err)
	return err
}

// IngestPowerQuality writes one power-quality sample through the active
// transport.
func (f *Fetcher) IngestPowerQuality(ctx context.Context, metric models.PowerQualityMetric) error {
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"data": map[string]any{
			"sensorId":         metric.SensorID,
			"location":         metric.Location,
			"thdVoltage":       metric.THDVoltage,
			"thdCurrent":       metric.THDCurrent,
			"powerFactor":      metric.PowerFactor,
			"voltageImbalance": metric.VoltageImbalance,
			"flickerSeverity":  metric.FlickerSeverity,
			"timestamp":        metric.Timestamp.Format(time.RFC3339),
		}}
		var payload struct {
			IngestPowerQuality MutationResult `json:"ingestPowerQuality"`
		}
		err := f.gql.Mutate(ctx, "IngestPowerQuality", mutationIngestPowerQuality, vars, &payload)
		if err == nil && !payload.IngestPowerQuality.Success {
			err = fmt.Errorf("ingest rejected: %s", payload.IngestPowerQuality.Message)
		}
		f.record("IngestPowerQuality", models.RequestKindGraphQL, vars, start, payload.IngestPowerQuality.Message, err)
		return err
	}

	_, err := f.rest.IngestPowerQuality(ctx, token, metric)
	f.record("/sensors/power-quality", models.RequestKindPost, metric, start, "created", err)
	return err
}

// CreateFault writes one fault event through the active transport.
func (f *Fetcher) CreateFault(ctx context.Context, fault models.FaultEvent) error {
	token, mode := f.snapshot()
	start := time.Now()

	if mode == ModeGraphQL {
		vars := map[string]any{"event": map[string]any{
			"eventId":    fault.EventID,
			"severity":   fault.Severity,
			"eventType":  fault.FaultType,
			"location":   fault.Location,
			"timestamp":  fault.Timestamp.Format(time.RFC3339),
			"durationMs": fault.DurationMs,
		}}
		var payload struct {
			CreateFaultEvent MutationResult `json:"createFaultEvent"`
		}
		err := f.gql.Mutate(ctx, "CreateFaultEvent", mutationCreateFault, vars, &payload)
		if err == nil && !payload.CreateFaultEvent.Success {
			err = fmt.Errorf("create rejected: %s", payload.CreateFaultEvent.Message)
		}
		f.record("CreateFaultEvent", models.RequestKindGraphQL, vars, start, payload.CreateFaultEvent.Message, err)
		return err
	}

	_, err := f.rest.IngestFault(ctx, token, fault)
	f.record("/faults", models.RequestKindPost, fault, start, "created", err)
	return err
}

func countSummary(n int) string {
	return fmt.Sprintf("%d records", n)
}
