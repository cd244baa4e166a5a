package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/models"
	"github.com/grid-monitor/dashboard/internal/testutil"
)

func newTestFetcher(t *testing.T, u *testutil.Upstream) (*Fetcher, *RequestLog) {
	t.Helper()
	logger := zap.NewNop()
	rest := NewRESTClient(u.BaseURL(), "/sensors/stats", 5*time.Second, logger)
	gql := NewGraphQLClient(u.GraphQLURL(), 5*time.Second, logger)
	netlog := NewRequestLog(DefaultLogCapacity)
	f := NewFetcher(rest, gql, netlog, logger)
	f.SetToken(testutil.Token)
	return f, netlog
}

func TestFetchVoltageBothTransports(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()

	restReadings, err := f.FetchVoltage(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, restReadings, 10)

	f.SetMode(true)
	gqlReadings, err := f.FetchVoltage(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, gqlReadings, 10)

	// The two transports must produce identical normalized records.
	assert.Equal(t, restReadings, gqlReadings)
	assert.Equal(t, "SENS-000", gqlReadings[0].SensorID)
	assert.InDelta(t, 229.5, gqlReadings[0].VoltageL1, 0.001)
	assert.False(t, gqlReadings[0].Timestamp.IsZero())
}

func TestFetchVoltageSensorFilter(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	f.SetMode(true)

	readings, err := f.FetchVoltage(context.Background(), 50, "SENS-001")
	require.NoError(t, err)
	require.NotEmpty(t, readings)
	for _, r := range readings {
		assert.Equal(t, "SENS-001", r.SensorID)
	}
}

func TestFetchVoltageDefaultLimit(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)

	// Seed installs 40 rows; limit 0 must clamp to the default window.
	readings, err := f.FetchVoltage(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Len(t, readings, DefaultVoltageLimit)
}

func TestFetchPowerQualityBothTransports(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()

	restMetrics, err := f.FetchPowerQuality(ctx, 5, "")
	require.NoError(t, err)

	f.SetMode(true)
	gqlMetrics, err := f.FetchPowerQuality(ctx, 5, "")
	require.NoError(t, err)

	assert.Equal(t, restMetrics, gqlMetrics)
	assert.InDelta(t, 0.97, gqlMetrics[0].PowerFactor, 0.001)
}

func TestFetchFaultsTransportAsymmetry(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()

	// The REST recent-faults endpoint has no filters; severity and limit
	// are accepted but ignored there.
	restFaults, err := f.FetchFaults(ctx, 1, "critical")
	require.NoError(t, err)
	assert.Len(t, restFaults, 2)

	// GraphQL honors both.
	f.SetMode(true)
	gqlFaults, err := f.FetchFaults(ctx, 10, "critical")
	require.NoError(t, err)
	require.Len(t, gqlFaults, 1)
	assert.Equal(t, "EVT-001", gqlFaults[0].EventID)
	assert.Equal(t, "voltage_sag", gqlFaults[0].FaultType)
	assert.Equal(t, int64(420), gqlFaults[0].DurationMs)
}

func TestFetchStatsFieldMapping(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()

	restStats, err := f.FetchStats(ctx)
	require.NoError(t, err)

	f.SetMode(true)
	gqlStats, err := f.FetchStats(ctx)
	require.NoError(t, err)

	// faultCount24h / violationCount24h land on the REST field names.
	assert.Equal(t, restStats.TotalFaults24h, gqlStats.TotalFaults24h)
	assert.Equal(t, restStats.QualityViolations, gqlStats.QualityViolations)
	assert.Equal(t, 12, gqlStats.TotalSensors)
	assert.InDelta(t, 224.9, gqlStats.MinVoltage, 0.001)
}

func TestFetchSensorStatusAlwaysREST(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	f.SetMode(true)

	before := u.GraphQLCalls
	statuses, err := f.FetchSensorStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, before, u.GraphQLCalls)
	assert.True(t, statuses[0].IsOperational)
}

func TestTokenExpiredUniformAcrossTransports(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()
	u.ExpireToken = true

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()

	_, err := f.FetchVoltage(ctx, 5, "")
	assert.ErrorIs(t, err, ErrTokenExpired)

	f.SetMode(true)
	_, err = f.FetchVoltage(ctx, 5, "")
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = f.FetchStats(ctx)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestGraphQLRequestBeforeToken(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()

	logger := zap.NewNop()
	gql := NewGraphQLClient(u.GraphQLURL(), 5*time.Second, logger)

	var out struct{}
	err := gql.Request(context.Background(), "SensorStats", querySensorStats, nil, &out)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestModeSwitchReArmsGraphQL(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	logger := zap.NewNop()
	rest := NewRESTClient(u.BaseURL(), "/sensors/stats", 5*time.Second, logger)
	gql := NewGraphQLClient(u.GraphQLURL(), 5*time.Second, logger)
	f := NewFetcher(rest, gql, nil, logger)
	f.SetToken(testutil.Token)

	// The token arrived while REST mode was active; switching into
	// GraphQL must arm the client anyway.
	f.SetMode(true)
	_, err := f.FetchStats(context.Background())
	require.NoError(t, err)
}

func TestMutationsBothTransports(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, _ := newTestFetcher(t, u)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	reading := models.VoltageReading{SensorID: "SENS-009", Location: "Feeder 1", VoltageL1: 231, VoltageL2: 230, VoltageL3: 229, Frequency: 49.98, Timestamp: now}
	require.NoError(t, f.IngestVoltage(ctx, reading))

	metric := models.PowerQualityMetric{SensorID: "SENS-009", Location: "Feeder 1", THDVoltage: 2.5, PowerFactor: 0.95, Timestamp: now}
	require.NoError(t, f.IngestPowerQuality(ctx, metric))

	fault := models.FaultEvent{EventID: "EVT-100", SensorID: "SENS-009", Severity: "warning", FaultType: "overvoltage", Location: "Feeder 1", Timestamp: now, DurationMs: 90}
	require.NoError(t, f.CreateFault(ctx, fault))

	f.SetMode(true)
	require.NoError(t, f.IngestVoltage(ctx, reading))
	require.NoError(t, f.IngestPowerQuality(ctx, metric))
	require.NoError(t, f.CreateFault(ctx, fault))
}

func TestNetlogRecordsEveryCall(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, netlog := newTestFetcher(t, u)
	ctx := context.Background()

	_, err := f.FetchVoltage(ctx, 5, "")
	require.NoError(t, err)
	_, err = f.FetchStats(ctx)
	require.NoError(t, err)

	u.ExpireToken = true
	_, err = f.FetchFaults(ctx, 5, "")
	require.Error(t, err)

	records := netlog.Records()
	require.Len(t, records, 3)

	// IDs are strictly increasing across successes and failures.
	assert.Less(t, records[0].ID, records[1].ID)
	assert.Less(t, records[1].ID, records[2].ID)

	assert.Equal(t, "/sensors/voltage", records[0].Endpoint)
	assert.Equal(t, models.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, "5 records", records[0].Response)

	failed := records[2]
	assert.Equal(t, models.OutcomeError, failed.Outcome)
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.Response)
}

func TestNetlogEndpointNamesByTransport(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	f, netlog := newTestFetcher(t, u)
	ctx := context.Background()

	_, err := f.FetchVoltage(ctx, 5, "")
	require.NoError(t, err)

	f.SetMode(true)
	_, err = f.FetchVoltage(ctx, 5, "")
	require.NoError(t, err)

	records := netlog.Records()
	require.Len(t, records, 2)
	assert.Equal(t, models.RequestKindGet, records[0].Kind)
	assert.Equal(t, "/sensors/voltage", records[0].Endpoint)
	assert.Equal(t, models.RequestKindGraphQL, records[1].Kind)
	assert.Equal(t, "VoltageReadings", records[1].Endpoint)
}

func TestRESTLogin(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()

	rest := NewRESTClient(u.BaseURL(), "/sensors/stats", 5*time.Second, zap.NewNop())

	token, err := rest.Login(context.Background(), testutil.Username, testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, testutil.Token, token)

	_, err = rest.Login(context.Background(), testutil.Username, "wrong")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestConfigurableStatsPath(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	// A deployment that exposes the aggregate under a different path gets
	// a 404 from the stub, which must surface as an HTTPError.
	rest := NewRESTClient(u.BaseURL(), "/stats", 5*time.Second, zap.NewNop())
	_, err := rest.Stats(context.Background(), testutil.Token)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.Status)
}
