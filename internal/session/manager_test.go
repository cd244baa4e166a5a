package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/models"
	"github.com/grid-monitor/dashboard/internal/prefs"
	"github.com/grid-monitor/dashboard/internal/stream"
	"github.com/grid-monitor/dashboard/internal/testutil"
)

func newTestManager(t *testing.T, u *testutil.Upstream, store prefs.Store, live bool) *Manager {
	t.Helper()
	logger := zap.NewNop()
	rest := fetch.NewRESTClient(u.BaseURL(), "/sensors/stats", 5*time.Second, logger)
	gql := fetch.NewGraphQLClient(u.GraphQLURL(), 5*time.Second, logger)

	factory := func(sink fetch.RequestSink) *fetch.Fetcher {
		return fetch.NewFetcher(rest, gql, sink, logger)
	}
	var opener StreamOpener
	if live {
		opener = func(ctx context.Context, token string, onMessage stream.Handler) (*stream.Subscription, error) {
			return stream.Subscribe(ctx, u.StreamURL(), token, onMessage, logger)
		}
	}
	return NewManager(store, DefaultWindows(), factory, opener, logger)
}

func TestOpenAndGet(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	m := newTestManager(t, u, prefs.NewMemStore(), false)
	defer m.CloseAll()

	st, err := m.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)
	require.NotEmpty(t, st.ID)
	assert.Equal(t, testutil.Username, st.Username)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(st.ID)
	require.True(t, ok)
	assert.Same(t, st, got)

	_, ok = m.Get("no-such-session")
	assert.False(t, ok)
}

func TestOpenRejectsExpiredToken(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	m := newTestManager(t, u, prefs.NewMemStore(), true)
	defer m.CloseAll()

	_, err := m.Open(context.Background(), "stale-token", testutil.Username)
	assert.ErrorIs(t, err, fetch.ErrTokenExpired)
	assert.Equal(t, 0, m.Count())
}

func TestLiveEnvelopesFillWindows(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	m := newTestManager(t, u, prefs.NewMemStore(), true)
	defer m.CloseAll()

	st, err := m.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)

	u.Push(models.LiveEnvelope{
		Timestamp: "2025-06-01T12:00:00Z",
		Voltage:   &models.VoltageReading{SensorID: "SENS-007", VoltageL1: 229.9},
	})
	u.Push(models.LiveEnvelope{
		Timestamp: "2025-06-01T12:00:02Z",
		Fault:     &models.FaultEvent{EventID: "EVT-201", Severity: "critical"},
	})
	u.Push(models.LiveEnvelope{
		Timestamp: "2025-06-01T12:00:04Z",
		Fault:     &models.FaultEvent{EventID: "EVT-202", Severity: "warning"},
	})

	require.Eventually(t, func() bool {
		snap := st.Live()
		return len(snap.Voltage) == 1 && len(snap.Faults) == 2
	}, 2*time.Second, 10*time.Millisecond)

	snap := st.Live()
	assert.Equal(t, "SENS-007", snap.Voltage[0].SensorID)
	// Fault timeline is newest first.
	assert.Equal(t, "EVT-202", snap.Faults[0].EventID)
	assert.Equal(t, "EVT-201", snap.Faults[1].EventID)
	assert.Empty(t, snap.PowerQuality)
}

func TestLiveHookObservesEnvelopes(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	m := newTestManager(t, u, prefs.NewMemStore(), true)
	defer m.CloseAll()

	type hookCall struct {
		sessionID string
		env       models.LiveEnvelope
	}
	calls := make(chan hookCall, 4)
	m.SetLiveHook(func(sessionID string, env models.LiveEnvelope) {
		calls <- hookCall{sessionID, env}
	})

	st, err := m.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)

	u.Push(models.LiveEnvelope{Timestamp: "2025-06-01T12:00:00Z"})

	select {
	case call := <-calls:
		assert.Equal(t, st.ID, call.sessionID)
		assert.Equal(t, "2025-06-01T12:00:00Z", call.env.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("live hook never fired")
	}
}

func TestModePersistsAcrossRestart(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	store := prefs.NewMemStore()

	m1 := newTestManager(t, u, store, false)
	st, err := m1.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)
	assert.Equal(t, fetch.ModeREST, st.Fetcher.Mode())

	require.True(t, m1.SetMode(st.ID, true))
	assert.Equal(t, fetch.ModeGraphQL, st.Fetcher.Mode())
	m1.CloseAll()

	// A new manager over the same preference store restores the mode.
	m2 := newTestManager(t, u, store, false)
	defer m2.CloseAll()
	st2, err := m2.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)
	assert.Equal(t, fetch.ModeGraphQL, st2.Fetcher.Mode())
}

func TestRestoreFromPersistedToken(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	store := prefs.NewMemStore()

	m1 := newTestManager(t, u, store, false)
	_, err := m1.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)
	m1.CloseAll()

	// CloseAll (shutdown) leaves the token persisted; a fresh manager
	// restores a working session from it.
	m2 := newTestManager(t, u, store, false)
	defer m2.CloseAll()
	st, ok := m2.Restore(context.Background())
	require.True(t, ok)
	assert.Equal(t, testutil.Token, st.Token())
	assert.Equal(t, 1, m2.Count())
}

func TestRestoreWithoutToken(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()

	m := newTestManager(t, u, prefs.NewMemStore(), false)
	_, ok := m.Restore(context.Background())
	assert.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	store := prefs.NewMemStore()
	m := newTestManager(t, u, store, true)

	st, err := m.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)

	m.Close(st.ID)
	m.Close(st.ID)
	m.Close(st.ID)

	assert.Equal(t, 0, m.Count())
	_, has := store.Get(prefs.KeySessionToken)
	assert.False(t, has)
}

func TestCleanupExpired(t *testing.T) {
	u := testutil.NewUpstream()
	defer u.Close()
	u.Seed()

	m := newTestManager(t, u, prefs.NewMemStore(), false)
	defer m.CloseAll()

	_, err := m.Open(context.Background(), testutil.Token, testutil.Username)
	require.NoError(t, err)

	// Nothing is old enough yet.
	assert.Equal(t, 0, m.CleanupExpired(time.Hour))
	assert.Equal(t, 1, m.Count())

	// With a zero max age everything is expired.
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupExpired(time.Nanosecond))
	assert.Equal(t, 0, m.Count())
}
