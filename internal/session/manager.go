// Package session implements the dashboard's session/view controller: it
// owns the token and per-login display state, and wires the data fetcher
// and the live-update channel together.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/models"
	"github.com/grid-monitor/dashboard/internal/prefs"
	"github.com/grid-monitor/dashboard/internal/stream"
)

// Default live-window caps, overridable through the widget config.
const (
	DefaultVoltageWindow      = 30
	DefaultPowerQualityWindow = 20
	DefaultFaultWindow        = 50
)

// Windows holds the ring-buffer caps for the three live-data windows.
type Windows struct {
	Voltage      int
	PowerQuality int
	Faults       int
}

// DefaultWindows returns the stock window sizes.
func DefaultWindows() Windows {
	return Windows{
		Voltage:      DefaultVoltageWindow,
		PowerQuality: DefaultPowerQualityWindow,
		Faults:       DefaultFaultWindow,
	}
}

// FetcherFactory builds a fetcher wired to a session's own network log.
type FetcherFactory func(sink fetch.RequestSink) *fetch.Fetcher

// StreamOpener opens the live-update channel for a token. nil disables
// live updates (the polling paths still work).
type StreamOpener func(ctx context.Context, token string, onMessage stream.Handler) (*stream.Subscription, error)

// LiveHook observes every applied live envelope, e.g. for WebSocket
// rebroadcast to connected dashboards.
type LiveHook func(sessionID string, env models.LiveEnvelope)

// State is one authenticated dashboard session.
type State struct {
	ID        string
	Username  string
	CreatedAt time.Time

	Fetcher *fetch.Fetcher
	NetLog  *fetch.RequestLog

	voltage      *Ring[models.VoltageReading]
	powerQuality *Ring[models.PowerQualityMetric]
	faults       *Ring[models.FaultEvent]

	mu           sync.Mutex
	token        string
	sub          *stream.Subscription
	lastAccessed time.Time
}

// Token returns the session's current bearer credential.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Live returns the current contents of the three live-data windows.
func (s *State) Live() models.LiveSnapshot {
	return models.LiveSnapshot{
		Voltage:      s.voltage.Items(),
		PowerQuality: s.powerQuality.Items(),
		Faults:       s.faults.ItemsNewestFirst(),
	}
}

// apply appends each present delta to its window. Envelopes with no
// deltas are valid and ignored.
func (s *State) apply(env models.LiveEnvelope) {
	if env.Voltage != nil {
		s.voltage.Append(*env.Voltage)
	}
	if env.PowerQuality != nil {
		s.powerQuality.Append(*env.PowerQuality)
	}
	if env.Fault != nil {
		s.faults.Append(*env.Fault)
	}
}

// closeStream tears down the live channel if one is open. Safe to call
// repeatedly and with no stream open.
func (s *State) closeStream() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Manager tracks active dashboard sessions and their live channels.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State

	prefs      prefs.Store
	windows    Windows
	netlogCap  int
	newFetcher FetcherFactory
	openStream StreamOpener
	liveHook   LiveHook
	logger     *zap.Logger
}

// NewManager creates a session manager. openStream may be nil to disable
// the live channel.
func NewManager(store prefs.Store, windows Windows, newFetcher FetcherFactory, openStream StreamOpener, logger *zap.Logger) *Manager {
	if windows.Voltage <= 0 {
		windows.Voltage = DefaultVoltageWindow
	}
	if windows.PowerQuality <= 0 {
		windows.PowerQuality = DefaultPowerQualityWindow
	}
	if windows.Faults <= 0 {
		windows.Faults = DefaultFaultWindow
	}
	return &Manager{
		sessions:   make(map[string]*State),
		prefs:      store,
		windows:    windows,
		netlogCap:  fetch.DefaultLogCapacity,
		newFetcher: newFetcher,
		openStream: openStream,
		logger:     logger,
	}
}

// SetNetlogCapacity overrides the per-session network log size.
func (m *Manager) SetNetlogCapacity(n int) {
	if n > 0 {
		m.netlogCap = n
	}
}

// SetLiveHook registers an observer for applied live envelopes.
func (m *Manager) SetLiveHook(hook LiveHook) {
	m.mu.Lock()
	m.liveHook = hook
	m.mu.Unlock()
}

// Open creates a session for an obtained token: builds the fetcher,
// restores the persisted transport mode, persists the token for reload
// bootstrap, and opens the live channel.
func (m *Manager) Open(ctx context.Context, token, username string) (*State, error) {
	netlog := fetch.NewRequestLog(m.netlogCap)
	fetcher := m.newFetcher(netlog)
	fetcher.SetToken(token)

	if mode, ok := m.prefs.Get(prefs.KeyAPIMode); ok && mode == string(fetch.ModeGraphQL) {
		fetcher.SetMode(true)
	}

	state := &State{
		ID:           uuid.New().String(),
		Username:     username,
		CreatedAt:    time.Now(),
		Fetcher:      fetcher,
		NetLog:       netlog,
		voltage:      NewRing[models.VoltageReading](m.windows.Voltage),
		powerQuality: NewRing[models.PowerQualityMetric](m.windows.PowerQuality),
		faults:       NewRing[models.FaultEvent](m.windows.Faults),
		token:        token,
		lastAccessed: time.Now(),
	}

	if err := m.prefs.Set(prefs.KeySessionToken, token); err != nil {
		m.logger.Warn("failed to persist session token", zap.Error(err))
	}

	if err := m.openLive(ctx, state); err != nil {
		// The dashboard still works on polling alone, so a dead live
		// channel is logged rather than fatal. Token rejection is the
		// exception: the credential is already bad.
		if err == fetch.ErrTokenExpired {
			return nil, err
		}
		m.logger.Warn("live channel unavailable", zap.Error(err))
	}

	m.mu.Lock()
	m.sessions[state.ID] = state
	m.mu.Unlock()

	m.logger.Info("session opened",
		zap.String("session_id", state.ID),
		zap.String("username", username),
		zap.String("mode", string(fetcher.Mode())),
	)
	return state, nil
}

// Restore rebuilds a session from a token persisted by a prior run.
// Returns false when no usable token is saved.
func (m *Manager) Restore(ctx context.Context) (*State, bool) {
	token, ok := m.prefs.Get(prefs.KeySessionToken)
	if !ok || token == "" {
		return nil, false
	}
	state, err := m.Open(ctx, token, "")
	if err != nil {
		m.logger.Warn("persisted token rejected, discarding", zap.Error(err))
		m.prefs.Delete(prefs.KeySessionToken)
		return nil, false
	}
	return state, true
}

// openLive opens the session's live channel, closing any prior one first
// so at most one channel is open per session.
func (m *Manager) openLive(ctx context.Context, state *State) error {
	if m.openStream == nil {
		return nil
	}

	state.closeStream()

	sub, err := m.openStream(ctx, state.Token(), func(env models.LiveEnvelope) {
		state.apply(env)

		m.mu.RLock()
		hook := m.liveHook
		m.mu.RUnlock()
		if hook != nil {
			hook(state.ID, env)
		}
	})
	if err != nil {
		return err
	}

	state.mu.Lock()
	state.sub = sub
	state.mu.Unlock()
	return nil
}

// Get returns a session by ID and refreshes its last-accessed time.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	state.mu.Lock()
	state.lastAccessed = time.Now()
	state.mu.Unlock()
	return state, true
}

// SetMode switches a session's transport and persists the choice.
func (m *Manager) SetMode(id string, useGraphQL bool) bool {
	state, ok := m.Get(id)
	if !ok {
		return false
	}
	state.Fetcher.SetMode(useGraphQL)

	mode := string(fetch.ModeREST)
	if useGraphQL {
		mode = string(fetch.ModeGraphQL)
	}
	if err := m.prefs.Set(prefs.KeyAPIMode, mode); err != nil {
		m.logger.Warn("failed to persist api mode", zap.Error(err))
	}
	return true
}

// Close tears down a session: the live channel is closed (exactly once,
// even if Close is called twice), the persisted token is cleared, and the
// session is forgotten. In-flight fetches complete harmlessly; handlers
// discard their results once the session is gone.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}

	state.closeStream()
	if err := m.prefs.Delete(prefs.KeySessionToken); err != nil {
		m.logger.Warn("failed to clear persisted token", zap.Error(err))
	}
	m.logger.Info("session closed", zap.String("session_id", id))
}

// CloseAll tears down every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	states := make([]*State, 0, len(m.sessions))
	for _, state := range m.sessions {
		states = append(states, state)
	}
	m.sessions = make(map[string]*State)
	m.mu.Unlock()

	for _, state := range states {
		state.closeStream()
	}
}

// CleanupExpired drops sessions idle longer than maxAge and closes their
// live channels.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*State
	for id, state := range m.sessions {
		state.mu.Lock()
		idle := state.lastAccessed.Before(cutoff)
		state.mu.Unlock()
		if idle {
			expired = append(expired, state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, state := range expired {
		state.closeStream()
		m.logger.Info("session expired", zap.String("session_id", state.ID))
	}
	return len(expired)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
