package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/services"
)

// State is the connection state owned by Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock replaces time.Now, letting tests step through backoff delays.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStateObserver registers a callback invoked on every state change.
func WithStateObserver(fn func(State)) ManagerOption {
	return func(m *Manager) { m.onState = fn }
}

// WithAttemptObserver registers a callback invoked after every connect
// attempt with its outcome.
func WithAttemptObserver(fn func(ok bool)) ManagerOption {
	return func(m *Manager) { m.onAttempt = fn }
}

// Status is a point-in-time view of the manager for status reporting.
type Status struct {
	Source      string    `json:"source"`
	State       string    `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	NextAttempt time.Time `json:"next_attempt,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Manager applies the reconnect policy to a Source. All Source calls happen on
// the goroutine calling Connect, GetFrame and Disconnect; NotifyDisconnected
// and ReconnectNow only record intent and are safe from any goroutine.
type Manager struct {
	src            Source
	redacted       string
	logger         *slog.Logger
	now            func() time.Time
	connectTimeout time.Duration
	maxAttempts    int
	retryForever   bool
	onState        func(State)
	onAttempt      func(bool)

	mu          sync.Mutex
	state       State
	backoff     *Backoff
	failures    int
	nextAttempt time.Time
	lastErr     error
	dropReason  string
	seq         uint64
	closed      bool
	fatalSent   bool
	fatal       chan error
}

// NewManager wraps src with the policy described by cfg.
func NewManager(src Source, cfg config.Source, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		src:            src,
		redacted:       RedactURL(cfg.URL),
		logger:         logging.NewComponentLogger(logger, "source"),
		now:            time.Now,
		connectTimeout: seconds(cfg.ConnectTimeout),
		maxAttempts:    cfg.MaxAttempts,
		retryForever:   cfg.RetryForever,
		backoff:        NewBackoff(seconds(cfg.BackoffBaseSeconds), seconds(cfg.BackoffMaxSeconds)),
		fatal:          make(chan error, 1),
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = 10 * time.Second
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 5
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect makes one connection attempt. A failure schedules the next attempt
// and counts toward the fatal threshold.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.fatalSent {
		m.mu.Unlock()
		return services.Wrap(services.ErrUnavailable, "source", "connect", "manager stopped", nil)
	}
	m.mu.Unlock()
	return m.attempt(ctx)
}

// GetFrame returns the next frame or an error wrapping ErrUnavailable. It never
// sleeps through a backoff delay: until the next attempt is due it returns
// immediately.
func (m *Manager) GetFrame(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	if m.closed || m.fatalSent {
		m.mu.Unlock()
		return nil, services.ErrUnavailable
	}
	if m.state == StateConnected && m.dropReason != "" {
		m.lostLocked(errors.New(m.dropReason))
	}
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
	case StateConnecting:
		m.mu.Unlock()
		return nil, services.ErrUnavailable
	default:
		if m.now().Before(m.nextAttempt) {
			m.mu.Unlock()
			return nil, services.ErrUnavailable
		}
		m.mu.Unlock()
		if err := m.attempt(ctx); err != nil {
			return nil, err
		}
	}

	data, err := m.src.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if errors.Is(err, ErrExhausted) {
			m.setStateLocked(StateDisconnected)
			m.closed = true
			_ = m.src.Close()
			return nil, err
		}
		if m.state == StateConnected {
			m.lostLocked(err)
		}
		return nil, services.Wrap(services.ErrUnavailable, "source", "read", m.redacted, err)
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()
	return NewFrame(seq, m.now(), data), nil
}

func (m *Manager) attempt(ctx context.Context) error {
	m.mu.Lock()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	err := m.src.Open(attemptCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if err == nil {
			_ = m.src.Close()
		}
		return services.ErrUnavailable
	}
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt; not a camera fault.
		m.setStateLocked(StateBackoff)
		return ctx.Err()
	}
	if m.onAttempt != nil {
		m.onAttempt(err == nil)
	}
	if err != nil {
		m.failLocked(err)
		return services.Wrap(services.ErrUnavailable, "source", "connect", m.redacted, err)
	}

	if m.failures > 0 {
		m.logger.Info("source reconnected",
			logging.String(logging.FieldEventType, "source_reconnected"),
			logging.String(logging.FieldSource, m.redacted),
			logging.Int("failed_attempts", m.failures),
		)
	} else {
		m.logger.Info("source connected",
			logging.String(logging.FieldEventType, "source_connected"),
			logging.String(logging.FieldSource, m.redacted),
		)
	}
	m.failures = 0
	m.lastErr = nil
	m.dropReason = ""
	m.backoff.Reset()
	m.setStateLocked(StateConnected)
	return nil
}

func (m *Manager) failLocked(err error) {
	m.failures++
	m.lastErr = err
	if !m.retryForever && m.failures >= m.maxAttempts {
		m.setStateLocked(StateDisconnected)
		if !m.fatalSent {
			m.fatalSent = true
			fatal := &services.ConnectivityFatalError{Attempts: m.failures, LastErr: err}
			m.fatal <- fatal
			logging.ErrorWithContext(m.logger, "source unreachable; giving up", "source_connectivity_fatal",
				logging.String(logging.FieldSource, m.redacted),
				logging.Int("attempts", m.failures),
				logging.String(logging.FieldErrorHint, "check the camera is powered and reachable, or set source.retry_forever"),
				logging.Error(err),
			)
		}
		return
	}
	delay := m.backoff.Next()
	m.nextAttempt = m.now().Add(delay)
	m.setStateLocked(StateBackoff)
	logging.WarnWithContext(m.logger, "source connect failed; backing off", "source_connect_failed",
		logging.String(logging.FieldSource, m.redacted),
		logging.Int("attempt", m.failures),
		logging.Duration("retry_in", delay),
		logging.String(logging.FieldErrorHint, "check camera address, credentials and network"),
		logging.String(logging.FieldImpact, "no frames are processed until the source reconnects"),
		logging.Error(err),
	)
}

func (m *Manager) lostLocked(err error) {
	_ = m.src.Close()
	m.dropReason = ""
	m.lastErr = err
	delay := m.backoff.Next()
	m.nextAttempt = m.now().Add(delay)
	m.setStateLocked(StateBackoff)
	logging.WarnWithContext(m.logger, "source connection lost", "source_connection_lost",
		logging.String(logging.FieldSource, m.redacted),
		logging.Duration("retry_in", delay),
		logging.String(logging.FieldErrorHint, "check camera stream health"),
		logging.String(logging.FieldImpact, "frames are skipped until the source reconnects"),
		logging.Error(err),
	)
}

func (m *Manager) setStateLocked(state State) {
	if m.state == state {
		return
	}
	m.state = state
	if m.onState != nil {
		m.onState(state)
	}
}

// NotifyDisconnected records an out-of-band disconnect (for example the
// capture device being unplugged). The next GetFrame enters backoff.
func (m *Manager) NotifyDisconnected(reason string) {
	if reason == "" {
		reason = "source reported disconnect"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected {
		m.dropReason = reason
	}
}

// ReconnectNow makes a pending reconnect attempt due immediately.
func (m *Manager) ReconnectNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateBackoff {
		m.nextAttempt = m.now()
	}
}

// Disconnect releases the source. Further calls are no-ops.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	if err := m.src.Close(); err != nil {
		m.logger.Debug("source close failed", logging.Error(err))
	}
}

// Fatal delivers at most one ConnectivityFatalError.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// IsConnected reports whether frames can currently be read.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Redacted returns the loggable source address.
func (m *Manager) Redacted() string {
	return m.redacted
}

// Status returns a snapshot for status reporting.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Source:   m.redacted,
		State:    m.state.String(),
		Failures: m.failures,
	}
	if m.state == StateBackoff {
		st.NextAttempt = m.nextAttempt
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}
