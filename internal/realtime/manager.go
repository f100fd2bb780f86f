// Package realtime owns the push channel: connection lifecycle, reconnects
// with bounded exponential backoff, and dispatch of parsed envelopes.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/transport"
	"go.uber.org/zap"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("realtime manager closed")

// Opener opens the push channel. *transport.Client implements it.
type Opener interface {
	OpenPushChannel(ctx context.Context) (transport.PushConn, error)
}

// StatusSink receives connection status changes. *store.Store implements it.
type StatusSink interface {
	SetConnectionStatus(models.ConnectionStatus)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBackoff sets the reconnect policy.
func WithBackoff(b Backoff) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithAfterFunc replaces time.AfterFunc for scheduling reconnects.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Manager) {
		if f != nil {
			m.afterFunc = f
		}
	}
}

// WithBus dispatches envelopes on b instead of a private bus.
func WithBus(b *Bus) Option {
	return func(m *Manager) {
		if b != nil {
			m.bus = b
		}
	}
}

// Manager runs the disconnected → connecting → connected state machine for
// the single push connection.
type Manager struct {
	opener    Opener
	sink      StatusSink
	bus       *Bus
	backoff   Backoff
	afterFunc AfterFunc
	logger    *zap.Logger

	mu      sync.Mutex
	state   models.ConnectionStatus
	attempt int
	conn    transport.PushConn
	timer   Timer
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// notifyMu keeps sink calls in transition order.
	notifyMu sync.Mutex
}

// NewManager creates a manager in the disconnected state. sink may be nil.
func NewManager(opener Opener, sink StatusSink, opts ...Option) *Manager {
	m := &Manager{
		opener:    opener,
		sink:      sink,
		bus:       NewBus(),
		backoff:   DefaultBackoff,
		afterFunc: timeAfterFunc,
		logger:    zap.NewNop(),
		state:     models.ConnectionDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a consumer for every inbound envelope.
func (m *Manager) Subscribe(c Consumer) (unsubscribe func()) {
	return m.bus.Subscribe(c)
}

// State returns the current connection state.
func (m *Manager) State() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts connecting in the background. It is a no-op unless the
// manager is disconnected with no reconnect pending. ctx bounds the whole
// lifetime of the connection; cancelling it stops reconnects.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != models.ConnectionDisconnected || m.timer != nil {
		m.mu.Unlock()
		return nil
	}
	if m.ctx == nil || m.ctx.Err() != nil {
		if m.cancel != nil {
			m.cancel()
		}
		m.ctx, m.cancel = context.WithCancel(ctx)
	}
	m.startLocked()
	return nil
}

// startLocked moves to connecting and dials in the background. It releases m.mu.
func (m *Manager) startLocked() {
	m.state = models.ConnectionConnecting
	ctx := m.ctx
	m.wg.Add(1)
	m.transitionLocked(models.ConnectionConnecting)
	go m.run(ctx)
}

// transitionLocked reports status to the sink after releasing m.mu, keeping
// reports in the order the transitions happened.
func (m *Manager) transitionLocked(status models.ConnectionStatus) {
	m.notifyMu.Lock()
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetConnectionStatus(status)
	}
	m.notifyMu.Unlock()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	conn, err := m.opener.OpenPushChannel(ctx)
	if err != nil {
		m.handleDisconnect(err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.state = models.ConnectionConnected
	m.transitionLocked(models.ConnectionConnected)
	m.logger.Info("push channel connected")

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			m.handleDisconnect(err)
			return
		}
		env, err := models.ParseEnvelope(data)
		if err != nil {
			m.logger.Warn("dropping malformed push frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		m.logger.Debug("push frame",
			zap.String("type", string(env.Type)),
			zap.String("task_id", env.TaskID),
			zap.String("document_id", env.DocumentID))
		m.bus.Dispatch(env)
	}
}

// handleDisconnect moves to disconnected and schedules the next attempt.
func (m *Manager) handleDisconnect(cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = models.ConnectionDisconnected
	if m.ctx != nil && m.ctx.Err() != nil {
		m.logger.Debug("push channel stopped", zap.Error(m.ctx.Err()))
		m.transitionLocked(models.ConnectionDisconnected)
		return
	}
	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	m.timer = m.afterFunc(delay, m.reconnect)
	m.logger.Warn("push channel disconnected",
		zap.Error(cause),
		zap.Int("attempt", m.attempt),
		zap.Duration("retry_in", delay))
	m.transitionLocked(models.ConnectionDisconnected)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.timer = nil
	if m.closed || m.state != models.ConnectionDisconnected {
		m.mu.Unlock()
		return
	}
	m.startLocked()
}

// Close tears down the socket and cancels any pending reconnect. No attempts
// happen afterwards. It waits for the reader to exit, so it must not be
// called from a Consumer.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	wasDisconnected := m.state == models.ConnectionDisconnected
	m.state = models.ConnectionDisconnected
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	m.wg.Wait()
	if !wasDisconnected && m.sink != nil {
		m.notifyMu.Lock()
		m.sink.SetConnectionStatus(models.ConnectionDisconnected)
		m.notifyMu.Unlock()
	}
	return err
}
