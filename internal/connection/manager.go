package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rickgao/pricefeed/internal/router"
)

// Manager owns one logical streaming session to the price feed: it sequences
// connect, authenticate and reconnect, and fans decoded frames out on its bus.
type Manager interface {
	// Connect replaces any current transport with a new one and returns once
	// it is open and the AUTH frame has been sent. ctx bounds the handshake.
	Connect(ctx context.Context, credential string) error

	// Disconnect closes the transport, cancels any pending reconnect and
	// clears every listener registration. Safe in any state.
	Disconnect()

	// Send encodes frame as JSON and writes it. It returns false, without
	// queueing anything, unless the state is StateConnected.
	Send(frame any) bool

	// On registers a handler for a message type tag.
	On(msgType string, handler router.Handler) *router.Subscription

	// Off removes a registration made with On.
	Off(sub *router.Subscription)

	// State returns the current lifecycle state.
	State() State

	// WatchState returns a queue receiving every subsequent state change.
	WatchState() *router.Queue[StateChange]

	// Stats returns current connection statistics.
	Stats() ManagerStats

	// Stop disconnects and waits for background goroutines. The manager
	// cannot be reused afterwards.
	Stop(ctx context.Context) error
}

// ClientFactory builds the transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithClientFactory replaces the WebSocket transport, mainly for tests.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *manager) {
		m.newClient = f
	}
}

// trigger is a state machine event plus the context needed to carry out its
// effects.
type trigger struct {
	ev  machineEvent
	ctx context.Context // parent for effDial; nil means the manager context
	err error           // cause, when the event reports a failure
}

// manager implements the Manager interface.
//
// Every field below mu is guarded by it. Handlers are never invoked with mu
// held, so they may call back into the manager.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	newClient ClientFactory
	bus       *router.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	mc         machineContext
	gen        uint64 // identifies the current transport; bumped on every replace/close
	client     Client
	sessionID  uuid.UUID
	dialCancel context.CancelFunc
	retryTimer *time.Timer
	retrySeq   uint64
	pending    chan error // reply channel of an in-flight explicit Connect
	stopped    bool
	watchers   []*router.Queue[StateChange]

	// Stats
	connects   int64
	reconnects int64
	dropped    int64
	staleDrops int64
}

// NewManager creates a new Connection Manager in StateDisconnected.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		bus:       router.NewBus(logger),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateDisconnected,
		mc:        machineContext{MaxAttempts: cfg.MaxReconnectAttempts},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Connect opens a new session with the given credential.
func (m *manager) Connect(ctx context.Context, credential string) error {
	reply := make(chan error, 1)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	m.fire(trigger{
		ev:  machineEvent{kind: evConnect, credential: credential},
		ctx: ctx,
	})
	// Set after fire: effAbortConnect fails the previous caller, not this one.
	m.pending = reply
	m.mu.Unlock()

	return <-reply
}

// Disconnect tears the session down.
func (m *manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fire(trigger{ev: machineEvent{kind: evDisconnect}})
}

// Send writes an outbound frame if connected.
func (m *manager) Send(frame any) bool {
	m.mu.Lock()
	if m.state != StateConnected || m.client == nil {
		m.dropped++
		m.mu.Unlock()
		return false
	}
	c := m.client
	m.mu.Unlock()

	data, err := router.Encode(frame)
	if err != nil {
		m.logger.Warn("failed to encode outbound frame", "error", err)
		return false
	}

	if err := c.Send(data); err != nil {
		m.logger.Debug("failed to send frame", "error", err)
		return false
	}
	return true
}

// On registers a handler on the bus.
func (m *manager) On(msgType string, handler router.Handler) *router.Subscription {
	return m.bus.On(msgType, handler)
}

// Off removes a bus registration.
func (m *manager) Off(sub *router.Subscription) {
	m.bus.Off(sub)
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// WatchState returns a new state change queue.
func (m *manager) WatchState() *router.Queue[StateChange] {
	q := router.NewQueue[StateChange](8)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		q.Close()
		return q
	}
	m.watchers = append(m.watchers, q)
	return q
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		State:      m.state,
		SessionID:  m.sessionID,
		Attempts:   m.mc.Attempts,
		Connects:   m.connects,
		Reconnects: m.reconnects,
		Dropped:    m.dropped,
		StaleDrops: m.staleDrops,
		Bus:        m.bus.Stats(),
	}
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		m.fire(trigger{ev: machineEvent{kind: evDisconnect}})
		for _, q := range m.watchers {
			q.Close()
		}
		m.watchers = nil
	}
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
		return ctx.Err()
	}
}

// fire runs one state machine step and performs its effects. Must be called
// with mu held.
func (m *manager) fire(t trigger) {
	from := m.state
	next, mc, effects := transition(m.state, m.mc, t.ev)
	m.state, m.mc = next, mc

	if next != from {
		m.notify(from, next, t.err)
	}

	for _, eff := range effects {
		m.apply(eff, t)
	}
}

// notify logs a transition and publishes it to watchers. Must be called
// with mu held.
func (m *manager) notify(from, to State, cause error) {
	attrs := []any{"from", from, "to", to, "attempts", m.mc.Attempts}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	if to == StateFailed {
		m.logger.Warn("connection state changed", attrs...)
	} else {
		m.logger.Info("connection state changed", attrs...)
	}

	change := StateChange{
		From:     from,
		To:       to,
		Attempts: m.mc.Attempts,
		Err:      cause,
		At:       time.Now(),
	}
	for _, q := range m.watchers {
		q.Send(change)
	}
}

// apply performs a single effect. Must be called with mu held.
func (m *manager) apply(eff effect, t trigger) {
	switch eff {
	case effCancelRetry:
		m.retrySeq++
		if m.retryTimer != nil {
			m.retryTimer.Stop()
			m.retryTimer = nil
		}

	case effCloseTransport:
		m.gen++
		if m.dialCancel != nil {
			m.dialCancel()
			m.dialCancel = nil
		}
		if m.client != nil {
			m.client.Close()
			m.client = nil
		}
		m.sessionID = uuid.Nil

	case effAbortConnect:
		if m.pending != nil {
			if t.ev.kind == evConnect {
				m.pending <- ErrSuperseded
			} else {
				m.pending <- ErrDisconnected
			}
			m.pending = nil
		}

	case effClearListeners:
		m.bus.Clear()

	case effDial:
		m.dial(t.ctx)

	case effSendAuth:
		data, err := router.Encode(router.NewAuthFrame(m.mc.Credential))
		if err == nil {
			err = m.client.Send(data)
		}
		if err != nil {
			// The close that follows a broken write drives reconnection.
			m.logger.Warn("failed to send auth frame", "error", err)
		}
		m.fire(trigger{ev: machineEvent{kind: evAuthSent}})

	case effResolveConnect:
		if m.pending != nil {
			m.pending <- nil
			m.pending = nil
		}

	case effRejectConnect:
		if m.pending != nil {
			m.pending <- t.err
			m.pending = nil
		}

	case effScheduleRetry:
		m.retrySeq++
		seq := m.retrySeq
		m.logger.Info("scheduling reconnection",
			"attempt", m.mc.Attempts,
			"max_attempts", m.mc.MaxAttempts,
			"wait", m.cfg.ReconnectInterval,
		)
		m.retryTimer = time.AfterFunc(m.cfg.ReconnectInterval, func() {
			m.retryDue(seq)
		})
	}
}

// dial starts opening a new transport. Must be called with mu held.
func (m *manager) dial(parent context.Context) {
	if parent == nil {
		parent = m.ctx
	}

	m.gen++
	gen := m.gen
	m.sessionID = uuid.New()

	logger := m.logger.With("session_id", m.sessionID)
	c := m.newClient(m.cfg.Client, logger)
	m.client = c

	ctx, cancel := context.WithCancel(parent)
	m.dialCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := c.Connect(ctx)
		m.opened(gen, c, err)
	}()
}

// opened handles the outcome of a dial.
func (m *manager) opened(gen uint64, c Client, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Replaced or closed while dialing; effCloseTransport already closed c.
		return
	}

	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	if err != nil {
		m.fire(trigger{ev: machineEvent{kind: evOpenFailed}, err: err})
		return
	}

	m.connects++
	if m.mc.Attempts > 0 {
		m.reconnects++
	}

	m.wg.Add(1)
	go m.pump(gen, c)

	m.fire(trigger{ev: machineEvent{kind: evOpened}})
}

// pump forwards frames from one transport in arrival order, then reports the
// close.
func (m *manager) pump(gen uint64, c Client) {
	defer m.wg.Done()

	for msg := range c.Messages() {
		m.deliver(gen, msg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	err := c.Err()
	if err != nil {
		m.logger.Warn("connection error", "error", err)
	}
	m.fire(trigger{ev: machineEvent{kind: evClosed}, err: err})
}

// deliver dispatches one frame unless its transport has been replaced.
func (m *manager) deliver(gen uint64, msg TimestampedMessage) {
	if run := m.prepare(gen, msg); run != nil {
		run()
	}
}

// prepare decodes a frame of transport gen under mu. The returned func
// checks the generation again before running any handler, so a frame
// prepared before a Disconnect or a newer Connect is dropped. Handlers that
// are already running when the transport is replaced finish their pass.
func (m *manager) prepare(gen uint64, msg TimestampedMessage) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		m.staleDrops++
		return nil
	}
	deliver, ok := m.bus.Prepare(msg.Data, msg.ReceivedAt)
	if !ok {
		return nil
	}

	return func() {
		m.mu.Lock()
		current := gen == m.gen
		if !current {
			m.staleDrops++
		}
		m.mu.Unlock()

		if current {
			deliver()
		}
	}
}

// retryDue fires the reconnect attempt scheduled under seq, unless it was
// cancelled in the meantime.
func (m *manager) retryDue(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.retrySeq || m.retryTimer == nil {
		return
	}
	m.retryTimer = nil

	m.logger.Info("attempting reconnection",
		"attempt", m.mc.Attempts,
		"max_attempts", m.mc.MaxAttempts,
	)
	m.fire(trigger{ev: machineEvent{kind: evRetryDue}})
}
