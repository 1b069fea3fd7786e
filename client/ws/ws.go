// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"io"
	"log"
	"net"
	"net/url"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/rangeforge/pulse/model"
)

func New(cfg *Config, token string, scope Scope, handlers Handlers) *Manager {
	if cfg == nil {
		cfg = new(Config)
	}
	if cfg.InitialConnectDelay == 0 {
		cfg.InitialConnectDelay = defaultInitialConnectDelay
	}
	if cfg.ReconnectInitialDelay == 0 {
		cfg.ReconnectInitialDelay = defaultReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &Manager{
		cfg:          cfg,
		token:        token,
		scope:        scope,
		handlers:     &handlerCell{handlers: handlers},
		stats:        newStats(cfg.DebugMetrics),
		subs:         newSubscriptionSet(),
		state:        StateDisconnected,
		firstConnect: true,
	}
}

// Connect is idempotent: a no-op while an attempt is already connecting or
// connected. The very first call waits a short settle delay before dialing to
// absorb rapid construct/teardown cycles in the host UI; this is not backoff.
func (m *Manager) Connect(ctx context.Context) error {
	m.mx.Lock()
	if m.shuttingDown {
		m.mx.Unlock()

		return ErrClosed
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.mx.Unlock()

		return nil
	}
	settle := stdlibtime.Duration(0)
	if m.firstConnect {
		m.firstConnect = false
		settle = m.cfg.InitialConnectDelay
	}
	// Claimed in the same critical section as the idempotency check, so two
	// racing Connect calls (or a retry timer) can never both reach dial.
	m.state = StateConnecting
	m.mx.Unlock()

	m.notifyState(StateConnecting)
	if settle > 0 {
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)

			return errors.Wrap(ctx.Err(), "connect cancelled before dialing")
		case <-stdlibtime.After(settle):
		}
	}

	return m.dial(ctx)
}

func (m *Manager) dial(ctx context.Context) error {
	m.stats.connectAttempt()
	endpoint, err := m.buildURL()
	if err != nil {
		m.emitTransportError(err)
		m.setState(StateError)

		return err
	}

	conn, bufReader, _, err := ws.Dialer{Timeout: m.cfg.WriteTimeout}.Dial(ctx, endpoint)
	if err != nil {
		err = errors.Wrapf(err, "failed to open websocket channel (scope: %+v)", m.scope)
		m.emitTransportError(err)
		m.setState(StateError)
		m.scheduleRetry(ctx)

		return err
	}

	m.mx.Lock()
	if m.shuttingDown {
		m.mx.Unlock()
		_ = conn.Close()

		return ErrClosed
	}
	m.conn = conn
	m.attempts = 0
	readerDone := make(chan struct{})
	m.readerDone = readerDone
	m.mx.Unlock()

	// The server is the source of truth for what a connection is subscribed
	// to: a fresh transport starts with an empty subscription set.
	m.subs.reset()
	m.setState(StateConnected)

	var frameSource io.Reader = conn
	if bufReader != nil {
		frameSource = bufReader
	}
	go m.readLoop(ctx, conn, frameSource, readerDone)

	return nil
}

func (m *Manager) buildURL() (string, error) {
	endpoint, err := url.Parse(m.cfg.Endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "malformed websocket endpoint: `%v`", m.cfg.Endpoint)
	}
	query := endpoint.Query()
	query.Set("token", m.token)
	if m.scope.RangeID != "" {
		query.Set("range_id", m.scope.RangeID)
	}
	endpoint.RawQuery = query.Encode()

	return endpoint.String(), nil
}

func (m *Manager) readLoop(ctx context.Context, conn net.Conn, frameSource io.Reader, readerDone chan struct{}) {
	defer close(readerDone)
	stream := struct {
		io.Reader
		io.Writer
	}{Reader: frameSource, Writer: conn}

	for {
		data, op, err := wsutil.ReadServerData(stream)
		if err != nil {
			m.handleReadError(ctx, err)

			return
		}
		if op == ws.OpText && len(data) > 0 {
			m.stats.frameIn()
			m.handleFrame(ctx, data)
		}
	}
}

func (m *Manager) handleReadError(ctx context.Context, err error) {
	m.mx.Lock()
	shuttingDown := m.shuttingDown
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mx.Unlock()

	closed := new(wsutil.ClosedError)
	isClosed := errors.As(err, closed)
	if shuttingDown || ctx.Err() != nil || (isClosed && closed.Code == ws.StatusNormalClosure) {
		m.setState(StateDisconnected)

		return
	}

	if isClosed || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		log.Printf("WARN: unclean websocket closure (scope: %+v): %v", m.scope, err)
		m.setState(StateDisconnected)
	} else {
		m.emitTransportError(errors.Wrap(err, "websocket read failed"))
		m.setState(StateError)
	}
	m.scheduleRetry(ctx)
}

func (m *Manager) scheduleRetry(ctx context.Context) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.shuttingDown || ctx.Err() != nil {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		log.Printf("WARN: websocket reconnect attempts exhausted (%v), giving up (scope: %+v)", m.attempts, m.scope)

		return
	}

	delay := m.retryDelay(m.attempts)
	m.attempts++
	m.stats.reconnectScheduled()
	m.retryTimer = stdlibtime.AfterFunc(delay, func() {
		m.mx.Lock()
		if m.shuttingDown || m.state == StateConnecting || m.state == StateConnected {
			m.mx.Unlock()

			return
		}
		m.state = StateConnecting
		m.mx.Unlock()
		m.notifyState(StateConnecting)
		if dErr := m.dial(ctx); dErr != nil && !errors.Is(dErr, ErrClosed) {
			log.Printf("WARN: websocket reconnect failed: %v", dErr)
		}
	})
}

// retryDelay doubles the initial delay per prior attempt, saturating at the
// configured ceiling. Shift overflow lands on the ceiling too.
func (m *Manager) retryDelay(attempt int) stdlibtime.Duration {
	delay := m.cfg.ReconnectInitialDelay << attempt
	if delay <= 0 || delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}

	return delay
}

// Disconnect closes the transport with a normal-closure frame and suppresses
// any further automatic reconnection for this instance.
func (m *Manager) Disconnect() error {
	m.mx.Lock()
	if m.shuttingDown {
		m.mx.Unlock()

		return nil
	}
	m.shuttingDown = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	readerDone := m.readerDone
	m.mx.Unlock()

	var err error
	if conn != nil {
		frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, closeReason))
		m.writeMx.Lock()
		if m.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(stdlibtime.Now().Add(m.cfg.WriteTimeout))
		}
		err = ws.WriteFrame(conn, ws.MaskFrameInPlace(frame))
		m.writeMx.Unlock()
		_ = conn.Close()
	}
	if readerDone != nil {
		<-readerDone
	}
	m.setState(StateDisconnected)

	return errors.Wrap(err, "failed to write close frame")
}

// Send writes a command to the transport. It silently no-ops unless the
// channel is connected: commands are fire and forget, never queued, because
// callers re-issue subscriptions on demand.
func (m *Manager) Send(command *model.Command) error {
	m.mx.Lock()
	conn := m.conn
	state := m.state
	m.mx.Unlock()
	if state != StateConnected || conn == nil {
		return nil
	}

	data, err := command.MarshalBinary()
	if err != nil {
		return err
	}

	m.writeMx.Lock()
	defer m.writeMx.Unlock()
	if m.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(stdlibtime.Now().Add(m.cfg.WriteTimeout))
	}
	if err = wsutil.WriteClientMessage(conn, ws.OpText, data); err != nil {
		return errors.Wrapf(err, "failed to write `%v` command", command.Action)
	}
	m.stats.commandOut()

	return nil
}

func (m *Manager) State() State {
	m.mx.Lock()
	defer m.mx.Unlock()

	return m.state
}

func (m *Manager) Scope() Scope {
	return m.scope
}

// SetHandlers swaps the callback slots in place without touching the
// transport. Dispatch reads through the cell, so the swap takes effect for
// the very next frame.
func (m *Manager) SetHandlers(handlers Handlers) {
	m.handlers.mx.Lock()
	m.handlers.handlers = handlers
	m.handlers.mx.Unlock()
}

func (c *handlerCell) snapshot() Handlers {
	c.mx.RLock()
	defer c.mx.RUnlock()

	return c.handlers
}

func (m *Manager) setState(state State) {
	m.mx.Lock()
	if m.state == state {
		m.mx.Unlock()

		return
	}
	m.state = state
	m.mx.Unlock()
	m.notifyState(state)
}

// notifyState fires the state callback for a transition that was already
// recorded under m.mx.
func (m *Manager) notifyState(state State) {
	if onStateChange := m.handlers.snapshot().OnStateChange; onStateChange != nil {
		onStateChange(state)
	}
}

func (m *Manager) emitTransportError(err error) {
	log.Printf("ERROR:%v", err)
	if onTransportError := m.handlers.snapshot().OnTransportError; onTransportError != nil {
		onTransportError(err)
	}
}
