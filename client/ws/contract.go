// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"net"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"

	"github.com/rangeforge/pulse/model"
)

type (
	State string

	// Scope narrows which events a channel receives. The zero value is the
	// global channel. Immutable once a Manager is constructed: changing scope
	// means tearing the manager down and creating a new one.
	Scope struct {
		RangeID string
	}

	// Handlers are the callback slots invoked by the event router. They are
	// held behind a mutable cell read at dispatch time, so callers may swap
	// fresh closures at any moment without tearing down the transport.
	Handlers struct {
		OnEvent          func(event *model.RealtimeEvent)
		OnStatusSnapshot func(rangeStatus string, vmStatuses map[string]string)
		OnVMStatusChange func(vmID, status string)
		OnProgress       func(step, message string)
		OnTransportError func(err error)
		OnStateChange    func(state State)
	}

	Config struct {
		Endpoint              string              `yaml:"endpoint"`
		InitialConnectDelay   stdlibtime.Duration `yaml:"initialConnectDelay"`
		ReconnectInitialDelay stdlibtime.Duration `yaml:"reconnectInitialDelay"`
		ReconnectMaxDelay     stdlibtime.Duration `yaml:"reconnectMaxDelay"`
		MaxReconnectAttempts  int                 `yaml:"maxReconnectAttempts"`
		WriteTimeout          stdlibtime.Duration `yaml:"writeTimeout"`
		DebugMetrics          bool                `yaml:"debugMetrics"`
	}

	// Manager owns at most one live websocket per logical channel and recovers
	// from unclean closures with exponential backoff. All callbacks fire on the
	// reader goroutine; they must not block.
	Manager struct {
		cfg   *Config
		token string
		scope Scope

		handlers *handlerCell
		stats    stats
		subs     *subscriptionSet

		writeMx sync.Mutex

		mx           sync.Mutex
		state        State
		conn         net.Conn
		attempts     int
		firstConnect bool
		shuttingDown bool
		retryTimer   *stdlibtime.Timer
		readerDone   chan struct{}
	}

	handlerCell struct {
		mx       sync.RWMutex
		handlers Handlers
	}
)

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"

	defaultInitialConnectDelay   = 50 * stdlibtime.Millisecond
	defaultReconnectInitialDelay = 1 * stdlibtime.Second
	defaultReconnectMaxDelay     = 30 * stdlibtime.Second
	defaultMaxReconnectAttempts  = 10
	defaultWriteTimeout          = 5 * stdlibtime.Second

	closeReason = "client disconnect"
)

var (
	ErrClosed = errors.New("connection manager is closed")
)
