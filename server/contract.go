// SPDX-License-Identifier: ice License 1.0

package server

import (
	"net"
	"net/http"
	"sync"
	stdlibtime "time"
)

type (
	Config struct {
		Token        string              `yaml:"token"`
		SqliteTarget string              `yaml:"sqliteTarget"`
		WriteTimeout stdlibtime.Duration `yaml:"writeTimeout"`
		PingInterval stdlibtime.Duration `yaml:"pingInterval"`
		Port         uint16              `yaml:"port"`
	}

	// Hub accepts websocket channels, tracks their subscription scopes and
	// fans realtime frames out to them. It also serves the REST surface the
	// notification snapshot client reads from.
	Hub struct {
		cfg        *Config
		listener   net.Listener
		httpServer *http.Server

		connsMx sync.Mutex
		conns   map[*hubConn]struct{}

		started  chan struct{}
		pingDone chan struct{}
		wg       sync.WaitGroup
	}

	// hubConn is one accepted websocket channel together with the scopes it
	// asked for. A channel dialed with a range_id query starts subscribed to
	// that range.
	hubConn struct {
		conn net.Conn

		writeMx sync.Mutex

		mx     sync.Mutex
		ranges map[string]struct{}
		vms    map[string]struct{}
	}
)

const (
	defaultWriteTimeout = 5 * stdlibtime.Second
	defaultPingInterval = 30 * stdlibtime.Second
)
