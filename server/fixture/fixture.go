// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"context"
	"log"
	stdlibtime "time"

	"github.com/rangeforge/pulse/database/records"
	"github.com/rangeforge/pulse/model"
	"github.com/rangeforge/pulse/server"
)

type (
	// TestHub is an in-process hub for exercising the client side: it can
	// broadcast arbitrary frames, force keepalive pings and sever channels
	// uncleanly on demand.
	TestHub struct {
		hub    *server.Hub
		cancel context.CancelFunc
		done   chan struct{}
		token  string
	}
)

const testWriteTimeout = 2 * stdlibtime.Second

// NewTestHub starts a hub on an ephemeral port backed by an in-memory record.
// The automatic ping loop is effectively disabled so tests drive keepalives
// explicitly via ForcePing.
func NewTestHub(ctx context.Context, token string) *TestHub {
	records.MustInit(":memory:")
	hub := server.New(&server.Config{
		Token:        token,
		WriteTimeout: testWriteTimeout,
		PingInterval: stdlibtime.Hour,
	})
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := hub.ListenAndServe(serveCtx); err != nil {
			log.Printf("ERROR:%v", err)
		}
	}()

	return &TestHub{hub: hub, cancel: cancel, done: done, token: token}
}

func (t *TestHub) WSURL() string {
	return "ws://" + t.hub.Addr() + "/ws"
}

func (t *TestHub) URL() string {
	return "http://" + t.hub.Addr()
}

func (t *TestHub) Token() string {
	return t.token
}

func (t *TestHub) Broadcast(ctx context.Context, frame *model.Frame) error {
	return t.hub.Broadcast(ctx, frame)
}

func (t *TestHub) ForcePing() error {
	return t.hub.Ping()
}

// DropConnections severs every channel without a close frame, simulating a
// network partition or a crashed server.
func (t *TestHub) DropConnections() {
	t.hub.DropConnections()
}

// Reset wipes the durable record between test cases.
func (t *TestHub) Reset(ctx context.Context) error {
	return records.Clear(ctx)
}

func (t *TestHub) Close() {
	t.cancel()
	<-t.done
}
