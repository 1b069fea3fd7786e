// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"log"
	stdlibtime "time"

	"github.com/cockroachdb/errors"

	"github.com/rangeforge/pulse/model"
)

func (m *Manager) handleFrame(ctx context.Context, message []byte) {
	frame, err := model.ParseFrame(message)
	if err != nil {
		// A malformed frame must never tear down the connection.
		m.stats.decodeDrop()
		log.Printf("WARN: dropping malformed frame: %v", err)

		return
	}
	m.route(ctx, frame)
}

// route classifies a decoded frame and dispatches it, stopping at the first
// match: a frame is never both a control message and a domain event. Secondary
// routing for domain events is additive on top of the unconditional OnEvent.
func (m *Manager) route(_ context.Context, frame *model.Frame) {
	handlers := m.handlers.snapshot()
	switch {
	case frame.Type == model.FrameTypePing:
		// Answering the server ping is the sole keepalive mechanism.
		if err := m.Send(model.NewPongCommand()); err != nil {
			log.Printf("ERROR:%v", errors.Wrap(err, "failed to answer server ping"))
		}
	case frame.Type == model.FrameTypeConnected:
		log.Printf("websocket channel acknowledged (scope: %+v): %v", m.scope, frame.Message)
	case frame.Type == model.FrameTypeStatusUpdate:
		if handlers.OnStatusSnapshot != nil {
			handlers.OnStatusSnapshot(frame.RangeStatus, frame.VMStatuses)
		}
	case frame.IsEvent():
		event := frame.Event(stdlibtime.Now())
		if handlers.OnEvent != nil {
			handlers.OnEvent(event)
		}
		if vmID, status, ok := event.IsVMStatusEvent(); ok && handlers.OnVMStatusChange != nil {
			handlers.OnVMStatusChange(vmID, status)
		}
		if step, message, ok := event.IsProgressEvent(); ok && handlers.OnProgress != nil {
			handlers.OnProgress(step, message)
		}
	default:
	}
}
