// SPDX-License-Identifier: ice License 1.0

package model

import (
	"time"

	"github.com/cockroachdb/errors"
)

type (
	FrameType    string
	Severity     string
	Origin       string
	CommandAction string

	// Frame is the decoded inbound message envelope. A frame carries either a
	// control type or a non-empty EventType, never both at routing time.
	Frame struct {
		Type        FrameType         `json:"type,omitempty"`
		EventType   string            `json:"event_type,omitempty"`
		RangeID     string            `json:"range_id,omitempty"`
		VMID        string            `json:"vm_id,omitempty"`
		Message     string            `json:"message,omitempty"`
		Data        map[string]any    `json:"data,omitempty"`
		Timestamp   string            `json:"timestamp,omitempty"`
		RangeStatus string            `json:"range_status,omitempty"`
		VMStatuses  map[string]string `json:"vm_statuses,omitempty"`
	}

	// Command is the outbound message envelope.
	Command struct {
		Action  CommandAction `json:"action"`
		RangeID string        `json:"range_id,omitempty"`
		VMID    string        `json:"vm_id,omitempty"`
	}

	// RealtimeEvent is a domain event decoded from a frame. Ephemeral: it lives
	// for the duration of a callback dispatch and, optionally, a derived
	// Notification.
	RealtimeEvent struct {
		EventType string
		RangeID   string
		VMID      string
		Message   string
		Data      map[string]any
		Timestamp time.Time
	}

	Notification struct {
		ID           string    `json:"id"`
		Kind         string    `json:"kind"`
		Title        string    `json:"title"`
		Message      string    `json:"message"`
		Severity     Severity  `json:"severity"`
		Timestamp    time.Time `json:"timestamp"`
		Read         bool      `json:"read"`
		ResourceType string    `json:"resource_type,omitempty"`
		ResourceID   string    `json:"resource_id,omitempty"`
		Origin       Origin    `json:"-"`
	}
)

const (
	FrameTypePing         FrameType = "ping"
	FrameTypeConnected    FrameType = "connected"
	FrameTypeStatusUpdate FrameType = "status_update"

	CommandActionPong        CommandAction = "pong"
	CommandActionSubscribe   CommandAction = "subscribe"
	CommandActionUnsubscribe CommandAction = "unsubscribe"
	CommandActionSubscribeVM CommandAction = "subscribe_vm"

	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"

	OriginLocal  Origin = "local"
	OriginServer Origin = "server"

	// EventTypeNotification is the generic notification envelope: the server
	// generated it and also persists it, so the derived entry is server-origin
	// even when it arrives over the socket.
	EventTypeNotification = "notification"

	EventTypeVMStatusChanged    = "vm_status_changed"
	EventTypeDeploymentProgress = "deployment_progress"

	vmEventPrefix       = "vm_"
	progressEventPrefix = "progress_"
)

var (
	ErrParseFrame = errors.New("parse frame")
)
