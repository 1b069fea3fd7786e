// SPDX-License-Identifier: ice License 1.0

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	t.Run("Ping", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		require.Equal(t, FrameTypePing, frame.Type)
		require.True(t, frame.IsControl())
		require.False(t, frame.IsEvent())
	})
	t.Run("StatusUpdate", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"type":"status_update","range_status":"deploying","vm_statuses":{"vm-1":"running","vm-2":"stopped"}}`))
		require.NoError(t, err)
		require.Equal(t, FrameTypeStatusUpdate, frame.Type)
		require.Equal(t, "deploying", frame.RangeStatus)
		require.Equal(t, map[string]string{"vm-1": "running", "vm-2": "stopped"}, frame.VMStatuses)
	})
	t.Run("DomainEvent", func(t *testing.T) {
		frame, err := ParseFrame([]byte(`{"event_type":"vm_failed","range_id":"r1","vm_id":"vm-1","message":"boom","data":{"status":"failed"},"timestamp":"2026-08-30T10:00:00Z"}`))
		require.NoError(t, err)
		require.True(t, frame.IsEvent())
		require.False(t, frame.IsControl())

		ev := frame.Event(time.Now())
		require.Equal(t, "vm_failed", ev.EventType)
		require.Equal(t, "r1", ev.RangeID)
		require.Equal(t, "vm-1", ev.VMID)
		require.Equal(t, "boom", ev.Message)
		require.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), ev.Timestamp)
	})
	t.Run("TimestampFallback", func(t *testing.T) {
		now := time.Now()
		frame, err := ParseFrame([]byte(`{"event_type":"x","timestamp":"not-a-time"}`))
		require.NoError(t, err)
		require.Equal(t, now, frame.Event(now).Timestamp)
	})
	t.Run("Malformed", func(t *testing.T) {
		_, err := ParseFrame([]byte(`{"type":`))
		require.ErrorIs(t, err, ErrParseFrame)
	})
	t.Run("NotAnObject", func(t *testing.T) {
		_, err := ParseFrame([]byte(`["EVENT","sub"]`))
		require.ErrorIs(t, err, ErrParseFrame)
	})
}

func TestCommandMarshal(t *testing.T) {
	t.Parallel()

	for expected, command := range map[string]*Command{
		`{"action":"pong"}`:                        NewPongCommand(),
		`{"action":"subscribe","range_id":"r1"}`:   NewSubscribeCommand("r1"),
		`{"action":"unsubscribe","range_id":"r1"}`: NewUnsubscribeCommand("r1"),
		`{"action":"subscribe_vm","vm_id":"vm-1"}`: NewSubscribeVMCommand("vm-1"),
	} {
		data, err := command.MarshalBinary()
		require.NoError(t, err)
		require.JSONEq(t, expected, string(data))
	}
}

func TestSecondaryRoutingPredicates(t *testing.T) {
	t.Parallel()

	t.Run("VMStatusSentinel", func(t *testing.T) {
		ev := &RealtimeEvent{EventType: EventTypeVMStatusChanged, VMID: "vm-1", Data: map[string]any{"status": "running"}}
		vmID, status, ok := ev.IsVMStatusEvent()
		require.True(t, ok)
		require.Equal(t, "vm-1", vmID)
		require.Equal(t, "running", status)
	})
	t.Run("VMPrefixWithoutStatusPayload", func(t *testing.T) {
		ev := &RealtimeEvent{EventType: "vm_deployed", VMID: "vm-1"}
		_, _, ok := ev.IsVMStatusEvent()
		require.False(t, ok)
	})
	t.Run("NonVMEvent", func(t *testing.T) {
		ev := &RealtimeEvent{EventType: "range_deployed", Data: map[string]any{"status": "done"}}
		_, _, ok := ev.IsVMStatusEvent()
		require.False(t, ok)
	})
	t.Run("ProgressSentinel", func(t *testing.T) {
		ev := &RealtimeEvent{EventType: EventTypeDeploymentProgress, Message: "installing", Data: map[string]any{"step": "ansible"}}
		step, message, ok := ev.IsProgressEvent()
		require.True(t, ok)
		require.Equal(t, "ansible", step)
		require.Equal(t, "installing", message)
	})
	t.Run("ProgressPrefixWithoutStep", func(t *testing.T) {
		ev := &RealtimeEvent{EventType: "progress_update", Message: "50%"}
		step, message, ok := ev.IsProgressEvent()
		require.True(t, ok)
		require.Empty(t, step)
		require.Equal(t, "50%", message)
	})
}
