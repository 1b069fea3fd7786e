// SPDX-License-Identifier: ice License 1.0

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotificationFromBareEvent(t *testing.T) {
	t.Parallel()

	timestamp := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	n := NotificationFromEvent(&RealtimeEvent{
		EventType: "vm_failed",
		RangeID:   "r1",
		VMID:      "vm-1",
		Message:   "boom",
		Timestamp: timestamp,
	})

	require.True(t, strings.HasPrefix(n.ID, "local-"))
	require.Equal(t, OriginLocal, n.Origin)
	require.Equal(t, "vm_failed", n.Kind)
	require.Equal(t, "Vm Failed", n.Title)
	require.Equal(t, "boom", n.Message)
	require.Equal(t, SeverityError, n.Severity)
	require.Equal(t, timestamp, n.Timestamp)
	require.False(t, n.Read)
	require.Equal(t, "vm", n.ResourceType)
	require.Equal(t, "vm-1", n.ResourceID)
}

func TestNotificationFromEnvelope(t *testing.T) {
	t.Parallel()

	t.Run("ServerID", func(t *testing.T) {
		n := NotificationFromEvent(&RealtimeEvent{
			EventType: EventTypeNotification,
			Message:   "range ready",
			Data: map[string]any{
				"id":            "srv-42",
				"kind":          "range_deployed",
				"title":         "Range deployed",
				"severity":      "success",
				"resource_type": "range",
				"resource_id":   "r1",
			},
		})
		require.Equal(t, "srv-42", n.ID)
		require.Equal(t, OriginServer, n.Origin)
		require.Equal(t, SeveritySuccess, n.Severity)
		require.Equal(t, "range", n.ResourceType)
		require.Equal(t, "r1", n.ResourceID)
		require.False(t, n.Read)
	})
	t.Run("MissingIDGetsGeneratedOne", func(t *testing.T) {
		n := NotificationFromEvent(&RealtimeEvent{
			EventType: EventTypeNotification,
			Message:   "hello",
			Data:      map[string]any{"kind": "announcement"},
		})
		require.True(t, strings.HasPrefix(n.ID, "local-"))
		require.Equal(t, OriginServer, n.Origin)
		require.Equal(t, "Announcement", n.Title)
	})
	t.Run("UnknownSeverityDefaultsToInfo", func(t *testing.T) {
		n := NotificationFromEvent(&RealtimeEvent{
			EventType: EventTypeNotification,
			Data:      map[string]any{"id": "srv-1", "severity": "catastrophic"},
		})
		require.Equal(t, SeverityInfo, n.Severity)
	})
}

func TestSeverityFromEventType(t *testing.T) {
	t.Parallel()

	for eventType, expected := range map[string]Severity{
		"vm_failed":         SeverityError,
		"deployment_error":  SeverityError,
		"vm_stopped":        SeverityWarning,
		"range_stopping":    SeverityWarning,
		"progress_step":     SeverityWarning,
		"deploy_success":    SeveritySuccess,
		"testing_completed": SeveritySuccess,
		"range_deployed":    SeveritySuccess,
		"vm_created":        SeverityInfo,
		"":                  SeverityInfo,
	} {
		require.Equal(t, expected, SeverityFromEventType(eventType), "event type %q", eventType)
	}
}

func TestLocalNotificationIDsAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewLocalNotificationID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %v", id)
		seen[id] = struct{}{}
	}
}
