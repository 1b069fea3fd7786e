// SPDX-License-Identifier: ice License 1.0

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationFromEvent derives a feed entry from a realtime event. The
// generic notification envelope keeps the server's durable id and stays
// server-origin; any other event is synthesized best-effort as local-origin.
func NotificationFromEvent(ev *RealtimeEvent) *Notification {
	if ev.EventType == EventTypeNotification {
		return notificationFromEnvelope(ev)
	}

	return &Notification{
		ID:           NewLocalNotificationID(),
		Kind:         ev.EventType,
		Title:        titleFromEventType(ev.EventType),
		Message:      ev.Message,
		Severity:     SeverityFromEventType(ev.EventType),
		Timestamp:    ev.Timestamp,
		Read:         false,
		ResourceType: resourceTypeForEvent(ev),
		ResourceID:   resourceIDForEvent(ev),
		Origin:       OriginLocal,
	}
}

func notificationFromEnvelope(ev *RealtimeEvent) *Notification {
	n := &Notification{
		ID:        stringField(ev.Data, "id"),
		Kind:      stringField(ev.Data, "kind"),
		Title:     stringField(ev.Data, "title"),
		Message:   ev.Message,
		Severity:  Severity(stringField(ev.Data, "severity")),
		Timestamp: ev.Timestamp,
		Read:      false,
		Origin:    OriginServer,
	}
	if n.ID == "" {
		n.ID = NewLocalNotificationID()
	}
	if n.Title == "" {
		n.Title = titleFromEventType(n.Kind)
	}
	switch n.Severity {
	case SeverityInfo, SeverityWarning, SeverityError, SeveritySuccess:
	default:
		n.Severity = SeverityInfo
	}
	n.ResourceType = stringField(ev.Data, "resource_type")
	n.ResourceID = stringField(ev.Data, "resource_id")

	return n
}

func NewLocalNotificationID() string {
	return fmt.Sprintf("local-%v-%v", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func SeverityFromEventType(eventType string) Severity {
	normalized := strings.ToLower(eventType)
	switch {
	case strings.Contains(normalized, "failed"), strings.Contains(normalized, "error"):
		return SeverityError
	case strings.Contains(normalized, "stopped"), strings.Contains(normalized, "stopping"), strings.Contains(normalized, "step"):
		return SeverityWarning
	case strings.Contains(normalized, "success"), strings.Contains(normalized, "completed"), strings.Contains(normalized, "deployed"):
		return SeveritySuccess
	default:
		return SeverityInfo
	}
}

func titleFromEventType(eventType string) string {
	if eventType == "" {
		return "Notification"
	}
	words := strings.Split(strings.ReplaceAll(eventType, "_", " "), " ")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}

	return strings.Join(words, " ")
}

func resourceTypeForEvent(ev *RealtimeEvent) string {
	switch {
	case ev.VMID != "":
		return "vm"
	case ev.RangeID != "":
		return "range"
	default:
		return ""
	}
}

func resourceIDForEvent(ev *RealtimeEvent) string {
	if ev.VMID != "" {
		return ev.VMID
	}

	return ev.RangeID
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if value, found := data[key]; found {
		if s, ok := value.(string); ok {
			return s
		}
	}

	return ""
}
