// SPDX-License-Identifier: ice License 1.0

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

func ParseFrame(message []byte) (*Frame, error) {
	if !gjson.ValidBytes(message) {
		return nil, errors.Wrapf(ErrParseFrame, "malformed json frame: `%v`", string(message))
	}
	r := gjson.ParseBytes(message)
	if !r.IsObject() {
		return nil, errors.Wrapf(ErrParseFrame, "frame is not an object: `%v`", string(message))
	}

	frame := &Frame{
		Type:        FrameType(r.Get("type").String()),
		EventType:   r.Get("event_type").String(),
		RangeID:     r.Get("range_id").String(),
		VMID:        r.Get("vm_id").String(),
		Message:     r.Get("message").String(),
		Timestamp:   r.Get("timestamp").String(),
		RangeStatus: r.Get("range_status").String(),
	}
	if data := r.Get("data"); data.IsObject() {
		frame.Data = data.Value().(map[string]any)
	}
	if statuses := r.Get("vm_statuses"); statuses.IsObject() {
		frame.VMStatuses = make(map[string]string, len(statuses.Map()))
		for vmID, status := range statuses.Map() {
			frame.VMStatuses[vmID] = status.String()
		}
	}

	return frame, nil
}

// Event converts a domain-event frame into a RealtimeEvent. The frame's
// timestamp falls back to the receive time when absent or unparsable.
func (f *Frame) Event(now time.Time) *RealtimeEvent {
	timestamp := now
	if f.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, f.Timestamp); err == nil {
			timestamp = parsed
		}
	}

	return &RealtimeEvent{
		EventType: f.EventType,
		RangeID:   f.RangeID,
		VMID:      f.VMID,
		Message:   f.Message,
		Data:      f.Data,
		Timestamp: timestamp,
	}
}

func (f *Frame) IsControl() bool {
	return f.Type == FrameTypePing || f.Type == FrameTypeConnected || f.Type == FrameTypeStatusUpdate
}

func (f *Frame) IsEvent() bool {
	return f.EventType != ""
}

func (c *Command) MarshalBinary() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize %+v into json", c)
	}

	return data, nil
}

func NewPongCommand() *Command {
	return &Command{Action: CommandActionPong}
}

func NewSubscribeCommand(rangeID string) *Command {
	return &Command{Action: CommandActionSubscribe, RangeID: rangeID}
}

func NewUnsubscribeCommand(rangeID string) *Command {
	return &Command{Action: CommandActionUnsubscribe, RangeID: rangeID}
}

func NewSubscribeVMCommand(vmID string) *Command {
	return &Command{Action: CommandActionSubscribeVM, VMID: vmID}
}

// IsVMStatusEvent reports whether the event should additionally be routed to
// the scoped VM status callback. The payload must carry a status field.
func (ev *RealtimeEvent) IsVMStatusEvent() (vmID, status string, ok bool) {
	if ev.EventType != EventTypeVMStatusChanged && !strings.HasPrefix(ev.EventType, vmEventPrefix) {
		return "", "", false
	}
	rawStatus, found := ev.Data["status"]
	if !found {
		return "", "", false
	}
	status, ok = rawStatus.(string)

	return ev.VMID, status, ok && status != ""
}

// IsProgressEvent reports whether the event should additionally be routed to
// the deployment progress callback.
func (ev *RealtimeEvent) IsProgressEvent() (step, message string, ok bool) {
	if ev.EventType != EventTypeDeploymentProgress && !strings.HasPrefix(ev.EventType, progressEventPrefix) {
		return "", "", false
	}
	if rawStep, found := ev.Data["step"]; found {
		step, _ = rawStep.(string)
	}

	return step, ev.Message, true
}
