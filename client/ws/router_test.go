// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rangeforge/pulse/model"
)

type routedCalls struct {
	mx               sync.Mutex
	events           []*model.RealtimeEvent
	rangeStatuses    []string
	vmStatusesSeen   []map[string]string
	vmChanges        [][2]string
	progressReports  [][2]string
	transportErrors  []error
	stateTransitions []State
}

func helperNewRoutedManager(t *testing.T) (*Manager, *routedCalls) {
	t.Helper()
	calls := new(routedCalls)
	manager := New(&Config{Endpoint: "ws://localhost:0/ws", DebugMetrics: true}, "tkn", Scope{}, Handlers{
		OnEvent: func(event *model.RealtimeEvent) {
			calls.mx.Lock()
			calls.events = append(calls.events, event)
			calls.mx.Unlock()
		},
		OnStatusSnapshot: func(rangeStatus string, vmStatuses map[string]string) {
			calls.mx.Lock()
			calls.rangeStatuses = append(calls.rangeStatuses, rangeStatus)
			calls.vmStatusesSeen = append(calls.vmStatusesSeen, vmStatuses)
			calls.mx.Unlock()
		},
		OnVMStatusChange: func(vmID, status string) {
			calls.mx.Lock()
			calls.vmChanges = append(calls.vmChanges, [2]string{vmID, status})
			calls.mx.Unlock()
		},
		OnProgress: func(step, message string) {
			calls.mx.Lock()
			calls.progressReports = append(calls.progressReports, [2]string{step, message})
			calls.mx.Unlock()
		},
		OnTransportError: func(err error) {
			calls.mx.Lock()
			calls.transportErrors = append(calls.transportErrors, err)
			calls.mx.Unlock()
		},
		OnStateChange: func(state State) {
			calls.mx.Lock()
			calls.stateTransitions = append(calls.stateTransitions, state)
			calls.mx.Unlock()
		},
	})

	return manager, calls
}

func TestRouteStatusSnapshot(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"type":"status_update","range_status":"deployed","vm_statuses":{"vm-1":"running"}}`))

	require.Equal(t, []string{"deployed"}, calls.rangeStatuses)
	require.Equal(t, []map[string]string{{"vm-1": "running"}}, calls.vmStatusesSeen)
	require.Empty(t, calls.events)
}

func TestRouteEventIsUnconditionalAndSecondaryRoutingIsAdditive(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"event_type":"vm_status_changed","vm_id":"vm-1","data":{"status":"running"}}`))
	manager.handleFrame(context.Background(), []byte(`{"event_type":"progress_update","data":{"step":"cloning"},"message":"cloning disks"}`))
	manager.handleFrame(context.Background(), []byte(`{"event_type":"range_deployed","range_id":"r1","message":"up"}`))

	require.Len(t, calls.events, 3)
	require.Equal(t, [][2]string{{"vm-1", "running"}}, calls.vmChanges)
	require.Equal(t, [][2]string{{"cloning", "cloning disks"}}, calls.progressReports)
}

func TestRouteVMEventWithoutStatusSkipsSecondaryRouting(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"event_type":"vm_started","vm_id":"vm-1"}`))

	require.Len(t, calls.events, 1)
	require.Empty(t, calls.vmChanges)
}

func TestRouteMalformedFrameIsDroppedNotFatal(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"type":`))
	manager.handleFrame(context.Background(), []byte(`not json at all`))

	require.Empty(t, calls.events)
	require.EqualValues(t, 2, manager.Stats().DecodeDrops)
}

func TestRoutePingWhileDisconnectedDoesNotPanic(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"type":"ping"}`))

	require.Empty(t, calls.events)
	require.Zero(t, manager.Stats().CommandsOut)
}

func TestRouteUnknownControlFrameIsIgnored(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"type":"mystery"}`))

	require.Empty(t, calls.events)
	require.Empty(t, calls.rangeStatuses)
	require.Zero(t, manager.Stats().DecodeDrops)
}

func TestSetHandlersSwapsInPlace(t *testing.T) {
	t.Parallel()
	manager, calls := helperNewRoutedManager(t)

	manager.handleFrame(context.Background(), []byte(`{"event_type":"range_deployed","range_id":"r1"}`))
	require.Len(t, calls.events, 1)

	var swapped []*model.RealtimeEvent
	manager.SetHandlers(Handlers{OnEvent: func(event *model.RealtimeEvent) { swapped = append(swapped, event) }})
	manager.handleFrame(context.Background(), []byte(`{"event_type":"range_failed","range_id":"r1"}`))

	require.Len(t, calls.events, 1)
	require.Len(t, swapped, 1)
	require.Equal(t, "range_failed", swapped[0].EventType)
}
