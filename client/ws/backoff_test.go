// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"testing"
	stdlibtime "time"

	"github.com/stretchr/testify/require"
)

func TestRetryDelayDoublesThenSaturates(t *testing.T) {
	t.Parallel()
	manager := New(&Config{
		ReconnectInitialDelay: 1 * stdlibtime.Second,
		ReconnectMaxDelay:     30 * stdlibtime.Second,
	}, "token", Scope{}, Handlers{})

	for attempt, expected := range []stdlibtime.Duration{
		1 * stdlibtime.Second,
		2 * stdlibtime.Second,
		4 * stdlibtime.Second,
		8 * stdlibtime.Second,
		16 * stdlibtime.Second,
		30 * stdlibtime.Second,
		30 * stdlibtime.Second,
	} {
		require.Equal(t, expected, manager.retryDelay(attempt), "attempt %v", attempt)
	}
}

func TestRetryDelayShiftOverflowSaturates(t *testing.T) {
	t.Parallel()
	manager := New(&Config{
		ReconnectInitialDelay: 1 * stdlibtime.Second,
		ReconnectMaxDelay:     30 * stdlibtime.Second,
	}, "token", Scope{}, Handlers{})

	require.Equal(t, 30*stdlibtime.Second, manager.retryDelay(62))
	require.Equal(t, 30*stdlibtime.Second, manager.retryDelay(64))
}
