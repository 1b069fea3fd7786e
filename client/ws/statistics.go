// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"log"

	"github.com/rcrowley/go-metrics"
)

type (
	Stats struct {
		ConnectAttempts int64
		Reconnects      int64
		FramesIn        int64
		DecodeDrops     int64
		CommandsOut     int64
	}
	stats interface {
		connectAttempt()
		reconnectScheduled()
		frameIn()
		decodeDrop()
		commandOut()
		Snapshot() Stats
	}
	debugStats struct {
		registry        metrics.Registry
		connectAttempts metrics.Counter
		reconnects      metrics.Counter
		framesIn        metrics.Counter
		decodeDrops     metrics.Counter
		commandsOut     metrics.Counter
	}
	noopStats struct{}
)

const (
	connectAttemptsMetric = "connectAttempts"
	reconnectsMetric      = "reconnects"
	framesInMetric        = "framesIn"
	decodeDropsMetric     = "decodeDrops"
	commandsOutMetric     = "commandsOut"
)

func newStats(debug bool) stats {
	if !debug {
		return &noopStats{}
	}
	s := &debugStats{
		registry:        metrics.NewRegistry(),
		connectAttempts: metrics.NewCounter(),
		reconnects:      metrics.NewCounter(),
		framesIn:        metrics.NewCounter(),
		decodeDrops:     metrics.NewCounter(),
		commandsOut:     metrics.NewCounter(),
	}
	for name, counter := range map[string]metrics.Counter{
		connectAttemptsMetric: s.connectAttempts,
		reconnectsMetric:      s.reconnects,
		framesInMetric:        s.framesIn,
		decodeDropsMetric:     s.decodeDrops,
		commandsOutMetric:     s.commandsOut,
	} {
		if err := s.registry.Register(name, counter); err != nil {
			log.Printf("WARN: failed to register `%v` metric: %v", name, err)
		}
	}

	return s
}

func (s *debugStats) connectAttempt()     { s.connectAttempts.Inc(1) }
func (s *debugStats) reconnectScheduled() { s.reconnects.Inc(1) }
func (s *debugStats) frameIn()            { s.framesIn.Inc(1) }
func (s *debugStats) decodeDrop()         { s.decodeDrops.Inc(1) }
func (s *debugStats) commandOut()         { s.commandsOut.Inc(1) }

func (s *debugStats) Snapshot() Stats {
	return Stats{
		ConnectAttempts: s.connectAttempts.Count(),
		Reconnects:      s.reconnects.Count(),
		FramesIn:        s.framesIn.Count(),
		DecodeDrops:     s.decodeDrops.Count(),
		CommandsOut:     s.commandsOut.Count(),
	}
}

func (*noopStats) connectAttempt()     {}
func (*noopStats) reconnectScheduled() {}
func (*noopStats) frameIn()            {}
func (*noopStats) decodeDrop()         {}
func (*noopStats) commandOut()         {}
func (*noopStats) Snapshot() Stats     { return Stats{} }

// Stats reports transport counters. Zero-valued unless debug metrics are
// enabled in the config.
func (m *Manager) Stats() Stats {
	return m.stats.Snapshot()
}
