package main

import (
	"log/slog"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/world"
)

type namedSink struct {
	name string
	s    world.TickSink
}

// multiSink fans each tick out to every sink. A failing sink is logged and
// does not stop the others.
type multiSink struct {
	log   *slog.Logger
	sinks []namedSink
}

func (m *multiSink) add(name string, s world.TickSink) {
	m.sinks = append(m.sinks, namedSink{name: name, s: s})
}

func (m *multiSink) WriteTick(msg protocol.TickMsg) error {
	for _, ns := range m.sinks {
		if err := ns.s.WriteTick(msg); err != nil && m.log != nil {
			m.log.Warn("tick sink", "sink", ns.name, "tick", msg.Tick, "err", err)
		}
	}
	return nil
}
