package relay

import (
	"context"
	"sync"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/metrics"
)

// packetReporter submits a session's packet events from a single worker so
// the relay never waits on the backend. Events are best effort: each gets
// one attempt, and events that arrive while the queue is full are dropped.
type packetReporter struct {
	s      *Session
	events chan backend.PacketEvent
	wg     sync.WaitGroup
}

func newPacketReporter(ctx context.Context, s *Session) *packetReporter {
	r := &packetReporter{
		s:      s,
		events: make(chan backend.PacketEvent, s.cfg.TelemetryQueue),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
	return r
}

func (r *packetReporter) run(ctx context.Context) {
	skipped := 0
	for ev := range r.events {
		// Events still queued at shutdown are dropped, not sent.
		if ctx.Err() != nil {
			skipped++
			r.s.cfg.Metrics.TelemetryDropped.Inc()
			continue
		}
		ev.EgressAddress = r.s.EgressAddress(ctx)
		if err := r.s.cfg.Telemetry.ReportPacket(ctx, ev); err != nil {
			r.s.cfg.Metrics.TelemetryErrors.WithLabelValues(metrics.KindPacket).Inc()
			r.s.log.WithError(err).WithField("context", ev.Context).Warn("packet report failed")
		}
	}
	if skipped > 0 {
		r.s.log.WithField("dropped", skipped).Debug("packet events dropped on shutdown")
	}
}

// enqueue never blocks. It must not be called after close.
func (r *packetReporter) enqueue(ev backend.PacketEvent) {
	select {
	case r.events <- ev:
	default:
		r.s.cfg.Metrics.TelemetryDropped.Inc()
	}
}

// close waits for queued events to be submitted, or dropped if the
// reporter's context is done.
func (r *packetReporter) close() {
	close(r.events)
	r.wg.Wait()
}
