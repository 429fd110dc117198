package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/poolsocks/internal/backend"
)

// direction is one half of the relay.
type direction struct {
	context      string
	src, dst     net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// relay pumps both directions until one of them stops. Each read is written to the other side before it is inspected,
// logged, or reported, so telemetry never delays traffic.
func (s *Session) relay(ctx context.Context, up net.Conn, rep *packetReporter) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, s.terminate)
	defer stop()

	g.Go(func() error {
		return s.pump(direction{
			context:      backend.ContextMiner,
			src:          s.client,
			dst:          up,
			readTimeout:  s.cfg.ClientTimeout,
			writeTimeout: s.cfg.PoolTimeout,
		}, rep)
	})
	g.Go(func() error {
		return s.pump(direction{
			context:      backend.ContextPool,
			src:          up,
			dst:          s.client,
			readTimeout:  s.cfg.PoolTimeout,
			writeTimeout: s.cfg.ClientTimeout,
		}, rep)
	})

	return g.Wait()
}

func (s *Session) pump(d direction, rep *packetReporter) error {
	bp := s.cfg.frames.Get()
	defer s.cfg.frames.Put(bp)
	buf := *bp

	for {
		if d.readTimeout > 0 {
			_ = d.src.SetReadDeadline(time.Now().Add(d.readTimeout))
		}
		n, rerr := d.src.Read(buf)
		if n > 0 {
			if d.writeTimeout > 0 {
				_ = d.dst.SetWriteDeadline(time.Now().Add(d.writeTimeout))
			}
			if _, err := d.dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("%s write: %w", d.context, err)
			}
			s.observe(d.context, buf[:n], rep)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return fmt.Errorf("%s: %w", d.context, ErrPeerClosed)
			}
			return fmt.Errorf("%s read: %w", d.context, rerr)
		}
	}
}

// observe accounts for one relayed frame.
func (s *Session) observe(side string, b []byte, rep *packetReporter) {
	m := s.cfg.Metrics
	frame := Inspect(b)
	if frame.Malformed {
		m.MalformedFrames.WithLabelValues(side).Inc()
		s.log.WithFields(logrus.Fields{"context": side, "raw": string(b)}).Warn("malformed frame")
	} else if s.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		s.log.WithField("context", side).Debug(frame.Pretty())
	}

	dest, _ := s.Destination()
	rep.enqueue(backend.PacketEvent{
		SessionID:     s.id,
		ClientAddress: s.clientAddr,
		Context:       side,
		PoolHostname:  dest.Hostname,
		Payload:       append([]byte(nil), b...),
	})

	s.count(len(b))
	m.Packets.WithLabelValues(side).Inc()
	m.Bytes.WithLabelValues(side).Add(float64(len(b)))
}
