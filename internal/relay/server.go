package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/metrics"
)

// Backoff between accept retries after temporary errors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts miner connections and runs a Session for each.
type Server struct {
	ctx      context.Context
	cfg      *Config
	registry Registry
	nextID   atomic.Int64
	wg       sync.WaitGroup
}

// NewServer returns a Server whose sessions and reports end when ctx does.
func NewServer(ctx context.Context, cfg *Config) *Server {
	cfg.init()
	return &Server{ctx: ctx, cfg: cfg}
}

func (s *Server) Registry() *Registry { return &s.registry }

// Serve accepts until ln is closed. Closing ln after the Server's context
// is done is a clean shutdown and returns nil. Temporary accept errors are
// logged and retried with a backoff; any other accept error is returned.
func (s *Server) Serve(ln net.Listener) error {
	s.cfg.Log.WithField("listen", ln.Addr().String()).Info("accepting miners")
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !isTemporary(err) {
				return fmt.Errorf("accept: %w", err)
			}
			delay = min(max(2*delay, minAcceptDelay), maxAcceptDelay)
			s.cfg.Log.WithError(err).WithField("retry_in", delay).Warn("accept failed")
			t := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		delay = 0

		s.registry.Sweep()
		sess := NewSession(s.nextID.Add(1), c, s.cfg)
		s.registry.Add(sess)
		s.cfg.Metrics.SessionsAccepted.Inc()
		s.cfg.Metrics.SessionsActive.Set(float64(s.registry.Len()))
		sess.log.Info("miner connected")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Run(s.ctx)
		}()
	}
}

// Wait blocks until every session started by Serve has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ReportLoop sends an aggregate report now and then every ReportInterval
// until the Server's context is done.
func (s *Server) ReportLoop() error {
	t := time.NewTicker(s.cfg.ReportInterval)
	defer t.Stop()
	for {
		_ = s.Report()
		select {
		case <-s.ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Report sweeps the registry and submits its snapshot, retrying every
// StatsRetryDelay. Retries stop once ReportInterval has passed, since the
// next report supersedes this one.
func (s *Server) Report() error {
	s.registry.Sweep()
	miners := s.registry.Snapshot()
	n := len(miners)
	s.cfg.Metrics.SessionsActive.Set(float64(n))
	st := backend.Stats{ActiveConnections: n, Miners: miners}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReportInterval)
	defer cancel()
	err := backend.Retry(ctx, s.cfg.StatsRetryDelay, s.cfg.Log, func(ctx context.Context) error {
		return s.cfg.Telemetry.ReportStats(ctx, st)
	})
	if err != nil {
		s.cfg.Metrics.TelemetryErrors.WithLabelValues(metrics.KindStats).Inc()
		s.cfg.Log.WithError(err).Warn("stats report failed")
		return err
	}
	s.cfg.Log.WithField("connections", n).Debug("stats reported")
	return nil
}

// isTemporary reports whether an accept error is worth retrying, such as
// running out of file descriptors or a connection reset before accept.
func isTemporary(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ECONNABORTED, syscall.ENOBUFS, syscall.ENOMEM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne interface{ Temporary() bool }
	return errors.As(err, &ne) && ne.Temporary()
}
