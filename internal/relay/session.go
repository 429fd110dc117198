package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/metrics"
)

// UnknownEgress is reported while, or when, the egress address is not known.
const UnknownEgress = "unknown"

// ErrPeerClosed ends a session when either side closes its connection.
var ErrPeerClosed = errors.New("peer closed connection")

// State is a session's lifecycle stage. Transitions only move forward.
type State int32

const (
	StateCreated State = iota
	StateResolving
	StateDialing
	StateRelaying
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateResolving:
		return "resolving"
	case StateDialing:
		return "dialing"
	case StateRelaying:
		return "relaying"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session relays one miner connection to its pool.
type Session struct {
	id         int64
	client     net.Conn
	clientAddr string
	cfg        *Config
	log        *logrus.Entry

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once

	// countMu keeps packets and bytes consistent with each other.
	countMu sync.Mutex
	packets uint64
	bytes   uint64

	egressOnce sync.Once

	// mu guards the fields below; they are written by the session's own
	// goroutine and read by reporting.
	mu       sync.Mutex
	dest     backend.Destination
	resolved bool
	upstream net.Conn
	closed   bool
	egress   string
}

// NewSession wraps an accepted miner connection. Nothing happens until Run.
func NewSession(id int64, client net.Conn, cfg *Config) *Session {
	cfg.init()
	addr := client.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return &Session{
		id:         id,
		client:     client,
		clientAddr: addr,
		cfg:        cfg,
		log:        cfg.Log.WithFields(logrus.Fields{"session_id": id, "client": addr}),
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() int64 { return s.id }

// ClientAddress is the miner's IP as sent to the resolver.
func (s *Session) ClientAddress() string { return s.clientAddr }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Terminated reports whether Done is closed.
func (s *Session) Terminated() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Destination returns the resolved pool, if resolution has succeeded.
func (s *Session) Destination() (backend.Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dest, s.resolved
}

// Counters returns frames and bytes relayed so far, both directions combined.
func (s *Session) Counters() (packets, bytes uint64) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.packets, s.bytes
}

// count records one relayed frame of n bytes.
func (s *Session) count(n int) {
	s.countMu.Lock()
	s.packets++
	s.bytes += uint64(n)
	s.countMu.Unlock()
}

// Snapshot returns the session's row for the aggregate report.
func (s *Session) Snapshot() backend.MinerSnapshot {
	packets, bytes := s.Counters()
	s.mu.Lock()
	defer s.mu.Unlock()
	egress := s.egress
	if egress == "" {
		egress = UnknownEgress
	}
	return backend.MinerSnapshot{
		ID:             s.id,
		UserID:         s.dest.UserID,
		PoolID:         s.dest.PoolID,
		PoolName:       s.dest.PoolName,
		PoolHostname:   s.dest.Hostname,
		PacketsSent:    packets,
		BandwidthBytes: bytes,
		ClientAddress:  s.clientAddr,
		EgressAddress:  egress,
	}
}

// EgressAddress discovers, on first call, the address the pool sees for
// this session and caches it. Discovery is attempted once; a failure leaves
// the address UnknownEgress for the rest of the session.
func (s *Session) EgressAddress(ctx context.Context) string {
	s.egressOnce.Do(func() {
		addr := UnknownEgress
		if s.cfg.Egress != nil {
			a, err := s.cfg.Egress.Discover(ctx)
			if err != nil {
				s.log.WithError(err).Warn("egress discovery failed")
				s.cfg.Metrics.TelemetryErrors.WithLabelValues(metrics.KindEgress).Inc()
			} else {
				addr = a
				s.log.WithField("egress", a).Info("egress address discovered")
			}
		}
		s.mu.Lock()
		s.egress = addr
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.egress
}

// Run drives the session to termination. It returns once both connections
// are closed and queued telemetry has been handled. Canceling ctx terminates
// the session.
func (s *Session) Run(ctx context.Context) {
	defer s.terminate()
	stop := context.AfterFunc(ctx, s.terminate)
	defer stop()

	up, err := s.establish(ctx)
	if err != nil {
		return
	}

	rep := newPacketReporter(ctx, s)
	err = s.relay(ctx, up, rep)
	s.terminate()
	rep.close()

	packets, bytes := s.Counters()
	log := s.log.WithFields(logrus.Fields{"packets": packets, "bytes": bytes})
	switch {
	case errors.Is(err, ErrPeerClosed):
		log.WithError(err).Info("session closed")
	case ctx.Err() != nil:
		log.Info("session closed on shutdown")
	default:
		s.cfg.Metrics.SessionFailures.WithLabelValues(metrics.StageRelay).Inc()
		log.WithError(err).Warn("relay failed, connection dropped")
	}
}

// establish resolves the destination and dials it.
func (s *Session) establish(ctx context.Context) (net.Conn, error) {
	s.setState(StateResolving)
	dest, err := s.cfg.Resolver.Resolve(ctx, s.clientAddr)
	if err != nil {
		return nil, s.fail(metrics.StageResolve, "destination lookup failed", err)
	}
	s.mu.Lock()
	s.dest = dest
	s.resolved = true
	s.mu.Unlock()
	s.log = s.log.WithField("pool", dest.Hostname)

	s.setState(StateDialing)
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dest.Address())
	if err != nil {
		return nil, s.fail(metrics.StageDial, "pool dial failed", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = up.Close()
		return nil, context.Cause(ctx)
	}
	s.upstream = up
	s.mu.Unlock()

	s.setState(StateRelaying)
	s.log.WithField("pool_name", dest.PoolName).Info("connected to pool")
	return up, nil
}

func (s *Session) fail(stage, msg string, err error) error {
	s.cfg.Metrics.SessionFailures.WithLabelValues(stage).Inc()
	s.log.WithError(err).Warn(msg)
	return err
}

// setState advances the lifecycle; it never moves out of StateTerminated.
func (s *Session) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateTerminated {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// terminate closes both connections and marks the session terminated. Only
// the first call has any effect.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		up := s.upstream
		s.mu.Unlock()

		_ = s.client.Close()
		if up != nil {
			_ = up.Close()
		}
		s.state.Store(int32(StateTerminated))
		close(s.done)
	})
}
