package relay

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/dialer"
	"github.com/die-net/poolsocks/internal/socks5"
	"github.com/die-net/poolsocks/internal/testutil"
)

func TestServerReportRetriesUntilSuccess(t *testing.T) {
	echo := testutil.StartEchoTCPServer(t, context.Background())
	h := newHarness(destFor(t, echo, "pool-a"))
	h.tel.statsFails = 2
	h.start(t)

	c := h.dial(t)
	testutil.AssertEcho(t, c, c, []byte(subscribe))
	waitFor(t, "counters", func() bool {
		p, _ := h.onlySession(t).Counters()
		return p == 2
	})

	assert.NilError(t, h.srv.Report())

	h.tel.mu.Lock()
	defer h.tel.mu.Unlock()
	assert.Equal(t, h.tel.statsCalls, 3)
	assert.Equal(t, len(h.tel.stats), 1)
	st := h.tel.stats[0]
	assert.Equal(t, st.ActiveConnections, 1)
	assert.Equal(t, len(st.Miners), 1)
	m := st.Miners[0]
	assert.Equal(t, m.ID, int64(1))
	assert.Equal(t, m.PoolName, "pool-a")
	assert.Equal(t, m.UserID, "42")
	assert.Equal(t, m.PacketsSent, uint64(2))
	assert.Equal(t, m.BandwidthBytes, uint64(2*len(subscribe)))
}

func TestServerReportGivesUp(t *testing.T) {
	h := newHarness()
	h.cfg.ReportInterval = 20 * time.Millisecond
	h.tel.statsFails = 1 << 30
	h.start(t)

	err := h.srv.Report()
	assert.ErrorContains(t, err, "panel unavailable")
	assert.Equal(t, testutil.MetricValue(t, h.reg, "poolsocks_telemetry_errors_total", map[string]string{"kind": "stats"}), 1.0)
}

func TestServerReportSweepsTerminated(t *testing.T) {
	h := startServer(t)
	h.resolver.fail(backend.ErrNotFound)

	h.dial(t)
	sess := h.onlySession(t)
	<-sess.Done()

	assert.NilError(t, h.srv.Report())
	assert.Equal(t, h.srv.Registry().Len(), 0)

	h.tel.mu.Lock()
	defer h.tel.mu.Unlock()
	assert.Equal(t, h.tel.stats[0].ActiveConnections, 0)
	assert.Equal(t, len(h.tel.stats[0].Miners), 0)
}

func TestListenTCPBindFailure(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", ListenOptions{})
	assert.NilError(t, err)
	defer ln.Close()

	_, err = ListenTCP(context.Background(), ln.Addr().String(), ListenOptions{})
	assert.ErrorContains(t, err, "listen "+ln.Addr().String())
}

func TestListenTCPReusePort(t *testing.T) {
	t.Parallel()
	if !ReusePortSupported {
		t.Skip("SO_REUSEPORT not supported")
	}

	opts := ListenOptions{ReusePort: true}
	a, err := ListenTCP(context.Background(), "127.0.0.1:0", opts)
	assert.NilError(t, err)
	defer a.Close()

	b, err := ListenTCP(context.Background(), a.Addr().String(), opts)
	assert.NilError(t, err)
	defer b.Close()
}

func TestServerThroughSOCKS5Proxy(t *testing.T) {
	echo := testutil.StartEchoTCPServer(t, context.Background())
	proxy := testutil.StartSOCKS5Server(t, context.Background(), socks5.Auth{Username: "u", Password: "p"})
	d, err := dialer.New(dialer.Config{DialTimeout: 5 * time.Second, NegotiationTimeout: 5 * time.Second}, "socks5://u:p@"+proxy.Addr())
	assert.NilError(t, err)

	h := newHarness(destFor(t, echo, "pool-a"))
	h.cfg.Dialer = d
	h.start(t)

	c := h.dial(t)
	testutil.AssertEcho(t, c, c, []byte(subscribe))
	assert.Equal(t, proxy.Connects(), int64(1))
}

func TestServerReportLoop(t *testing.T) {
	h := newHarness()
	h.cfg.ReportInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, h.cfg)
	done := make(chan error, 1)
	go func() { done <- srv.ReportLoop() }()

	waitFor(t, "two reports", func() bool {
		h.tel.mu.Lock()
		defer h.tel.mu.Unlock()
		return len(h.tel.stats) >= 2
	})
	cancel()
	assert.NilError(t, <-done)
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "accept4: too many open files" }
func (temporaryError) Timeout() bool   { return false }
func (temporaryError) Temporary() bool { return true }

// flakyListener fails its first Accept calls with err.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
	err      error
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, l.err
	}
	return l.Listener.Accept()
}

func TestServerSurvivesTemporaryAcceptErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "temporary", err: temporaryError{}},
		{name: "emfile", err: &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept4", syscall.EMFILE)}},
		{name: "econnaborted", err: &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept4", syscall.ECONNABORTED)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echo := testutil.StartEchoTCPServer(t, context.Background())
			h := newHarness(destFor(t, echo, "pool-a"))

			ctx, cancel := context.WithCancel(context.Background())
			ln, err := ListenTCP(ctx, "127.0.0.1:0", ListenOptions{})
			assert.NilError(t, err)
			fl := &flakyListener{Listener: ln, err: tt.err}
			fl.failures.Store(3)
			h.addr = ln.Addr().String()
			h.srv = NewServer(ctx, h.cfg)

			served := make(chan error, 1)
			go func() { served <- h.srv.Serve(fl) }()
			t.Cleanup(func() {
				cancel()
				_ = ln.Close()
				assert.NilError(t, <-served)
				h.srv.Wait()
			})

			c := h.dial(t)
			testutil.AssertEcho(t, c, c, []byte(subscribe))
			assert.Equal(t, h.srv.Registry().Len(), 1)
		})
	}
}

func TestServerReturnsPermanentAcceptError(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ln, err := ListenTCP(ctx, "127.0.0.1:0", ListenOptions{})
	assert.NilError(t, err)
	defer ln.Close()

	fl := &flakyListener{Listener: ln, err: errors.New("listener broken")}
	fl.failures.Store(1)
	err = NewServer(ctx, h.cfg).Serve(fl)
	assert.ErrorContains(t, err, "accept: listener broken")
}
