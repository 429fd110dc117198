package relay

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/dialer"
	"github.com/die-net/poolsocks/internal/metrics"
)

const (
	DefaultMaxFrameSize    = 64 << 10
	DefaultTelemetryQueue  = 256
	DefaultReportInterval  = 30 * time.Second
	DefaultStatsRetryDelay = 5 * time.Second
)

// EgressDiscoverer finds the address destinations see proxied traffic come
// from.
type EgressDiscoverer interface {
	Discover(ctx context.Context) (string, error)
}

// Config is shared by the Server and all of its Sessions. It must not be
// copied after first use.
type Config struct {
	Resolver  backend.Resolver
	Dialer    dialer.Dialer
	Telemetry backend.Telemetry
	// Egress may be nil, in which case egress addresses are reported as
	// UnknownEgress.
	Egress  EgressDiscoverer
	Metrics *metrics.Metrics
	Log     *logrus.Entry

	// ClientTimeout and PoolTimeout bound each read from and write to the
	// miner and pool side respectively. Zero disables the deadline.
	ClientTimeout time.Duration
	PoolTimeout   time.Duration

	MaxFrameSize    int
	TelemetryQueue  int
	ReportInterval  time.Duration
	StatsRetryDelay time.Duration

	initOnce sync.Once
	frames   *framePool
}

func (c *Config) init() {
	c.initOnce.Do(func() {
		if c.Telemetry == nil {
			c.Telemetry = backend.Nop{}
		}
		if c.Metrics == nil {
			c.Metrics = metrics.New(prometheus.NewRegistry())
		}
		if c.Log == nil {
			c.Log = logrus.NewEntry(logrus.StandardLogger())
		}
		if c.MaxFrameSize <= 0 {
			c.MaxFrameSize = DefaultMaxFrameSize
		}
		if c.TelemetryQueue <= 0 {
			c.TelemetryQueue = DefaultTelemetryQueue
		}
		if c.ReportInterval <= 0 {
			c.ReportInterval = DefaultReportInterval
		}
		if c.StatsRetryDelay <= 0 {
			c.StatsRetryDelay = DefaultStatsRetryDelay
		}
		c.frames = newFramePool(c.MaxFrameSize)
	})
}
