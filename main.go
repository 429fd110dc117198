package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on the metrics port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/poolsocks/internal/backend"
	"github.com/die-net/poolsocks/internal/config"
	"github.com/die-net/poolsocks/internal/dialer"
	"github.com/die-net/poolsocks/internal/metrics"
	"github.com/die-net/poolsocks/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	var (
		configPath    = flags.String("config", "poolsocks.toml", "Path to the TOML configuration file; a default one is written if it does not exist")
		listen        = flags.String("listen", "", "Miner listen address, overriding the config file (e.g. 0.0.0.0:3333)")
		proxyURL      = flags.String("proxy", "", "Upstream proxy URL, overriding the config file: direct:// | socks5://[user:pass@]host:port")
		metricsListen = flags.String("metrics-listen", "", "Address exposing /metrics, /healthz and /debug/pprof. Empty disables.")
		tcpKeepAlive  = flags.String("tcp-keepalive", "", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		reusePort     = flags.Bool("reuse-port", false, "Set SO_REUSEPORT on the miner listener")
		logFormat     = flags.String("log-format", "", "Log format: text or json")
		verbose       = flags.Bool("verbose", false, "Log every relayed frame")
	)
	flags.SortFlags = false
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if errors.Is(err, config.ErrCreated) {
		fmt.Fprintf(os.Stderr, "wrote default configuration to %s; edit it and start again\n", *configPath)
		return nil
	}
	if err != nil {
		return err
	}

	overrides := map[string]func(){
		"listen":         func() { cfg.Listen = *listen },
		"proxy":          func() { cfg.Proxy = *proxyURL },
		"metrics-listen": func() { cfg.MetricsListen = *metricsListen },
		"tcp-keepalive":  func() { cfg.TCPKeepAlive = *tcpKeepAlive },
		"reuse-port":     func() { cfg.ReusePort = *reusePort },
		"log-format":     func() { cfg.LogFormat = *logFormat },
		"verbose":        func() { cfg.Verbose = *verbose },
	}
	applyOverrides(flags, overrides)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", *configPath, err)
	}

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid tcp_keepalive: %w", err)
	}

	log := newLogger(cfg)

	d, err := dialer.New(dialer.Config{
		DialTimeout:        time.Duration(cfg.DialTimeout),
		NegotiationTimeout: time.Duration(cfg.NegotiationTimeout),
		KeepAlive:          ka,
	}, cfg.Proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := backend.NewResolver(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer resolver.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rcfg := &relay.Config{
		Resolver: resolver,
		Dialer:   d,
		Telemetry: backend.NewHTTPTelemetry(backend.TelemetryConfig{
			PacketURL:         cfg.PacketURL,
			StatsURL:          cfg.StatsURL,
			Secret:            cfg.Secret,
			ServerName:        cfg.ServerName,
			BroadcastHostname: cfg.BroadcastHostname,
			Timeout:           time.Duration(cfg.BackendTimeout),
		}),
		Metrics:         metrics.New(reg),
		Log:             log,
		ClientTimeout:   time.Duration(cfg.ClientTimeout),
		PoolTimeout:     time.Duration(cfg.PoolTimeout),
		MaxFrameSize:    cfg.MaxFrameSize,
		TelemetryQueue:  cfg.TelemetryQueue,
		ReportInterval:  time.Duration(cfg.ReportInterval),
		StatsRetryDelay: time.Duration(cfg.StatsRetryDelay),
	}
	if cfg.EgressURL != "" {
		rcfg.Egress = dialer.NewEgressDiscoverer(d, cfg.EgressURL, time.Duration(cfg.BackendTimeout))
	}

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok\n"))
		})
		mux.Handle("/debug/", http.DefaultServeMux)

		metricsSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		lc := net.ListenConfig{KeepAliveConfig: ka}
		metricsLn, err := lc.Listen(ctx, "tcp", cfg.MetricsListen)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", cfg.MetricsListen, err)
		}
		context.AfterFunc(ctx, func() {
			_ = metricsSrv.Close()
		})

		g.Go(func() error {
			if err := metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
		log.WithField("addr", cfg.MetricsListen).Info("metrics listening")
	}

	ln, err := relay.ListenTCP(ctx, cfg.Listen, relay.ListenOptions{KeepAlive: ka, ReusePort: cfg.ReusePort})
	if err != nil {
		return err
	}
	srv := relay.NewServer(ctx, rcfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("relay serve: %w", err)
		}
		srv.Wait()
		return nil
	})
	g.Go(srv.ReportLoop)

	log.WithFields(logrus.Fields{"addr": cfg.Listen, "proxy": redactURL(cfg.Proxy)}).Info("relay listening")

	err = g.Wait()
	log.Info("shutting down")
	return err
}

// applyOverrides runs the setter of every flag given on the command line, so
// unset flags leave the config file's value alone.
func applyOverrides(flags *pflag.FlagSet, setters map[string]func()) {
	flags.Visit(func(f *pflag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set()
		}
	})
}

func newLogger(cfg config.Config) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetLevel(logrus.InfoLevel)
	if cfg.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l).WithField("server", cfg.ServerName)
}

// redactURL hides proxy credentials in logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}
	return u.Redacted()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
