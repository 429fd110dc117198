package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrCreated is returned by Load when the file did not exist and a default
// one was written in its place.
var ErrCreated = errors.New("default configuration written")

// Resolver kinds.
const (
	ResolverHTTP  = "http"
	ResolverMySQL = "mysql"
	ResolverRedis = "redis"
)

const (
	minFrameSize = 512
	maxFrameSize = 1 << 20
)

// Duration is a time.Duration written as a string ("2m30s") in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full relay configuration.
type Config struct {
	// Listen is the host:port miners connect to.
	Listen    string `toml:"listen"`
	ReusePort bool   `toml:"reuse_port"`
	// Proxy is the upstream URL pool traffic is tunneled through.
	Proxy        string `toml:"proxy"`
	TCPKeepAlive string `toml:"tcp_keepalive"`

	Resolver       string `toml:"resolver"`
	ResolverURL    string `toml:"resolver_url"`
	MySQLDSN       string `toml:"mysql_dsn"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	RedisKeyPrefix string `toml:"redis_key_prefix"`

	PacketURL         string `toml:"packet_url"`
	StatsURL          string `toml:"stats_url"`
	Secret            string `toml:"secret"`
	ServerName        string `toml:"server_name"`
	BroadcastHostname string `toml:"broadcast_hostname"`
	// EgressURL is an "echo my address" service; empty disables discovery.
	EgressURL string `toml:"egress_url"`

	ReportInterval     Duration `toml:"report_interval"`
	StatsRetryDelay    Duration `toml:"stats_retry_delay"`
	ClientTimeout      Duration `toml:"client_timeout"`
	PoolTimeout        Duration `toml:"pool_timeout"`
	DialTimeout        Duration `toml:"dial_timeout"`
	NegotiationTimeout Duration `toml:"negotiation_timeout"`
	BackendTimeout     Duration `toml:"backend_timeout"`
	MaxFrameSize       int      `toml:"max_frame_size"`
	TelemetryQueue     int      `toml:"telemetry_queue"`

	MetricsListen string `toml:"metrics_listen"`
	LogFormat     string `toml:"log_format"`
	Verbose       bool   `toml:"verbose"`
}

// Default returns the configuration written on first run.
func Default() Config {
	host, _ := os.Hostname()
	return Config{
		Listen:             "0.0.0.0:3333",
		Proxy:              "socks5://127.0.0.1:9050",
		TCPKeepAlive:       "45:45:3",
		Resolver:           ResolverHTTP,
		RedisKeyPrefix:     "miner:",
		ServerName:         host,
		EgressURL:          "https://api.ipify.org/",
		ReportInterval:     Duration(30 * time.Second),
		StatsRetryDelay:    Duration(5 * time.Second),
		ClientTimeout:      Duration(2 * time.Minute),
		PoolTimeout:        Duration(5 * time.Minute),
		DialTimeout:        Duration(10 * time.Second),
		NegotiationTimeout: Duration(10 * time.Second),
		BackendTimeout:     Duration(10 * time.Second),
		MaxFrameSize:       64 << 10,
		TelemetryQueue:     256,
		LogFormat:          "text",
	}
}

// Load reads path over the defaults. A missing file is replaced by the
// defaults and ErrCreated is returned along with them.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, ErrCreated
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg at path as TOML, creating parent directories.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	// The file holds the backend secret.
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.Proxy == "" {
		return errors.New("proxy is required")
	}

	switch c.Resolver {
	case ResolverHTTP:
		if err := requireURL("resolver_url", c.ResolverURL); err != nil {
			return err
		}
	case ResolverMySQL:
		if c.MySQLDSN == "" {
			return errors.New("mysql_dsn is required for the mysql resolver")
		}
	case ResolverRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis resolver")
		}
	default:
		return fmt.Errorf("unknown resolver %q (want %s, %s or %s)", c.Resolver, ResolverHTTP, ResolverMySQL, ResolverRedis)
	}

	for name, u := range map[string]string{"packet_url": c.PacketURL, "stats_url": c.StatsURL, "egress_url": c.EgressURL} {
		if u == "" {
			continue
		}
		if err := requireURL(name, u); err != nil {
			return err
		}
	}

	if c.MaxFrameSize < minFrameSize || c.MaxFrameSize > maxFrameSize {
		return fmt.Errorf("max_frame_size must be between %d and %d", minFrameSize, maxFrameSize)
	}
	if c.TelemetryQueue <= 0 {
		return errors.New("telemetry_queue must be > 0")
	}
	for name, d := range map[string]Duration{
		"report_interval":     c.ReportInterval,
		"stats_retry_delay":   c.StatsRetryDelay,
		"client_timeout":      c.ClientTimeout,
		"pool_timeout":        c.PoolTimeout,
		"dial_timeout":        c.DialTimeout,
		"negotiation_timeout": c.NegotiationTimeout,
		"backend_timeout":     c.BackendTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func requireURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", name)
	}
	return nil
}
