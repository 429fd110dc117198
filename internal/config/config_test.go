package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"
)

func validConfig() Config {
	cfg := Default()
	cfg.ResolverURL = "http://backend.example/pool"
	return cfg
}

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "poolsocks.toml")
	cfg, err := Load(path)
	assert.Assert(t, errors.Is(err, ErrCreated), "got %v", err)
	assert.DeepEqual(t, cfg, Default())

	fi, err := os.Stat(path)
	assert.NilError(t, err)
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0o600))

	// The second run reads the file back unchanged.
	again, err := Load(path)
	assert.NilError(t, err)
	assert.DeepEqual(t, again, cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "poolsocks.toml")
	body := `
listen = "127.0.0.1:4444"
proxy = "socks5://tor:9050"
resolver = "redis"
redis_addr = "127.0.0.1:6379"
client_timeout = "90s"
max_frame_size = 4096
`
	assert.NilError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Listen, "127.0.0.1:4444")
	assert.Equal(t, cfg.Proxy, "socks5://tor:9050")
	assert.Equal(t, cfg.Resolver, ResolverRedis)
	assert.Equal(t, time.Duration(cfg.ClientTimeout), 90*time.Second)
	assert.Equal(t, cfg.MaxFrameSize, 4096)
	// Unset keys keep their defaults.
	assert.Equal(t, time.Duration(cfg.PoolTimeout), 5*time.Minute)
	assert.NilError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "poolsocks.toml")
	assert.NilError(t, os.WriteFile(path, []byte(`pool_timeout = "forever"`), 0o600))

	_, err := Load(path)
	assert.Assert(t, err != nil)
	assert.Assert(t, !errors.Is(err, ErrCreated))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing listen", mutate: func(c *Config) { c.Listen = "" }, wantErr: "listen is required"},
		{name: "listen without port", mutate: func(c *Config) { c.Listen = "0.0.0.0" }, wantErr: "listen"},
		{name: "missing proxy", mutate: func(c *Config) { c.Proxy = "" }, wantErr: "proxy is required"},
		{name: "missing resolver url", mutate: func(c *Config) { c.ResolverURL = "" }, wantErr: "resolver_url is required"},
		{name: "resolver url scheme", mutate: func(c *Config) { c.ResolverURL = "ftp://x/y" }, wantErr: "scheme"},
		{name: "mysql needs dsn", mutate: func(c *Config) { c.Resolver = ResolverMySQL }, wantErr: "mysql_dsn"},
		{name: "mysql with dsn", mutate: func(c *Config) {
			c.Resolver = ResolverMySQL
			c.MySQLDSN = "router:pw@tcp(127.0.0.1:3306)/AnonymousPoolRouting"
		}},
		{name: "redis needs addr", mutate: func(c *Config) { c.Resolver = ResolverRedis }, wantErr: "redis_addr"},
		{name: "unknown resolver", mutate: func(c *Config) { c.Resolver = "ldap" }, wantErr: "unknown resolver"},
		{name: "bad packet url", mutate: func(c *Config) { c.PacketURL = "backend" }, wantErr: "packet_url"},
		{name: "frame too small", mutate: func(c *Config) { c.MaxFrameSize = 16 }, wantErr: "max_frame_size"},
		{name: "frame too large", mutate: func(c *Config) { c.MaxFrameSize = 4 << 20 }, wantErr: "max_frame_size"},
		{name: "zero queue", mutate: func(c *Config) { c.TelemetryQueue = 0 }, wantErr: "telemetry_queue"},
		{name: "zero timeout", mutate: func(c *Config) { c.PoolTimeout = 0 }, wantErr: "pool_timeout"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NilError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
