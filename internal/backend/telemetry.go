package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Packet contexts: which side of the relay a payload was read from.
const (
	ContextMiner = "Miner"
	ContextPool  = "Pool"
)

// PacketEvent is one relayed payload.
type PacketEvent struct {
	SessionID     int64
	ClientAddress string
	EgressAddress string
	Context       string
	PoolHostname  string
	Payload       []byte
}

// MinerSnapshot is one session's row in the aggregate report. Numbers are
// sent as JSON strings, which is what the backend panel parses.
type MinerSnapshot struct {
	ID             int64  `json:"miner_id,string"`
	UserID         string `json:"user_id"`
	PoolID         string `json:"pool_id"`
	PoolName       string `json:"pool_name"`
	PoolHostname   string `json:"pool_hostname"`
	PacketsSent    uint64 `json:"packets_sent,string"`
	BandwidthBytes uint64 `json:"bandwidth,string"`
	ClientAddress  string `json:"miner_address"`
	EgressAddress  string `json:"exit_address"`
}

// Stats is the aggregate report.
type Stats struct {
	ActiveConnections int
	Miners            []MinerSnapshot
}

// Telemetry receives packet events and aggregate reports.
type Telemetry interface {
	ReportPacket(ctx context.Context, ev PacketEvent) error
	ReportStats(ctx context.Context, st Stats) error
}

// TelemetryConfig configures HTTPTelemetry. An empty URL disables that
// report.
type TelemetryConfig struct {
	PacketURL         string
	StatsURL          string
	Secret            string
	ServerName        string
	BroadcastHostname string
	Timeout           time.Duration
}

// HTTPTelemetry posts telemetry forms to the backend panel.
type HTTPTelemetry struct {
	cfg    TelemetryConfig
	client *http.Client
}

// NewHTTPTelemetry returns a client for cfg.
func NewHTTPTelemetry(cfg TelemetryConfig) *HTTPTelemetry {
	return &HTTPTelemetry{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *HTTPTelemetry) ReportPacket(ctx context.Context, ev PacketEvent) error {
	if t.cfg.PacketURL == "" {
		return nil
	}
	form := url.Values{
		"password":      {t.cfg.Secret},
		"miner_id":      {strconv.FormatInt(ev.SessionID, 10)},
		"user_address":  {ev.ClientAddress},
		"exit_address":  {ev.EgressAddress},
		"context":       {ev.Context},
		"server_name":   {t.cfg.ServerName},
		"pool_hostname": {ev.PoolHostname},
		"data":          {string(ev.Payload)},
	}
	_, err := postForm(ctx, t.client, t.cfg.PacketURL, form)
	return errors.Wrap(err, "report packet")
}

func (t *HTTPTelemetry) ReportStats(ctx context.Context, st Stats) error {
	if t.cfg.StatsURL == "" {
		return nil
	}
	miners := st.Miners
	if miners == nil {
		miners = []MinerSnapshot{}
	}
	minerJSON, err := json.Marshal(miners)
	if err != nil {
		return errors.Wrap(err, "encode miners")
	}
	form := url.Values{
		"password":                  {t.cfg.Secret},
		"server_name":               {t.cfg.ServerName},
		"server_broadcast_hostname": {t.cfg.BroadcastHostname},
		"connections":               {strconv.Itoa(st.ActiveConnections)},
		"miner_json":                {string(minerJSON)},
	}
	_, err = postForm(ctx, t.client, t.cfg.StatsURL, form)
	return errors.Wrap(err, "report stats")
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) ReportPacket(context.Context, PacketEvent) error { return nil }
func (Nop) ReportStats(context.Context, Stats) error        { return nil }
