package dialer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxEgressBody caps how much of the echo service's response is read.
const maxEgressBody = 256

// EgressDiscoverer asks an "echo my address" web service, reached through a
// Dialer, which address it sees the request coming from.
type EgressDiscoverer struct {
	url    string
	client *http.Client
}

// NewEgressDiscoverer returns a discoverer querying url through d. Keepalives
// are disabled so each discovery travels over its own proxied connection.
func NewEgressDiscoverer(d Dialer, url string, timeout time.Duration) *EgressDiscoverer {
	return &EgressDiscoverer{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:       d.DialContext,
				DisableKeepAlives: true,
				ForceAttemptHTTP2: true,
			},
		},
	}
}

// Discover returns the address reported by the echo service.
func (e *EgressDiscoverer) Discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return "", fmt.Errorf("egress request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("egress get %s: %w", e.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("egress get %s: %s", e.url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEgressBody))
	if err != nil {
		return "", fmt.Errorf("egress read: %w", err)
	}
	addr := strings.TrimSpace(string(body))
	if addr == "" {
		return "", fmt.Errorf("egress get %s: empty response", e.url)
	}
	return addr, nil
}
