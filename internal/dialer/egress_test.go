package dialer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/die-net/poolsocks/internal/socks5"
	"github.com/die-net/poolsocks/internal/testutil"
)

func TestEgressDiscovererThroughProxy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "203.0.113.7")
	}))
	defer echo.Close()

	proxy := testutil.StartSOCKS5Server(t, ctx, socks5.Auth{})
	d := NewSOCKS5ProxyDialer(Config{DialTimeout: time.Second}, proxy.Addr(), "", "")

	e := NewEgressDiscoverer(d, echo.URL, 2*time.Second)
	addr, err := e.Discover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if addr != "203.0.113.7" {
		t.Fatalf("got %q", addr)
	}
	if proxy.Connects() != 1 {
		t.Fatalf("discovery did not go through the proxy")
	}
}

func TestEgressDiscovererErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusServiceUnavailable)
			},
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e := NewEgressDiscoverer(NewDirectDialer(Config{}), srv.URL, time.Second)
			if _, err := e.Discover(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
