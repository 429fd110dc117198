package testutil

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/die-net/poolsocks/internal/socks5"
)

// SOCKS5Server is a loopback SOCKS5 proxy that serves CONNECT by dialing
// destinations directly.
type SOCKS5Server struct {
	ln       net.Listener
	connects atomic.Int64
	wg       sync.WaitGroup
}

// StartSOCKS5Server starts a proxy requiring auth (empty Username means none).
// It shuts down, waiting for all tunnels, in t.Cleanup.
func StartSOCKS5Server(t *testing.T, ctx context.Context, auth socks5.Auth) *SOCKS5Server {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &SOCKS5Server{ln: ln}
	var d net.Dialer
	var mu sync.Mutex
	var open []net.Conn
	track := func(c net.Conn) {
		mu.Lock()
		open = append(open, c)
		mu.Unlock()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			track(c)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer c.Close()
				dst, err := socks5.ServerConnect(ctx, c, auth, d.DialContext)
				if err != nil {
					return
				}
				track(dst)
				defer dst.Close()
				s.connects.Add(1)
				go func() {
					_, _ = io.Copy(dst, c)
					_ = dst.Close()
				}()
				_, _ = io.Copy(c, dst)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		for _, c := range open {
			_ = c.Close()
		}
		mu.Unlock()
		s.wg.Wait()
	})
	return s
}

// Addr returns the proxy's listen address.
func (s *SOCKS5Server) Addr() string {
	return s.ln.Addr().String()
}

// Connects returns how many CONNECT requests succeeded.
func (s *SOCKS5Server) Connects() int64 {
	return s.connects.Load()
}
