package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// StartSingleAcceptServer hands the first connection accepted on loopback to
// handler and closes it when handler returns. t.Cleanup closes the listener
// and waits for handler, so handlers must return once their peer closes.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	return ln
}
