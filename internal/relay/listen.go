package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ListenOptions tunes the miner listener socket.
type ListenOptions struct {
	KeepAlive net.KeepAliveConfig
	// ReusePort sets SO_REUSEPORT so several relays can share one port.
	ReusePort bool
}

// ListenTCP binds addr. Accepted connections get opts.KeepAlive applied.
func ListenTCP(ctx context.Context, addr string, opts ListenOptions) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: opts.KeepAlive}
	if opts.ReusePort {
		if !ReusePortSupported {
			return nil, errors.New("reuse_port is not supported on this platform")
		}
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = setReusePort(fd)
			}); err != nil {
				return err
			}
			return ctrlErr
		}
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
