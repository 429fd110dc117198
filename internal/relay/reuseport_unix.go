//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package relay

import "golang.org/x/sys/unix"

// ReusePortSupported reports whether ListenOptions.ReusePort works here.
const ReusePortSupported = true

func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
