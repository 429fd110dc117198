//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package relay

import "errors"

const ReusePortSupported = false

func setReusePort(uintptr) error {
	return errors.New("SO_REUSEPORT unsupported")
}
