package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect to the proxy (or, for
	// direct://, to the destination).
	DialTimeout time.Duration
	// NegotiationTimeout bounds the SOCKS5 handshake once connected.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig
}
