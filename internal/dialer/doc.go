// Package dialer opens upstream pool connections for the relay.
//
// Pool traffic normally leaves through a SOCKS5 proxy (socks5://); direct://
// bypasses the proxy and exists for local testing. The package also discovers
// the egress address a destination observes for proxied traffic.
package dialer
