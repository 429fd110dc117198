// Package socks5 holds the SOCKS5 handshakes poolsocks needs: the client side
// used to tunnel pool connections through an anonymizing proxy, and a minimal
// server side used to stand up in-process proxies in tests.
//
// Wire encoding is delegated to github.com/txthinking/socks5; this package only
// sequences the messages and turns protocol refusals into errors.
package socks5
