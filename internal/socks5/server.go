package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// DialFunc opens the outbound leg of a CONNECT request.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ServerNegotiate reads the client's method selection and, when auth is set,
// verifies its username/password.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if auth.Username != "" {
		if !slices.Contains(neg.Methods, txsocks5.MethodUsernamePassword) {
			writeNoAcceptableMethods(conn)
			return errors.New("client does not support username/password")
		}
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(conn); err != nil {
			return fmt.Errorf("negotiation reply: %w", err)
		}

		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
			_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
			return errors.New("auth failed")
		}
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		return nil
	}

	if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
		writeNoAcceptableMethods(conn)
		return errors.New("client does not support no-auth")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads one SOCKS5 request.
func ServerReadRequest(conn net.Conn) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

// ServerConnect runs the server side of a CONNECT exchange on conn: it
// negotiates, reads the request, dials the destination with dial and writes
// the matching reply. The returned connection is the outbound leg; the caller
// owns copying between it and conn.
func ServerConnect(ctx context.Context, conn net.Conn, auth Auth, dial DialFunc) (net.Conn, error) {
	if err := ServerNegotiate(conn, auth); err != nil {
		return nil, err
	}
	req, err := ServerReadRequest(conn)
	if err != nil {
		return nil, err
	}
	if req.Cmd != CmdConnect {
		WriteCommandNotSupportedReply(conn, req.Atyp)
		return nil, fmt.Errorf("unsupported command %d", req.Cmd)
	}

	dst, err := dial(ctx, "tcp", req.Address())
	if err != nil {
		WriteHostUnreachableReply(conn, req.Atyp)
		return nil, fmt.Errorf("dial %s: %w", req.Address(), err)
	}
	if err := WriteSuccessReply(conn, dst.LocalAddr()); err != nil {
		_ = dst.Close()
		return nil, err
	}
	return dst, nil
}
