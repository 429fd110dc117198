package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound means the backend has no pool assigned to the address.
var ErrNotFound = errors.New("no destination for address")

// Destination is the pool a miner should be relayed to. It is resolved once
// per session and never refreshed.
type Destination struct {
	PoolID   string
	UserID   string
	PoolName string
	Hostname string
	Port     int
}

// Address returns hostname:port suitable for dialing.
func (d Destination) Address() string {
	return net.JoinHostPort(d.Hostname, strconv.Itoa(d.Port))
}

// Resolver maps a miner's address to its destination pool.
type Resolver interface {
	Resolve(ctx context.Context, clientAddress string) (Destination, error)
}

// ResolverCloser is a Resolver holding resources that must be released.
type ResolverCloser interface {
	Resolver
	Close() error
}

func newDestination(poolID, userID, poolName, hostname, port string) (Destination, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return Destination{}, errors.New("destination has no hostname")
	}
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return Destination{}, errors.Wrapf(err, "destination port %q", port)
	}
	if p <= 0 || p > 65535 {
		return Destination{}, errors.Errorf("destination port %d out of range", p)
	}
	return Destination{
		PoolID:   poolID,
		UserID:   userID,
		PoolName: poolName,
		Hostname: hostname,
		Port:     p,
	}, nil
}

// looseString accepts a JSON string or number; backends are not consistent
// about quoting ids and ports.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.Errorf("expected string or number, got %s", b)
		}
		*s = looseString(n.String())
		return nil
	}
}

// destinationJSON is the resolver response body. Older backends send the
// pool's display name as "name".
type destinationJSON struct {
	PoolID   looseString `json:"pool_id"`
	UserID   looseString `json:"user_id"`
	PoolName string      `json:"pool_name"`
	Name     string      `json:"name"`
	Hostname string      `json:"hostname"`
	Port     looseString `json:"port"`
}

func decodeDestination(body []byte) (Destination, error) {
	var v destinationJSON
	if err := json.Unmarshal(body, &v); err != nil {
		return Destination{}, errors.Wrap(err, "decode destination")
	}
	name := v.PoolName
	if name == "" {
		name = v.Name
	}
	return newDestination(string(v.PoolID), string(v.UserID), name, v.Hostname, string(v.Port))
}
