// Package discovery finds lanshare peers on the local network.
//
// A Responder answers broadcast queries on the discovery port; a Requester
// broadcasts a query on every usable interface and collects the addresses
// that answer within a fixed window.
package discovery

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrBindConflict   = errors.New("discovery: port already in use")
	ErrAlreadyStarted = errors.New("discovery: responder already started")
)

// Resolver produces the set of reachable peer addresses.
// Implementations can be backed by broadcast discovery, static lists, etc.
type Resolver interface {
	Discover(ctx context.Context) ([]string, error)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
