// Package transport abstracts the stream a transfer runs over.
//
// The transfer protocol only needs one ordered, reliable byte stream per
// transfer; TCP is the default, QUIC carries the same bytes on a single stream.
package transport

import (
	"context"
	"io"
	"net"
)

// Conn is one transfer's byte stream.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts incoming transfer streams.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport creates listeners and outbound streams.
type Transport interface {
	Listen(addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
}
