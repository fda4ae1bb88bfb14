package tcp

import (
	"context"
	"net"

	"github.com/lanshare/lanshare/lanshare/transport"
)

// Transport carries transfers over plain TCP.
type Transport struct {
	Dialer net.Dialer
}

func New() *Transport { return &Transport{} }

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	return t.Dialer.DialContext(ctx, "tcp", addr)
}

type Listener struct {
	inner net.Listener
}

// Accept waits for one connection. Cancelling ctx closes the listener, so a
// cancelled Accept leaves the listener unusable.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.inner.Close()
		case <-stop:
		}
	}()

	conn, err := l.inner.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error { return l.inner.Close() }
