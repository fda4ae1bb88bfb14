package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"github.com/lanshare/lanshare/lanshare/protocol"
	"golang.org/x/net/ipv4"
)

// State is the lifecycle of a Responder.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Responder answers discovery requests so this host shows up in other
// peers' discovery rounds. It never sends anything unsolicited.
type Responder struct {
	addr   string
	logger *slog.Logger

	mu    sync.Mutex
	state State
	conn  net.PacketConn
	done  chan struct{}
}

// NewResponder creates a responder that will bind addr (e.g. ":12346").
func NewResponder(addr string, logger *slog.Logger) *Responder {
	return &Responder{addr: addr, logger: loggerOrDefault(logger)}
}

// Start binds the discovery socket and answers requests in the background.
// If the port is taken by another instance it returns ErrBindConflict and the
// responder stays idle; callers are expected to carry on without it.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrAlreadyStarted
	}

	conn, err := net.ListenPacket("udp4", r.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %w", ErrBindConflict, err)
		}
		return err
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		r.logger.Debug("discovery: control messages unavailable", "err", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	r.state = StateListening
	r.logger.Info("discovery responder listening", "addr", conn.LocalAddr().String())

	go r.serve(pc, r.done)
	return nil
}

func (r *Responder) serve(pc *ipv4.PacketConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("discovery: receive failed", "err", err)
			continue
		}
		if !protocol.RequestToken.Is(buf[:n]) {
			continue
		}

		attrs := []any{"from", src.String()}
		if cm != nil {
			attrs = append(attrs, "ifindex", cm.IfIndex, "dst", cm.Dst.String())
		}
		r.logger.Debug("discovery request", attrs...)

		if _, err := pc.WriteTo(protocol.ResponseToken.Bytes(), nil, src); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("discovery: reply failed", "to", src.String(), "err", err)
		}
	}
}

// Stop closes the socket and waits for the receive loop to exit.
// Stopping an idle or stopped responder is a no-op.
func (r *Responder) Stop() error {
	r.mu.Lock()
	if r.state != StateListening {
		r.state = StateStopped
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopped
	err := r.conn.Close()
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Info("discovery responder stopped")
	return err
}

func (r *Responder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LocalAddr returns the bound address, or nil when not listening.
func (r *Responder) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}
