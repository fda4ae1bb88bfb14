package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/lanshare/lanshare/lanshare/discovery/memory"
	"github.com/lanshare/lanshare/lanshare/protocol"
)

// Requester runs discovery rounds. Zero fields fall back to the protocol
// defaults; a Requester is safe to reuse for several rounds.
type Requester struct {
	// Port is the responders' discovery port.
	Port int
	// Window is the total time spent collecting responses.
	Window time.Duration
	// Attempt bounds each individual receive inside the window.
	Attempt time.Duration
	// Targets are unicast hosts queried in addition to the broadcast
	// addresses, for peers outside the local broadcast domain.
	Targets []string
	// BroadcastAddrs lists the broadcast destinations. Defaults to
	// the package-level BroadcastAddrs.
	BroadcastAddrs func() ([]net.IP, error)

	Logger *slog.Logger
}

// NewRequester returns a Requester with the protocol defaults.
func NewRequester(logger *slog.Logger) *Requester {
	return &Requester{
		Port:    protocol.DiscoveryPort,
		Window:  protocol.DiscoveryWindow,
		Attempt: protocol.DiscoveryAttempt,
		Logger:  logger,
	}
}

// Discover broadcasts a request and returns every distinct address that
// answered before the window elapsed. It always waits out the full window.
// Finding nobody is not an error.
func (r *Requester) Discover(ctx context.Context) ([]string, error) {
	logger := loggerOrDefault(r.Logger)
	window, attempt := r.Window, r.Attempt
	if window <= 0 {
		window = protocol.DiscoveryWindow
	}
	if attempt <= 0 {
		attempt = protocol.DiscoveryAttempt
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: open socket: %w", err)
	}
	defer conn.Close()

	// A cancelled ctx expires the pending read instead of waiting out Attempt.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	sent := 0
	for _, dst := range r.destinations(logger) {
		if _, err := conn.WriteToUDP(protocol.RequestToken.Bytes(), dst); err != nil {
			logger.Debug("discovery: send failed", "to", dst.String(), "err", err)
			continue
		}
		sent++
	}
	logger.Debug("discovery requests sent", "count", sent)

	peers := memory.New()
	buf := make([]byte, protocol.MaxDatagram)
	deadline := time.Now().Add(window)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		if err := conn.SetReadDeadline(now.Add(min(attempt, deadline.Sub(now)))); err != nil {
			return nil, err
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}
			logger.Debug("discovery: receive failed", "err", err)
			continue
		}
		if !protocol.ResponseToken.Is(buf[:n]) {
			continue
		}
		if peers.Add(src.IP.String()) {
			logger.Debug("discovered peer", "addr", src.IP.String())
		}
	}
	return peers.List(), nil
}

func (r *Requester) destinations(logger *slog.Logger) []*net.UDPAddr {
	port := r.Port
	if port <= 0 {
		port = protocol.DiscoveryPort
	}
	list := r.BroadcastAddrs
	if list == nil {
		list = BroadcastAddrs
	}

	var out []*net.UDPAddr
	ips, err := list()
	if err != nil {
		logger.Warn("discovery: cannot enumerate interfaces", "err", err)
	}
	for _, ip := range ips {
		out = append(out, &net.UDPAddr{IP: ip, Port: port})
	}
	for _, target := range r.Targets {
		hostport := target
		if _, _, err := net.SplitHostPort(target); err != nil {
			hostport = net.JoinHostPort(target, strconv.Itoa(port))
		}
		addr, err := net.ResolveUDPAddr("udp4", hostport)
		if err != nil {
			logger.Warn("discovery: bad target", "target", target, "err", err)
			continue
		}
		out = append(out, addr)
	}
	return out
}

// BroadcastAddrs returns the IPv4 broadcast address of every up,
// non-loopback, broadcast-capable interface.
func BroadcastAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []net.IP
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			bc := broadcastAddr(ipnet)
			if bc == nil || seen[bc.String()] {
				continue
			}
			seen[bc.String()] = true
			out = append(out, bc)
		}
	}
	return out, nil
}

// broadcastAddr computes ip | ^mask, or nil for non-IPv4 networks.
func broadcastAddr(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	bc := make(net.IP, net.IPv4len)
	for i := range ip {
		bc[i] = ip[i] | ^mask[i]
	}
	return bc
}
