package lanshare

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/lanshare/lanshare/lanshare/transfer"
	"github.com/lanshare/lanshare/lanshare/transport"
	"github.com/lanshare/lanshare/lanshare/transport/quic"
	"github.com/lanshare/lanshare/lanshare/transport/tcp"
)

// Config holds the process-wide settings of a Node.
type Config struct {
	TransferPort     int           // receiver port (default: 12345)
	DiscoveryPort    int           // responder port (default: 12346)
	DiscoveryWindow  time.Duration // total discovery round (default: 3s)
	DiscoveryAttempt time.Duration // per-receive timeout inside a round (default: 1s)
	ChunkSize        int           // transfer chunk size (default: 8 KiB)
	Compress         bool          // LZ4-compress outgoing payloads
	Transport        string        // "tcp" (default) or "quic"
	Targets          []string      // extra unicast discovery targets
	Logger           *slog.Logger
	OnProgress       transfer.ProgressFunc
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		TransferPort:     protocol.TransferPort,
		DiscoveryPort:    protocol.DiscoveryPort,
		DiscoveryWindow:  protocol.DiscoveryWindow,
		DiscoveryAttempt: protocol.DiscoveryAttempt,
		ChunkSize:        protocol.ChunkSize,
		Transport:        "tcp",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TransferPort <= 0 {
		c.TransferPort = d.TransferPort
	}
	if c.DiscoveryPort <= 0 {
		c.DiscoveryPort = d.DiscoveryPort
	}
	if c.DiscoveryWindow <= 0 {
		c.DiscoveryWindow = d.DiscoveryWindow
	}
	if c.DiscoveryAttempt <= 0 {
		c.DiscoveryAttempt = d.DiscoveryAttempt
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func newTransport(name string) (transport.Transport, error) {
	switch name {
	case "tcp":
		return tcp.New(), nil
	case "quic":
		return quic.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
}

func (c Config) transferConfig(tr transport.Transport) transfer.Config {
	return transfer.Config{
		Port:       c.TransferPort,
		ChunkSize:  c.ChunkSize,
		Compress:   c.Compress,
		Transport:  tr,
		Logger:     c.Logger,
		OnProgress: c.OnProgress,
	}
}
