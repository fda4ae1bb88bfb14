package transfer

import (
	"log/slog"

	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/lanshare/lanshare/lanshare/transport"
	"github.com/lanshare/lanshare/lanshare/transport/tcp"
)

// Config configures a Sender or Receiver.
type Config struct {
	Port       int                 // peer port used when an address has none (default: 12345)
	ChunkSize  int                 // bytes per read/write (default: 8 KiB)
	Compress   bool                // sender only: LZ4-compress the payload
	Transport  transport.Transport // default: TCP
	Logger     *slog.Logger        // default: slog.Default()
	OnProgress ProgressFunc        // optional progress callback
}

// DefaultConfig returns the protocol defaults over TCP.
func DefaultConfig() Config {
	return Config{
		Port:      protocol.TransferPort,
		ChunkSize: protocol.ChunkSize,
		Transport: tcp.New(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Transport == nil {
		c.Transport = d.Transport
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
