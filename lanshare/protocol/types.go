package protocol

import "time"

// Network defaults shared by every peer.
const (
	// TransferPort is the TCP port a receiver listens on.
	TransferPort = 12345
	// DiscoveryPort is the UDP port the discovery responder binds.
	DiscoveryPort = 12346
	// WebLinkPort is the HTTP port of the download link server.
	WebLinkPort = 8080
)

// Discovery timing.
const (
	// DiscoveryWindow is how long a requester collects responses.
	DiscoveryWindow = 3 * time.Second
	// DiscoveryAttempt bounds a single receive inside the window.
	DiscoveryAttempt = 1 * time.Second
	// MaxDatagram is the receive buffer for discovery datagrams.
	MaxDatagram = 1024
)

// ChunkSize is the payload read/write unit for transfers.
const ChunkSize = 8 * 1024

// Token is a discovery datagram payload. The datagram carries nothing else.
type Token string

const (
	RequestToken  Token = "P2P_FILE_SHARER_DISCOVERY_REQUEST"
	ResponseToken Token = "P2P_FILE_SHARER_DISCOVERY_RESPONSE"
)

// Bytes returns the wire form of the token.
func (t Token) Bytes() []byte { return []byte(t) }

// Is reports whether payload is exactly this token.
func (t Token) Is(payload []byte) bool { return string(payload) == string(t) }

func (t Token) String() string {
	switch t {
	case RequestToken:
		return "REQUEST"
	case ResponseToken:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}
