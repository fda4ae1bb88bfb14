package lanshare

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
)

// Session holds the state of one user operation: the peers found by the
// last discovery round, the chosen peer, the password and the save directory.
// A Session is not safe for concurrent use.
type Session struct {
	node  *Node
	peers []string

	// Peer is the address files are sent to.
	Peer string
	// Password enables encryption when non-empty.
	Password string
	// SaveDir is where received files are written.
	SaveDir string
}

// Discover runs one discovery round and remembers the result.
func (s *Session) Discover(ctx context.Context) ([]string, error) {
	peers, err := s.node.resolver.Discover(ctx)
	if err != nil {
		return nil, err
	}
	s.peers = peers
	return s.Peers(), nil
}

// Peers returns the peers found by the last Discover.
func (s *Session) Peers() []string {
	return append([]string(nil), s.peers...)
}

// Choose selects the i-th discovered peer (0-based).
func (s *Session) Choose(i int) error {
	if i < 0 || i >= len(s.peers) {
		return fmt.Errorf("%w: %d of %d", ErrPeerIndex, i, len(s.peers))
	}
	s.Peer = s.peers[i]
	return nil
}

// Send transfers the file at path to the chosen peer.
func (s *Session) Send(ctx context.Context, path string) error {
	if s.Peer == "" {
		return ErrNoPeer
	}
	return s.node.sender.SendFile(ctx, s.Peer, path, s.Password)
}

// Receive waits for one incoming transfer on the transfer port and saves it
// to SaveDir, creating the directory if needed. It returns the saved path.
func (s *Session) Receive(ctx context.Context) (string, error) {
	dir := s.SaveDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("lanshare: create save directory: %w", err)
	}
	addr := net.JoinHostPort("", strconv.Itoa(s.node.cfg.TransferPort))
	return s.node.receiver.ReceiveFile(ctx, addr, dir, s.Password)
}
