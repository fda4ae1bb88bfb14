package memory

import (
	"context"
	"sort"
	"sync"
)

// PeerSet is an in-memory set of peer addresses.
// Addresses are compared by exact string equality.
// It also serves as a static Resolver for tests and manual addressing.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]struct{}
}

func New(addrs ...string) *PeerSet {
	s := &PeerSet{peers: map[string]struct{}{}}
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts addr and reports whether it was new.
func (s *PeerSet) Add(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[addr]; ok {
		return false
	}
	s.peers[addr] = struct{}{}
	return true
}

func (s *PeerSet) Contains(addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.peers[addr]
	return ok
}

func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// List returns the addresses in lexical order.
func (s *PeerSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Discover returns the current contents of the set.
func (s *PeerSet) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.List(), nil
}
