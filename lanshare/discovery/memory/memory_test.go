package memory

import (
	"context"
	"testing"
)

func TestPeerSetDeduplicates(t *testing.T) {
	s := New("10.0.0.2")
	if !s.Add("10.0.0.1") {
		t.Fatalf("expected new address")
	}
	if s.Add("10.0.0.2") {
		t.Fatalf("duplicate address reported as new")
	}
	if s.Len() != 2 {
		t.Fatalf("unexpected size %d", s.Len())
	}
	if !s.Contains("10.0.0.1") || s.Contains("10.0.0.3") {
		t.Fatalf("unexpected membership")
	}

	got := s.List()
	if len(got) != 2 || got[0] != "10.0.0.1" || got[1] != "10.0.0.2" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestPeerSetDiscover(t *testing.T) {
	s := New("192.168.1.7")
	peers, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(peers) != 1 || peers[0] != "192.168.1.7" {
		t.Fatalf("unexpected peers %v", peers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Discover(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
