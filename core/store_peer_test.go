package core

import (
	"path/filepath"
	"testing"
)

func TestPeerStoreUpsertFlushReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.json")

	s, err := NewPeerStore(path)
	if err != nil {
		t.Fatalf("NewPeerStore: %v", err)
	}
	peer := genKeyPair(t)
	rec := &PeerRecord{
		PubKey:    peer.pub,
		Endpoints: []Endpoint{{API: "WS2P", Host: "g1.duniter.org", Port: 20901}},
		State:     PeerUp,
	}
	s.Upsert(rec, true)

	if got, ok := s.Get(peer.pub); !ok || got.State != PeerUp {
		t.Fatalf("unexpected peer record after Upsert: %+v", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded, err := NewPeerStore(path)
	if err != nil {
		t.Fatalf("NewPeerStore (reload): %v", err)
	}
	got, ok := reloaded.Get(peer.pub)
	if !ok {
		t.Fatalf("expected peer record to survive a Flush/reload round trip")
	}
	if len(got.Endpoints) != 1 || got.Endpoints[0].Host != "g1.duniter.org" {
		t.Fatalf("unexpected endpoints after reload: %+v", got.Endpoints)
	}
}

func TestPeerStoreUpsertFiltersTLSOnlyEndpointsWhenUnsupported(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPeerStore(filepath.Join(dir, "endpoints.json"))
	if err != nil {
		t.Fatalf("NewPeerStore: %v", err)
	}
	peer := genKeyPair(t)
	rec := &PeerRecord{
		PubKey: peer.pub,
		Endpoints: []Endpoint{
			{API: "WS2P", Host: "g1.duniter.org", Port: 20901},
			{API: "WS2P", Host: "g1.duniter.org", Port: 443},
		},
	}
	s.Upsert(rec, false)
	got, _ := s.Get(peer.pub)
	if len(got.Endpoints) != 1 || got.Endpoints[0].Port == 443 {
		t.Fatalf("expected the TLS-only endpoint to be filtered out, got %+v", got.Endpoints)
	}
}

func TestPeerStoreByState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPeerStore(filepath.Join(dir, "endpoints.json"))
	if err != nil {
		t.Fatalf("NewPeerStore: %v", err)
	}
	up := genKeyPair(t)
	down := genKeyPair(t)
	s.Upsert(&PeerRecord{PubKey: up.pub, State: PeerUp}, true)
	s.Upsert(&PeerRecord{PubKey: down.pub, State: PeerUnreachable}, true)

	s.SetState(up.pub, PeerDenial, 42)
	got, _ := s.Get(up.pub)
	if got.State != PeerDenial || got.LastCheck != 42 {
		t.Fatalf("unexpected peer state after SetState: %+v", got)
	}

	unreachable := s.ByState(PeerUnreachable)
	if len(unreachable) != 1 || unreachable[0].PubKey != down.pub {
		t.Fatalf("expected exactly one unreachable peer, got %+v", unreachable)
	}
}
