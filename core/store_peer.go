package core

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var peerStoreLog = logrus.WithField("subsystem", "store.peer")

// PeerStore persists discovered peer endpoint cards (§6's `endpoints.bin`,
// added by SPEC_FULL as the eighth indexed store) so that restarts resume
// with the known network graph.
type PeerStore struct {
	mu   sync.RWMutex
	path string
	byPK map[PubKey]*PeerRecord
}

// NewPeerStore loads path (if it exists) into memory, or starts empty.
func NewPeerStore(path string) (*PeerStore, error) {
	s := &PeerStore{path: path, byPK: make(map[PubKey]*PeerRecord)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: read endpoint store: %v", ErrStore, err)
	}
	var records []*PeerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode endpoint store: %v", ErrStore, err)
	}
	for _, r := range records {
		s.byPK[r.PubKey] = r
	}
	peerStoreLog.Infof("loaded %d peer records from %s", len(s.byPK), path)
	return s, nil
}

// Get returns the peer record for pk, if known.
func (s *PeerStore) Get(pk PubKey) (*PeerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byPK[pk]
	return r, ok
}

// Upsert records or replaces a peer's endpoint card, filtering TLS-only
// (port 443) endpoints per §4.H unless this build supports TLS.
func (s *PeerStore) Upsert(r *PeerRecord, tlsSupported bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !tlsSupported {
		filtered := r.Endpoints[:0:0]
		for _, e := range r.Endpoints {
			if !e.requiresTLS() {
				filtered = append(filtered, e)
			}
		}
		r.Endpoints = filtered
	}
	s.byPK[r.PubKey] = r
}

// SetState updates the connection-attempt outcome for a known peer.
func (s *PeerStore) SetState(pk PubKey, state PeerState, lastCheck int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byPK[pk]; ok {
		r.State = state
		r.LastCheck = lastCheck
	}
}

// ByState returns every known peer currently in one of the given states,
// used by the outgoing connection scheduler's wave loop (§4.H).
func (s *PeerStore) ByState(states ...PeerState) []*PeerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[PeerState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	var out []*PeerRecord
	for _, r := range s.byPK {
		if want[r.State] {
			out = append(out, r)
		}
	}
	return out
}

// Flush persists the current peer set to disk.
func (s *PeerStore) Flush() error {
	s.mu.RLock()
	records := make([]*PeerRecord, 0, len(s.byPK))
	for _, r := range s.byPK {
		records = append(records, r)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: marshal endpoint store: %v", ErrStore, err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write endpoint store: %v", ErrStore, err)
	}
	return nil
}
