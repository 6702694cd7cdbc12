package core

import "sync"

// CertEdge is one live certification recorded in the store, keyed by the
// ordered (issuer, target) pair — at most one per pair (§4.E.7).
type CertEdge struct {
	Issuer    PubKey
	Target    PubKey
	IssuedOn  Blockstamp
	IssuedAt  uint64 // median time at issuance
	ExpiresOn uint64 // median time of expiry (issued + sig_validity)
}

// CertificationStore is the directed multigraph of live certifications,
// tracking per-issuer cooldown and stock alongside the plain edge set that
// backs the WoT graph.
type CertificationStore struct {
	mu          sync.RWMutex
	live        map[PubKey]map[PubKey]*CertEdge // issuer -> target -> edge
	lastIssued  map[PubKey]uint64               // issuer -> median time of last certification
	issuerCount map[PubKey]int                  // issuer -> live certification count
}

// NewCertificationStore returns an empty certification store.
func NewCertificationStore() *CertificationStore {
	return &CertificationStore{
		live:        make(map[PubKey]map[PubKey]*CertEdge),
		lastIssued:  make(map[PubKey]uint64),
		issuerCount: make(map[PubKey]int),
	}
}

// Exists reports whether a live certification from issuer to target
// already exists.
func (s *CertificationStore) Exists(issuer, target PubKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[issuer][target] != nil
}

// CooldownOK reports whether at least sigPeriod seconds of median time
// have elapsed since issuer's last certification.
func (s *CertificationStore) CooldownOK(issuer PubKey, medianTime, sigPeriod uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastIssued[issuer]
	if !ok {
		return true
	}
	return medianTime >= last+sigPeriod
}

// StockOK reports whether issuer has capacity for one more live
// certification under sigStock.
func (s *CertificationStore) StockOK(issuer PubKey, sigStock uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(s.issuerCount[issuer]) < sigStock
}

// Add records a new live certification edge.
func (s *CertificationStore) Add(e *CertEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[e.Issuer] == nil {
		s.live[e.Issuer] = make(map[PubKey]*CertEdge)
	}
	s.live[e.Issuer][e.Target] = e
	s.lastIssued[e.Issuer] = e.IssuedAt
	s.issuerCount[e.Issuer]++
}

// Remove drops an expired or replaced certification edge.
func (s *CertificationStore) Remove(issuer, target PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[issuer][target]; ok {
		delete(s.live[issuer], target)
		s.issuerCount[issuer]--
	}
}

// ReferringMembers returns the issuers of every live certification
// targeting candidate, the "R" set of §4.D's distance rule.
func (s *CertificationStore) ReferringMembers(candidate PubKey) []PubKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PubKey
	for issuer, targets := range s.live {
		if targets[candidate] != nil {
			out = append(out, issuer)
		}
	}
	return out
}
