package core

import (
	"fmt"
	"sync"
)

// UTXOKey identifies one transaction output by its owning tx hash and
// output index.
type UTXOKey struct {
	TxHash Hash
	Index  uint32
}

func (k UTXOKey) String() string { return fmt.Sprintf("%s:%d", k.TxHash.String(), k.Index) }

// UTXOEntry is one unspent output plus the bookkeeping the validator and
// the CLTV/CSV leaves need: the amount, its base, the spending condition,
// and the blockstamp it was written in (the CSV reference point, §9b).
type UTXOEntry struct {
	Amount       int64
	Base         uint64
	Conditions   *ConditionGroup
	WrittenBlock BlockNumber
	WrittenAt    uint64 // median time of WrittenBlock
	RecipientKey PubKey // sole SIG leaf holder, if the condition is a single SIG — else zero
}

// UTXOStore tracks unspent transaction outputs plus Universal Dividend
// positions, partitioned by recipient for balance queries, and tombstones
// spent outputs so that a replay never resurrects them.
type UTXOStore struct {
	mu         sync.RWMutex
	unspent    map[UTXOKey]*UTXOEntry
	spent      map[UTXOKey]bool
	byRecipient map[PubKey]map[UTXOKey]bool
}

// NewUTXOStore returns an empty UTXO store.
func NewUTXOStore() *UTXOStore {
	return &UTXOStore{
		unspent:     make(map[UTXOKey]*UTXOEntry),
		spent:       make(map[UTXOKey]bool),
		byRecipient: make(map[PubKey]map[UTXOKey]bool),
	}
}

// Get returns the unspent entry at key, if any and not already spent.
func (s *UTXOStore) Get(key UTXOKey) (*UTXOEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.unspent[key]
	return e, ok
}

// IsSpent reports whether key was ever consumed, even if later reverted
// from the unspent set (used to reject within-block double spends).
func (s *UTXOStore) IsSpent(key UTXOKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spent[key]
}

// Create inserts a new unspent output, e.g. from a transaction's outputs
// or from a Universal Dividend issuance.
func (s *UTXOStore) Create(key UTXOKey, e *UTXOEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unspent[key] = e
	if e.RecipientKey != (PubKey{}) {
		if s.byRecipient[e.RecipientKey] == nil {
			s.byRecipient[e.RecipientKey] = make(map[UTXOKey]bool)
		}
		s.byRecipient[e.RecipientKey][key] = true
	}
}

// Spend consumes an unspent output, tombstoning it.
func (s *UTXOStore) Spend(key UTXOKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.unspent[key]
	if !ok {
		return ErrUTXONotFound
	}
	delete(s.unspent, key)
	s.spent[key] = true
	if e.RecipientKey != (PubKey{}) {
		delete(s.byRecipient[e.RecipientKey], key)
	}
	return nil
}

// Unspend reverses Spend, used by the fork tree's rollback (§4.F).
func (s *UTXOStore) Unspend(key UTXOKey, e *UTXOEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spent, key)
	s.unspent[key] = e
	if e.RecipientKey != (PubKey{}) {
		if s.byRecipient[e.RecipientKey] == nil {
			s.byRecipient[e.RecipientKey] = make(map[UTXOKey]bool)
		}
		s.byRecipient[e.RecipientKey][key] = true
	}
}

// Destroy removes a previously-created output entirely, used by the fork
// tree's rollback to undo output creation.
func (s *UTXOStore) Destroy(key UTXOKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.unspent[key]; ok {
		delete(s.unspent, key)
		if e.RecipientKey != (PubKey{}) {
			delete(s.byRecipient[e.RecipientKey], key)
		}
	}
}

// Balance sums every unspent output belonging to pk, across all bases
// (callers that need a single-base total convert per the project's base
// inflation rule; this store only tracks raw (amount, base) pairs).
func (s *UTXOStore) Balance(pk PubKey) map[uint64]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[uint64]int64)
	for key := range s.byRecipient[pk] {
		if e, ok := s.unspent[key]; ok {
			totals[e.Base] += e.Amount
		}
	}
	return totals
}

// MonetaryMass tracks the running total money supply, the input to the
// Universal Dividend formula (§4.E.8).
type MonetaryMass struct {
	mu   sync.RWMutex
	mass map[BlockNumber]uint64 // snapshot of total mass as of each block
}

// NewMonetaryMass returns an empty mass tracker.
func NewMonetaryMass() *MonetaryMass {
	return &MonetaryMass{mass: make(map[BlockNumber]uint64)}
}

// At returns the recorded mass snapshot as of block n.
func (m *MonetaryMass) At(n BlockNumber) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mass[n]
	return v, ok
}

// Record snapshots the total mass after applying block n.
func (m *MonetaryMass) Record(n BlockNumber, total uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mass[n] = total
}

// Forget discards the snapshot for block n, used when reverting it.
func (m *MonetaryMass) Forget(n BlockNumber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mass, n)
}
