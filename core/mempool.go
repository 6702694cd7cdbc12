package core

import (
	"sync"
	"time"
)

// mempoolBucket is a bounded FIFO of pending documents of one kind, keyed
// by hash, evicted once a per-entry TTL counted from insertion time has
// passed (the TTL comes from the caller, not from the document's own
// block-ref or locktime) — the engine's mempool collaborator named but not
// specified by §4.G point 2.
type mempoolBucket struct {
	mu       sync.Mutex
	order    []Hash
	byHash   map[Hash]any
	expireAt map[Hash]time.Time
	capacity int
}

func newMempoolBucket(capacity int) *mempoolBucket {
	return &mempoolBucket{
		byHash:   make(map[Hash]any),
		expireAt: make(map[Hash]time.Time),
		capacity: capacity,
	}
}

func (b *mempoolBucket) add(h Hash, doc any, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byHash[h]; exists {
		return
	}
	if len(b.order) >= b.capacity {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.byHash, oldest)
		delete(b.expireAt, oldest)
	}
	b.order = append(b.order, h)
	b.byHash[h] = doc
	b.expireAt[h] = time.Now().Add(ttl)
}

func (b *mempoolBucket) evictExpired(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.order[:0:0]
	for _, h := range b.order {
		if now.Before(b.expireAt[h]) {
			kept = append(kept, h)
			continue
		}
		delete(b.byHash, h)
		delete(b.expireAt, h)
	}
	b.order = kept
}

func (b *mempoolBucket) all() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, 0, len(b.order))
	for _, h := range b.order {
		out = append(out, b.byHash[h])
	}
	return out
}

func (b *mempoolBucket) remove(h Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byHash[h]; !ok {
		return
	}
	delete(b.byHash, h)
	delete(b.expireAt, h)
	for i, oh := range b.order {
		if oh == h {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// mempoolCapacityPerKind bounds each document-kind bucket; the project's
// reference node uses a few thousand pending documents as a generous but
// finite ceiling against memory exhaustion from a spammy peer.
const mempoolCapacityPerKind = 2000

// Mempool holds pending (not-yet-in-a-block) documents per kind. The engine
// fills it from ReceiveDocuments and drops transactions once a main-chain
// block includes them; neither the ws2p package nor the engine reads
// pending documents back out of it.
type Mempool struct {
	identities     *mempoolBucket
	memberships    *mempoolBucket
	certifications *mempoolBucket
	revocations    *mempoolBucket
	transactions   *mempoolBucket
}

// NewMempool returns an empty mempool with the default per-kind capacity.
func NewMempool() *Mempool {
	return &Mempool{
		identities:     newMempoolBucket(mempoolCapacityPerKind),
		memberships:    newMempoolBucket(mempoolCapacityPerKind),
		certifications: newMempoolBucket(mempoolCapacityPerKind),
		revocations:    newMempoolBucket(mempoolCapacityPerKind),
		transactions:   newMempoolBucket(mempoolCapacityPerKind),
	}
}

// AddIdentity queues a pending identity, evicted after idtyWindow seconds.
func (m *Mempool) AddIdentity(id *Identity, idtyWindow uint64) {
	h := Sha256([]byte(id.CanonicalText()))
	m.identities.add(h, id, time.Duration(idtyWindow)*time.Second)
}

// AddMembership queues a pending membership, evicted after msWindow seconds.
func (m *Mempool) AddMembership(ms *Membership, msWindow uint64) {
	h := Sha256([]byte(ms.CanonicalText()))
	m.memberships.add(h, ms, time.Duration(msWindow)*time.Second)
}

// AddCertification queues a pending certification, evicted after sigWindow seconds.
func (m *Mempool) AddCertification(c *Certification, sigWindow uint64) {
	h := Sha256([]byte(c.CanonicalText()))
	m.certifications.add(h, c, time.Duration(sigWindow)*time.Second)
}

// AddRevocation queues a pending revocation with a fixed one-year TTL
// (revocations have no window of their own in §3). A revocation is not
// removed when a block includes it; only the TTL evicts it.
func (m *Mempool) AddRevocation(r *Revocation) {
	h := Sha256([]byte(r.CanonicalText()))
	m.revocations.add(h, r, 365*24*time.Hour)
}

// AddTransaction queues a pending transaction, evicted at its locktime
// horizon (approximated here as a fixed generous TTL; precise locktime
// gating happens again at validation time).
func (m *Mempool) AddTransaction(tx *Transaction) {
	m.transactions.add(tx.Hash(), tx, 7*24*time.Hour)
}

// RemoveTransaction drops a transaction once it has been included in a
// validated block.
func (m *Mempool) RemoveTransaction(h Hash) { m.transactions.remove(h) }

// PendingTransactions returns every currently pending transaction.
func (m *Mempool) PendingTransactions() []*Transaction {
	raw := m.transactions.all()
	out := make([]*Transaction, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(*Transaction))
	}
	return out
}

// EvictExpired drops every document past its TTL across all buckets,
// called from the engine's ~20s orphan timer (§4.G); that timer does no
// orphan draining of its own.
func (m *Mempool) EvictExpired() {
	now := time.Now()
	m.identities.evictExpired(now)
	m.memberships.evictExpired(now)
	m.certifications.evictExpired(now)
	m.revocations.evictExpired(now)
	m.transactions.evictExpired(now)
}
