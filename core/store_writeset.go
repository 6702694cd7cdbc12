package core

// WriteSet is everything the validator decides a candidate block changes
// in the stores and the WoT, partitioned per §4.E so the engine can apply
// it atomically and, symmetrically, derive its inverse for rollback (§4.F).
type WriteSet struct {
	Block *Block

	NewIdentities  []*IdentityRecord
	IdentityStates []IdentityStateChange

	MembershipPuts []*MembershipRecord

	NewCertEdges     []*CertEdge
	RemovedCertEdges []CertPair

	NewWotEdges     []WotEdge
	RemovedWotEdges []WotEdge
	ExcludedNodes   []NodeID

	UTXOCreates []UTXOCreate
	UTXOSpends  []UTXOSpend

	NewMonetaryMass uint64
	HasDividend     bool
}

// IdentityStateChange records a single identity's state transition so it
// can be replayed forward or backward.
type IdentityStateChange struct {
	PubKey   PubKey
	Previous IdentityState
	Next     IdentityState
}

// CertPair is an ordered (issuer, target) certification pair.
type CertPair struct{ Issuer, Target PubKey }

// WotEdge is a WoT graph edge between two allocated node ids.
type WotEdge struct{ Issuer, Target NodeID }

// UTXOCreate records a newly-created unspent output, for apply and for
// its inverse (destroy) on revert.
type UTXOCreate struct {
	Key   UTXOKey
	Entry *UTXOEntry
}

// UTXOSpend records a consumed output together with the entry it
// consumed, so revert can restore it verbatim.
type UTXOSpend struct {
	Key   UTXOKey
	Entry *UTXOEntry
}

// Stores bundles every indexed store the engine owns, the unit the
// validator reads from and the write-set is applied to (§4.C, §4.G).
type Stores struct {
	Blocks         *BlockStore
	Identities     *IdentityStore
	Memberships    *MembershipStore
	Certifications *CertificationStore
	UTXOs          *UTXOStore
	Mass           *MonetaryMass
	Peers          *PeerStore
	Wot            *WotGraph
}

// Apply commits a write-set to every affected store as a single logical
// transaction: since every sub-store mutation here is an in-memory map
// write, there is nothing that can partially fail once the validator has
// already produced the write-set — the atomicity is structural.
func (st *Stores) Apply(ws *WriteSet, onMainChain bool) error {
	if err := st.Blocks.Put(ws.Block, onMainChain); err != nil {
		return err
	}
	for _, r := range ws.NewIdentities {
		st.Identities.Put(r)
	}
	for _, c := range ws.IdentityStates {
		_ = st.Identities.SetState(c.PubKey, c.Next)
	}
	for _, m := range ws.MembershipPuts {
		st.Memberships.Put(m)
	}
	for _, e := range ws.NewCertEdges {
		st.Certifications.Add(e)
	}
	for _, p := range ws.RemovedCertEdges {
		st.Certifications.Remove(p.Issuer, p.Target)
	}
	for _, e := range ws.NewWotEdges {
		st.Wot.AddEdge(e.Issuer, e.Target)
	}
	for _, e := range ws.RemovedWotEdges {
		st.Wot.RemoveEdge(e.Issuer, e.Target)
	}
	for _, n := range ws.ExcludedNodes {
		st.Wot.RemoveNode(n)
	}
	for _, c := range ws.UTXOCreates {
		st.UTXOs.Create(c.Key, c.Entry)
	}
	for _, sp := range ws.UTXOSpends {
		if err := st.UTXOs.Spend(sp.Key); err != nil {
			return err
		}
	}
	if ws.HasDividend || ws.NewMonetaryMass > 0 {
		st.Mass.Record(ws.Block.Number, ws.NewMonetaryMass)
	}
	return nil
}

// Inverse builds the write-set that undoes ws. The fork tree journals the
// forward write-set per block, and rollback goes through Stores.Revert on
// that forward write-set; nothing in the engine calls Inverse.
func (ws *WriteSet) Inverse() *WriteSet {
	inv := &WriteSet{Block: ws.Block}
	for _, c := range ws.IdentityStates {
		inv.IdentityStates = append(inv.IdentityStates, IdentityStateChange{
			PubKey: c.PubKey, Previous: c.Next, Next: c.Previous,
		})
	}
	for _, e := range ws.NewCertEdges {
		inv.RemovedCertEdges = append(inv.RemovedCertEdges, CertPair{Issuer: e.Issuer, Target: e.Target})
	}
	for _, e := range ws.NewWotEdges {
		inv.RemovedWotEdges = append(inv.RemovedWotEdges, e)
	}
	for _, c := range ws.UTXOCreates {
		inv.UTXOSpends = append(inv.UTXOSpends, UTXOSpend{Key: c.Key, Entry: c.Entry})
	}
	for _, sp := range ws.UTXOSpends {
		inv.UTXOCreates = append(inv.UTXOCreates, UTXOCreate{Key: sp.Key, Entry: sp.Entry})
	}
	return inv
}

// Revert undoes a previously-applied write-set's effect: it restores spent
// outputs, destroys created ones, drops added WoT/cert edges, reverses
// identity state transitions, and demotes the block from the main-chain
// index (§4.F's rollback step).
func (st *Stores) Revert(ws *WriteSet) error {
	st.Blocks.DemoteFromMainChain(ws.Block.Number)
	for _, c := range ws.IdentityStates {
		_ = st.Identities.SetState(c.PubKey, c.Previous)
	}
	for _, e := range ws.NewCertEdges {
		st.Certifications.Remove(e.Issuer, e.Target)
	}
	for _, e := range ws.NewWotEdges {
		st.Wot.RemoveEdge(e.Issuer, e.Target)
	}
	for _, c := range ws.UTXOCreates {
		st.UTXOs.Destroy(c.Key)
	}
	for _, sp := range ws.UTXOSpends {
		st.UTXOs.Unspend(sp.Key, sp.Entry)
	}
	st.Mass.Forget(ws.Block.Number)
	return nil
}
