package core

import "fmt"

// RebuildIndexes replays every main-chain block already recovered by the
// block store's own WAL back through the validator's apply steps,
// reconstructing the identity/membership/certification/UTXO/WoT indexes
// from scratch. The block WAL is the only store with its own on-disk
// encoding (the block's canonical DUBP text); every other store is a
// derived, in-memory view rebuilt this way on startup, so none of them
// needs an independent WAL codec of its own.
func RebuildIndexes(stores *Stores, genesisParams *Parameters) error {
	current := stores.Blocks.CurrentBlockstamp()
	if current.IsZero() {
		return nil
	}
	params := genesisParams
	var prevStamp Blockstamp
	for n := BlockNumber(0); n <= current.Number; n++ {
		b, ok := stores.Blocks.ByNumber(n)
		if !ok {
			return fmt.Errorf("%w: missing block %d during index rebuild", ErrUnknownBlock, n)
		}
		if b.Parameters != nil {
			params = b.Parameters
		}
		vctx := &ValidationContext{Stores: stores, Current: prevStamp, Params: params}
		if err := rebuildOneBlock(vctx, b, params, stores); err != nil {
			return fmt.Errorf("%w: rebuild block %d: %v", ErrStore, n, err)
		}
		prevStamp = Blockstamp{Number: b.Number, Hash: Hash(b.Hash)}
	}
	return nil
}

// rebuildOneBlock re-derives a single block's write-set and applies it to
// every store except the block store itself (already populated by the WAL
// replay).
func rebuildOneBlock(vctx *ValidationContext, b *Block, params *Parameters, stores *Stores) error {
	ws := &WriteSet{Block: b}
	if err := applyIdentities(vctx, b, params, ws); err != nil {
		return err
	}
	if err := applyMemberships(vctx, b, params, ws); err != nil {
		return err
	}
	if err := applyCertifications(vctx, b, params, ws); err != nil {
		return err
	}
	if err := applyRevocations(vctx, b, ws); err != nil {
		return err
	}
	if err := applyExclusions(vctx, b, params, ws); err != nil {
		return err
	}
	if err := applyTransactions(vctx, b, ws); err != nil {
		return err
	}
	for _, r := range ws.NewIdentities {
		stores.Identities.Put(r)
	}
	for _, c := range ws.IdentityStates {
		_ = stores.Identities.SetState(c.PubKey, c.Next)
	}
	for _, m := range ws.MembershipPuts {
		stores.Memberships.Put(m)
	}
	for _, e := range ws.NewCertEdges {
		stores.Certifications.Add(e)
	}
	for _, p := range ws.RemovedCertEdges {
		stores.Certifications.Remove(p.Issuer, p.Target)
	}
	for _, e := range ws.NewWotEdges {
		stores.Wot.AddEdge(e.Issuer, e.Target)
	}
	for _, e := range ws.RemovedWotEdges {
		stores.Wot.RemoveEdge(e.Issuer, e.Target)
	}
	for _, n := range ws.ExcludedNodes {
		stores.Wot.RemoveNode(n)
	}
	for _, c := range ws.UTXOCreates {
		stores.UTXOs.Create(c.Key, c.Entry)
	}
	for _, sp := range ws.UTXOSpends {
		if err := stores.UTXOs.Spend(sp.Key); err != nil {
			return err
		}
	}
	if ws.HasDividend || ws.NewMonetaryMass > 0 {
		stores.Mass.Record(b.Number, ws.NewMonetaryMass)
	}
	return nil
}
