package core

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

var validatorLog = logrus.WithField("subsystem", "validator")

// ValidationContext is the read-only state a candidate block is checked
// against: the stores, the WoT, and the blockstamp the engine currently
// considers the tip (§4.E).
type ValidationContext struct {
	Stores  *Stores
	Current Blockstamp
	Params  *Parameters // inherited from genesis
}

// ValidateBlock runs every §4.E step in order, short-circuiting on the
// first failure, and never mutates st — it only reads, and returns the
// write-set the caller must Apply.
func ValidateBlock(ctx *ValidationContext, b *Block) (*WriteSet, error) {
	if err := validateStructural(b); err != nil {
		return nil, err
	}
	if err := validateHashes(b); err != nil {
		return nil, err
	}
	onMainChain, err := validateChaining(ctx, b)
	if err != nil {
		return nil, err
	}
	params := ctx.Params
	if b.Number == 0 {
		params = b.Parameters
	}
	if params == nil {
		return nil, newRuleViolation("parameters", "no currency parameters available")
	}
	if err := validateDifficulty(ctx, b, params); err != nil {
		return nil, err
	}
	if err := validateTime(ctx, b, params); err != nil {
		return nil, err
	}
	if err := validateIssuerEligibility(ctx, b); err != nil {
		return nil, err
	}

	ws := &WriteSet{Block: b}
	if err := applyIdentities(ctx, b, params, ws); err != nil {
		return nil, err
	}
	if err := applyMemberships(ctx, b, params, ws); err != nil {
		return nil, err
	}
	if err := applyCertifications(ctx, b, params, ws); err != nil {
		return nil, err
	}
	if err := applyRevocations(ctx, b, ws); err != nil {
		return nil, err
	}
	if err := applyExclusions(ctx, b, params, ws); err != nil {
		return nil, err
	}
	if err := applyTransactions(ctx, b, ws); err != nil {
		return nil, err
	}
	if err := validateMonetary(ctx, b, params, ws); err != nil {
		return nil, err
	}
	if b.Number != 0 && b.Parameters != nil {
		return nil, newRuleViolation("parameters", "only block 0 may carry Parameters")
	}

	_ = onMainChain
	return ws, nil
}

func validateStructural(b *Block) error {
	if b.Version == 0 {
		return newRuleViolation("structural", "missing version")
	}
	if len(b.Issuers) == 0 {
		return newRuleViolation("structural", "no issuer")
	}
	if len(b.Signatures) != len(b.Issuers) {
		return newRuleViolation("structural", "signature count %d != issuer count %d", len(b.Signatures), len(b.Issuers))
	}
	return nil
}

func validateHashes(b *Block) error {
	if b.ComputeInnerHash() != b.InnerHash {
		return newRuleViolation("hashes", "inner hash mismatch")
	}
	signed := b.WillSignedString()
	for i, issuer := range b.Issuers {
		if !Verify(issuer, []byte(signed), b.Signatures[i]) {
			return newRuleViolation("hashes", "signature %d does not verify", i)
		}
	}
	if b.ComputeOuterHash() != b.Hash && !b.Hash.IsZero() {
		return newRuleViolation("hashes", "outer hash mismatch")
	}
	return nil
}

// validateChaining reports whether the block extends the current main
// tip. A block that does not is not an error by itself — callers route a
// non-nil, non-error false result to the fork tree (§4.F) as a
// ForkCandidate rather than rejecting it outright.
func validateChaining(ctx *ValidationContext, b *Block) (bool, error) {
	if b.Number == 0 {
		if !b.PreviousHash.IsZero() || b.Parameters == nil {
			return false, newRuleViolation("chaining", "genesis block must omit previous_* and carry parameters")
		}
		return ctx.Current.IsZero(), nil
	}
	if b.Parameters != nil {
		return false, newRuleViolation("chaining", "only block 0 may carry parameters")
	}
	return b.PreviousHash == ctx.Current.Hash && b.Number == ctx.Current.Number+1, nil
}

// leadingZeroBits counts the project's difficulty encoding: full leading
// zero hex nibbles plus a partial-nibble remainder (§4.E.4).
func leadingZeroBits(h Hash) int {
	bits := 0
	for _, byteVal := range h {
		if byteVal == 0 {
			bits += 8
			continue
		}
		for shift := 7; shift >= 0; shift-- {
			if byteVal&(1<<uint(shift)) != 0 {
				return bits
			}
			bits++
		}
	}
	return bits
}

func validateDifficulty(ctx *ValidationContext, b *Block, params *Parameters) error {
	if leadingZeroBits(b.Hash) < b.PoWMin {
		return newRuleViolation("difficulty", "outer hash does not meet pow_min=%d", b.PoWMin)
	}
	if b.Number == 0 {
		return nil
	}
	ceiling := commonDifficultyCeiling(ctx, b, params)
	issuer := b.Issuers[0]
	frame := b.IssuersFrame
	if frame <= 0 {
		frame = 1
	}
	share := float64(issuerFrameOccurrences(ctx, b, issuer)) / float64(frame)
	floor := ceiling
	if share > params.PercentRot {
		floor += int(math.Ceil((share - params.PercentRot) * float64(frame)))
	}
	if b.PoWMin < floor {
		return newRuleViolation("difficulty",
			"pow_min=%d below personalized floor %d (issuers_frame=%d, percent_rot=%.4f, dt_diff_eval=%d)",
			b.PoWMin, floor, b.IssuersFrame, params.PercentRot, params.DtDiffEval)
	}
	return nil
}

// commonDifficultyCeiling derives the round's shared difficulty baseline
// that feeds both the personalized pow_min floor (§4.E.4) and the fork
// tree's tie-break complement (§4.F/§9a): the previous block's pow_min,
// nudged by how far the actual block-production pace over the last
// dt_diff_eval blocks has drifted from the target avg_gen_time.
func commonDifficultyCeiling(ctx *ValidationContext, b *Block, params *Parameters) int {
	if b.Number == 0 || params == nil {
		return b.PoWMin
	}
	prev, ok := ctx.Stores.Blocks.ByNumber(b.Number - 1)
	if !ok || params.AvgGenTime == 0 {
		return b.PoWMin
	}
	window := params.DtDiffEval
	if window == 0 {
		window = 1
	}
	start := BlockNumber(0)
	if uint64(b.Number) > window {
		start = b.Number - BlockNumber(window)
	}
	startBlock, ok := ctx.Stores.Blocks.ByNumber(start)
	if !ok {
		startBlock = prev
	}
	span := b.Number - start
	if span == 0 {
		span = 1
	}
	actualGenTime := float64(prev.Time-startBlock.Time) / float64(span)
	if actualGenTime <= 0 {
		actualGenTime = float64(params.AvgGenTime)
	}
	ratio := actualGenTime / float64(params.AvgGenTime)
	adjust := int(math.Round(math.Log2(1 / ratio)))
	ceiling := prev.PoWMin + adjust
	if ceiling < 0 {
		ceiling = 0
	}
	return ceiling
}

// issuerFrameOccurrences counts how many of the last b.IssuersFrame blocks
// immediately preceding b were produced by issuer — the shared numerator
// behind both the personalized-difficulty rule (§4.E.4) and the
// issuers-frame share eligibility check (§4.E step 6).
func issuerFrameOccurrences(ctx *ValidationContext, b *Block, issuer PubKey) int {
	frame := b.IssuersFrame
	if frame <= 0 || b.Number == 0 {
		return 0
	}
	count := 0
	n := b.Number - 1
	for span := 0; span < frame; span++ {
		blk, ok := ctx.Stores.Blocks.ByNumber(n)
		if !ok {
			break
		}
		if len(blk.Issuers) > 0 && blk.Issuers[0] == issuer {
			count++
		}
		if n == 0 {
			break
		}
		n--
	}
	return count
}

func validateTime(ctx *ValidationContext, b *Block, params *Parameters) error {
	if b.Time < b.MedianTime {
		return newRuleViolation("time", "time before median_time")
	}
	expectedMedian := computeMedianTime(ctx, b, params)
	if b.MedianTime != expectedMedian {
		return newRuleViolation("time", "median_time=%d does not match the computed median %d over the last median_time_blocks=%d blocks",
			b.MedianTime, expectedMedian, params.MedianTimeBlocks)
	}
	const maxFutureDrift = 3600
	if b.Time > expectedMedian+maxFutureDrift {
		return newRuleViolation("time", "time %d too far ahead of median_time %d", b.Time, expectedMedian)
	}
	return nil
}

// computeMedianTime independently re-derives §4.E.5's median_time: the
// median of the Time field of the median_time_blocks blocks immediately
// preceding b, so a forged MedianTime can no longer slip past validation.
func computeMedianTime(ctx *ValidationContext, b *Block, params *Parameters) uint64 {
	if b.Number == 0 {
		return b.Time
	}
	window := params.MedianTimeBlocks
	if window == 0 || uint64(b.Number) < window {
		window = uint64(b.Number)
	}
	if window == 0 {
		return b.Time
	}
	times := make([]uint64, 0, window)
	for i := uint64(0); i < window; i++ {
		n := b.Number - BlockNumber(i) - 1
		blk, ok := ctx.Stores.Blocks.ByNumber(n)
		if !ok {
			break
		}
		times = append(times, blk.Time)
	}
	if len(times) == 0 {
		return b.Time
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	mid := len(times) / 2
	if len(times)%2 == 0 {
		return (times[mid-1] + times[mid]) / 2
	}
	return times[mid]
}

func validateIssuerEligibility(ctx *ValidationContext, b *Block) error {
	for _, issuer := range b.Issuers {
		rec, ok := ctx.Stores.Identities.Get(issuer)
		if b.Number > 0 && (!ok || rec.State != StateMember) {
			return newRuleViolation("issuer-eligibility", "issuer %s is not a living member", issuer.String())
		}
	}
	if b.Number == 0 || b.IssuersFrame <= 0 {
		return nil
	}
	issuer := b.Issuers[0]
	occurrences := issuerFrameOccurrences(ctx, b, issuer)
	different := b.DifferentIssuersCount
	if different <= 0 {
		different = 1
	}
	maxShare := b.IssuersFrame / different
	if maxShare < 1 {
		maxShare = 1
	}
	if occurrences >= maxShare {
		return newRuleViolation("issuer-eligibility",
			"issuer %s exceeds its share of the issuers frame (%d seen >= max %d, issuers_frame=%d, different_issuers_count=%d)",
			issuer.String(), occurrences, maxShare, b.IssuersFrame, different)
	}
	return nil
}

func applyIdentities(ctx *ValidationContext, b *Block, params *Parameters, ws *WriteSet) error {
	for _, id := range b.Identities {
		if !Verify(id.PubKey, []byte(id.CanonicalText()), id.Signature) {
			return newRuleViolation("identity", "signature invalid for uid %s", id.UID)
		}
		if !ctx.Stores.Identities.UIDAvailable(id.UID) {
			return newRuleViolation("identity", "uid %s already in use", id.UID)
		}
		if !ctx.Stores.Identities.PubKeyAvailable(id.PubKey) {
			return newRuleViolation("identity", "pubkey %s already has a living identity", id.PubKey.String())
		}
		ws.NewIdentities = append(ws.NewIdentities, &IdentityRecord{
			Identity:  id,
			State:     StatePending,
			ExpiresAt: b.MedianTime + params.IdtyWindow,
		})
	}
	return nil
}

func applyMemberships(ctx *ValidationContext, b *Block, params *Parameters, ws *WriteSet) error {
	apply := func(ms []*Membership, kind string) error {
		for _, m := range ms {
			rec, ok := ctx.Stores.Identities.Get(m.Issuer)
			if !ok {
				return newRuleViolation("membership", "%s: unknown identity %s", kind, m.Issuer.String())
			}
			ws.MembershipPuts = append(ws.MembershipPuts, &MembershipRecord{
				Issuer:    m.Issuer,
				Kind:      m.Kind,
				BlockRef:  m.BlockRef,
				ExpiresAt: b.MedianTime + params.MsValidity,
			})
			next := StateMember
			if m.Kind == MembershipOut {
				next = StateMissing
			}
			ws.IdentityStates = append(ws.IdentityStates, IdentityStateChange{PubKey: m.Issuer, Previous: rec.State, Next: next})
		}
		return nil
	}
	if err := apply(b.Joiners, "joiner"); err != nil {
		return err
	}
	if err := apply(b.Actives, "active"); err != nil {
		return err
	}
	if err := apply(b.Leavers, "leaver"); err != nil {
		return err
	}
	return nil
}

func applyCertifications(ctx *ValidationContext, b *Block, params *Parameters, ws *WriteSet) error {
	for _, c := range b.Certifications {
		issuerRec, ok := ctx.Stores.Identities.Get(c.Issuer)
		if !ok || issuerRec.State != StateMember {
			return newRuleViolation("certification", "issuer %s is not a member", c.Issuer.String())
		}
		if !ctx.Stores.Certifications.CooldownOK(c.Issuer, b.MedianTime, params.SigPeriod) {
			return newRuleViolation("certification", "issuer %s cooldown not satisfied", c.Issuer.String())
		}
		if !ctx.Stores.Certifications.StockOK(c.Issuer, params.SigStock) {
			return newRuleViolation("certification", "issuer %s exceeds sig_stock", c.Issuer.String())
		}
		if ctx.Stores.Certifications.Exists(c.Issuer, c.Target) {
			return newRuleViolation("certification", "duplicate certification %s -> %s", c.Issuer.String(), c.Target.String())
		}
		targetRec, ok := ctx.Stores.Identities.Get(c.Target)
		if !ok {
			return newRuleViolation("certification", "unknown target %s", c.Target.String())
		}
		if !distanceRuleHoldsAfter(ctx, c.Issuer, c.Target, targetRec.NodeID, params) {
			return newRuleViolation("certification", "distance rule fails for %s after %s's certification", c.Target.String(), c.Issuer.String())
		}
		ws.NewCertEdges = append(ws.NewCertEdges, &CertEdge{
			Issuer: c.Issuer, Target: c.Target, IssuedOn: Blockstamp{Number: b.Number, Hash: Hash(b.Hash)},
			IssuedAt: b.MedianTime, ExpiresOn: b.MedianTime + params.SigValidity,
		})
		ws.NewWotEdges = append(ws.NewWotEdges, WotEdge{Issuer: issuerRec.NodeID, Target: targetRec.NodeID})
	}
	return nil
}

// distanceRuleHoldsAfter evaluates the §4.D distance rule (§4.E step 7) for
// target as it reads immediately after issuer's certification lands.
// ValidateBlock must not mutate the live WoT graph, so the edge being
// applied isn't indexed yet: issuer is counted as reaching target directly
// (that is exactly what the new edge establishes), and every other
// referring member is checked against the graph as it stands today.
func distanceRuleHoldsAfter(ctx *ValidationContext, issuer, target PubKey, targetNode NodeID, params *Parameters) bool {
	referring := ctx.Stores.Certifications.ReferringMembers(target)
	seenIssuer := false
	for _, pk := range referring {
		if pk == issuer {
			seenIssuer = true
			break
		}
	}
	if !seenIssuer {
		referring = append(referring, issuer)
	}
	if len(referring) == 0 {
		return false
	}
	reachers := 0
	for _, pk := range referring {
		if pk == issuer {
			reachers++
			continue
		}
		rec, ok := ctx.Stores.Identities.Get(pk)
		if !ok {
			continue
		}
		if ctx.Stores.Wot.DistanceRuleOK(targetNode, []NodeID{rec.NodeID}, 1.0, params.StepMax) {
			reachers++
		}
	}
	return float64(reachers) >= params.XPercent*float64(len(referring))
}

func applyRevocations(ctx *ValidationContext, b *Block, ws *WriteSet) error {
	for _, r := range b.Revoked {
		rec, ok := ctx.Stores.Identities.Get(r.Issuer)
		if !ok {
			return newRuleViolation("revocation", "unknown identity %s", r.Issuer.String())
		}
		if !Verify(r.Issuer, []byte(r.CanonicalText()), r.Signature) {
			return newRuleViolation("revocation", "signature invalid")
		}
		ws.IdentityStates = append(ws.IdentityStates, IdentityStateChange{
			PubKey: r.Issuer, Previous: rec.State, Next: StateRevoked,
		})
	}
	return nil
}

func applyExclusions(ctx *ValidationContext, b *Block, params *Parameters, ws *WriteSet) error {
	mandatory := map[PubKey]bool{}
	for _, r := range ctx.Stores.Memberships.Expired(b.MedianTime) {
		mandatory[r.Issuer] = true
	}
	for _, r := range b.Revoked {
		mandatory[r.Issuer] = true
	}
	listed := map[PubKey]bool{}
	for _, pk := range b.Excluded {
		listed[pk] = true
	}
	for pk := range mandatory {
		if !listed[pk] {
			return newRuleViolation("exclusion", "missing mandatory exclusion for %s", pk.String())
		}
	}
	for pk := range listed {
		if !mandatory[pk] {
			return newRuleViolation("exclusion", "exclusion of %s is not mandatory", pk.String())
		}
		if rec, ok := ctx.Stores.Identities.Get(pk); ok {
			ws.IdentityStates = append(ws.IdentityStates, IdentityStateChange{
				PubKey: pk, Previous: rec.State, Next: StateExcluded,
			})
			ws.ExcludedNodes = append(ws.ExcludedNodes, rec.NodeID)
		}
	}
	_ = params
	return nil
}

func applyTransactions(ctx *ValidationContext, b *Block, ws *WriteSet) error {
	spentThisBlock := map[UTXOKey]bool{}
	for _, entry := range b.Transactions {
		tx := entry.Tx
		if tx == nil {
			continue // a hash-only reference to a tx already seen; nothing to apply
		}
		if len(tx.Signatures) != len(tx.Issuers) {
			return newRuleViolation("transaction", "signature count mismatch")
		}
		signed := tx.CanonicalText() + joinSignatures(tx.Signatures)
		signedBy := map[PubKey]bool{}
		for i, issuer := range tx.Issuers {
			if !Verify(issuer, []byte(tx.CanonicalText()), tx.Signatures[i]) {
				return newRuleViolation("transaction", "signature %d invalid", i)
			}
			signedBy[issuer] = true
		}
		_ = signed

		var inTotal, outTotal int64
		var base uint64
		first := true
		for _, in := range tx.Inputs {
			if first {
				base = in.Base
				first = false
			} else if in.Base != base {
				return newRuleViolation("transaction", "mixed bases across inputs")
			}
			inTotal += in.Amount

			if in.IsUD {
				continue // UD consumption does not touch the UTXO set
			}
			key := UTXOKey{TxHash: in.SourceTxHash, Index: in.OutputIndex}
			if spentThisBlock[key] || ctx.Stores.UTXOs.IsSpent(key) {
				return newRuleViolation("transaction", "double spend of %s", key.String())
			}
			utxo, ok := ctx.Stores.UTXOs.Get(key)
			if !ok {
				return newRuleViolation("transaction", "unknown output %s", key.String())
			}
			unlockCtx := &UnlockContext{
				SignedBy:    signedBy,
				BlockMedian: b.MedianTime,
				SinceMedian: b.MedianTime - utxo.WrittenAt,
			}
			if !utxo.Conditions.Tree.Satisfied(unlockCtx) {
				return newRuleViolation("transaction", "unlock conditions not satisfied for %s", key.String())
			}
			spentThisBlock[key] = true
			ws.UTXOSpends = append(ws.UTXOSpends, UTXOSpend{Key: key, Entry: utxo})
		}
		for _, out := range tx.Outputs {
			outTotal += out.Amount
		}
		if inTotal != outTotal {
			return newRuleViolation("transaction", "sum(inputs)=%d != sum(outputs)=%d", inTotal, outTotal)
		}
		txHash := tx.Hash()
		for idx, out := range tx.Outputs {
			ws.UTXOCreates = append(ws.UTXOCreates, UTXOCreate{
				Key: UTXOKey{TxHash: txHash, Index: uint32(idx)},
				Entry: &UTXOEntry{
					Amount: out.Amount, Base: out.Base, Conditions: out.Conditions,
					WrittenBlock: b.Number, WrittenAt: b.MedianTime,
					RecipientKey: soleSigHolder(out.Conditions),
				},
			})
		}
	}
	return nil
}

// soleSigHolder returns the pubkey of a condition tree that is exactly a
// single SIG leaf (optionally bracketed), or the zero key otherwise — used
// only to populate the recipient index for balance queries.
func soleSigHolder(cg *ConditionGroup) PubKey {
	node := cg.Tree
	for {
		if b, ok := node.(CondBrackets); ok {
			node = b.Inner
			continue
		}
		break
	}
	if sig, ok := node.(CondSig); ok {
		return sig.PubKey
	}
	return PubKey{}
}

func validateMonetary(ctx *ValidationContext, b *Block, params *Parameters, ws *WriteSet) error {
	prevMass, _ := ctx.Stores.Mass.At(b.Number - 1)
	if b.Number == 0 {
		prevMass = 0
	}
	ws.NewMonetaryMass = prevMass
	if b.UniversalDividend == nil {
		return nil
	}
	ws.HasDividend = true
	members := ctx.Stores.Identities.Members()
	expected := expectedDividend(params, prevMass, uint64(len(members)))
	if *b.UniversalDividend != expected {
		return newRuleViolation("monetary", "dividend %d != expected %d", *b.UniversalDividend, expected)
	}
	ws.NewMonetaryMass = prevMass + expected*uint64(len(members))
	return nil
}

// expectedDividend implements the UD growth formula: UD(n) = max(UD0,
// UD(n-1) + ceil(c^2 * mass / members / dt)), simplified to the per-
// reevaluation increment form since dt == dt_reeval at each UD block
// under this engine's scheduling (§4.E.8).
func expectedDividend(params *Parameters, mass, members uint64) uint64 {
	if members == 0 {
		return params.UD0
	}
	growth := params.C * params.C * float64(mass) / float64(members)
	ud := uint64(growth)
	if ud < params.UD0 {
		return params.UD0
	}
	return ud
}
