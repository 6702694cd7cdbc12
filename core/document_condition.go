package core

// UTXO output condition tree: a small boolean-expression grammar over
// SIG/XHX/CLTV/CSV leaves combined with left-associative `&&`/`||`, disambiguated
// by explicit parentheses when both operators appear at the same nesting
// level (§4.B.5, §9). The original bracketed text is preserved verbatim on
// the parsed value so that re-emission is byte-identical even when it
// carries redundant brackets some producer implementations leave behind.

import (
	"strconv"
	"strings"
)

// CondNode is a node of a parsed condition tree.
type CondNode interface {
	isCondNode()
	// Satisfied reports whether the given unlock context satisfies this
	// node, recursively for And/Or/Brackets.
	Satisfied(ctx *UnlockContext) bool
}

type CondSig struct{ PubKey PubKey }
type CondXHX struct{ Hash Hash }
type CondCLTV struct{ Timestamp uint64 }
type CondCSV struct{ Duration uint64 }
type CondBrackets struct{ Inner CondNode }
type CondAnd struct{ Left, Right CondNode }
type CondOr struct{ Left, Right CondNode }

func (CondSig) isCondNode()      {}
func (CondXHX) isCondNode()      {}
func (CondCLTV) isCondNode()     {}
func (CondCSV) isCondNode()      {}
func (CondBrackets) isCondNode() {}
func (CondAnd) isCondNode()      {}
func (CondOr) isCondNode()       {}

// UnlockContext is the evaluation environment a transaction input's unlock
// proofs are checked against: which signatures were verified, which hash
// preimages were revealed, and the time references CLTV/CSV compare to.
type UnlockContext struct {
	SignedBy    map[PubKey]bool // issuers whose signature verified over this tx
	Preimages   map[Hash]bool   // XHX hashes for which a valid preimage was supplied
	BlockMedian uint64          // consuming block's median_time (CLTV reference, §9b)
	// SinceMedian is consuming_block.median_time - written_block.median_time,
	// the CSV reference (§9b).
	SinceMedian uint64
}

func (c CondSig) Satisfied(ctx *UnlockContext) bool  { return ctx.SignedBy[c.PubKey] }
func (c CondXHX) Satisfied(ctx *UnlockContext) bool  { return ctx.Preimages[c.Hash] }
func (c CondCLTV) Satisfied(ctx *UnlockContext) bool { return ctx.BlockMedian >= c.Timestamp }
func (c CondCSV) Satisfied(ctx *UnlockContext) bool  { return ctx.SinceMedian >= c.Duration }
func (c CondBrackets) Satisfied(ctx *UnlockContext) bool {
	return c.Inner.Satisfied(ctx)
}
func (c CondAnd) Satisfied(ctx *UnlockContext) bool {
	return c.Left.Satisfied(ctx) && c.Right.Satisfied(ctx)
}
func (c CondOr) Satisfied(ctx *UnlockContext) bool {
	return c.Left.Satisfied(ctx) || c.Right.Satisfied(ctx)
}

// ConditionGroup is a parsed output condition, retaining the exact original
// text for byte-identical re-emission.
type ConditionGroup struct {
	Text string
	Tree CondNode
}

func (g *ConditionGroup) String() string { return g.Text }

// ParseConditionGroup parses an output condition string such as
// "SIG(pubkey) && (XHX(hash) || CLTV(123))".
func ParseConditionGroup(s string) (*ConditionGroup, error) {
	tree, err := parseCond(s)
	if err != nil {
		return nil, err
	}
	return &ConditionGroup{Text: s, Tree: tree}, nil
}

func parseCond(s string) (CondNode, error) {
	const kind = "Transaction.Condition"
	if last := lastTopLevelOp(s, " && "); last >= 0 {
		left, err := parseCond(s[:last])
		if err != nil {
			return nil, err
		}
		right, err := parseCond(s[last+len(" && "):])
		if err != nil {
			return nil, err
		}
		return CondAnd{Left: left, Right: right}, nil
	}
	if last := lastTopLevelOp(s, " || "); last >= 0 {
		left, err := parseCond(s[:last])
		if err != nil {
			return nil, err
		}
		right, err := parseCond(s[last+len(" || "):])
		if err != nil {
			return nil, err
		}
		return CondOr{Left: left, Right: right}, nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && fullyWrapped(s) {
		inner, err := parseCond(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return CondBrackets{Inner: inner}, nil
	}
	if leaf, ok, err := parseCondLeaf(s); err != nil {
		return nil, err
	} else if ok {
		return leaf, nil
	}
	return nil, newParseError(kind, "cannot parse condition %q", s)
}

// fullyWrapped reports whether s's first '(' and last ')' are a matching
// pair spanning the entire string (i.e. the parens are not two disjoint
// top-level groups joined by an operator).
func fullyWrapped(s string) bool {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// lastTopLevelOp returns the byte index of the last occurrence of op at
// paren depth 0, or -1 if none exists.
func lastTopLevelOp(s, op string) int {
	depth := 0
	last := -1
	for i := 0; i+len(op) <= len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && s[i:i+len(op)] == op {
			last = i
		}
	}
	return last
}

func parseCondLeaf(s string) (CondNode, bool, error) {
	const kind = "Transaction.Condition"
	switch {
	case strings.HasPrefix(s, "SIG(") && strings.HasSuffix(s, ")"):
		pkStr := s[len("SIG(") : len(s)-1]
		pk, err := PubKeyFromBase58(pkStr)
		if err != nil {
			return nil, false, newParseError(kind, "SIG: %v", err)
		}
		return CondSig{PubKey: pk}, true, nil
	case strings.HasPrefix(s, "XHX(") && strings.HasSuffix(s, ")"):
		hStr := s[len("XHX(") : len(s)-1]
		h, err := HashFromHex(hStr)
		if err != nil {
			return nil, false, newParseError(kind, "XHX: %v", err)
		}
		return CondXHX{Hash: h}, true, nil
	case strings.HasPrefix(s, "CLTV(") && strings.HasSuffix(s, ")"):
		n, err := strconv.ParseUint(s[len("CLTV(") : len(s)-1], 10, 64)
		if err != nil {
			return nil, false, newParseError(kind, "CLTV: %v", err)
		}
		return CondCLTV{Timestamp: n}, true, nil
	case strings.HasPrefix(s, "CSV(") && strings.HasSuffix(s, ")"):
		n, err := strconv.ParseUint(s[len("CSV(") : len(s)-1], 10, 64)
		if err != nil {
			return nil, false, newParseError(kind, "CSV: %v", err)
		}
		return CondCSV{Duration: n}, true, nil
	}
	return nil, false, nil
}
