package core

import (
	"fmt"
	"strconv"
	"strings"
)

// TxInput is a transaction input: either a Universal Dividend reference
// (D) or a previous-output reference (T).
type TxInput struct {
	Amount int64
	Base   uint64
	IsUD   bool // true: D(amount,base,pubkey,block); false: T(amount,base,tx_hash,index)

	// D fields
	SourcePubKey PubKey
	SourceBlock  BlockNumber

	// T fields
	SourceTxHash Hash
	OutputIndex  uint32
}

func (in TxInput) String() string {
	if in.IsUD {
		return fmt.Sprintf("%d:%d:D:%s:%d", in.Amount, in.Base, in.SourcePubKey, in.SourceBlock)
	}
	return fmt.Sprintf("%d:%d:T:%s:%d", in.Amount, in.Base, in.SourceTxHash, in.OutputIndex)
}

func parseTxInput(s string) (TxInput, error) {
	const kind = "Transaction.Input"
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return TxInput{}, newParseError(kind, "expected 5 fields, got %d", len(parts))
	}
	amount, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return TxInput{}, newParseError(kind, "amount: %v", err)
	}
	base, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return TxInput{}, newParseError(kind, "base: %v", err)
	}
	switch parts[2] {
	case "D":
		pk, err := PubKeyFromBase58(parts[3])
		if err != nil {
			return TxInput{}, newParseError(kind, "source pubkey: %v", err)
		}
		block, err := strconv.ParseUint(parts[4], 10, 32)
		if err != nil {
			return TxInput{}, newParseError(kind, "source block: %v", err)
		}
		return TxInput{Amount: amount, Base: base, IsUD: true, SourcePubKey: pk, SourceBlock: BlockNumber(block)}, nil
	case "T":
		h, err := HashFromHex(parts[3])
		if err != nil {
			return TxInput{}, newParseError(kind, "source tx hash: %v", err)
		}
		idx, err := strconv.ParseUint(parts[4], 10, 32)
		if err != nil {
			return TxInput{}, newParseError(kind, "output index: %v", err)
		}
		return TxInput{Amount: amount, Base: base, IsUD: false, SourceTxHash: h, OutputIndex: uint32(idx)}, nil
	default:
		return TxInput{}, newParseError(kind, "unknown input kind %q", parts[2])
	}
}

// UnlockProof is one proof within a TxUnlock: either a reference to one of
// the transaction's own signatures (by issuer index) or a revealed hash
// preimage.
type UnlockProof struct {
	IsXHX    bool
	SigIndex int
	Preimage string
}

func (p UnlockProof) String() string {
	if p.IsXHX {
		return "XHX(" + p.Preimage + ")"
	}
	return fmt.Sprintf("SIG(%d)", p.SigIndex)
}

func parseUnlockProof(s string) (UnlockProof, error) {
	const kind = "Transaction.Unlock"
	switch {
	case strings.HasPrefix(s, "SIG(") && strings.HasSuffix(s, ")"):
		n, err := strconv.Atoi(s[len("SIG(") : len(s)-1])
		if err != nil {
			return UnlockProof{}, newParseError(kind, "SIG: %v", err)
		}
		return UnlockProof{SigIndex: n}, nil
	case strings.HasPrefix(s, "XHX(") && strings.HasSuffix(s, ")"):
		return UnlockProof{IsXHX: true, Preimage: s[len("XHX(") : len(s)-1]}, nil
	default:
		return UnlockProof{}, newParseError(kind, "unknown unlock proof %q", s)
	}
}

// TxUnlock ties a set of unlock proofs to a single input, by its index in
// the Inputs list.
type TxUnlock struct {
	Index  int
	Proofs []UnlockProof
}

func (u TxUnlock) String() string {
	parts := make([]string, len(u.Proofs))
	for i, p := range u.Proofs {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%d:%s", u.Index, strings.Join(parts, " "))
}

func parseTxUnlock(s string) (TxUnlock, error) {
	const kind = "Transaction.Unlock"
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return TxUnlock{}, newParseError(kind, "missing ':' in %q", s)
	}
	n, err := strconv.Atoi(s[:idx])
	if err != nil {
		return TxUnlock{}, newParseError(kind, "index: %v", err)
	}
	proofStrs := strings.Split(s[idx+1:], " ")
	proofs := make([]UnlockProof, len(proofStrs))
	for i, ps := range proofStrs {
		p, err := parseUnlockProof(ps)
		if err != nil {
			return TxUnlock{}, err
		}
		proofs[i] = p
	}
	return TxUnlock{Index: n, Proofs: proofs}, nil
}

// TxOutput is a transaction output: an amount at a base, spendable under a
// boolean condition tree.
type TxOutput struct {
	Amount     int64
	Base       uint64
	Conditions *ConditionGroup
}

func (o TxOutput) String() string {
	return fmt.Sprintf("%d:%d:%s", o.Amount, o.Base, o.Conditions.String())
}

func parseTxOutput(s string) (TxOutput, error) {
	const kind = "Transaction.Output"
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return TxOutput{}, newParseError(kind, "expected 3 fields, got %d", len(parts))
	}
	amount, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return TxOutput{}, newParseError(kind, "amount: %v", err)
	}
	base, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return TxOutput{}, newParseError(kind, "base: %v", err)
	}
	cond, err := ParseConditionGroup(parts[2])
	if err != nil {
		return TxOutput{}, err
	}
	return TxOutput{Amount: amount, Base: base, Conditions: cond}, nil
}

// Transaction is the `(blockstamp, locktime, issuers[], inputs[], unlocks[],
// outputs[], comment, signatures[])` document spending UTXOs/UDs.
type Transaction struct {
	Currency   Currency
	Blockstamp Blockstamp
	Locktime   uint64
	Issuers    []PubKey
	Inputs     []TxInput
	Unlocks    []TxUnlock
	Outputs    []TxOutput
	Comment    string
	Signatures []Signature
}

// CanonicalText is the transaction's signed body (everything but the
// trailing signature lines).
func (tx *Transaction) CanonicalText() string {
	var b strings.Builder
	b.WriteString("Version: 10\n")
	b.WriteString("Type: Transaction\n")
	b.WriteString("Currency: " + string(tx.Currency) + "\n")
	b.WriteString("Blockstamp: " + tx.Blockstamp.String() + "\n")
	b.WriteString("Locktime: " + formatUint(tx.Locktime) + "\n")
	b.WriteString("Issuers:\n")
	for _, i := range tx.Issuers {
		b.WriteString(i.String() + "\n")
	}
	b.WriteString("Inputs:\n")
	for _, in := range tx.Inputs {
		b.WriteString(in.String() + "\n")
	}
	b.WriteString("Unlocks:\n")
	for _, u := range tx.Unlocks {
		b.WriteString(u.String() + "\n")
	}
	b.WriteString("Outputs:\n")
	for _, o := range tx.Outputs {
		b.WriteString(o.String() + "\n")
	}
	b.WriteString("Comment: " + tx.Comment + "\n")
	return b.String()
}

// FullText appends the trailing signature lines to the canonical text.
func (tx *Transaction) FullText() string {
	return tx.CanonicalText() + joinSignatures(tx.Signatures)
}

// Hash computes the transaction's hash per §4.B.4: signatures are appended
// after a trailing newline before hashing the canonical text.
func (tx *Transaction) Hash() Hash {
	return Sha256([]byte(tx.CanonicalText() + joinSignatures(tx.Signatures)))
}

func joinSignatures(sigs []Signature) string {
	var b strings.Builder
	for _, s := range sigs {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}

// CompactText is the block/mempool-embedded form:
// "TX:10:<issuers>:<inputs>:<unlocks>:<outputs>:<has_comment>:<locktime>"
// followed by the same sections without their field-name headers.
func (tx *Transaction) CompactText() string {
	var b strings.Builder
	hasComment := 0
	if tx.Comment != "" {
		hasComment = 1
	}
	fmt.Fprintf(&b, "TX:10:%d:%d:%d:%d:%d:%d\n",
		len(tx.Issuers), len(tx.Inputs), len(tx.Unlocks), len(tx.Outputs), hasComment, tx.Locktime)
	b.WriteString(tx.Blockstamp.String() + "\n")
	for _, i := range tx.Issuers {
		b.WriteString(i.String() + "\n")
	}
	for _, in := range tx.Inputs {
		b.WriteString(in.String() + "\n")
	}
	for _, u := range tx.Unlocks {
		b.WriteString(u.String() + "\n")
	}
	for _, o := range tx.Outputs {
		b.WriteString(o.String() + "\n")
	}
	if tx.Comment != "" {
		b.WriteString(tx.Comment + "\n")
	}
	for i, s := range tx.Signatures {
		b.WriteString(s.String())
		if i != len(tx.Signatures)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ParseTransaction parses the full standalone transaction text, including
// its trailing signature lines.
func ParseTransaction(text string) (*Transaction, error) {
	const kind = "Transaction"
	lines := splitLines(text)
	if len(lines) < 8 {
		return nil, newParseError(kind, "too few lines: %d", len(lines))
	}
	i := 0
	if err := expectLine(kind, lines, i, "Version: 10"); err != nil {
		return nil, err
	}
	i++
	if err := expectLine(kind, lines, i, "Type: Transaction"); err != nil {
		return nil, err
	}
	i++
	cur, err := expectField(kind, lines, i, "Currency")
	if err != nil {
		return nil, err
	}
	i++
	bsStr, err := expectField(kind, lines, i, "Blockstamp")
	if err != nil {
		return nil, err
	}
	i++
	ltStr, err := expectField(kind, lines, i, "Locktime")
	if err != nil {
		return nil, err
	}
	i++
	if err := expectLine(kind, lines, i, "Issuers:"); err != nil {
		return nil, err
	}
	i++

	tx := &Transaction{Currency: Currency(cur)}
	tx.Blockstamp, err = parseBlockstamp(kind, bsStr)
	if err != nil {
		return nil, err
	}
	lt, err := parseUint(kind, "Locktime", ltStr)
	if err != nil {
		return nil, err
	}
	tx.Locktime = lt

	for i < len(lines) && lines[i] != "Inputs:" {
		pk, err := PubKeyFromBase58(lines[i])
		if err != nil {
			return nil, newParseError(kind, "issuer: %v", err)
		}
		tx.Issuers = append(tx.Issuers, pk)
		i++
	}
	if err := expectLine(kind, lines, i, "Inputs:"); err != nil {
		return nil, err
	}
	i++
	for i < len(lines) && lines[i] != "Unlocks:" {
		in, err := parseTxInput(lines[i])
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
		i++
	}
	if err := expectLine(kind, lines, i, "Unlocks:"); err != nil {
		return nil, err
	}
	i++
	for i < len(lines) && lines[i] != "Outputs:" {
		u, err := parseTxUnlock(lines[i])
		if err != nil {
			return nil, err
		}
		tx.Unlocks = append(tx.Unlocks, u)
		i++
	}
	if err := expectLine(kind, lines, i, "Outputs:"); err != nil {
		return nil, err
	}
	i++
	for i < len(lines) && !strings.HasPrefix(lines[i], "Comment: ") {
		o, err := parseTxOutput(lines[i])
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, o)
		i++
	}
	comment, err := expectField(kind, lines, i, "Comment")
	if err != nil {
		return nil, err
	}
	tx.Comment = comment
	i++
	for ; i < len(lines); i++ {
		sig, err := SignatureFromBase64(lines[i])
		if err != nil {
			return nil, newParseError(kind, "signature: %v", err)
		}
		tx.Signatures = append(tx.Signatures, sig)
	}
	if len(tx.Signatures) != len(tx.Issuers) {
		return nil, newParseError(kind, "signature count %d does not match issuer count %d", len(tx.Signatures), len(tx.Issuers))
	}
	return tx, nil
}
