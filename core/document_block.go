package core

import (
	"fmt"
	"strconv"
	"strings"
)

// TxOrHash stores either a complete transaction or just the hash of one
// already seen, the §9 "Complete | Compact" wrapper applied to a block's
// transaction list.
type TxOrHash struct {
	Tx   *Transaction
	Hash Hash
}

// Resolve returns the effective hash of this entry.
func (t TxOrHash) Resolve() Hash {
	if t.Tx != nil {
		return t.Tx.Hash()
	}
	return t.Hash
}

// Block is a Duniter V10 block document: header fields plus the embedded
// document sections (§3).
type Block struct {
	Version               uint32
	Currency               Currency
	Number                 BlockNumber
	PoWMin                 int
	Time                   uint64
	MedianTime             uint64
	UniversalDividend      *uint64
	UnitBase               uint64
	Issuers                []PubKey
	IssuersFrame           int
	IssuersFrameVar        int
	DifferentIssuersCount  int
	Parameters             *Parameters // only on block 0
	PreviousHash           Hash        // zero on block 0
	PreviousIssuer         PubKey      // zero on block 0
	MembersCount           int

	Identities     []*Identity
	Joiners        []*Membership
	Actives        []*Membership
	Leavers        []*Membership
	Revoked        []*Revocation
	Excluded       []PubKey
	Certifications []*Certification
	Transactions   []TxOrHash

	InnerHash  Hash
	Nonce      uint64
	Signatures []Signature
	Hash       BlockHash
}

// GenerateCompactInnerText renders the block's deterministic body — the
// text whose SHA-256 is the inner hash (§4.B, §6).
func (b *Block) GenerateCompactInnerText() string {
	var identities, joiners, actives, leavers, revoked, excluded, certs, txs strings.Builder
	for _, i := range b.Identities {
		identities.WriteString("\n" + i.CompactText())
	}
	for _, m := range b.Joiners {
		joiners.WriteString("\n" + m.CompactText())
	}
	for _, m := range b.Actives {
		actives.WriteString("\n" + m.CompactText())
	}
	for _, m := range b.Leavers {
		leavers.WriteString("\n" + m.CompactText())
	}
	for _, r := range b.Revoked {
		revoked.WriteString("\n" + r.CompactText())
	}
	for _, e := range b.Excluded {
		excluded.WriteString("\n" + e.String())
	}
	for _, c := range b.Certifications {
		certs.WriteString("\n" + c.CompactText())
	}
	for _, t := range b.Transactions {
		if t.Tx != nil {
			txs.WriteString("\n" + t.Tx.CompactText())
		}
	}

	var dividend, parameters, prevHash, prevIssuer strings.Builder
	if b.UniversalDividend != nil && *b.UniversalDividend > 0 {
		dividend.WriteString("UniversalDividend: " + formatUint(*b.UniversalDividend) + "\n")
	}
	if b.Parameters != nil {
		parameters.WriteString("Parameters: " + b.Parameters.String() + "\n")
	}
	if b.Number > 0 {
		prevHash.WriteString("PreviousHash: " + b.PreviousHash.String() + "\n")
		prevIssuer.WriteString("PreviousIssuer: " + b.PreviousIssuer.String() + "\n")
	}

	issuer := ""
	if len(b.Issuers) > 0 {
		issuer = b.Issuers[0].String()
	}

	return fmt.Sprintf(
		"Version: %d\nType: Block\nCurrency: %s\nNumber: %d\nPoWMin: %d\nTime: %d\nMedianTime: %d\n%sUnitBase: %d\nIssuer: %s\nIssuersFrame: %d\nIssuersFrameVar: %d\nDifferentIssuersCount: %d\n%s%s%sMembersCount: %d\nIdentities:%s\nJoiners:%s\nActives:%s\nLeavers:%s\nRevoked:%s\nExcluded:%s\nCertifications:%s\nTransactions:%s\n",
		b.Version, b.Currency, b.Number, b.PoWMin, b.Time, b.MedianTime,
		dividend.String(), b.UnitBase, issuer, b.IssuersFrame, b.IssuersFrameVar, b.DifferentIssuersCount,
		parameters.String(), prevHash.String(), prevIssuer.String(), b.MembersCount,
		identities.String(), joiners.String(), actives.String(), leavers.String(),
		revoked.String(), excludedString(b.Excluded), certs.String(), txs.String(),
	)
}

func excludedString(pks []PubKey) string {
	var b strings.Builder
	for _, pk := range pks {
		b.WriteString("\n" + pk.String())
	}
	return b.String()
}

// ComputeInnerHash computes the block's inner hash from its current fields.
func (b *Block) ComputeInnerHash() Hash {
	return Sha256([]byte(b.GenerateCompactInnerText()))
}

// WillSignedString is the text an issuer's signature is computed over:
// "InnerHash: <hex>\nNonce: <n>\n" (§4.B.3).
func (b *Block) WillSignedString() string {
	return "InnerHash: " + b.InnerHash.String() + "\nNonce: " + formatUint(b.Nonce) + "\n"
}

// ComputeOuterHash computes the block's outer hash per the §4.B.3 contract:
// sha256(InnerHash-line + Nonce-line + first signature-line).
func (b *Block) ComputeOuterHash() Hash {
	sig := ""
	if len(b.Signatures) > 0 {
		sig = b.Signatures[0].String()
	}
	return Sha256([]byte(b.WillSignedString() + sig + "\n"))
}

// FullText renders the complete block document, including the trailing
// InnerHash/Nonce/signature lines (§6).
func (b *Block) FullText() string {
	body := b.GenerateCompactInnerText()
	var tail strings.Builder
	tail.WriteString("InnerHash: " + b.InnerHash.String() + "\n")
	tail.WriteString("Nonce: " + formatUint(b.Nonce) + "\n")
	for _, s := range b.Signatures {
		tail.WriteString(s.String() + "\n")
	}
	return body + tail.String()
}

// ParseBlock parses a complete block document text.
func ParseBlock(text string) (*Block, error) {
	const kind = "Block"
	lines := splitLines(text)
	i := 0
	b := &Block{}

	verStr, err := expectField(kind, lines, i, "Version")
	if err != nil {
		return nil, err
	}
	i++
	ver, err := parseUint(kind, "Version", verStr)
	if err != nil {
		return nil, err
	}
	b.Version = uint32(ver)
	if err := expectLine(kind, lines, i, "Type: Block"); err != nil {
		return nil, err
	}
	i++
	cur, err := expectField(kind, lines, i, "Currency")
	if err != nil {
		return nil, err
	}
	b.Currency = Currency(cur)
	i++
	numStr, err := expectField(kind, lines, i, "Number")
	if err != nil {
		return nil, err
	}
	i++
	num, err := parseUint(kind, "Number", numStr)
	if err != nil {
		return nil, err
	}
	b.Number = BlockNumber(num)
	powStr, err := expectField(kind, lines, i, "PoWMin")
	if err != nil {
		return nil, err
	}
	i++
	pow, err := parseInt(kind, "PoWMin", powStr)
	if err != nil {
		return nil, err
	}
	b.PoWMin = int(pow)
	timeStr, err := expectField(kind, lines, i, "Time")
	if err != nil {
		return nil, err
	}
	i++
	b.Time, err = parseUint(kind, "Time", timeStr)
	if err != nil {
		return nil, err
	}
	mtStr, err := expectField(kind, lines, i, "MedianTime")
	if err != nil {
		return nil, err
	}
	i++
	b.MedianTime, err = parseUint(kind, "MedianTime", mtStr)
	if err != nil {
		return nil, err
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "UniversalDividend: ") {
		udStr := strings.TrimPrefix(lines[i], "UniversalDividend: ")
		i++
		ud, err := parseUint(kind, "UniversalDividend", udStr)
		if err != nil {
			return nil, err
		}
		b.UniversalDividend = &ud
	}
	ubStr, err := expectField(kind, lines, i, "UnitBase")
	if err != nil {
		return nil, err
	}
	i++
	b.UnitBase, err = parseUint(kind, "UnitBase", ubStr)
	if err != nil {
		return nil, err
	}
	issuerStr, err := expectField(kind, lines, i, "Issuer")
	if err != nil {
		return nil, err
	}
	i++
	issuer, err := PubKeyFromBase58(issuerStr)
	if err != nil {
		return nil, newParseError(kind, "Issuer: %v", err)
	}
	b.Issuers = []PubKey{issuer}
	ifStr, err := expectField(kind, lines, i, "IssuersFrame")
	if err != nil {
		return nil, err
	}
	i++
	ifN, err := parseInt(kind, "IssuersFrame", ifStr)
	if err != nil {
		return nil, err
	}
	b.IssuersFrame = int(ifN)
	ifvStr, err := expectField(kind, lines, i, "IssuersFrameVar")
	if err != nil {
		return nil, err
	}
	i++
	ifvN, err := parseInt(kind, "IssuersFrameVar", ifvStr)
	if err != nil {
		return nil, err
	}
	b.IssuersFrameVar = int(ifvN)
	dicStr, err := expectField(kind, lines, i, "DifferentIssuersCount")
	if err != nil {
		return nil, err
	}
	i++
	dicN, err := parseInt(kind, "DifferentIssuersCount", dicStr)
	if err != nil {
		return nil, err
	}
	b.DifferentIssuersCount = int(dicN)

	if i < len(lines) && strings.HasPrefix(lines[i], "Parameters: ") {
		if b.Number != 0 {
			return nil, newParseError(kind, "only block 0 may carry Parameters")
		}
		params, err := ParseParameters(strings.TrimPrefix(lines[i], "Parameters: "))
		if err != nil {
			return nil, err
		}
		b.Parameters = params
		i++
	} else if b.Number == 0 {
		return nil, newParseError(kind, "block 0 must carry Parameters")
	}

	if b.Number > 0 {
		phStr, err := expectField(kind, lines, i, "PreviousHash")
		if err != nil {
			return nil, err
		}
		i++
		b.PreviousHash, err = HashFromHex(phStr)
		if err != nil {
			return nil, newParseError(kind, "PreviousHash: %v", err)
		}
		piStr, err := expectField(kind, lines, i, "PreviousIssuer")
		if err != nil {
			return nil, err
		}
		i++
		b.PreviousIssuer, err = PubKeyFromBase58(piStr)
		if err != nil {
			return nil, newParseError(kind, "PreviousIssuer: %v", err)
		}
	} else if i < len(lines) && (strings.HasPrefix(lines[i], "PreviousHash: ") || strings.HasPrefix(lines[i], "PreviousIssuer: ")) {
		return nil, newParseError(kind, "genesis block must not carry PreviousHash/PreviousIssuer")
	}

	mcStr, err := expectField(kind, lines, i, "MembersCount")
	if err != nil {
		return nil, err
	}
	i++
	mcN, err := parseInt(kind, "MembersCount", mcStr)
	if err != nil {
		return nil, err
	}
	b.MembersCount = int(mcN)

	i, err = parseBlockSection(kind, lines, i, "Identities:", func(line string) error {
		id, err := ParseIdentityCompact(line)
		if err != nil {
			return err
		}
		b.Identities = append(b.Identities, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Joiners:", func(line string) error {
		m, err := ParseMembershipCompact(line)
		if err != nil {
			return err
		}
		b.Joiners = append(b.Joiners, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Actives:", func(line string) error {
		m, err := ParseMembershipCompact(line)
		if err != nil {
			return err
		}
		b.Actives = append(b.Actives, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Leavers:", func(line string) error {
		m, err := ParseMembershipCompact(line)
		if err != nil {
			return err
		}
		b.Leavers = append(b.Leavers, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Revoked:", func(line string) error {
		r, err := ParseRevocationCompact(line)
		if err != nil {
			return err
		}
		b.Revoked = append(b.Revoked, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Excluded:", func(line string) error {
		pk, err := PubKeyFromBase58(line)
		if err != nil {
			return newParseError(kind, "Excluded: %v", err)
		}
		b.Excluded = append(b.Excluded, pk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	i, err = parseBlockSection(kind, lines, i, "Certifications:", func(line string) error {
		c, err := ParseCertificationCompact(line)
		if err != nil {
			return err
		}
		b.Certifications = append(b.Certifications, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := expectLine(kind, lines, i, "Transactions:"); err != nil {
		return nil, err
	}
	i++
	for i < len(lines) && !strings.HasPrefix(lines[i], "InnerHash: ") {
		tx, err := parseEmbeddedTransaction(lines, &i)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
	}

	ihStr, err := expectField(kind, lines, i, "InnerHash")
	if err != nil {
		return nil, err
	}
	i++
	b.InnerHash, err = HashFromHex(ihStr)
	if err != nil {
		return nil, newParseError(kind, "InnerHash: %v", err)
	}
	nonceStr, err := expectField(kind, lines, i, "Nonce")
	if err != nil {
		return nil, err
	}
	i++
	b.Nonce, err = parseUint(kind, "Nonce", nonceStr)
	if err != nil {
		return nil, err
	}
	for ; i < len(lines); i++ {
		sig, err := SignatureFromBase64(lines[i])
		if err != nil {
			return nil, newParseError(kind, "signature: %v", err)
		}
		b.Signatures = append(b.Signatures, sig)
	}
	if len(b.Signatures) != len(b.Issuers) {
		return nil, newParseError(kind, "signature count %d does not match issuer count %d", len(b.Signatures), len(b.Issuers))
	}
	return b, nil
}

// parseBlockSection consumes a "Label:" header followed by zero or more
// lines (until the next recognized section header), calling onLine for each.
func parseBlockSection(kind string, lines []string, i int, label string, onLine func(string) error) (int, error) {
	if err := expectLine(kind, lines, i, label); err != nil {
		return i, err
	}
	i++
	for i < len(lines) && !isSectionHeader(lines[i]) {
		if err := onLine(lines[i]); err != nil {
			return i, err
		}
		i++
	}
	return i, nil
}

var blockSectionHeaders = map[string]bool{
	"Identities:": true, "Joiners:": true, "Actives:": true, "Leavers:": true,
	"Revoked:": true, "Excluded:": true, "Certifications:": true, "Transactions:": true,
}

func isSectionHeader(line string) bool { return blockSectionHeaders[line] }

// parseEmbeddedTransaction parses one Transactions: section entry, which is
// either a bare hex hash (a reference to a tx already seen) or a full
// "TX:10:..." compact transaction spanning multiple lines.
func parseEmbeddedTransaction(lines []string, i *int) (TxOrHash, error) {
	const kind = "Block.Transaction"
	line := lines[*i]
	if !strings.HasPrefix(line, "TX:10:") {
		h, err := HashFromHex(line)
		if err != nil {
			return TxOrHash{}, newParseError(kind, "expected tx hash or TX:10 header, got %q", line)
		}
		*i++
		return TxOrHash{Hash: h}, nil
	}
	header := strings.TrimPrefix(line, "TX:10:")
	parts := strings.Split(header, ":")
	if len(parts) != 6 {
		return TxOrHash{}, newParseError(kind, "TX header expects 6 fields, got %d", len(parts))
	}
	counts := make([]int, 4)
	for k := 0; k < 4; k++ {
		n, err := strconv.Atoi(parts[k])
		if err != nil {
			return TxOrHash{}, newParseError(kind, "TX header field %d: %v", k, err)
		}
		counts[k] = n
	}
	hasComment := parts[4] == "1"
	locktime, err := strconv.ParseUint(parts[5], 10, 64)
	if err != nil {
		return TxOrHash{}, newParseError(kind, "TX locktime: %v", err)
	}
	*i++
	bsLine := lines[*i]
	bs, err := parseBlockstamp(kind, bsLine)
	if err != nil {
		return TxOrHash{}, err
	}
	*i++
	tx := &Transaction{Blockstamp: bs, Locktime: locktime}
	for k := 0; k < counts[0]; k++ {
		pk, err := PubKeyFromBase58(lines[*i])
		if err != nil {
			return TxOrHash{}, newParseError(kind, "issuer: %v", err)
		}
		tx.Issuers = append(tx.Issuers, pk)
		*i++
	}
	for k := 0; k < counts[1]; k++ {
		in, err := parseTxInput(lines[*i])
		if err != nil {
			return TxOrHash{}, err
		}
		tx.Inputs = append(tx.Inputs, in)
		*i++
	}
	for k := 0; k < counts[2]; k++ {
		u, err := parseTxUnlock(lines[*i])
		if err != nil {
			return TxOrHash{}, err
		}
		tx.Unlocks = append(tx.Unlocks, u)
		*i++
	}
	for k := 0; k < counts[3]; k++ {
		o, err := parseTxOutput(lines[*i])
		if err != nil {
			return TxOrHash{}, err
		}
		tx.Outputs = append(tx.Outputs, o)
		*i++
	}
	if hasComment {
		tx.Comment = lines[*i]
		*i++
	}
	for k := 0; k < len(tx.Issuers); k++ {
		sig, err := SignatureFromBase64(lines[*i])
		if err != nil {
			return TxOrHash{}, newParseError(kind, "signature: %v", err)
		}
		tx.Signatures = append(tx.Signatures, sig)
		*i++
	}
	return TxOrHash{Tx: tx}, nil
}
