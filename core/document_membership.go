package core

import "strings"

// Membership is the `(issuer, kind, block-ref, identity-blockstamp, uid,
// signature)` document expressing a join (IN) or departure (OUT) request.
type Membership struct {
	Currency  Currency
	Issuer    PubKey
	Kind      MembershipKind
	BlockRef  Blockstamp // block the membership is dated against
	IdtyOn    Blockstamp // the referenced identity's created-on blockstamp
	UID       string
	Signature Signature
}

func (m *Membership) CanonicalText() string {
	var b strings.Builder
	b.WriteString("Version: 10\n")
	b.WriteString("Type: Membership\n")
	b.WriteString("Currency: " + string(m.Currency) + "\n")
	b.WriteString("Issuer: " + m.Issuer.String() + "\n")
	b.WriteString("Block: " + m.BlockRef.String() + "\n")
	b.WriteString("Membership: " + string(m.Kind) + "\n")
	b.WriteString("UserID: " + m.UID + "\n")
	b.WriteString("CertTS: " + m.IdtyOn.String() + "\n")
	return b.String()
}

func (m *Membership) FullText() string {
	return m.CanonicalText() + m.Signature.String() + "\n"
}

// CompactText is the form embedded in a block's Joiners:/Actives:/Leavers:
// section: "pubkey:signature:block:identity-blockstamp:uid".
func (m *Membership) CompactText() string {
	return m.Issuer.String() + ":" + m.Signature.String() + ":" + m.BlockRef.String() + ":" + m.IdtyOn.String() + ":" + m.UID
}

func ParseMembership(text string) (*Membership, error) {
	const kind = "Membership"
	lines := splitLines(text)
	if len(lines) != 8 {
		return nil, newParseError(kind, "expected 8 lines, got %d", len(lines))
	}
	if err := expectLine(kind, lines, 0, "Version: 10"); err != nil {
		return nil, err
	}
	if err := expectLine(kind, lines, 1, "Type: Membership"); err != nil {
		return nil, err
	}
	cur, err := expectField(kind, lines, 2, "Currency")
	if err != nil {
		return nil, err
	}
	issuer, err := expectField(kind, lines, 3, "Issuer")
	if err != nil {
		return nil, err
	}
	blk, err := expectField(kind, lines, 4, "Block")
	if err != nil {
		return nil, err
	}
	msKind, err := expectField(kind, lines, 5, "Membership")
	if err != nil {
		return nil, err
	}
	uid, err := expectField(kind, lines, 6, "UserID")
	if err != nil {
		return nil, err
	}
	certTS, err := expectField(kind, lines, 7, "CertTS")
	if err != nil {
		return nil, err
	}
	if msKind != string(MembershipIn) && msKind != string(MembershipOut) {
		return nil, newParseError(kind, "invalid Membership kind %q", msKind)
	}
	pk, err := PubKeyFromBase58(issuer)
	if err != nil {
		return nil, newParseError(kind, "Issuer: %v", err)
	}
	blkBS, err := parseBlockstamp(kind, blk)
	if err != nil {
		return nil, err
	}
	idtyBS, err := parseBlockstamp(kind, certTS)
	if err != nil {
		return nil, err
	}
	return &Membership{
		Currency: Currency(cur), Issuer: pk, Kind: MembershipKind(msKind),
		BlockRef: blkBS, IdtyOn: idtyBS, UID: uid,
	}, nil
}

func ParseMembershipCompact(line string) (*Membership, error) {
	const kind = "Membership"
	parts := strings.SplitN(line, ":", 5)
	if len(parts) != 5 {
		return nil, newParseError(kind, "compact form expects 5 fields, got %d", len(parts))
	}
	pk, err := PubKeyFromBase58(parts[0])
	if err != nil {
		return nil, newParseError(kind, "pubkey: %v", err)
	}
	sig, err := SignatureFromBase64(parts[1])
	if err != nil {
		return nil, newParseError(kind, "signature: %v", err)
	}
	blkBS, err := parseBlockstamp(kind, parts[2])
	if err != nil {
		return nil, err
	}
	idtyBS, err := parseBlockstamp(kind, parts[3])
	if err != nil {
		return nil, err
	}
	return &Membership{Issuer: pk, Signature: sig, BlockRef: blkBS, IdtyOn: idtyBS, UID: parts[4]}, nil
}
