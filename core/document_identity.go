package core

import "strings"

// Identity is the `(pubkey, uid, created-at-blockstamp, signature)` document
// introducing a human handle into the web of trust.
type Identity struct {
	Currency  Currency
	PubKey    PubKey
	UID       string
	CreatedOn Blockstamp
	Signature Signature
}

// CanonicalText returns the text an identity's signature is computed
// over. Field order is fixed: Version/Type/Currency/Issuer/UniqueID/Timestamp.
func (id *Identity) CanonicalText() string {
	var b strings.Builder
	b.WriteString("Version: 10\n")
	b.WriteString("Type: Identity\n")
	b.WriteString("Currency: " + string(id.Currency) + "\n")
	b.WriteString("Issuer: " + id.PubKey.String() + "\n")
	b.WriteString("UniqueID: " + id.UID + "\n")
	b.WriteString("Timestamp: " + id.CreatedOn.String() + "\n")
	return b.String()
}

// FullText is the canonical text plus its trailing signature line, the form
// exchanged standalone (e.g. over WS2P document push) before inclusion in a
// block.
func (id *Identity) FullText() string {
	return id.CanonicalText() + id.Signature.String() + "\n"
}

// CompactText is the shorter form embedded in a block's Identities: section:
// "pubkey:signature:blockstamp:uid".
func (id *Identity) CompactText() string {
	return id.PubKey.String() + ":" + id.Signature.String() + ":" + id.CreatedOn.String() + ":" + id.UID
}

// ParseIdentity parses the full standalone identity text, including its
// trailing signature line.
func ParseIdentity(text string) (*Identity, error) {
	const kind = "Identity"
	lines := splitLines(text)
	if len(lines) != 7 {
		return nil, newParseError(kind, "expected 7 lines, got %d", len(lines))
	}
	if err := expectLine(kind, lines, 0, "Version: 10"); err != nil {
		return nil, err
	}
	if err := expectLine(kind, lines, 1, "Type: Identity"); err != nil {
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
	uid, err := expectField(kind, lines, 4, "UniqueID")
	if err != nil {
		return nil, err
	}
	ts, err := expectField(kind, lines, 5, "Timestamp")
	if err != nil {
		return nil, err
	}
	pk, err := PubKeyFromBase58(issuer)
	if err != nil {
		return nil, newParseError(kind, "Issuer: %v", err)
	}
	bs, err := parseBlockstamp(kind, ts)
	if err != nil {
		return nil, err
	}
	if uid == "" || strings.ContainsAny(uid, " \n\t") {
		return nil, newParseError(kind, "invalid UniqueID %q", uid)
	}
	sig, err := SignatureFromBase64(lines[6])
	if err != nil {
		return nil, newParseError(kind, "signature: %v", err)
	}
	return &Identity{Currency: Currency(cur), PubKey: pk, UID: uid, CreatedOn: bs, Signature: sig}, nil
}

// ParseIdentityCompact parses the block-embedded compact projection.
func ParseIdentityCompact(line string) (*Identity, error) {
	const kind = "Identity"
	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return nil, newParseError(kind, "compact form expects 4 fields, got %d", len(parts))
	}
	pk, err := PubKeyFromBase58(parts[0])
	if err != nil {
		return nil, newParseError(kind, "pubkey: %v", err)
	}
	sig, err := SignatureFromBase64(parts[1])
	if err != nil {
		return nil, newParseError(kind, "signature: %v", err)
	}
	bs, err := parseBlockstamp(kind, parts[2])
	if err != nil {
		return nil, err
	}
	return &Identity{PubKey: pk, Signature: sig, CreatedOn: bs, UID: parts[3]}, nil
}

func parseBlockstamp(kind, s string) (Blockstamp, error) {
	idx := strings.IndexByte(s, '-')
	if idx < 0 {
		return Blockstamp{}, newParseError(kind, "invalid blockstamp %q", s)
	}
	n, err := parseUint(kind, "blockstamp.number", s[:idx])
	if err != nil {
		return Blockstamp{}, err
	}
	h, err := HashFromHex(s[idx+1:])
	if err != nil {
		return Blockstamp{}, newParseError(kind, "blockstamp hash: %v", err)
	}
	return Blockstamp{Number: BlockNumber(n), Hash: h}, nil
}
