package core

import "strings"

// Certification is the `(issuer, target, target-identity-blockstamp,
// block-ref, signature)` document: issuer vouches for target's identity.
type Certification struct {
	Currency  Currency
	Issuer    PubKey
	Target    PubKey
	TargetOn  Blockstamp // target identity's created-on blockstamp
	BlockRef  Blockstamp // block the certification is dated against
	Signature Signature
}

func (c *Certification) CanonicalText() string {
	var b strings.Builder
	b.WriteString("Version: 10\n")
	b.WriteString("Type: Certification\n")
	b.WriteString("Currency: " + string(c.Currency) + "\n")
	b.WriteString("Issuer: " + c.Issuer.String() + "\n")
	b.WriteString("IdtyIssuer: " + c.Target.String() + "\n")
	b.WriteString("IdtyUniqueID: \n") // recorded but not semantically load-bearing once TargetOn is known
	b.WriteString("IdtyTimestamp: " + c.TargetOn.String() + "\n")
	b.WriteString("IdtySignature: \n")
	b.WriteString("CertTimestamp: " + c.BlockRef.String() + "\n")
	return b.String()
}

func (c *Certification) FullText() string {
	return c.CanonicalText() + c.Signature.String() + "\n"
}

// CompactText is the block-embedded form: "issuer:target:block:signature".
// The target's identity blockstamp is omitted — the validator resolves it
// from the identity store, which must already know the target.
func (c *Certification) CompactText() string {
	return c.Issuer.String() + ":" + c.Target.String() + ":" + blockNumStr(c.BlockRef.Number) + ":" + c.Signature.String()
}

func ParseCertificationCompact(line string) (*Certification, error) {
	const kind = "Certification"
	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return nil, newParseError(kind, "compact form expects 4 fields, got %d", len(parts))
	}
	issuer, err := PubKeyFromBase58(parts[0])
	if err != nil {
		return nil, newParseError(kind, "issuer: %v", err)
	}
	target, err := PubKeyFromBase58(parts[1])
	if err != nil {
		return nil, newParseError(kind, "target: %v", err)
	}
	n, err := parseUint(kind, "block", parts[2])
	if err != nil {
		return nil, err
	}
	sig, err := SignatureFromBase64(parts[3])
	if err != nil {
		return nil, newParseError(kind, "signature: %v", err)
	}
	return &Certification{Issuer: issuer, Target: target, BlockRef: Blockstamp{Number: BlockNumber(n)}, Signature: sig}, nil
}

// Revocation is the `(issuer, identity-ref, signature)` document that
// retires an identity permanently.
type Revocation struct {
	Currency  Currency
	Issuer    PubKey
	UID       string
	CreatedOn Blockstamp // the revoked identity's own created-on blockstamp
	Signature Signature
}

func (r *Revocation) CanonicalText() string {
	var b strings.Builder
	b.WriteString("Version: 10\n")
	b.WriteString("Type: Revocation\n")
	b.WriteString("Currency: " + string(r.Currency) + "\n")
	b.WriteString("Issuer: " + r.Issuer.String() + "\n")
	b.WriteString("UniqueID: " + r.UID + "\n")
	b.WriteString("Timestamp: " + r.CreatedOn.String() + "\n")
	return b.String()
}

func (r *Revocation) FullText() string {
	return r.CanonicalText() + r.Signature.String() + "\n"
}

// CompactText is the block-embedded form: "issuer:signature".
func (r *Revocation) CompactText() string {
	return r.Issuer.String() + ":" + r.Signature.String()
}

func ParseRevocationCompact(line string) (*Revocation, error) {
	const kind = "Revocation"
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return nil, newParseError(kind, "compact form expects 2 fields, got %d", len(parts))
	}
	issuer, err := PubKeyFromBase58(parts[0])
	if err != nil {
		return nil, newParseError(kind, "issuer: %v", err)
	}
	sig, err := SignatureFromBase64(parts[1])
	if err != nil {
		return nil, newParseError(kind, "signature: %v", err)
	}
	return &Revocation{Issuer: issuer, Signature: sig}, nil
}

func blockNumStr(n BlockNumber) string {
	return formatUint(uint64(n))
}
