package core

import "testing"

func TestCertificationCompactRoundTrip(t *testing.T) {
	issuer := genKeyPair(t)
	target := genKeyPair(t)
	c := &Certification{
		Currency: "g1",
		Issuer:   issuer.pub,
		Target:   target.pub,
		BlockRef: Blockstamp{Number: 12},
	}
	c.Signature = Sign(issuer.priv, []byte(c.CanonicalText()))

	parsed, err := ParseCertificationCompact(c.CompactText())
	if err != nil {
		t.Fatalf("parse compact certification: %v", err)
	}
	if parsed.Issuer != c.Issuer || parsed.Target != c.Target || parsed.BlockRef.Number != c.BlockRef.Number {
		t.Fatalf("compact round trip mismatch: got %+v, want %+v", parsed, c)
	}
	if !Verify(c.Issuer, []byte(c.CanonicalText()), parsed.Signature) {
		t.Fatalf("expected signature recovered from compact form to verify")
	}
}

func TestParseCertificationCompactRejectsWrongFieldCount(t *testing.T) {
	if _, err := ParseCertificationCompact("only:three:fields"); err == nil {
		t.Fatalf("expected rejection of a compact certification with the wrong field count")
	}
}

func TestRevocationCompactRoundTrip(t *testing.T) {
	issuer := genKeyPair(t)
	r := &Revocation{
		Currency:  "g1",
		Issuer:    issuer.pub,
		UID:       "alice",
		CreatedOn: Blockstamp{Number: 1},
	}
	r.Signature = Sign(issuer.priv, []byte(r.CanonicalText()))

	parsed, err := ParseRevocationCompact(r.CompactText())
	if err != nil {
		t.Fatalf("parse compact revocation: %v", err)
	}
	if parsed.Issuer != r.Issuer {
		t.Fatalf("compact round trip mismatch: got %+v, want %+v", parsed, r)
	}
	if !Verify(r.Issuer, []byte(r.CanonicalText()), parsed.Signature) {
		t.Fatalf("expected signature recovered from compact form to verify")
	}
}
