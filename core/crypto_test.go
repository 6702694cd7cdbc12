package core

import (
	"crypto/ed25519"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk PubKey
	copy(pk[:], pub)

	msg := []byte("InnerHash: deadbeef\nNonce: 42\n")
	sig := Sign(priv, msg)
	if !Verify(pk, msg, sig) {
		t.Fatalf("expected signature to verify")
	}

	msg[0] ^= 0xFF
	if Verify(pk, msg, sig) {
		t.Fatalf("expected signature to fail on tampered message")
	}
}

func TestBase58RoundTrip(t *testing.T) {
	raw := []byte{0, 1, 2, 3, 255, 254, 253}
	enc := Base58Encode(raw)
	dec, err := Base58Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(dec) != string(raw) {
		t.Fatalf("round trip mismatch: got %v want %v", dec, raw)
	}
}

func TestPubKeyFromBase58Invalid(t *testing.T) {
	if _, err := PubKeyFromBase58("not-valid-base58-!!"); err == nil {
		t.Fatalf("expected error for invalid base58")
	}
	if _, err := PubKeyFromBase58(Base58Encode([]byte{1, 2, 3})); err == nil {
		t.Fatalf("expected error for wrong length")
	}
}

func TestHashFromHexRoundTrip(t *testing.T) {
	h := Sha256([]byte("hello"))
	parsed, err := HashFromHex(h.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch")
	}
}
