package core

// Cryptographic primitives used throughout the document codec and the WS2P
// handshake.
//
//   - Ed25519 sign/verify (crypto/ed25519, stdlib).
//   - SHA-256 digests (crypto/sha256, stdlib).
//   - base58 for public keys, base64 for signatures, uppercase hex for
//     hashes (inner/outer, transaction, document) — matching the textual document format's own
//     conventions rather than one uniform encoding.
//
// All functions here are pure; none retain or log secret material.

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidSignature is returned by Verify-adjacent helpers that need to
// distinguish a malformed signature from a verification failure.
var ErrInvalidSignature = errors.New("core: invalid signature encoding")

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Sign produces an Ed25519 signature of msg under priv. priv must be a
// 64-byte Ed25519 private key (seed||pubkey), as produced by
// ed25519.GenerateKey or ed25519.NewKeyFromSeed.
func Sign(priv ed25519.PrivateKey, msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(priv, msg))
	return sig
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
func Verify(pub PubKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}

// Base58Encode renders data as base58 (Bitcoin alphabet), the encoding used
// for public keys in document text.
func Base58Encode(data []byte) string { return base58.Encode(data) }

// Base58Decode parses base58 text into raw bytes.
func Base58Decode(s string) ([]byte, error) { return base58.Decode(s) }

// Base64Encode renders data as standard base64, the encoding used for
// signatures in document text.
func Base64Encode(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

// Base64Decode parses standard base64 text into raw bytes.
func Base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// HexEncode renders data as uppercase hexadecimal, the encoding used for
// inner/outer block hashes.
func HexEncode(data []byte) string { return fmt.Sprintf("%X", data) }

// HexDecode parses (case-insensitive) hexadecimal text into raw bytes.
func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// PubKeyFromBase58 decodes a base58-encoded Ed25519 public key.
func PubKeyFromBase58(s string) (PubKey, error) {
	var pk PubKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("pubkey: %w", err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("pubkey: expected %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// SignatureFromBase64 decodes a base64-encoded Ed25519 signature.
func SignatureFromBase64(s string) (Signature, error) {
	var sig Signature
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != len(sig) {
		return sig, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, len(sig), len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// HashFromHex decodes a hex-encoded 32-byte hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash: expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}
