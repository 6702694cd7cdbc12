package core

import (
	"crypto/ed25519"
	"testing"
)

func sampleIssuer(t *testing.T) (PubKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk PubKey
	copy(pk[:], pub)
	return pk, priv
}

func genesisBlock(t *testing.T) *Block {
	t.Helper()
	issuer, _ := sampleIssuer(t)
	ud := uint64(1000)
	params, err := ParseParameters("0.0488:86400:1000:432000:100:5259600:63115200:5:5259600:5259600:0.8:31557600:5:24:300:12:0.67:1488970800:1490094000:15778800")
	if err != nil {
		t.Fatalf("parse parameters: %v", err)
	}
	return &Block{
		Version:           10,
		Currency:          "g1",
		Number:            0,
		PoWMin:            60,
		Time:              1488987127,
		MedianTime:        1488987127,
		UniversalDividend: &ud,
		UnitBase:          0,
		Issuers:           []PubKey{issuer},
		IssuersFrame:      1,
		IssuersFrameVar:   0,
		DifferentIssuersCount: 1,
		Parameters:        params,
		MembersCount:      1,
	}
}

func TestGenesisBlockCompactInnerTextRoundTrip(t *testing.T) {
	b := genesisBlock(t)
	b.InnerHash = b.ComputeInnerHash()
	b.Nonce = 100010200000006940
	b.Signatures = []Signature{{}}

	full := b.FullText()
	parsed, err := ParseBlock(full)
	if err != nil {
		t.Fatalf("parse block: %v", err)
	}
	if got := parsed.FullText(); got != full {
		t.Fatalf("round trip mismatch:\ngot:  %q\nwant: %q", got, full)
	}
	if parsed.Parameters == nil {
		t.Fatalf("expected genesis block to carry Parameters")
	}
	if parsed.Parameters.String() != b.Parameters.String() {
		t.Fatalf("parameters mismatch: got %s want %s", parsed.Parameters.String(), b.Parameters.String())
	}
	if parsed.InnerHash != b.InnerHash {
		t.Fatalf("inner hash mismatch")
	}
}

func TestGenesisBlockRejectsMissingParameters(t *testing.T) {
	b := genesisBlock(t)
	b.Parameters = nil
	b.InnerHash = b.ComputeInnerHash()
	b.Nonce = 1
	b.Signatures = []Signature{{}}
	if _, err := ParseBlock(b.FullText()); err == nil {
		t.Fatalf("expected error parsing genesis block without Parameters")
	}
}

func TestNonGenesisBlockRequiresPreviousHash(t *testing.T) {
	issuer, _ := sampleIssuer(t)
	b := &Block{
		Version:               10,
		Currency:               "g1",
		Number:                 1,
		PoWMin:                 60,
		Time:                   1488987200,
		MedianTime:             1488987200,
		UnitBase:               0,
		Issuers:                []PubKey{issuer},
		IssuersFrame:           1,
		IssuersFrameVar:        0,
		DifferentIssuersCount:  1,
		PreviousHash:           Sha256([]byte("block0")),
		PreviousIssuer:         issuer,
		MembersCount:           1,
	}
	b.InnerHash = b.ComputeInnerHash()
	b.Nonce = 42
	b.Signatures = []Signature{{}}

	full := b.FullText()
	parsed, err := ParseBlock(full)
	if err != nil {
		t.Fatalf("parse block: %v", err)
	}
	if parsed.PreviousHash != b.PreviousHash {
		t.Fatalf("previous hash mismatch")
	}
	if parsed.Parameters != nil {
		t.Fatalf("non-genesis block must not carry Parameters")
	}
}

// TestComputeInnerAndOuterHashMatchReferenceVector reproduces the literal
// "empty block" fixture from the original block document test suite
// (generate_and_verify_empty_block) byte-for-byte: the same header fields,
// issuer, previous blockstamp and signature must reduce to the same inner
// and outer hashes under this codec.
func TestComputeInnerAndOuterHashMatchReferenceVector(t *testing.T) {
	issuer, err := PubKeyFromBase58("39Fnossy1GrndwCnAXGDw3K5UYXhNXAFQe7yhYZp8ELP")
	if err != nil {
		t.Fatalf("issuer pubkey: %v", err)
	}
	prevIssuer, err := PubKeyFromBase58("EPKuZA1Ek5y8S1AjAmAPtGrVCMFqUGzUEAa7Ei62CY2L")
	if err != nil {
		t.Fatalf("previous issuer pubkey: %v", err)
	}
	prevHash, err := HashFromHex("0000A7D4361B9EBF4CE974A521149A73E8A5DE9B73907AB3BC918726AED7D40A")
	if err != nil {
		t.Fatalf("previous hash: %v", err)
	}
	sig, err := SignatureFromBase64("lqXrNOopjM39oM7hgB7Vq13uIohdCuLlhh/q8RVVEZ5UVASphow/GXikCdhbWID19Bn0XrXzTbt/R7akbE9xAg==")
	if err != nil {
		t.Fatalf("signature: %v", err)
	}

	b := &Block{
		Version:               10,
		Currency:              "g1-test",
		Number:                174260,
		PoWMin:                68,
		Time:                  1525296873,
		MedianTime:            1525292577,
		UnitBase:              0,
		Issuers:               []PubKey{issuer},
		IssuersFrame:          41,
		IssuersFrameVar:       0,
		DifferentIssuersCount: 8,
		PreviousHash:          prevHash,
		PreviousIssuer:        prevIssuer,
		MembersCount:          33,
		Nonce:                 100010200000006940,
		Signatures:            []Signature{sig},
	}

	wantInner, err := HashFromHex("58E4865A47A46E0DF1449AABC449B5406A12047C413D61B5E17F86BE6641E7B0")
	if err != nil {
		t.Fatalf("expected inner hash: %v", err)
	}
	if got := b.ComputeInnerHash(); got != wantInner {
		t.Fatalf("inner hash diverges from the reference vector:\ngot:  %s\nwant: %s", got, wantInner)
	}
	b.InnerHash = wantInner

	wantOuter, err := HashFromHex("00002EE584F36C15D3EB21AAC78E0896C75EF9070E73B4EC33BFA2C3D561EEB2")
	if err != nil {
		t.Fatalf("expected outer hash: %v", err)
	}
	if got := b.ComputeOuterHash(); got != wantOuter {
		t.Fatalf("outer hash diverges from the reference vector:\ngot:  %s\nwant: %s", got, wantOuter)
	}
}

func TestParseBlockWithEmbeddedTransaction(t *testing.T) {
	issuer, _ := sampleIssuer(t)
	recipient, _ := sampleIssuer(t)
	cond, err := ParseConditionGroup("SIG(" + recipient.String() + ")")
	if err != nil {
		t.Fatalf("condition: %v", err)
	}
	tx := &Transaction{
		Currency:   "g1",
		Blockstamp: Blockstamp{Number: 1, Hash: Sha256([]byte("block1"))},
		Issuers:    []PubKey{issuer},
		Inputs:     []TxInput{{Amount: 10, Base: 0, IsUD: true, SourcePubKey: issuer, SourceBlock: 1}},
		Unlocks:    []TxUnlock{{Index: 0, Proofs: []UnlockProof{{SigIndex: 0}}}},
		Outputs:    []TxOutput{{Amount: 10, Base: 0, Conditions: cond}},
		Signatures: []Signature{{}},
	}

	b := &Block{
		Version:               10,
		Currency:               "g1",
		Number:                 2,
		PoWMin:                 60,
		Time:                   1488987300,
		MedianTime:             1488987300,
		UnitBase:               0,
		Issuers:                []PubKey{issuer},
		IssuersFrame:           1,
		IssuersFrameVar:        0,
		DifferentIssuersCount:  1,
		PreviousHash:           Sha256([]byte("block1")),
		PreviousIssuer:         issuer,
		MembersCount:           2,
		Transactions:           []TxOrHash{{Tx: tx}},
	}
	b.InnerHash = b.ComputeInnerHash()
	b.Nonce = 7
	b.Signatures = []Signature{{}}

	full := b.FullText()
	parsed, err := ParseBlock(full)
	if err != nil {
		t.Fatalf("parse block: %v", err)
	}
	if len(parsed.Transactions) != 1 || parsed.Transactions[0].Tx == nil {
		t.Fatalf("expected one embedded full transaction")
	}
	if parsed.Transactions[0].Tx.Hash() != tx.Hash() {
		t.Fatalf("embedded transaction hash mismatch")
	}
	if got := parsed.FullText(); got != full {
		t.Fatalf("round trip mismatch:\ngot:  %q\nwant: %q", got, full)
	}
}
