package core

import "testing"

func TestParseConditionGroupSigLeaf(t *testing.T) {
	issuer := genKeyPair(t)
	s := "SIG(" + issuer.pub.String() + ")"
	g, err := ParseConditionGroup(s)
	if err != nil {
		t.Fatalf("ParseConditionGroup: %v", err)
	}
	if g.String() != s {
		t.Fatalf("expected exact text preserved, got %q want %q", g.String(), s)
	}
	sig, ok := g.Tree.(CondSig)
	if !ok {
		t.Fatalf("expected CondSig leaf, got %T", g.Tree)
	}
	if sig.PubKey != issuer.pub {
		t.Fatalf("pubkey mismatch: got %v want %v", sig.PubKey, issuer.pub)
	}
	ctx := &UnlockContext{SignedBy: map[PubKey]bool{issuer.pub: true}}
	if !g.Tree.Satisfied(ctx) {
		t.Fatalf("expected SIG condition to be satisfied once issuer has signed")
	}
}

func TestParseConditionGroupAndOr(t *testing.T) {
	a := genKeyPair(t)
	b := genKeyPair(t)
	s := "SIG(" + a.pub.String() + ") && (SIG(" + b.pub.String() + ") || CLTV(100))"
	g, err := ParseConditionGroup(s)
	if err != nil {
		t.Fatalf("ParseConditionGroup: %v", err)
	}
	and, ok := g.Tree.(CondAnd)
	if !ok {
		t.Fatalf("expected top-level And, got %T", g.Tree)
	}
	brackets, ok := and.Right.(CondBrackets)
	if !ok {
		t.Fatalf("expected bracketed right-hand side, got %T", and.Right)
	}
	if _, ok := brackets.Inner.(CondOr); !ok {
		t.Fatalf("expected Or inside brackets, got %T", brackets.Inner)
	}

	ctxFailsB := &UnlockContext{SignedBy: map[PubKey]bool{a.pub: true}, BlockMedian: 50}
	if g.Tree.Satisfied(ctxFailsB) {
		t.Fatalf("expected condition unsatisfied: B hasn't signed and CLTV(100) > median 50")
	}
	ctxSatisfiesViaCLTV := &UnlockContext{SignedBy: map[PubKey]bool{a.pub: true}, BlockMedian: 200}
	if !g.Tree.Satisfied(ctxSatisfiesViaCLTV) {
		t.Fatalf("expected condition satisfied once median_time clears CLTV(100)")
	}
}

func TestParseConditionGroupRejectsGarbage(t *testing.T) {
	if _, err := ParseConditionGroup("NOT_A_CONDITION(x)"); err == nil {
		t.Fatalf("expected rejection of an unrecognized condition leaf")
	}
}
