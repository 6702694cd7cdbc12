package core

import "testing"

func TestCertificationStoreAddExistsRemove(t *testing.T) {
	s := NewCertificationStore()
	issuer := genKeyPair(t)
	target := genKeyPair(t)

	if s.Exists(issuer.pub, target.pub) {
		t.Fatalf("expected no certification before Add")
	}
	s.Add(&CertEdge{Issuer: issuer.pub, Target: target.pub, IssuedAt: 1000, ExpiresOn: 2000})
	if !s.Exists(issuer.pub, target.pub) {
		t.Fatalf("expected certification to exist after Add")
	}
	refs := s.ReferringMembers(target.pub)
	if len(refs) != 1 || refs[0] != issuer.pub {
		t.Fatalf("expected issuer to be a referring member of target, got %v", refs)
	}

	s.Remove(issuer.pub, target.pub)
	if s.Exists(issuer.pub, target.pub) {
		t.Fatalf("expected certification to be gone after Remove")
	}
}

func TestCertificationStoreCooldownAndStock(t *testing.T) {
	s := NewCertificationStore()
	issuer := genKeyPair(t)
	target := genKeyPair(t)

	if !s.CooldownOK(issuer.pub, 1000, 500) {
		t.Fatalf("expected cooldown OK before any certification issued")
	}
	if !s.StockOK(issuer.pub, 2) {
		t.Fatalf("expected stock OK before any certification issued")
	}

	s.Add(&CertEdge{Issuer: issuer.pub, Target: target.pub, IssuedAt: 1000})
	if s.CooldownOK(issuer.pub, 1200, 500) {
		t.Fatalf("expected cooldown to block a second certification within sig_period")
	}
	if !s.CooldownOK(issuer.pub, 1600, 500) {
		t.Fatalf("expected cooldown to clear once sig_period has elapsed")
	}
	if !s.StockOK(issuer.pub, 2) {
		t.Fatalf("expected stock OK with 1 of 2 slots used")
	}

	other := genKeyPair(t)
	s.Add(&CertEdge{Issuer: issuer.pub, Target: other.pub, IssuedAt: 1600})
	if s.StockOK(issuer.pub, 2) {
		t.Fatalf("expected stock exhausted at sig_stock=2 with 2 live certifications")
	}
}
