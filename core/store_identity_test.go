package core

import "testing"

func TestIdentityStorePutGetAndAvailability(t *testing.T) {
	s := NewIdentityStore()
	issuer := genKeyPair(t)
	id := &Identity{Currency: "g1", PubKey: issuer.pub, UID: "alice", CreatedOn: Blockstamp{Number: 1}}
	s.Put(&IdentityRecord{Identity: id, State: StatePending})

	if _, ok := s.Get(issuer.pub); !ok {
		t.Fatalf("expected identity to be retrievable by pubkey")
	}
	if _, ok := s.GetByUID("alice"); !ok {
		t.Fatalf("expected identity to be retrievable by uid")
	}
	if s.UIDAvailable("alice") {
		t.Fatalf("expected uid 'alice' to be unavailable while pending")
	}
	if s.PubKeyAvailable(issuer.pub) {
		t.Fatalf("expected pubkey to be unavailable while pending")
	}

	if err := s.SetState(issuer.pub, StateMember); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	members := s.Members()
	if len(members) != 1 || members[0].Identity.UID != "alice" {
		t.Fatalf("expected exactly one living member, got %+v", members)
	}
}

func TestIdentityStoreSetStateUnknownPubKey(t *testing.T) {
	s := NewIdentityStore()
	issuer := genKeyPair(t)
	if err := s.SetState(issuer.pub, StateMember); err != ErrUnknownIdentity {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
}

func TestIdentityStoreUIDFreedAfterExclusion(t *testing.T) {
	s := NewIdentityStore()
	issuer := genKeyPair(t)
	id := &Identity{Currency: "g1", PubKey: issuer.pub, UID: "bob", CreatedOn: Blockstamp{Number: 1}}
	s.Put(&IdentityRecord{Identity: id, State: StateMember})
	if err := s.SetState(issuer.pub, StateExcluded); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if !s.UIDAvailable("bob") {
		t.Fatalf("expected uid to be available once the identity leaves Pending/Member state")
	}
}
