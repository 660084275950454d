package address

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	a := Challenge("creator-1", "1700000000")
	b := Challenge("creator-1", "1700000000")
	if a != b {
		t.Fatalf("same seeds derived different addresses: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("address length = %d, want 64 hex chars", len(a))
	}
}

func TestDeriveDistinguishesSeeds(t *testing.T) {
	if Challenge("creator-1", "1700000000") == Challenge("creator-2", "1700000000") {
		t.Error("different creators derived the same address")
	}
	if Challenge("creator-1", "1700000000") == Challenge("creator-1", "1700000001") {
		t.Error("different start times derived the same address")
	}
	// Length prefixing keeps concatenation ambiguity out of the derivation.
	if Derive(NamespaceChallenge, "ab", "c") == Derive(NamespaceChallenge, "a", "bc") {
		t.Error("seed boundaries are not preserved")
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	id := "some-id"
	vault := Vault(id)
	if vault == Derive(NamespaceChallenge, id) || vault == Derive(NamespaceParticipant, id) {
		t.Error("vault namespace collides with another namespace")
	}
}

func TestParticipantSlotIdentity(t *testing.T) {
	first := Participant("ch-1", "player-1")
	second := Participant("ch-1", "player-1")
	if first != second {
		t.Error("same player slot derived different addresses")
	}
	if Participant("ch-1", "player-1") == Participant("ch-1", "player-2") {
		t.Error("different players share a slot address")
	}
	if Participant("ch-1", "player-1") == Participant("ch-2", "player-1") {
		t.Error("same player shares a slot across challenges")
	}
}
