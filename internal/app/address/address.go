// Package address derives deterministic addresses for challenges, participants
// and escrow vaults. Derivation is a pure keyed hash: any verifier can
// recompute an address from its seeds without trusting a stored pointer.
package address

import (
	"crypto/sha256"
	"encoding/hex"
)

// Namespaces partition the derivation space so seeds can never collide across
// record kinds.
const (
	NamespaceChallenge   = "challenge"
	NamespaceParticipant = "participant"
	NamespaceVault       = "vault"
)

// Derive computes the address for the given namespace and seed components.
func Derive(namespace string, seeds ...string) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, seed := range seeds {
		// Length prefix keeps ("ab","c") distinct from ("a","bc").
		h.Write([]byte{byte(len(seed) >> 8), byte(len(seed))})
		h.Write([]byte(seed))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Challenge derives the address of a challenge from its creator and start
// time (unix seconds, as a decimal string).
func Challenge(creator, startUnix string) string {
	return Derive(NamespaceChallenge, creator, startUnix)
}

// Participant derives the address of a participant slot. The composite key
// makes a second join by the same player target the same record.
func Participant(challengeID, player string) string {
	return Derive(NamespaceParticipant, challengeID, player)
}

// Vault derives the escrow vault address paired with a challenge.
func Vault(challengeID string) string {
	return Derive(NamespaceVault, challengeID)
}
