// Package storage defines the persistence boundary for the wager layer.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/account"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
)

// Sentinel errors shared by all store implementations. Services rely on these
// to map persistence outcomes onto lifecycle errors, so implementations must
// wrap them rather than invent their own.
var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrStatusConflict    = errors.New("status transition conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ChallengeFilter narrows challenge listings.
type ChallengeFilter struct {
	Creator    string
	Status     challenge.Status
	PublicOnly bool
	Limit      int
}

// AccountStore persists identity records.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByWallet(ctx context.Context, wallet string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)
}

// ChallengeStore persists challenge records.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, ch challenge.Challenge) (challenge.Challenge, error)
	UpdateChallenge(ctx context.Context, ch challenge.Challenge) (challenge.Challenge, error)
	GetChallenge(ctx context.Context, id string) (challenge.Challenge, error)
	ListChallenges(ctx context.Context, filter ChallengeFilter) ([]challenge.Challenge, error)

	// ListActiveEndedBefore returns Active challenges whose end time is at or
	// before the cutoff. Used by the expiry poller.
	ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]challenge.Challenge, error)

	// TransitionChallengeStatus atomically moves a challenge from one status to
	// another. It fails with ErrStatusConflict when the stored status differs
	// from the expected one, which makes settlement and cancellation
	// exactly-once under concurrent submission.
	TransitionChallengeStatus(ctx context.Context, id string, from, to challenge.Status) (challenge.Challenge, error)
}

// ParticipantStore persists participant records. Records are never deleted;
// they remain as the settlement audit trail.
type ParticipantStore interface {
	// CreateParticipant claims the (challenge, player) slot. It fails with
	// ErrAlreadyExists when the slot is taken, enforcing the no-double-join
	// invariant at the data level.
	CreateParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error)
	UpdateParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error)
	GetParticipant(ctx context.Context, id string) (challenge.Participant, error)
	GetParticipantByPlayer(ctx context.Context, challengeID, player string) (challenge.Participant, error)
	ListParticipants(ctx context.Context, challengeID string) ([]challenge.Participant, error)
}

// LedgerStore persists balances and the transfer journal, one ledger per
// denomination.
type LedgerStore interface {
	// GetBalance returns the balance held at an address. An address that never
	// received funds holds zero; this is not an error.
	GetBalance(ctx context.Context, denom challenge.Denomination, addr string) (ledger.Balance, error)

	// ApplyTransfer atomically debits from and credits to within one
	// denomination. It fails with ErrInsufficientFunds when the source balance
	// cannot cover the amount, leaving both balances untouched.
	ApplyTransfer(ctx context.Context, denom challenge.Denomination, from, to string, amount int64) error

	// CreditBalance adds externally deposited value to an address.
	CreditBalance(ctx context.Context, denom challenge.Denomination, addr string, amount int64) (ledger.Balance, error)

	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, denom challenge.Denomination, addr string, limit int) ([]ledger.Transaction, error)
}
