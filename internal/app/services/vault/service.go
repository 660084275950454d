// Package vault binds each challenge to its escrow custody address and gates
// outbound transfers behind a settlement capability that only the lifecycle
// code path can obtain.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/wager_layer/internal/app/address"
	"github.com/R3E-Network/wager_layer/internal/app/assets"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

var (
	// ErrNotAuthorized is returned when a withdrawal is attempted without a
	// valid settlement authority.
	ErrNotAuthorized = errors.New("vault withdrawal not authorized")
	// ErrVaultLocked is returned when settlement authority is requested while
	// the challenge window is still open.
	ErrVaultLocked = errors.New("vault locked until challenge window closes")
)

// SettlementAuthority proves that an outbound transfer was authorized by the
// challenge lifecycle. Values are mintable only through Authorize; the zero
// value is rejected by Withdraw. The binding between vault address and
// challenge identity is recomputed on use, never trusted from the caller.
type SettlementAuthority struct {
	challengeID string
	vaultAddr   string
	denom       challenge.Denomination
}

// Service manages escrow custody for challenges.
type Service struct {
	ledger storage.LedgerStore
	movers *assets.Registry
	log    *logger.Logger
}

// New constructs the vault service.
func New(ledgerStore storage.LedgerStore, movers *assets.Registry, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("vault")
	}
	return &Service{ledger: ledgerStore, movers: movers, log: log}
}

// Address returns the deterministic custody address paired with a challenge.
func (s *Service) Address(challengeID string) string {
	return address.Vault(challengeID)
}

// Balance returns the funds currently held in a challenge's vault.
func (s *Service) Balance(ctx context.Context, ch challenge.Challenge) (int64, error) {
	bal, err := s.ledger.GetBalance(ctx, ch.Denomination, address.Vault(ch.ID))
	if err != nil {
		return 0, err
	}
	return bal.Amount, nil
}

// Deposit moves a stake from a player wallet into the challenge's vault and
// journals the movement. Used only by the join path; deposits carry no
// authority requirement because funds only flow inward.
func (s *Service) Deposit(ctx context.Context, ch challenge.Challenge, amount int64, fromWallet string) (ledger.Transaction, error) {
	mover, err := s.movers.ForDenomination(ch.Denomination)
	if err != nil {
		return ledger.Transaction{}, err
	}

	vaultAddr := address.Vault(ch.ID)
	if err := mover.Transfer(ctx, amount, fromWallet, vaultAddr); err != nil {
		return ledger.Transaction{}, err
	}

	tx, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		ID:           uuid.NewString(),
		Denomination: ch.Denomination,
		Type:         ledger.TxTypeStake,
		Amount:       amount,
		FromAddress:  fromWallet,
		ToAddress:    vaultAddr,
		ReferenceID:  ch.ID,
	})
	if err != nil {
		s.log.WithError(err).WithField("challenge_id", ch.ID).Warn("journal stake transaction failed")
	}
	return tx, nil
}

// Refund returns a stake from the vault to a player wallet. Only used to
// compensate a join whose bookkeeping lost the participant slot race; the
// vault held the funds for the duration of the failed operation only.
func (s *Service) Refund(ctx context.Context, ch challenge.Challenge, amount int64, toWallet string) error {
	mover, err := s.movers.ForDenomination(ch.Denomination)
	if err != nil {
		return err
	}
	vaultAddr := address.Vault(ch.ID)
	if err := mover.Transfer(ctx, amount, vaultAddr, toWallet); err != nil {
		return err
	}
	if _, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		ID:           uuid.NewString(),
		Denomination: ch.Denomination,
		Type:         ledger.TxTypeRefund,
		Amount:       amount,
		FromAddress:  vaultAddr,
		ToAddress:    toWallet,
		ReferenceID:  ch.ID,
	}); err != nil {
		s.log.WithError(err).WithField("challenge_id", ch.ID).Warn("journal refund transaction failed")
	}
	return nil
}

// Authorize mints the settlement authority for a challenge's vault. Authority
// is granted only once the challenge window has closed and the challenge has
// not been cancelled; this is the sole constructor of SettlementAuthority.
func (s *Service) Authorize(ch challenge.Challenge, now time.Time) (SettlementAuthority, error) {
	if ch.Status == challenge.StatusCancelled {
		return SettlementAuthority{}, fmt.Errorf("challenge %s cancelled: %w", ch.ID, ErrNotAuthorized)
	}
	if now.Before(ch.EndTime) {
		return SettlementAuthority{}, fmt.Errorf("challenge %s open until %s: %w", ch.ID, ch.EndTime.Format(time.RFC3339), ErrVaultLocked)
	}
	return SettlementAuthority{
		challengeID: ch.ID,
		vaultAddr:   address.Vault(ch.ID),
		denom:       ch.Denomination,
	}, nil
}

// Withdraw moves funds out of an authorized vault and journals the movement.
// The vault address is recomputed from the authority's challenge identity so
// a tampered authority cannot redirect custody.
func (s *Service) Withdraw(ctx context.Context, auth SettlementAuthority, amount int64, toWallet, txType string) (ledger.Transaction, error) {
	if auth.challengeID == "" || auth.vaultAddr == "" {
		return ledger.Transaction{}, ErrNotAuthorized
	}
	if auth.vaultAddr != address.Vault(auth.challengeID) {
		return ledger.Transaction{}, ErrNotAuthorized
	}

	mover, err := s.movers.ForDenomination(auth.denom)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if err := mover.Transfer(ctx, amount, auth.vaultAddr, toWallet); err != nil {
		return ledger.Transaction{}, err
	}

	tx, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		ID:           uuid.NewString(),
		Denomination: auth.denom,
		Type:         txType,
		Amount:       amount,
		FromAddress:  auth.vaultAddr,
		ToAddress:    toWallet,
		ReferenceID:  auth.challengeID,
	})
	if err != nil {
		s.log.WithError(err).WithField("challenge_id", auth.challengeID).Warn("journal settlement transaction failed")
	}

	s.log.WithField("challenge_id", auth.challengeID).
		WithField("amount", amount).
		WithField("type", txType).
		Info("vault withdrawal executed")
	return tx, nil
}
