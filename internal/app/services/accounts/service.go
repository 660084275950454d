// Package accounts manages the registered identities that create and join
// challenges, and their ledger balances.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/wager_layer/internal/app/domain/account"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

var (
	// ErrInvalidOwner is returned when registration lacks an owner.
	ErrInvalidOwner = errors.New("owner is required")
	// ErrInvalidAmount is returned when a credit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

// Service manages accounts and their balances.
type Service struct {
	accounts storage.AccountStore
	ledger   storage.LedgerStore
	log      *logger.Logger
}

// New constructs the account service.
func New(accounts storage.AccountStore, ledgerStore storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{accounts: accounts, ledger: ledgerStore, log: log}
}

// Register creates an active account. When walletAddress is empty a fresh
// address is minted; registering an already-claimed wallet fails.
func (s *Service) Register(ctx context.Context, owner, walletAddress string, metadata map[string]string) (account.Account, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return account.Account{}, ErrInvalidOwner
	}
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		walletAddress = "wallet-" + uuid.NewString()
	} else if _, err := s.accounts.GetAccountByWallet(ctx, walletAddress); err == nil {
		return account.Account{}, fmt.Errorf("wallet %s: %w", walletAddress, storage.ErrAlreadyExists)
	}

	created, err := s.accounts.CreateAccount(ctx, account.Account{
		ID:            uuid.NewString(),
		Owner:         owner,
		WalletAddress: walletAddress,
		Active:        true,
		Metadata:      metadata,
	})
	if err != nil {
		return account.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.log.WithField("account_id", created.ID).
		WithField("owner", created.Owner).
		Info("account registered")
	return created, nil
}

// Get retrieves an account by ID.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.accounts.GetAccount(ctx, id)
}

// GetByWallet retrieves an account by its wallet address.
func (s *Service) GetByWallet(ctx context.Context, walletAddress string) (account.Account, error) {
	return s.accounts.GetAccountByWallet(ctx, walletAddress)
}

// List lists registered accounts.
func (s *Service) List(ctx context.Context) ([]account.Account, error) {
	return s.accounts.ListAccounts(ctx)
}

// Deactivate marks an account inactive. Inactive accounts cannot create or
// join challenges; existing stakes are unaffected.
func (s *Service) Deactivate(ctx context.Context, id string) (account.Account, error) {
	acct, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	acct.Active = false
	updated, err := s.accounts.UpdateAccount(ctx, acct)
	if err != nil {
		return account.Account{}, fmt.Errorf("update account: %w", err)
	}
	s.log.WithField("account_id", id).Info("account deactivated")
	return updated, nil
}

// Credit deposits funds into an account's wallet and journals the deposit.
func (s *Service) Credit(ctx context.Context, id string, denom challenge.Denomination, amount int64) (ledger.Balance, error) {
	if amount <= 0 {
		return ledger.Balance{}, ErrInvalidAmount
	}
	if !challenge.ValidDenomination(denom) {
		return ledger.Balance{}, fmt.Errorf("unknown denomination %q", denom)
	}
	acct, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return ledger.Balance{}, err
	}

	bal, err := s.ledger.CreditBalance(ctx, denom, acct.WalletAddress, amount)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("credit balance: %w", err)
	}
	if _, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		ID:           uuid.NewString(),
		Denomination: denom,
		Type:         ledger.TxTypeDeposit,
		Amount:       amount,
		ToAddress:    acct.WalletAddress,
	}); err != nil {
		s.log.WithError(err).WithField("account_id", id).Warn("journal deposit transaction failed")
	}

	s.log.WithField("account_id", id).
		WithField("denomination", denom).
		WithField("amount", amount).
		Info("account credited")
	return bal, nil
}

// Balance returns the account's balance in one denomination. A wallet that
// never received funds in that denomination holds zero.
func (s *Service) Balance(ctx context.Context, id string, denom challenge.Denomination) (ledger.Balance, error) {
	acct, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return ledger.Balance{}, err
	}
	return s.ledger.GetBalance(ctx, denom, acct.WalletAddress)
}

// Transactions lists the journal rows touching the account's wallet in one
// denomination, most recent first.
func (s *Service) Transactions(ctx context.Context, id string, denom challenge.Denomination, limit int) ([]ledger.Transaction, error) {
	if !challenge.ValidDenomination(denom) {
		return nil, fmt.Errorf("unknown denomination %q", denom)
	}
	if limit <= 0 {
		limit = 50
	}
	acct, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, denom, acct.WalletAddress, limit)
}
