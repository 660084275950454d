package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/account"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu                   sync.RWMutex
	nextID               int64
	accounts             map[string]account.Account
	accountsByWallet     map[string]string
	challenges           map[string]challenge.Challenge
	participants         map[string]challenge.Participant
	participantsByPlayer map[string]string // challengeID+"/"+player -> participant ID
	balances             map[string]ledger.Balance
	transactions         map[string][]ledger.Transaction
	transactionLog       []ledger.Transaction
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)
var _ storage.ParticipantStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:               1,
		accounts:             make(map[string]account.Account),
		accountsByWallet:     make(map[string]string),
		challenges:           make(map[string]challenge.Challenge),
		participants:         make(map[string]challenge.Participant),
		participantsByPlayer: make(map[string]string),
		balances:             make(map[string]ledger.Balance),
		transactions:         make(map[string][]ledger.Transaction),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func balanceKey(denom challenge.Denomination, addr string) string {
	return string(denom) + "/" + addr
}

func participantKey(challengeID, player string) string {
	return challengeID + "/" + player
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.ID, storage.ErrAlreadyExists)
	}

	acct.WalletAddress = strings.TrimSpace(acct.WalletAddress)
	walletKey := strings.ToLower(acct.WalletAddress)
	if walletKey != "" {
		if existing, exists := s.accountsByWallet[walletKey]; exists {
			return account.Account{}, fmt.Errorf("wallet %s already assigned to account %s: %w", acct.WalletAddress, existing, storage.ErrAlreadyExists)
		}
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Metadata = cloneMap(acct.Metadata)

	s.accounts[acct.ID] = acct
	if walletKey != "" {
		s.accountsByWallet[walletKey] = acct.ID
	}
	return cloneAccount(acct), nil
}

func (s *Store) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.ID]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.ID, storage.ErrNotFound)
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()
	acct.Metadata = cloneMap(acct.Metadata)

	s.accounts[acct.ID] = acct
	return cloneAccount(acct), nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return cloneAccount(acct), nil
}

func (s *Store) GetAccountByWallet(_ context.Context, wallet string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.accountsByWallet[strings.ToLower(strings.TrimSpace(wallet))]; ok {
		return cloneAccount(s.accounts[id]), nil
	}
	return account.Account{}, fmt.Errorf("account for wallet %s: %w", wallet, storage.ErrNotFound)
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, cloneAccount(acct))
	}
	return result, nil
}

// ChallengeStore implementation -----------------------------------------------

func (s *Store) CreateChallenge(_ context.Context, ch challenge.Challenge) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == "" {
		ch.ID = s.nextIDLocked()
	} else if _, exists := s.challenges[ch.ID]; exists {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", ch.ID, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	s.challenges[ch.ID] = ch
	return ch, nil
}

func (s *Store) UpdateChallenge(_ context.Context, ch challenge.Challenge) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.challenges[ch.ID]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", ch.ID, storage.ErrNotFound)
	}

	ch.CreatedAt = original.CreatedAt
	ch.UpdatedAt = time.Now().UTC()

	s.challenges[ch.ID] = ch
	return ch, nil
}

func (s *Store) GetChallenge(_ context.Context, id string) (challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	return ch, nil
}

func (s *Store) ListChallenges(_ context.Context, filter storage.ChallengeFilter) ([]challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]challenge.Challenge, 0)
	for _, ch := range s.challenges {
		if filter.Creator != "" && ch.Creator != filter.Creator {
			continue
		}
		if filter.Status != "" && ch.Status != filter.Status {
			continue
		}
		if filter.PublicOnly && !ch.IsPublic {
			continue
		}
		result = append(result, ch)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListActiveEndedBefore(_ context.Context, cutoff time.Time) ([]challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]challenge.Challenge, 0)
	for _, ch := range s.challenges {
		if ch.Status == challenge.StatusActive && !ch.EndTime.After(cutoff) {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EndTime.Before(result[j].EndTime) })
	return result, nil
}

func (s *Store) TransitionChallengeStatus(_ context.Context, id string, from, to challenge.Status) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	if ch.Status != from {
		return challenge.Challenge{}, fmt.Errorf("challenge %s is %s, expected %s: %w", id, ch.Status, from, storage.ErrStatusConflict)
	}

	ch.Status = to
	ch.UpdatedAt = time.Now().UTC()
	s.challenges[id] = ch
	return ch, nil
}

// ParticipantStore implementation ---------------------------------------------

func (s *Store) CreateParticipant(_ context.Context, p challenge.Participant) (challenge.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participantKey(p.ChallengeID, p.Player)
	if _, exists := s.participantsByPlayer[key]; exists {
		return challenge.Participant{}, fmt.Errorf("participant %s in challenge %s: %w", p.Player, p.ChallengeID, storage.ErrAlreadyExists)
	}

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.participants[p.ID]; exists {
		return challenge.Participant{}, fmt.Errorf("participant %s: %w", p.ID, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.participants[p.ID] = p
	s.participantsByPlayer[key] = p.ID
	return p, nil
}

func (s *Store) UpdateParticipant(_ context.Context, p challenge.Participant) (challenge.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.participants[p.ID]
	if !ok {
		return challenge.Participant{}, fmt.Errorf("participant %s: %w", p.ID, storage.ErrNotFound)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.participants[p.ID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return challenge.Participant{}, fmt.Errorf("participant %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetParticipantByPlayer(_ context.Context, challengeID, player string) (challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.participantsByPlayer[participantKey(challengeID, player)]; ok {
		return s.participants[id], nil
	}
	return challenge.Participant{}, fmt.Errorf("participant %s in challenge %s: %w", player, challengeID, storage.ErrNotFound)
}

func (s *Store) ListParticipants(_ context.Context, challengeID string) ([]challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]challenge.Participant, 0)
	for _, p := range s.participants {
		if p.ChallengeID == challengeID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) GetBalance(_ context.Context, denom challenge.Denomination, addr string) (ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.balances[balanceKey(denom, addr)]; ok {
		return bal, nil
	}
	return ledger.Balance{Address: addr, Denomination: denom, Amount: 0}, nil
}

func (s *Store) ApplyTransfer(_ context.Context, denom challenge.Denomination, from, to string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := balanceKey(denom, from)
	src, ok := s.balances[fromKey]
	if !ok || src.Amount < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, storage.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	src.Amount -= amount
	src.UpdatedAt = now
	s.balances[fromKey] = src

	toKey := balanceKey(denom, to)
	dst, ok := s.balances[toKey]
	if !ok {
		dst = ledger.Balance{Address: to, Denomination: denom}
	}
	dst.Amount += amount
	dst.UpdatedAt = now
	s.balances[toKey] = dst
	return nil
}

func (s *Store) CreditBalance(_ context.Context, denom challenge.Denomination, addr string, amount int64) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(denom, addr)
	bal, ok := s.balances[key]
	if !ok {
		bal = ledger.Balance{Address: addr, Denomination: denom}
	}
	bal.Amount += amount
	bal.UpdatedAt = time.Now().UTC()
	s.balances[key] = bal
	return bal, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	tx.CreatedAt = time.Now().UTC()

	s.transactions[balanceKey(tx.Denomination, tx.FromAddress)] = append(s.transactions[balanceKey(tx.Denomination, tx.FromAddress)], tx)
	if tx.ToAddress != tx.FromAddress {
		s.transactions[balanceKey(tx.Denomination, tx.ToAddress)] = append(s.transactions[balanceKey(tx.Denomination, tx.ToAddress)], tx)
	}
	s.transactionLog = append(s.transactionLog, tx)
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, denom challenge.Denomination, addr string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transactions[balanceKey(denom, addr)]
	result := append([]ledger.Transaction(nil), entries...)
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// Helpers --------------------------------------------------------------------

func cloneMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneAccount(acct account.Account) account.Account {
	acct.Metadata = cloneMap(acct.Metadata)
	return acct
}
