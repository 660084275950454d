// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/R3E-Network/wager_layer/internal/app/domain/account"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)
var _ storage.ParticipantStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrAlreadyExists
	}
	return err
}

// EnsureSchema creates the tables used by the store if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS wager_accounts (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			wallet_address TEXT NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wager_challenges (
			id TEXT PRIMARY KEY,
			creator TEXT NOT NULL,
			entry_fee BIGINT NOT NULL,
			total_pool BIGINT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			participant_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			challenge_type TEXT NOT NULL,
			goal BIGINT NOT NULL,
			denomination TEXT NOT NULL,
			is_public BOOLEAN NOT NULL,
			winner TEXT NOT NULL DEFAULT '',
			platform_fee BIGINT NOT NULL DEFAULT 0,
			winner_payout BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wager_challenges_expiry
			ON wager_challenges (end_time) WHERE status = 'active'`,
		`CREATE TABLE IF NOT EXISTS wager_participants (
			id TEXT PRIMARY KEY,
			challenge_id TEXT NOT NULL REFERENCES wager_challenges (id),
			player TEXT NOT NULL,
			score BIGINT NOT NULL DEFAULT 0,
			has_joined BOOLEAN NOT NULL,
			has_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			last_submission TIMESTAMPTZ,
			verification_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (challenge_id, player)
		)`,
		`CREATE TABLE IF NOT EXISTS wager_balances (
			denomination TEXT NOT NULL,
			address TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (denomination, address)
		)`,
		`CREATE TABLE IF NOT EXISTS wager_transactions (
			id TEXT PRIMARY KEY,
			denomination TEXT NOT NULL,
			tx_type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			from_address TEXT NOT NULL DEFAULT '',
			to_address TEXT NOT NULL DEFAULT '',
			reference_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wager_transactions_address
			ON wager_transactions (denomination, from_address, to_address)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wager_accounts (id, owner, wallet_address, active, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, acct.ID, acct.Owner, acct.WalletAddress, acct.Active, metadataJSON, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, mapError(err)
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	existing, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return account.Account{}, err
	}

	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE wager_accounts
		SET owner = $2, wallet_address = $3, active = $4, metadata = $5, updated_at = $6
		WHERE id = $1
	`, acct.ID, acct.Owner, acct.WalletAddress, acct.Active, metadataJSON, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

const accountColumns = `id, owner, wallet_address, active, metadata, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM wager_accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByWallet(ctx context.Context, wallet string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM wager_accounts
		WHERE wallet_address = $1
	`, wallet)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM wager_accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (account.Account, error) {
	var (
		acct        account.Account
		metadataRaw []byte
	)
	if err := row.Scan(&acct.ID, &acct.Owner, &acct.WalletAddress, &acct.Active, &metadataRaw, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return account.Account{}, mapError(err)
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &acct.Metadata)
	}
	return acct, nil
}

// --- ChallengeStore ---------------------------------------------------------

const challengeColumns = `id, creator, entry_fee, total_pool, start_time, end_time,
	participant_count, status, challenge_type, goal, denomination, is_public,
	winner, platform_fee, winner_payout, created_at, updated_at`

func (s *Store) CreateChallenge(ctx context.Context, ch challenge.Challenge) (challenge.Challenge, error) {
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wager_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, ch.ID, ch.Creator, ch.EntryFee, ch.TotalPool, ch.StartTime, ch.EndTime,
		ch.ParticipantCount, ch.Status, ch.Type, ch.Goal, ch.Denomination, ch.IsPublic,
		ch.Winner, ch.PlatformFee, ch.WinnerPayout, ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	return ch, nil
}

func (s *Store) UpdateChallenge(ctx context.Context, ch challenge.Challenge) (challenge.Challenge, error) {
	ch.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE wager_challenges
		SET total_pool = $2, participant_count = $3, status = $4, winner = $5,
			platform_fee = $6, winner_payout = $7, updated_at = $8
		WHERE id = $1
	`, ch.ID, ch.TotalPool, ch.ParticipantCount, ch.Status, ch.Winner,
		ch.PlatformFee, ch.WinnerPayout, ch.UpdatedAt)
	if err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return challenge.Challenge{}, storage.ErrNotFound
	}
	return ch, nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (challenge.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM wager_challenges
		WHERE id = $1
	`, id)
	return scanChallenge(row)
}

func (s *Store) ListChallenges(ctx context.Context, filter storage.ChallengeFilter) ([]challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM wager_challenges WHERE 1=1`
	args := []any{}

	if filter.Creator != "" {
		args = append(args, filter.Creator)
		query += fmt.Sprintf(" AND creator = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.PublicOnly {
		query += " AND is_public"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []challenge.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

func (s *Store) ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]challenge.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+challengeColumns+`
		FROM wager_challenges
		WHERE status = $1 AND end_time <= $2
		ORDER BY end_time
	`, challenge.StatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []challenge.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

func (s *Store) TransitionChallengeStatus(ctx context.Context, id string, from, to challenge.Status) (challenge.Challenge, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wager_challenges
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, time.Now().UTC())
	if err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetChallenge(ctx, id); err != nil {
			return challenge.Challenge{}, err
		}
		return challenge.Challenge{}, storage.ErrStatusConflict
	}
	return s.GetChallenge(ctx, id)
}

func scanChallenge(row rowScanner) (challenge.Challenge, error) {
	var ch challenge.Challenge
	if err := row.Scan(&ch.ID, &ch.Creator, &ch.EntryFee, &ch.TotalPool, &ch.StartTime, &ch.EndTime,
		&ch.ParticipantCount, &ch.Status, &ch.Type, &ch.Goal, &ch.Denomination, &ch.IsPublic,
		&ch.Winner, &ch.PlatformFee, &ch.WinnerPayout, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	return ch, nil
}

// --- ParticipantStore -------------------------------------------------------

const participantColumns = `id, challenge_id, player, score, has_joined, has_submitted,
	last_submission, verification_hash, created_at, updated_at`

func (s *Store) CreateParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wager_participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.ChallengeID, p.Player, p.Score, p.HasJoined, p.HasSubmitted,
		nullableTime(p.LastSubmission), p.VerificationHash, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return challenge.Participant{}, mapError(err)
	}
	return p, nil
}

func (s *Store) UpdateParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE wager_participants
		SET score = $2, has_submitted = $3, last_submission = $4, verification_hash = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Score, p.HasSubmitted, nullableTime(p.LastSubmission), p.VerificationHash, p.UpdatedAt)
	if err != nil {
		return challenge.Participant{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return challenge.Participant{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (challenge.Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM wager_participants
		WHERE id = $1
	`, id)
	return scanParticipant(row)
}

func (s *Store) GetParticipantByPlayer(ctx context.Context, challengeID, player string) (challenge.Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM wager_participants
		WHERE challenge_id = $1 AND player = $2
	`, challengeID, player)
	return scanParticipant(row)
}

func (s *Store) ListParticipants(ctx context.Context, challengeID string) ([]challenge.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM wager_participants
		WHERE challenge_id = $1
		ORDER BY created_at
	`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []challenge.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanParticipant(row rowScanner) (challenge.Participant, error) {
	var (
		p         challenge.Participant
		submitted sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.ChallengeID, &p.Player, &p.Score, &p.HasJoined, &p.HasSubmitted,
		&submitted, &p.VerificationHash, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return challenge.Participant{}, mapError(err)
	}
	if submitted.Valid {
		p.LastSubmission = submitted.Time
	}
	return p, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, denom challenge.Denomination, addr string) (ledger.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT denomination, address, amount, updated_at
		FROM wager_balances
		WHERE denomination = $1 AND address = $2
	`, denom, addr)

	var bal ledger.Balance
	if err := row.Scan(&bal.Denomination, &bal.Address, &bal.Amount, &bal.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Balance{Address: addr, Denomination: denom, Amount: 0}, nil
		}
		return ledger.Balance{}, mapError(err)
	}
	return bal, nil
}

func (s *Store) ApplyTransfer(ctx context.Context, denom challenge.Denomination, from, to string, amount int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE wager_balances
		SET amount = amount - $3, updated_at = $4
		WHERE denomination = $1 AND address = $2 AND amount >= $3
	`, denom, from, amount, now)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("debit %s/%s: %w", denom, from, storage.ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wager_balances (denomination, address, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (denomination, address)
		DO UPDATE SET amount = wager_balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
	`, denom, to, amount, now); err != nil {
		return mapError(err)
	}

	return tx.Commit()
}

func (s *Store) CreditBalance(ctx context.Context, denom challenge.Denomination, addr string, amount int64) (ledger.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO wager_balances (denomination, address, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (denomination, address)
		DO UPDATE SET amount = wager_balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING denomination, address, amount, updated_at
	`, denom, addr, amount, time.Now().UTC())

	var bal ledger.Balance
	if err := row.Scan(&bal.Denomination, &bal.Address, &bal.Amount, &bal.UpdatedAt); err != nil {
		return ledger.Balance{}, mapError(err)
	}
	return bal, nil
}

func (s *Store) CreateTransaction(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wager_transactions (id, denomination, tx_type, amount, from_address, to_address, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, txn.ID, txn.Denomination, txn.Type, txn.Amount, txn.FromAddress, txn.ToAddress, txn.ReferenceID, txn.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	return txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, denom challenge.Denomination, addr string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, denomination, tx_type, amount, from_address, to_address, reference_id, created_at
		FROM wager_transactions
		WHERE denomination = $1 AND (from_address = $2 OR to_address = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, denom, addr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		var txn ledger.Transaction
		if err := rows.Scan(&txn.ID, &txn.Denomination, &txn.Type, &txn.Amount,
			&txn.FromAddress, &txn.ToAddress, &txn.ReferenceID, &txn.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	return result, rows.Err()
}
