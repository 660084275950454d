// Package challenges implements the wagering challenge lifecycle: creation,
// joining, score submission, settlement and cancellation.
package challenges

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/address"
	"github.com/R3E-Network/wager_layer/internal/app/domain/account"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/domain/ledger"
	"github.com/R3E-Network/wager_layer/internal/app/events"
	"github.com/R3E-Network/wager_layer/internal/app/metrics"
	"github.com/R3E-Network/wager_layer/internal/app/services/vault"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Service drives the challenge state machine. Each operation validates state,
// time window and authorization before any fund movement; a rejected
// operation leaves every record unchanged.
type Service struct {
	accounts     storage.AccountStore
	challenges   storage.ChallengeStore
	participants storage.ParticipantStore
	vault        *vault.Service
	emitter      events.Emitter
	clock        Clock
	log          *logger.Logger
}

// New constructs the challenge lifecycle service.
func New(accounts storage.AccountStore, challengeStore storage.ChallengeStore, participantStore storage.ParticipantStore, escrow *vault.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("challenges")
	}
	return &Service{
		accounts:     accounts,
		challenges:   challengeStore,
		participants: participantStore,
		vault:        escrow,
		emitter:      events.NewLogEmitter(log),
		clock:        systemClock{},
		log:          log,
	}
}

// WithEmitter replaces the event sink. Emission is fire-and-forget.
func (s *Service) WithEmitter(emitter events.Emitter) {
	if emitter != nil {
		s.emitter = emitter
	}
}

// WithClock replaces the time source. Used by tests and by substrates that
// supply transaction time externally.
func (s *Service) WithClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// CreateParams carries the creation parameters for a challenge.
type CreateParams struct {
	Creator      string
	EntryFee     int64
	Duration     time.Duration
	Type         challenge.Type
	Goal         int64
	Denomination challenge.Denomination
	IsPublic     bool
}

// Create opens a new challenge in the Active state with an empty pool and an
// empty vault at deterministic addresses.
func (s *Service) Create(ctx context.Context, params CreateParams) (challenge.Challenge, error) {
	if params.EntryFee <= 0 {
		return challenge.Challenge{}, ErrInvalidEntryFee
	}
	if params.Duration <= 0 {
		return challenge.Challenge{}, ErrInvalidDuration
	}
	if params.Goal <= 0 {
		return challenge.Challenge{}, ErrInvalidGoal
	}
	params.Type = challenge.Type(strings.ToLower(string(params.Type)))
	if !challenge.ValidType(params.Type) {
		return challenge.Challenge{}, fmt.Errorf("%q: %w", params.Type, ErrInvalidType)
	}
	params.Denomination = challenge.Denomination(strings.ToLower(string(params.Denomination)))
	if !challenge.ValidDenomination(params.Denomination) {
		return challenge.Challenge{}, fmt.Errorf("%q: %w", params.Denomination, ErrWrongPaymentType)
	}

	if err := s.verifySigner(ctx, params.Creator); err != nil {
		return challenge.Challenge{}, err
	}

	now := s.clock.Now()
	ch := challenge.Challenge{
		ID:           address.Challenge(params.Creator, strconv.FormatInt(now.Unix(), 10)),
		Creator:      params.Creator,
		EntryFee:     params.EntryFee,
		TotalPool:    0,
		StartTime:    now,
		EndTime:      now.Add(params.Duration),
		Status:       challenge.StatusActive,
		Type:         params.Type,
		Goal:         params.Goal,
		Denomination: params.Denomination,
		IsPublic:     params.IsPublic,
	}

	created, err := s.challenges.CreateChallenge(ctx, ch)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("create challenge: %w", err)
	}

	s.log.WithField("challenge_id", created.ID).
		WithField("creator", created.Creator).
		WithField("entry_fee", created.EntryFee).
		WithField("denomination", created.Denomination).
		Info("challenge created")
	metrics.RecordChallengeOperation("create", true)
	s.emitter.Emit(events.Event{
		Type:        events.TypeChallengeCreated,
		ChallengeID: created.ID,
		Actor:       created.Creator,
		Amount:      created.EntryFee,
		At:          now,
	})
	return created, nil
}

// Join stakes the entry fee into the challenge's vault and records the
// player's membership. The participant slot is claimed through the store's
// uniqueness guarantee; if the slot race is lost after the stake moved, the
// stake is refunded and the join is rejected.
func (s *Service) Join(ctx context.Context, challengeID, player string, payWith challenge.Denomination) (challenge.Participant, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return challenge.Participant{}, err
	}

	if ch.Status != challenge.StatusActive {
		return challenge.Participant{}, ErrChallengeClosed
	}
	if payWith != ch.Denomination {
		return challenge.Participant{}, fmt.Errorf("challenge is %s, payment is %s: %w", ch.Denomination, payWith, ErrWrongPaymentType)
	}

	now := s.clock.Now()
	if !now.Before(ch.EndTime) {
		return challenge.Participant{}, ErrChallengeEnded
	}

	acct, err := s.requireSigner(ctx, player)
	if err != nil {
		return challenge.Participant{}, err
	}

	if existing, err := s.participants.GetParticipantByPlayer(ctx, ch.ID, player); err == nil && existing.HasJoined {
		return challenge.Participant{}, ErrAlreadyJoined
	}

	if _, err := s.vault.Deposit(ctx, ch, ch.EntryFee, acct.WalletAddress); err != nil {
		return challenge.Participant{}, fmt.Errorf("stake transfer: %w", err)
	}

	participant := challenge.Participant{
		ID:          address.Participant(ch.ID, player),
		ChallengeID: ch.ID,
		Player:      player,
		Score:       0,
		HasJoined:   true,
	}
	created, err := s.participants.CreateParticipant(ctx, participant)
	if err != nil {
		// Lost the slot race after the stake moved; put the funds back.
		if refundErr := s.vault.Refund(ctx, ch, ch.EntryFee, acct.WalletAddress); refundErr != nil {
			s.log.WithError(refundErr).
				WithField("challenge_id", ch.ID).
				WithField("player", player).
				Error("stake refund after join conflict failed")
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			return challenge.Participant{}, ErrAlreadyJoined
		}
		return challenge.Participant{}, fmt.Errorf("create participant: %w", err)
	}

	ch.TotalPool += ch.EntryFee
	ch.ParticipantCount++
	if _, err := s.challenges.UpdateChallenge(ctx, ch); err != nil {
		return challenge.Participant{}, fmt.Errorf("update challenge pool: %w", err)
	}

	s.log.WithField("challenge_id", ch.ID).
		WithField("player", player).
		WithField("total_pool", ch.TotalPool).
		Info("participant joined")
	metrics.RecordChallengeOperation("join", true)
	s.emitter.Emit(events.Event{
		Type:        events.TypeParticipantJoined,
		ChallengeID: ch.ID,
		Actor:       player,
		Amount:      ch.EntryFee,
		At:          now,
	})
	return created, nil
}

// SubmitScore records a score for a joined player. The stored score only ever
// rises: resubmitting a lower value leaves it unchanged but still refreshes
// the audit fields, so every accepted submission is visible in the trail.
func (s *Service) SubmitScore(ctx context.Context, challengeID, player string, score int64, verificationHash string) (challenge.Participant, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return challenge.Participant{}, err
	}

	if ch.Status != challenge.StatusActive {
		return challenge.Participant{}, ErrChallengeClosed
	}

	now := s.clock.Now()
	if now.After(ch.EndTime) {
		return challenge.Participant{}, ErrChallengeEnded
	}

	participant, err := s.participants.GetParticipantByPlayer(ctx, ch.ID, player)
	if err != nil || !participant.HasJoined {
		return challenge.Participant{}, ErrNotJoined
	}

	if score > participant.Score {
		participant.Score = score
	}
	participant.HasSubmitted = true
	participant.LastSubmission = now
	participant.VerificationHash = verificationHash

	updated, err := s.participants.UpdateParticipant(ctx, participant)
	if err != nil {
		return challenge.Participant{}, fmt.Errorf("update participant: %w", err)
	}

	s.log.WithField("challenge_id", ch.ID).
		WithField("player", player).
		WithField("score", updated.Score).
		Info("score submitted")
	s.emitter.Emit(events.Event{
		Type:        events.TypeScoreSubmitted,
		ChallengeID: ch.ID,
		Actor:       player,
		Amount:      score,
		At:          now,
	})
	return updated, nil
}

// End settles a challenge: the pool is split between the supplied winner and
// the fee recipient and the vault is drained to zero. The status transition
// is claimed atomically first, so a second End observes ChallengeClosed and
// moves no funds. Winner selection is the caller's responsibility.
func (s *Service) End(ctx context.Context, challengeID, authority, winner, feeRecipient string, payWith challenge.Denomination) (challenge.Challenge, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return challenge.Challenge{}, err
	}

	if ch.Status != challenge.StatusActive {
		return challenge.Challenge{}, ErrChallengeClosed
	}
	if authority != ch.Creator {
		return challenge.Challenge{}, ErrNotCreator
	}
	if payWith != ch.Denomination {
		return challenge.Challenge{}, fmt.Errorf("challenge is %s, settlement is %s: %w", ch.Denomination, payWith, ErrWrongPaymentType)
	}

	now := s.clock.Now()
	if now.Before(ch.EndTime) {
		return challenge.Challenge{}, ErrChallengeNotOver
	}

	var winnerWallet, feeWallet string
	if ch.TotalPool > 0 {
		winnerAcct, err := s.requireSigner(ctx, winner)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("winner: %w", err)
		}
		feeAcct, err := s.requireSigner(ctx, feeRecipient)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("fee recipient: %w", err)
		}
		winnerWallet = winnerAcct.WalletAddress
		feeWallet = feeAcct.WalletAddress

		held, err := s.vault.Balance(ctx, ch)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("vault balance: %w", err)
		}
		if held != ch.TotalPool {
			return challenge.Challenge{}, fmt.Errorf("vault holds %d, pool records %d for challenge %s", held, ch.TotalPool, ch.ID)
		}
	}

	platformFee, winnerPayout := SplitPool(ch.TotalPool)

	// Claim the settlement exactly once before moving funds.
	claimed, err := s.challenges.TransitionChallengeStatus(ctx, ch.ID, challenge.StatusActive, challenge.StatusEnded)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return challenge.Challenge{}, ErrChallengeClosed
		}
		return challenge.Challenge{}, fmt.Errorf("transition status: %w", err)
	}

	// A withdrawal failure past this point would leave the challenge Ended
	// with funds still in the vault. The coverage check above verified the
	// vault holds exactly TotalPool before the transition was claimed, so
	// the transfers below cannot underflow; any remaining failure mode is a
	// store outage, surfaced to the caller with the vault state intact.
	if ch.TotalPool > 0 {
		auth, err := s.vault.Authorize(claimed, now)
		if err != nil {
			return challenge.Challenge{}, fmt.Errorf("authorize settlement: %w", err)
		}
		if _, err := s.vault.Withdraw(ctx, auth, winnerPayout, winnerWallet, ledger.TxTypePayout); err != nil {
			return challenge.Challenge{}, fmt.Errorf("winner payout: %w", err)
		}
		if platformFee > 0 {
			if _, err := s.vault.Withdraw(ctx, auth, platformFee, feeWallet, ledger.TxTypeFee); err != nil {
				return challenge.Challenge{}, fmt.Errorf("platform fee: %w", err)
			}
		}
	}

	claimed.Winner = winner
	claimed.PlatformFee = platformFee
	claimed.WinnerPayout = winnerPayout
	settled, err := s.challenges.UpdateChallenge(ctx, claimed)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("record settlement: %w", err)
	}

	s.log.WithField("challenge_id", ch.ID).
		WithField("winner", winner).
		WithField("winner_payout", winnerPayout).
		WithField("platform_fee", platformFee).
		Info("challenge settled")
	metrics.RecordChallengeOperation("end", true)
	metrics.RecordSettlement(string(ch.Denomination), winnerPayout, platformFee)
	s.emitter.Emit(events.Event{
		Type:        events.TypeChallengeEnded,
		ChallengeID: ch.ID,
		Actor:       winner,
		Amount:      winnerPayout,
		At:          now,
		Fields:      map[string]string{"platform_fee": strconv.FormatInt(platformFee, 10)},
	})
	return settled, nil
}

// Cancel voids a challenge that never collected funds. Challenges with
// participants cannot be cancelled; there is no refund protocol.
func (s *Service) Cancel(ctx context.Context, challengeID, creator string) (challenge.Challenge, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return challenge.Challenge{}, err
	}

	if ch.Status != challenge.StatusActive {
		return challenge.Challenge{}, ErrChallengeClosed
	}
	if creator != ch.Creator {
		return challenge.Challenge{}, ErrNotCreator
	}
	if ch.ParticipantCount != 0 {
		return challenge.Challenge{}, ErrHasParticipants
	}

	cancelled, err := s.challenges.TransitionChallengeStatus(ctx, ch.ID, challenge.StatusActive, challenge.StatusCancelled)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return challenge.Challenge{}, ErrChallengeClosed
		}
		return challenge.Challenge{}, fmt.Errorf("transition status: %w", err)
	}

	s.log.WithField("challenge_id", ch.ID).
		WithField("creator", creator).
		Info("challenge cancelled")
	metrics.RecordChallengeOperation("cancel", true)
	s.emitter.Emit(events.Event{
		Type:        events.TypeChallengeCancelled,
		ChallengeID: ch.ID,
		Actor:       creator,
		At:          s.clock.Now(),
	})
	return cancelled, nil
}

// Get retrieves a challenge by ID.
func (s *Service) Get(ctx context.Context, challengeID string) (challenge.Challenge, error) {
	return s.challenges.GetChallenge(ctx, challengeID)
}

// List lists challenges matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ChallengeFilter) ([]challenge.Challenge, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.challenges.ListChallenges(ctx, filter)
}

// Participants lists the membership records for a challenge.
func (s *Service) Participants(ctx context.Context, challengeID string) ([]challenge.Participant, error) {
	if _, err := s.challenges.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.participants.ListParticipants(ctx, challengeID)
}

// Leaderboard returns a challenge's participants ordered by score descending,
// ties broken by earliest submission.
func (s *Service) Leaderboard(ctx context.Context, challengeID string) ([]challenge.Participant, error) {
	list, err := s.Participants(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	sortLeaderboard(list)
	return list, nil
}

// VaultBalance reports the funds currently held in escrow for a challenge.
func (s *Service) VaultBalance(ctx context.Context, challengeID string) (int64, error) {
	ch, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	return s.vault.Balance(ctx, ch)
}

func sortLeaderboard(list []challenge.Participant) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && leaderboardLess(list[j], list[j-1]); j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}

func leaderboardLess(a, b challenge.Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.LastSubmission.Equal(b.LastSubmission) {
		if a.LastSubmission.IsZero() {
			return false
		}
		if b.LastSubmission.IsZero() {
			return true
		}
		return a.LastSubmission.Before(b.LastSubmission)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *Service) verifySigner(ctx context.Context, accountID string) error {
	_, err := s.requireSigner(ctx, accountID)
	return err
}

func (s *Service) requireSigner(ctx context.Context, accountID string) (account.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return account.Account{}, fmt.Errorf("account id is required")
	}
	record, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return account.Account{}, fmt.Errorf("account validation failed: %w", err)
	}
	if !record.Active {
		return account.Account{}, fmt.Errorf("account %s is not an active signer", accountID)
	}
	return record, nil
}
