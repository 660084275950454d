package challenges

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/events"
	"github.com/R3E-Network/wager_layer/internal/app/metrics"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/app/system"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// WinnerResolver decides the winner of an expired challenge.
type WinnerResolver interface {
	Resolve(ctx context.Context, ch challenge.Challenge, participants []challenge.Participant) (winner string, ok bool, err error)
}

// HighestScoreResolver picks the participant with the highest score, ties
// broken by earliest submission.
type HighestScoreResolver struct{}

func (HighestScoreResolver) Resolve(_ context.Context, _ challenge.Challenge, participants []challenge.Participant) (string, bool, error) {
	if len(participants) == 0 {
		return "", false, nil
	}
	ranked := make([]challenge.Participant, len(participants))
	copy(ranked, participants)
	sortLeaderboard(ranked)
	return ranked[0].Player, true, nil
}

// ExpiryPoller sweeps challenges whose window has closed and settles them on
// the creator's behalf. Challenges a caller has already ended are skipped via
// the same status transition that guards manual settlement, so the poller and
// a concurrent End can never both pay out.
type ExpiryPoller struct {
	store        storage.ChallengeStore
	participants storage.ParticipantStore
	service      *Service
	resolver     WinnerResolver
	feeRecipient string
	interval     time.Duration
	log          *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*ExpiryPoller)(nil)

// NewExpiryPoller constructs the expiry sweep service. feeRecipient is the
// account credited with the platform fee for auto-settled challenges.
func NewExpiryPoller(store storage.ChallengeStore, participants storage.ParticipantStore, service *Service, feeRecipient string, log *logger.Logger) *ExpiryPoller {
	if log == nil {
		log = logger.NewDefault("challenge-expiry")
	}
	return &ExpiryPoller{
		store:        store,
		participants: participants,
		service:      service,
		resolver:     HighestScoreResolver{},
		feeRecipient: feeRecipient,
		interval:     30 * time.Second,
		log:          log,
		nextAttempt:  make(map[string]time.Time),
	}
}

// WithResolver replaces the winner selection strategy.
func (p *ExpiryPoller) WithResolver(resolver WinnerResolver) {
	if resolver != nil {
		p.resolver = resolver
	}
}

// WithInterval overrides the sweep interval.
func (p *ExpiryPoller) WithInterval(interval time.Duration) {
	if interval > 0 {
		p.interval = interval
	}
}

func (p *ExpiryPoller) Name() string { return "challenge-expiry" }

func (p *ExpiryPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("challenge expiry poller started")
	return nil
}

func (p *ExpiryPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *ExpiryPoller) tick(ctx context.Context) {
	now := p.service.clock.Now()
	expired, err := p.store.ListActiveEndedBefore(ctx, now)
	if err != nil {
		p.log.WithError(err).Warn("list expired challenges failed")
		return
	}

	for _, ch := range expired {
		if !p.shouldAttempt(ch.ID, now) {
			continue
		}
		p.settle(ctx, ch)
	}
}

func (p *ExpiryPoller) settle(ctx context.Context, ch challenge.Challenge) {
	// Re-emitted on retried attempts; observers treat expiry as idempotent.
	p.service.emitter.Emit(events.Event{
		Type:        events.TypeChallengeExpired,
		ChallengeID: ch.ID,
		At:          p.service.clock.Now(),
	})

	participants, err := p.participants.ListParticipants(ctx, ch.ID)
	if err != nil {
		p.log.WithError(err).Warnf("list participants for expired challenge %s failed", ch.ID)
		p.scheduleNext(ch.ID)
		return
	}

	winner, ok, err := p.resolver.Resolve(ctx, ch, participants)
	if err != nil {
		p.log.WithError(err).Warnf("resolve winner for challenge %s failed", ch.ID)
		p.scheduleNext(ch.ID)
		return
	}
	if !ok && ch.TotalPool > 0 {
		// Funds staked but no resolvable winner; leave for manual settlement.
		p.log.WithField("challenge_id", ch.ID).Warn("expired challenge has funds but no winner; skipping")
		metrics.RecordExpirySweep("unresolved")
		p.scheduleNext(ch.ID)
		return
	}

	settled, err := p.service.End(ctx, ch.ID, ch.Creator, winner, p.feeRecipient, ch.Denomination)
	if err != nil {
		if errors.Is(err, ErrChallengeClosed) {
			// Someone settled it between the sweep and this call.
			p.clearSchedule(ch.ID)
			return
		}
		p.log.WithError(err).Warnf("auto-settle challenge %s failed", ch.ID)
		metrics.RecordExpirySweep("error")
		p.scheduleNext(ch.ID)
		return
	}

	p.log.WithField("challenge_id", settled.ID).
		WithField("winner", settled.Winner).
		WithField("winner_payout", settled.WinnerPayout).
		Info("expired challenge auto-settled")
	metrics.RecordExpirySweep("settled")
	p.clearSchedule(ch.ID)
}

func (p *ExpiryPoller) shouldAttempt(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[id]
	if !ok || now.After(next) {
		return true
	}
	return false
}

func (p *ExpiryPoller) scheduleNext(id string) {
	p.mu.Lock()
	p.nextAttempt[id] = p.service.clock.Now().Add(p.interval * 4)
	p.mu.Unlock()
}

func (p *ExpiryPoller) clearSchedule(id string) {
	p.mu.Lock()
	delete(p.nextAttempt, id)
	p.mu.Unlock()
}
