// Package events delivers lifecycle notifications to external observers.
// Emission is fire-and-forget: the core's correctness never depends on an
// event being delivered.
package events

import (
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Event types emitted by the challenge lifecycle.
const (
	TypeChallengeCreated   = "challenge.created"
	TypeParticipantJoined  = "challenge.participant.joined"
	TypeScoreSubmitted     = "challenge.score.submitted"
	TypeChallengeEnded     = "challenge.ended"
	TypeChallengeCancelled = "challenge.cancelled"
	TypeChallengeExpired   = "challenge.expired"
)

// Event describes one lifecycle occurrence.
type Event struct {
	Type        string            `json:"type"`
	ChallengeID string            `json:"challenge_id"`
	Actor       string            `json:"actor,omitempty"`
	Amount      int64             `json:"amount,omitempty"`
	At          time.Time         `json:"at"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Emitter receives lifecycle events.
type Emitter interface {
	Emit(evt Event)
}

// LogEmitter writes events to the application log.
type LogEmitter struct {
	log *logger.Logger
}

// NewLogEmitter builds an emitter backed by the given logger.
func NewLogEmitter(log *logger.Logger) *LogEmitter {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(evt Event) {
	entry := e.log.WithField("event", evt.Type).WithField("challenge_id", evt.ChallengeID)
	if evt.Actor != "" {
		entry = entry.WithField("actor", evt.Actor)
	}
	if evt.Amount != 0 {
		entry = entry.WithField("amount", evt.Amount)
	}
	entry.Info("event emitted")
}

// ChannelEmitter buffers events on a channel for in-process observers. When
// the buffer is full the event is dropped rather than blocking the caller.
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter builds a buffered emitter. Buffer sizes below 1 default
// to 64.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer < 1 {
		buffer = 64
	}
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

func (e *ChannelEmitter) Emit(evt Event) {
	select {
	case e.ch <- evt:
	default:
	}
}

// Events exposes the observer channel.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.ch
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewMultiEmitter builds a fan-out emitter.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Attach adds an emitter to the fan-out set.
func (m *MultiEmitter) Attach(e Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitters = append(m.emitters, e)
}

func (m *MultiEmitter) Emit(evt Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.emitters {
		e.Emit(evt)
	}
}
