package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEmitterDelivers(t *testing.T) {
	emitter := NewChannelEmitter(4)
	evt := Event{Type: TypeChallengeCreated, ChallengeID: "ch-1", At: time.Now()}

	emitter.Emit(evt)

	select {
	case got := <-emitter.Events():
		assert.Equal(t, TypeChallengeCreated, got.Type)
		assert.Equal(t, "ch-1", got.ChallengeID)
	default:
		t.Fatal("event not delivered")
	}
}

func TestChannelEmitterDropsWhenFull(t *testing.T) {
	emitter := NewChannelEmitter(1)

	emitter.Emit(Event{Type: TypeChallengeCreated, ChallengeID: "first"})
	// Buffer is full; this must drop rather than block.
	emitter.Emit(Event{Type: TypeChallengeCreated, ChallengeID: "second"})

	got := <-emitter.Events()
	assert.Equal(t, "first", got.ChallengeID)

	select {
	case extra := <-emitter.Events():
		t.Fatalf("dropped event was delivered: %+v", extra)
	default:
	}
}

func TestMultiEmitterFanOut(t *testing.T) {
	first := NewChannelEmitter(1)
	second := NewChannelEmitter(1)
	multi := NewMultiEmitter(first)
	multi.Attach(second)

	multi.Emit(Event{Type: TypeChallengeEnded, ChallengeID: "ch-1"})

	for _, ch := range []*ChannelEmitter{first, second} {
		select {
		case got := <-ch.Events():
			require.Equal(t, "ch-1", got.ChallengeID)
		default:
			t.Fatal("emitter did not receive the event")
		}
	}
}
