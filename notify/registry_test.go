package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeit-app/render-orchestrator/infra/produce"
)

func TestBroadcastFiltersByOwner(t *testing.T) {
	r := NewRegistry()

	idA, eventsA := r.Subscribe("owner-a")
	idB, eventsB := r.Subscribe("owner-b")
	defer r.Unsubscribe(idA)
	defer r.Unsubscribe(idB)

	r.Broadcast(produce.JobEventMessage{OwnerID: "owner-a", JobID: "up-1", Status: "completed"})

	select {
	case msg := <-eventsA:
		assert.Equal(t, "up-1", msg.JobID)
	default:
		t.Fatal("owner-a should have received the event")
	}

	select {
	case msg := <-eventsB:
		t.Fatalf("owner-b should not receive owner-a's event, got %+v", msg)
	default:
	}
}

func TestBroadcastReachesAllOwnerConnections(t *testing.T) {
	r := NewRegistry()

	id1, events1 := r.Subscribe("owner-a")
	id2, events2 := r.Subscribe("owner-a")
	defer r.Unsubscribe(id1)
	defer r.Unsubscribe(id2)

	r.Broadcast(produce.JobEventMessage{OwnerID: "owner-a", JobID: "up-1"})

	for _, events := range []<-chan produce.JobEventMessage{events1, events2} {
		select {
		case msg := <-events:
			assert.Equal(t, "up-1", msg.JobID)
		default:
			t.Fatal("every connection of the owner should receive the event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r := NewRegistry()

	id, events := r.Subscribe("owner-a")
	r.Unsubscribe(id)

	_, open := <-events
	assert.False(t, open)
	assert.Zero(t, r.Len())

	// Second unsubscribe is a no-op, not a double close.
	r.Unsubscribe(id)
}

func TestBroadcastDoesNotBlockOnSlowSubscriber(t *testing.T) {
	r := NewRegistry()

	id, events := r.Subscribe("owner-a")
	defer r.Unsubscribe(id)

	for i := 0; i < subscriberBuffer+5; i++ {
		r.Broadcast(produce.JobEventMessage{OwnerID: "owner-a", JobID: "up-1"})
	}

	received := 0
	for {
		select {
		case <-events:
			received++
			continue
		default:
		}
		break
	}
	require.Equal(t, subscriberBuffer, received, "overflow events are dropped, not queued")
}
