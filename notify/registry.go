package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/makeit-app/render-orchestrator/infra/produce"
)

// subscriberBuffer bounds the per-connection event queue. A client that stops
// reading loses events instead of blocking the fanout loop.
const subscriberBuffer = 16

type subscriber struct {
	ownerID string
	events  chan produce.JobEventMessage
}

// Registry tracks live event-stream subscribers for this process. Every HTTP
// instance holds its own registry and feeds it from the shared fanout exchange,
// so clients can connect to any instance.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a new listener for the owner's job events. The returned
// id must be passed to Unsubscribe when the connection ends.
func (r *Registry) Subscribe(ownerID string) (string, <-chan produce.JobEventMessage) {
	sub := &subscriber{
		ownerID: ownerID,
		events:  make(chan produce.JobEventMessage, subscriberBuffer),
	}

	id := uuid.New().String()

	r.mu.Lock()
	r.subscribers[id] = sub
	r.mu.Unlock()

	return id, sub.events
}

// Unsubscribe removes the listener and closes its channel. Safe to call twice.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	sub, ok := r.subscribers[id]
	if ok {
		delete(r.subscribers, id)
	}
	r.mu.Unlock()

	if ok {
		close(sub.events)
	}
}

// Broadcast delivers the event to every subscriber of the owning user. Sends
// never block; a full buffer drops the event for that subscriber.
func (r *Registry) Broadcast(msg produce.JobEventMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subscribers {
		if sub.ownerID != msg.OwnerID {
			continue
		}
		select {
		case sub.events <- msg:
		default:
		}
	}
}

// Len reports the current subscriber count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}
