package notify

import (
	"context"
	"encoding/json"
	"log"

	"classtrack/internal/queue"
)

// Emitter publishes record-change events onto the relay queue. Emission is
// fire-and-forget: a full queue or a down broker is logged, never surfaced
// to the operation that triggered the event.
type Emitter struct {
	q queue.Queue
}

// NewEmitter wraps a queue.
func NewEmitter(q queue.Queue) *Emitter {
	return &Emitter{q: q}
}

// Emit serializes payload and enqueues it under the event name.
func (e *Emitter) Emit(ctx context.Context, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal %s failed: %v", event, err)
		return
	}
	if err := e.q.Publish(ctx, queue.Message{Event: event, Body: body}); err != nil {
		log.Printf("notify: publish %s failed: %v", event, err)
	}
}
