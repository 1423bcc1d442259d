// Package bus implements the Message Bus (MB, spec §4.13): in-process
// pub/sub with fault isolation, contrasted with Lifecycle Hooks (the
// critical path) by being fire-and-forget.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loopctl/internal/ids"
	"loopctl/internal/logging"
)

// Handler receives one published message. A panicking or erroring
// handler is isolated from its siblings and from the publisher (spec
// §4.13: "an exception in one subscriber is logged and does not affect
// others or the publisher").
type Handler func(payload any)

// Bus is a topic-keyed, fault-isolated publish/subscribe dispatcher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	logger      *logging.Logger
}

type subscription struct {
	id      string
	handler Handler
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      logging.Get(logging.CategoryBus),
	}
}

// Publish implements planning.Publisher so CP/PE's tie/compare events can
// flow straight onto the bus without an adapter.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		go b.dispatch(topic, s, payload)
	}
}

// dispatch runs one handler with panic isolation, matching the teacher's
// "drop if channel full, never block or crash the bus" discipline from
// GlassBoxEventBus, adapted to a call-based (not channel-based)
// subscriber model.
func (b *Bus) dispatch(topic string, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber %s on topic %s panicked: %v", s.id, topic, r)
		}
	}()
	s.handler(payload)
}

// Subscribe registers handler under topic and returns a subscription id
// usable with Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := ids.New("sub")
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a handler previously returned by Subscribe.
func (b *Bus) Unsubscribe(topic, subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, s := range subs {
		if s.id == subscriptionID {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// replyTopic namespaces a correlation id into its own topic so
// Request's reply doesn't leak into the public topic's other
// subscribers.
func replyTopic(correlationID string) string {
	return "reply:" + correlationID
}

// Request publishes payload on topic and waits up to timeout for exactly
// one reply sent via Reply with the returned correlation id (spec §4.13:
// "request/response via a correlation id and a timeout").
func (b *Bus) Request(ctx context.Context, topic string, payload any, timeout time.Duration) (any, error) {
	correlationID := ids.New("corr")
	replyCh := make(chan any, 1)

	subID := b.Subscribe(replyTopic(correlationID), func(reply any) {
		select {
		case replyCh <- reply:
		default:
		}
	})
	defer b.Unsubscribe(replyTopic(correlationID), subID)

	b.Publish(topic, Envelope{CorrelationID: correlationID, Payload: payload})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("bus: request on %q timed out waiting for correlation %s", topic, correlationID)
	}
}

// Envelope wraps a request's payload with its correlation id so
// responders know where to reply.
type Envelope struct {
	CorrelationID string
	Payload       any
}

// Reply sends payload back to whoever is waiting on correlationID via
// Request. A reply with no matching waiter is silently dropped (the
// requester already timed out or never asked).
func (b *Bus) Reply(correlationID string, payload any) {
	b.Publish(replyTopic(correlationID), payload)
}
