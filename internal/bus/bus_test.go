package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var received []string

	b.Subscribe("task:completed", func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, "a:"+payload.(string))
	})
	b.Subscribe("task:completed", func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, "b:"+payload.(string))
	})

	b.Publish("task:completed", "t1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBus_PanickingSubscriberDoesNotAffectOthers(t *testing.T) {
	b := New()
	done := make(chan struct{}, 1)

	b.Subscribe("topic", func(any) { panic("boom") })
	b.Subscribe("topic", func(any) { done <- struct{}{} })

	b.Publish("topic", nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	var mu sync.Mutex

	id := b.Subscribe("topic", func(any) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	b.Unsubscribe("topic", id)
	b.Publish("topic", nil)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, calls)
}

func TestBus_RequestReceivesReply(t *testing.T) {
	b := New()
	b.Subscribe("ping", func(payload any) {
		env := payload.(Envelope)
		b.Reply(env.CorrelationID, "pong")
	})

	reply, err := b.Request(context.Background(), "ping", "hello", time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong", reply)
}

func TestBus_RequestTimesOutWithNoResponder(t *testing.T) {
	b := New()
	_, err := b.Request(context.Background(), "nobody-listens", "hello", 20*time.Millisecond)
	require.Error(t, err)
}
