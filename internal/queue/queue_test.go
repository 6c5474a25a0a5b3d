package queue_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/bulksend-backend/internal/queue"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	q := queue.NewInMemoryQueue()

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	received := []string{}

	for _, name := range []string{"a", "b"} {
		name := name
		q.Subscribe("bulk_send_events", func(event queue.Event) error {
			mu.Lock()
			received = append(received, name+":"+event.JobID)
			mu.Unlock()
			wg.Done()
			return nil
		})
	}

	err := q.Publish("bulk_send_events", queue.Event{
		ID:    "evt-1",
		Type:  queue.EventJobSubmitted,
		JobID: "job-1",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscribers never received the event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Errorf("expected both subscribers to fire, got %v", received)
	}
}

func TestPublishWithoutSubscribersFails(t *testing.T) {
	q := queue.NewInMemoryQueue()

	err := q.Publish("nobody-home", queue.Event{ID: "evt-1"})
	if err == nil {
		t.Fatal("expected an error when no subscriber is registered")
	}
}

func TestHandlerRetriedUntilSuccess(t *testing.T) {
	q := queue.NewInMemoryQueue()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q.Subscribe("bulk_send_events", func(event queue.Event) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient handler failure")
		}
		close(done)
		return nil
	})

	if err := q.Publish("bulk_send_events", queue.Event{ID: "evt-1", Type: queue.EventJobTerminal}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler was never retried to success")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}
