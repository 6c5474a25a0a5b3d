package queue

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is one job lifecycle notification published by the orchestrator.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"` // job_submitted, job_terminal, job_cancelled
	JobID      string    `json:"job_id"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types.
const (
	EventJobSubmitted = "job_submitted"
	EventJobTerminal  = "job_terminal"
	EventJobCancelled = "job_cancelled"
)

// Publisher abstracts the transport carrying lifecycle events.
type Publisher interface {
	Publish(topic string, event Event) error
}

// Queue extends Publisher with in-process subscription.
type Queue interface {
	Publisher
	Subscribe(topic string, handler func(event Event) error) error
}

// InMemoryQueue is an in-process queue with retry, used in tests and
// single-process deployments where no broker is configured.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(event Event) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(event Event) error),
	}
}

// job wraps an event with retry info
type job struct {
	event      Event
	retryCount int
	maxRetries int
}

// Publish sends an event to all subscribers
func (q *InMemoryQueue) Publish(topic string, event Event) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{event: event, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(handler, j)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(event Event) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.event)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		log.Printf("event handler failed (attempt %d/%d) for job %s: %v", j.retryCount, j.maxRetries, j.event.JobID, err)

		if j.retryCount > j.maxRetries {
			log.Printf("event permanently dropped after %d attempts: %s %s", j.maxRetries, j.event.Type, j.event.JobID)
			return
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(event Event) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
