// cmd/providersim implements the delivery provider's HTTP contract in
// memory so the service can be run end to end without a real provider.
// Jobs advance on a timer with a configurable per-message failure rate.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/bulksend-backend/internal/model"
	"github.com/unclebandit/bulksend-backend/internal/provider"
)

type simJob struct {
	job      model.BulkSendJob
	messages []model.MessageStatus
	stop     chan struct{}
}

type simStore struct {
	mu          sync.Mutex
	jobs        map[string]*simJob
	order       []string
	failureRate float64
	tick        time.Duration
}

func newSimStore(failureRate float64, tick time.Duration) *simStore {
	return &simStore{
		jobs:        make(map[string]*simJob),
		failureRate: failureRate,
		tick:        tick,
	}
}

func (s *simStore) createJob(channel string, recipients []provider.Recipient, batchSize int) *simJob {
	now := time.Now()
	j := &simJob{
		job: model.BulkSendJob{
			ID:              uuid.NewString(),
			Channel:         channel,
			Status:          model.JobStatusQueued,
			TotalRecipients: len(recipients),
			PendingCount:    len(recipients),
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		stop: make(chan struct{}),
	}
	for _, r := range recipients {
		j.messages = append(j.messages, model.MessageStatus{
			ID:               uuid.NewString(),
			RecipientID:      r.ID,
			RecipientAddress: r.ChannelAddress,
			DisplayName:      r.DisplayName,
			Status:           model.MessageStatusPending,
			Timestamp:        now,
		})
	}

	s.mu.Lock()
	s.jobs[j.job.ID] = j
	s.order = append(s.order, j.job.ID)
	s.mu.Unlock()

	go s.advance(j, batchSize)
	return j
}

// advance moves one batch of pending messages to a terminal status per
// tick until nothing is pending, then completes the job.
func (s *simStore) advance(j *simJob, batchSize int) {
	if batchSize <= 0 {
		batchSize = 50
	}
	for {
		select {
		case <-j.stop:
			return
		case <-time.After(s.tick):
		}

		s.mu.Lock()
		if j.job.Status == model.JobStatusQueued {
			j.job.Status = model.JobStatusProcessing
		}
		moved := 0
		for i := range j.messages {
			if moved >= batchSize {
				break
			}
			if j.messages[i].Status != model.MessageStatusPending {
				continue
			}
			if rand.Float64() < s.failureRate {
				j.messages[i].Status = model.MessageStatusFailed
				j.messages[i].Error = "simulated delivery failure"
				j.job.FailedCount++
			} else {
				j.messages[i].Status = model.MessageStatusSent
				j.messages[i].ProviderMessageID = uuid.NewString()
				j.job.SentCount++
			}
			j.messages[i].Timestamp = time.Now()
			j.job.PendingCount--
			moved++
		}
		j.job.UpdatedAt = time.Now()
		done := j.job.PendingCount == 0
		if done {
			j.job.Status = model.JobStatusCompleted
		}
		s.mu.Unlock()

		if done {
			return
		}
	}
}

func (s *simStore) jobResponse(j *simJob) provider.JobResponse {
	return provider.JobResponse{
		ID:              j.job.ID,
		Channel:         j.job.Channel,
		TotalRecipients: j.job.TotalRecipients,
		SentCount:       j.job.SentCount,
		FailedCount:     j.job.FailedCount,
		PendingCount:    j.job.PendingCount,
		Status:          j.job.Status,
		Messages:        append([]model.MessageStatus{}, j.messages...),
		CreatedAt:       j.job.CreatedAt,
		UpdatedAt:       j.job.UpdatedAt,
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	failureRate := 0.1
	if v := os.Getenv("FAILURE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			failureRate = f
		}
	}

	store := newSimStore(failureRate, 500*time.Millisecond)

	r := chi.NewRouter()

	r.Post("/bulk-send", func(w http.ResponseWriter, req *http.Request) {
		var body provider.CreateJobRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if len(body.Recipients) == 0 {
			http.Error(w, "recipients cannot be empty", http.StatusBadRequest)
			return
		}

		j := store.createJob(body.Channel, body.Recipients, body.BatchSize)

		store.mu.Lock()
		resp := store.jobResponse(j)
		store.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	})

	r.Get("/bulk-send", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		store.mu.Lock()
		jobs := []provider.JobResponse{}
		for i := len(store.order) - 1; i >= 0 && len(jobs) < limit; i-- {
			jobs = append(jobs, store.jobResponse(store.jobs[store.order[i]]))
		}
		store.mu.Unlock()
		json.NewEncoder(w).Encode(jobs)
	})

	r.Get("/bulk-send/{id}/status", func(w http.ResponseWriter, req *http.Request) {
		store.mu.Lock()
		j, ok := store.jobs[chi.URLParam(req, "id")]
		if !ok {
			store.mu.Unlock()
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		status := provider.StatusResponse{
			ID:     j.job.ID,
			Status: j.job.Status,
			Progress: provider.Progress{
				Total:   j.job.TotalRecipients,
				Sent:    j.job.SentCount,
				Failed:  j.job.FailedCount,
				Pending: j.job.PendingCount,
			},
		}
		for _, msg := range j.messages {
			if msg.Status == model.MessageStatusFailed {
				status.Errors = append(status.Errors, provider.RecipientError{
					Recipient: msg.RecipientAddress,
					Error:     msg.Error,
				})
			}
		}
		store.mu.Unlock()
		json.NewEncoder(w).Encode(status)
	})

	r.Post("/bulk-send/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
		store.mu.Lock()
		j, ok := store.jobs[chi.URLParam(req, "id")]
		if !ok {
			store.mu.Unlock()
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if !j.job.Terminal() {
			close(j.stop)
			// Whatever was still pending never goes out.
			for i := range j.messages {
				if j.messages[i].Status == model.MessageStatusPending {
					j.messages[i].Status = model.MessageStatusFailed
					j.messages[i].Error = "cancelled by operator"
					j.job.FailedCount++
					j.job.PendingCount--
				}
			}
			j.job.Status = model.JobStatusFailed
			j.job.UpdatedAt = time.Now()
		}
		store.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/bulk-send/{id}/retry", func(w http.ResponseWriter, req *http.Request) {
		store.mu.Lock()
		j, ok := store.jobs[chi.URLParam(req, "id")]
		if !ok {
			store.mu.Unlock()
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if !j.job.Terminal() || j.job.FailedCount == 0 {
			store.mu.Unlock()
			http.Error(w, "nothing to retry", http.StatusConflict)
			return
		}
		retryRecipients := []provider.Recipient{}
		for _, msg := range j.messages {
			if msg.Status == model.MessageStatusFailed {
				retryRecipients = append(retryRecipients, provider.Recipient{
					ID:             msg.RecipientID,
					DisplayName:    msg.DisplayName,
					ChannelAddress: msg.RecipientAddress,
				})
			}
		}
		channel := j.job.Channel
		store.mu.Unlock()

		nj := store.createJob(channel, retryRecipients, 50)

		store.mu.Lock()
		resp := store.jobResponse(nj)
		store.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	})

	log.Println("🚀 Provider simulator running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
