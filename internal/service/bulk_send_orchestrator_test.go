package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/model"
	"github.com/unclebandit/bulksend-backend/internal/provider"
	"github.com/unclebandit/bulksend-backend/internal/service"
)

// mockProvider is a hand-rolled delivery provider double. The func
// fields drive per-test behavior; nil funcs use simple defaults.
type mockProvider struct {
	mu          sync.Mutex
	createCalls int
	statusCalls int
	cancelCalls int
	retryCalls  int

	createFunc func(req provider.CreateJobRequest) (*provider.JobResponse, error)
	statusFunc func(call int, jobID string) (*provider.StatusResponse, error)
	retryFunc  func(jobID string) (*provider.JobResponse, error)
	cancelErr  error
}

func (m *mockProvider) CreateJob(ctx context.Context, req provider.CreateJobRequest) (*provider.JobResponse, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createFunc != nil {
		return m.createFunc(req)
	}
	return &provider.JobResponse{
		ID:              "job-1",
		Channel:         req.Channel,
		TotalRecipients: len(req.Recipients),
		PendingCount:    len(req.Recipients),
		Status:          model.JobStatusQueued,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}, nil
}

func (m *mockProvider) GetStatus(ctx context.Context, jobID string) (*provider.StatusResponse, error) {
	m.mu.Lock()
	call := m.statusCalls
	m.statusCalls++
	m.mu.Unlock()
	if m.statusFunc != nil {
		return m.statusFunc(call, jobID)
	}
	return &provider.StatusResponse{ID: jobID, Status: model.JobStatusProcessing}, nil
}

func (m *mockProvider) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	m.cancelCalls++
	m.mu.Unlock()
	return m.cancelErr
}

func (m *mockProvider) Retry(ctx context.Context, jobID string) (*provider.JobResponse, error) {
	m.mu.Lock()
	m.retryCalls++
	m.mu.Unlock()
	if m.retryFunc != nil {
		return m.retryFunc(jobID)
	}
	return nil, errors.New("retry not configured")
}

func (m *mockProvider) ListJobs(ctx context.Context, limit int) ([]provider.JobResponse, error) {
	return []provider.JobResponse{}, nil
}

func (m *mockProvider) counts() (create, status, cancel, retry int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.statusCalls, m.cancelCalls, m.retryCalls
}

func phoneRecipients(n int) []model.Recipient {
	recipients := make([]model.Recipient, n)
	for i := range recipients {
		recipients[i] = model.Recipient{
			ID:             fmt.Sprintf("r%d", i),
			DisplayName:    fmt.Sprintf("Recipient %d", i),
			ChannelAddress: fmt.Sprintf("2547%08d", i),
			Variables:      map[string]string{"name": fmt.Sprintf("Recipient %d", i)},
		}
	}
	return recipients
}

func smsPayload(n int) service.BulkSendPayload {
	return service.BulkSendPayload{
		EventID:    "evt-1",
		Channel:    model.ChannelSMS,
		Message:    "Hi {{name}}",
		Recipients: phoneRecipients(n),
	}
}

func newOrchestrator(mock *mockProvider) *service.BulkSendOrchestrator {
	o := service.NewBulkSendOrchestrator(mock, nil, nil)
	o.PollInterval = 5 * time.Millisecond
	o.PollTimeout = 100 * time.Millisecond
	return o
}

func waitDone(t *testing.T, o *service.BulkSendOrchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tracking did not stop in time")
	}
}

func TestSubmitRejectsOversizedBatchWithoutNetworkCall(t *testing.T) {
	mock := &mockProvider{}
	o := newOrchestrator(mock)

	_, err := o.Submit(context.Background(), smsPayload(appErrors.MaxRecipients+1))

	var tooMany *appErrors.ErrTooManyRecipients
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected ErrTooManyRecipients, got %v", err)
	}
	if create, _, _, _ := mock.counts(); create != 0 {
		t.Errorf("expected no provider call, got %d", create)
	}
	if o.State() != service.StateIdle {
		t.Errorf("expected idle state after rejection, got %s", o.State())
	}
}

func TestSubmitRequiredContentFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *service.BulkSendPayload)
		check  func(err error) bool
	}{
		{"missing event_id", func(p *service.BulkSendPayload) { p.EventID = "" }, func(err error) bool {
			var e *appErrors.ErrMissingField
			return errors.As(err, &e) && e.Field == "event_id"
		}},
		{"missing channel", func(p *service.BulkSendPayload) { p.Channel = "" }, func(err error) bool {
			var e *appErrors.ErrMissingField
			return errors.As(err, &e) && e.Field == "channel"
		}},
		{"empty message", func(p *service.BulkSendPayload) { p.Message = "   " }, func(err error) bool {
			var e *appErrors.ErrEmptyMessage
			return errors.As(err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockProvider{}
			o := newOrchestrator(mock)

			payload := smsPayload(2)
			tt.mutate(&payload)

			_, err := o.Submit(context.Background(), payload)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if create, _, _, _ := mock.counts(); create != 0 {
				t.Errorf("expected no provider call, got %d", create)
			}
		})
	}
}

func TestSubmitSubjectRequiredForEmailOnly(t *testing.T) {
	mock := &mockProvider{}
	o := newOrchestrator(mock)

	payload := service.BulkSendPayload{
		EventID: "evt-1",
		Channel: model.ChannelEmail,
		Message: "hello",
		Recipients: []model.Recipient{
			{ID: "r1", ChannelAddress: "a@b.com"},
		},
	}

	_, err := o.Submit(context.Background(), payload)
	var missing *appErrors.ErrMissingField
	if !errors.As(err, &missing) || missing.Field != "subject" {
		t.Fatalf("expected missing subject, got %v", err)
	}
	if create, _, _, _ := mock.counts(); create != 0 {
		t.Errorf("expected no provider call, got %d", create)
	}

	// SMS needs no subject; let the job complete instantly so nothing
	// keeps polling after the test.
	mock.createFunc = func(req provider.CreateJobRequest) (*provider.JobResponse, error) {
		return &provider.JobResponse{
			ID:              "job-sms",
			Channel:         req.Channel,
			TotalRecipients: len(req.Recipients),
			SentCount:       len(req.Recipients),
			Status:          model.JobStatusCompleted,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}, nil
	}
	if _, err := o.Submit(context.Background(), smsPayload(2)); err != nil {
		t.Fatalf("sms submit without subject failed: %v", err)
	}
}

func TestSubmitRejectsSecondWhileTracking(t *testing.T) {
	mock := &mockProvider{}
	o := newOrchestrator(mock)

	job, err := o.Submit(context.Background(), smsPayload(3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = o.Submit(context.Background(), smsPayload(3))
	var active *appErrors.ErrJobActive
	if !errors.As(err, &active) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
	if active.JobID != job.ID {
		t.Errorf("expected active job %s, got %s", job.ID, active.JobID)
	}
	if create, _, _, _ := mock.counts(); create != 1 {
		t.Errorf("expected a single provider call, got %d", create)
	}

	o.Cancel(context.Background(), job.ID)
	waitDone(t, o)
}

func TestSubmitProviderErrorLeavesNoJobRecord(t *testing.T) {
	mock := &mockProvider{
		createFunc: func(req provider.CreateJobRequest) (*provider.JobResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	o := newOrchestrator(mock)

	_, err := o.Submit(context.Background(), smsPayload(2))
	if err == nil {
		t.Fatal("expected submit to surface provider error")
	}
	if o.Job() != nil {
		t.Error("provider error must not create a local job record")
	}
	if o.State() != service.StateIdle {
		t.Errorf("expected idle, got %s", o.State())
	}
}

func TestTrackingUntilCompleted(t *testing.T) {
	// Processing first, then terminal: the poller must observe both and
	// stop for good after the second response.
	failedAddr := phoneRecipients(10)[4].ChannelAddress
	mock := &mockProvider{
		statusFunc: func(call int, jobID string) (*provider.StatusResponse, error) {
			if call == 0 {
				return &provider.StatusResponse{
					ID:       jobID,
					Status:   model.JobStatusProcessing,
					Progress: provider.Progress{Total: 10, Sent: 3, Failed: 1, Pending: 6},
					Errors:   []provider.RecipientError{{Recipient: failedAddr, Error: "number unreachable"}},
				}, nil
			}
			return &provider.StatusResponse{
				ID:       jobID,
				Status:   model.JobStatusCompleted,
				Progress: provider.Progress{Total: 10, Sent: 9, Failed: 1, Pending: 0},
				Errors:   []provider.RecipientError{{Recipient: failedAddr, Error: "number unreachable"}},
			}, nil
		},
	}
	o := newOrchestrator(mock)

	if _, err := o.Submit(context.Background(), smsPayload(10)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitDone(t, o)

	job := o.Job()
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.SentCount != 9 || job.FailedCount != 1 || job.PendingCount != 0 {
		t.Errorf("unexpected counts: %+v", job)
	}
	if job.SentCount+job.FailedCount+job.PendingCount != job.TotalRecipients {
		t.Errorf("count invariant violated: %+v", job)
	}

	// Idempotent termination: no further requests once terminal.
	_, before, _, _ := mock.counts()
	time.Sleep(100 * time.Millisecond)
	_, after, _, _ := mock.counts()
	if after != before {
		t.Errorf("poller issued %d requests after terminal state", after-before)
	}

	// Per-recipient detail survives aggregation.
	var failed, sent int
	for _, msg := range o.Messages() {
		switch {
		case msg.Failed():
			failed++
			if msg.RecipientAddress != failedAddr {
				t.Errorf("wrong recipient marked failed: %s", msg.RecipientAddress)
			}
			if msg.Error != "number unreachable" {
				t.Errorf("expected delivery error to be recorded, got %q", msg.Error)
			}
		case msg.Delivered():
			sent++
		default:
			t.Errorf("recipient %s left in status %s", msg.RecipientAddress, msg.Status)
		}
	}
	if failed != 1 || sent != 9 {
		t.Errorf("expected 1 failed / 9 sent, got %d / %d", failed, sent)
	}
}

func TestTrackingMergesMonotonically(t *testing.T) {
	// A regressed response between two good ones must not roll counts back.
	mock := &mockProvider{
		statusFunc: func(call int, jobID string) (*provider.StatusResponse, error) {
			switch call {
			case 0:
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusProcessing,
					Progress: provider.Progress{Total: 5, Sent: 4, Failed: 0, Pending: 1}}, nil
			case 1:
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusProcessing,
					Progress: provider.Progress{Total: 5, Sent: 2, Failed: 0, Pending: 3}}, nil
			default:
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusCompleted,
					Progress: provider.Progress{Total: 5, Sent: 5, Failed: 0, Pending: 0}}, nil
			}
		},
	}
	o := newOrchestrator(mock)

	if _, err := o.Submit(context.Background(), smsPayload(5)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Observe that counts never regressed while in flight.
	deadline := time.After(2 * time.Second)
	lastSent := 0
	for {
		job := o.Job()
		if job.SentCount < lastSent {
			t.Fatalf("sent count regressed from %d to %d", lastSent, job.SentCount)
		}
		lastSent = job.SentCount
		if job.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never became terminal")
		case <-time.After(time.Millisecond):
		}
	}

	job := o.Job()
	if job.SentCount != 5 || job.PendingCount != 0 {
		t.Errorf("unexpected final counts: %+v", job)
	}
}

func TestTrackingTransportErrorsDoNotDestroyProgress(t *testing.T) {
	mock := &mockProvider{
		statusFunc: func(call int, jobID string) (*provider.StatusResponse, error) {
			switch call {
			case 0:
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusProcessing,
					Progress: provider.Progress{Total: 3, Sent: 2, Failed: 0, Pending: 1}}, nil
			case 1, 2:
				return nil, errors.New("gateway timeout")
			default:
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusCompleted,
					Progress: provider.Progress{Total: 3, Sent: 3, Failed: 0, Pending: 0}}, nil
			}
		},
	}
	o := newOrchestrator(mock)

	if _, err := o.Submit(context.Background(), smsPayload(3)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitDone(t, o)

	job := o.Job()
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("polling should have survived transport errors, final status %s", job.Status)
	}
}

func TestRetryRejectedWithoutFailures(t *testing.T) {
	mock := &mockProvider{
		createFunc: func(req provider.CreateJobRequest) (*provider.JobResponse, error) {
			return &provider.JobResponse{
				ID:              "job-1",
				Channel:         req.Channel,
				TotalRecipients: len(req.Recipients),
				SentCount:       len(req.Recipients),
				Status:          model.JobStatusCompleted,
				CreatedAt:       time.Now(),
			}, nil
		},
	}
	o := newOrchestrator(mock)

	if _, err := o.Submit(context.Background(), smsPayload(2)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitDone(t, o)

	_, err := o.Retry(context.Background(), "job-1")
	var notAllowed *appErrors.ErrRetryNotAllowed
	if !errors.As(err, &notAllowed) {
		t.Fatalf("expected ErrRetryNotAllowed, got %v", err)
	}
	if _, _, _, retry := mock.counts(); retry != 0 {
		t.Errorf("rejected retry must not call the provider, got %d calls", retry)
	}
}

func TestRetryRejectedWhileInFlight(t *testing.T) {
	mock := &mockProvider{}
	o := newOrchestrator(mock)

	job, err := o.Submit(context.Background(), smsPayload(2))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = o.Retry(context.Background(), job.ID)
	var notAllowed *appErrors.ErrRetryNotAllowed
	if !errors.As(err, &notAllowed) {
		t.Fatalf("expected ErrRetryNotAllowed, got %v", err)
	}

	o.Cancel(context.Background(), job.ID)
	waitDone(t, o)
}

func TestRetrySpawnsNewJobForFailedSubset(t *testing.T) {
	failedAddr := phoneRecipients(4)[1].ChannelAddress
	mock := &mockProvider{
		statusFunc: func(call int, jobID string) (*provider.StatusResponse, error) {
			if jobID == "job-2" {
				return &provider.StatusResponse{ID: jobID, Status: model.JobStatusCompleted,
					Progress: provider.Progress{Total: 1, Sent: 1, Failed: 0, Pending: 0}}, nil
			}
			return &provider.StatusResponse{
				ID:       jobID,
				Status:   model.JobStatusCompleted,
				Progress: provider.Progress{Total: 4, Sent: 3, Failed: 1, Pending: 0},
				Errors:   []provider.RecipientError{{Recipient: failedAddr, Error: "bounced"}},
			}, nil
		},
		retryFunc: func(jobID string) (*provider.JobResponse, error) {
			return &provider.JobResponse{
				ID:              "job-2",
				Channel:         model.ChannelSMS,
				TotalRecipients: 1,
				PendingCount:    1,
				Status:          model.JobStatusQueued,
				CreatedAt:       time.Now(),
			}, nil
		},
	}
	o := newOrchestrator(mock)

	first, err := o.Submit(context.Background(), smsPayload(4))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitDone(t, o)

	retried, err := o.Retry(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.ID == first.ID {
		t.Fatal("retry must return a new job, not mutate the old one")
	}
	if retried.ID != "job-2" {
		t.Fatalf("expected job-2, got %s", retried.ID)
	}
	waitDone(t, o)

	// The retry job only covers the previously failed recipient.
	msgs := o.Messages()
	if len(msgs) != 1 || msgs[0].RecipientAddress != failedAddr {
		t.Errorf("expected retry scoped to %s, got %+v", failedAddr, msgs)
	}
}

func TestCancelStopsPollingEvenWhenProviderCallFails(t *testing.T) {
	mock := &mockProvider{
		cancelErr: errors.New("provider unavailable"),
	}
	o := newOrchestrator(mock)

	job, err := o.Submit(context.Background(), smsPayload(3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Let at least one processing poll land first.
	time.Sleep(20 * time.Millisecond)

	if err := o.Cancel(context.Background(), job.ID); err == nil {
		t.Fatal("expected the provider cancel error to surface")
	}
	waitDone(t, o)

	local := o.Job()
	if local.Status != model.JobStatusCancelled {
		t.Fatalf("expected local cancelled status, got %s", local.Status)
	}

	_, before, _, _ := mock.counts()
	time.Sleep(100 * time.Millisecond)
	_, after, _, _ := mock.counts()
	if after != before {
		t.Errorf("poller issued %d requests after cancellation", after-before)
	}
}

func TestCancelRejectedOnTerminalJob(t *testing.T) {
	mock := &mockProvider{
		statusFunc: func(call int, jobID string) (*provider.StatusResponse, error) {
			return &provider.StatusResponse{ID: jobID, Status: model.JobStatusCompleted,
				Progress: provider.Progress{Total: 2, Sent: 2, Failed: 0, Pending: 0}}, nil
		},
	}
	o := newOrchestrator(mock)

	job, err := o.Submit(context.Background(), smsPayload(2))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitDone(t, o)

	err = o.Cancel(context.Background(), job.ID)
	var notAllowed *appErrors.ErrCancelNotAllowed
	if !errors.As(err, &notAllowed) {
		t.Fatalf("expected ErrCancelNotAllowed, got %v", err)
	}
	if _, _, cancel, _ := mock.counts(); cancel != 0 {
		t.Errorf("rejected cancel must not call the provider, got %d calls", cancel)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	o := newOrchestrator(&mockProvider{})

	err := o.Cancel(context.Background(), "nope")
	var notFound *appErrors.ErrJobNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
