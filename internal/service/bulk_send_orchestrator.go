// internal/service/bulk_send_orchestrator.go
package service

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/model"
	"github.com/unclebandit/bulksend-backend/internal/provider"
	"github.com/unclebandit/bulksend-backend/internal/queue"
	"github.com/unclebandit/bulksend-backend/internal/repository"
)

// Orchestrator states.
const (
	StateIdle       = "idle"
	StateValidating = "validating"
	StateSubmitting = "submitting"
	StateTracking   = "tracking"
	StateTerminal   = "terminal"
)

// DefaultBatchSize is the fan-out hint sent to the provider when the
// payload does not specify one. The fan-out itself is the provider's.
const DefaultBatchSize = 50

// DefaultEventTopic is the queue topic for lifecycle events.
const DefaultEventTopic = "bulk_send_events"

// ProviderClient is the delivery provider surface the orchestrator uses.
type ProviderClient interface {
	CreateJob(ctx context.Context, req provider.CreateJobRequest) (*provider.JobResponse, error)
	GetStatus(ctx context.Context, jobID string) (*provider.StatusResponse, error)
	Cancel(ctx context.Context, jobID string) error
	Retry(ctx context.Context, jobID string) (*provider.JobResponse, error)
	ListJobs(ctx context.Context, limit int) ([]provider.JobResponse, error)
}

// BulkSendPayload is what the caller assembles for one batch dispatch.
type BulkSendPayload struct {
	EventID     string            `json:"event_id"`
	Channel     string            `json:"channel"`
	Subject     string            `json:"subject"`
	Message     string            `json:"message"`
	HTML        string            `json:"html,omitempty"`
	MediaURL    string            `json:"media_url,omitempty"`
	TemplateID  string            `json:"template_id,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	BatchSize   int               `json:"batch_size,omitempty"`
	Recipients  []model.Recipient `json:"recipients"`
	// Overrides maps a recipient id to a custom message body. It is
	// merged with the default body only at submission time; the
	// Recipient entity itself is never mutated.
	Overrides map[string]string `json:"overrides,omitempty"`
}

// BulkSendOrchestrator owns the lifecycle of a single tracked job:
// validate, submit, track until terminal, with cancel and retry. One
// orchestrator tracks at most one active job; the job record is owned
// exclusively by its orchestrator instance and no two instances may
// track the same job id (single-owner invariant, no coordination is
// provided for anything else).
type BulkSendOrchestrator struct {
	Provider   ProviderClient
	JobRepo    repository.JobRepositoryInterface // optional job record store
	Events     queue.Publisher                   // optional lifecycle events
	EventTopic string

	PollInterval time.Duration
	PollTimeout  time.Duration

	mu       sync.Mutex
	state    string
	job      *model.BulkSendJob
	messages map[string]*model.MessageStatus // keyed by recipient address
	order    []string                        // address insertion order
	stopPoll context.CancelFunc
	done     chan struct{}
}

// NewBulkSendOrchestrator wires an orchestrator with defaults. JobRepo
// and Events may be nil; persistence and events are then skipped.
func NewBulkSendOrchestrator(p ProviderClient, repo repository.JobRepositoryInterface, events queue.Publisher) *BulkSendOrchestrator {
	return &BulkSendOrchestrator{
		Provider:     p,
		JobRepo:      repo,
		Events:       events,
		EventTopic:   DefaultEventTopic,
		PollInterval: 2 * time.Second,
		PollTimeout:  10 * time.Second,
		state:        StateIdle,
	}
}

// Submit validates the payload and dispatches it to the provider. On any
// validation failure it returns a typed error without touching the
// network and without changing the orchestrator's prior state. A second
// Submit while a job is still tracked is rejected; cancel first.
func (o *BulkSendOrchestrator) Submit(ctx context.Context, payload BulkSendPayload) (*model.BulkSendJob, error) {
	o.mu.Lock()
	switch o.state {
	case StateValidating, StateSubmitting, StateTracking:
		id := ""
		if o.job != nil {
			id = o.job.ID
		}
		o.mu.Unlock()
		return nil, appErrors.NewJobActive(id)
	}
	prev := o.state
	o.state = StateValidating
	o.mu.Unlock()

	fail := func(err error) (*model.BulkSendJob, error) {
		o.mu.Lock()
		o.state = prev
		o.mu.Unlock()
		return nil, err
	}

	if strings.TrimSpace(payload.EventID) == "" {
		return fail(appErrors.NewMissingField("event_id"))
	}
	if payload.Channel == "" {
		return fail(appErrors.NewMissingField("channel"))
	}
	if strings.TrimSpace(payload.Message) == "" {
		return fail(appErrors.NewEmptyMessage())
	}
	// Subject is only meaningful for email. The provider reference
	// payload wants it on every channel; see DESIGN.md.
	if payload.Channel == model.ChannelEmail && strings.TrimSpace(payload.Subject) == "" {
		return fail(appErrors.NewMissingField("subject"))
	}

	valid, err := FilterRecipients(payload.Channel, payload.Recipients)
	if err != nil {
		return fail(err)
	}

	o.mu.Lock()
	o.state = StateSubmitting
	o.mu.Unlock()

	req := buildCreateRequest(payload, valid)
	resp, err := o.Provider.CreateJob(ctx, req)
	if err != nil {
		// Provider errors during submit never create a local job record.
		return fail(err)
	}

	job := resp.Job()
	snapshot := *job
	o.startTracking(job, seedMessages(resp, req.Recipients))

	return &snapshot, nil
}

// Cancel aborts a non-terminal job. Polling stops immediately and the
// local record is marked cancelled regardless of the provider call's
// outcome; cancellation toward the provider is best-effort and sends
// already dispatched to the channel may still go out.
func (o *BulkSendOrchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	if o.job == nil || o.job.ID != jobID {
		o.mu.Unlock()
		return appErrors.NewJobNotFound(jobID)
	}
	if o.job.Terminal() {
		status := o.job.Status
		o.mu.Unlock()
		return appErrors.NewCancelNotAllowed(jobID, status)
	}
	if o.stopPoll != nil {
		o.stopPoll()
	}
	o.job.Status = model.JobStatusCancelled
	o.job.UpdatedAt = time.Now()
	o.state = StateTerminal
	snapshot := *o.job
	o.mu.Unlock()

	o.persistProgress(&snapshot, nil)
	o.publish(queue.EventJobCancelled, &snapshot)

	if err := o.Provider.Cancel(ctx, jobID); err != nil {
		log.Printf("provider cancel for job %s failed: %v", jobID, err)
		return err
	}
	return nil
}

// Retry asks the provider to re-attempt the failed subset of a terminal
// job. It returns a new job and starts tracking it; the old job record
// is never mutated and stays available as read-only history. Retry is
// rejected without a network call unless the job is terminal with
// failedCount > 0.
func (o *BulkSendOrchestrator) Retry(ctx context.Context, jobID string) (*model.BulkSendJob, error) {
	o.mu.Lock()
	if o.job == nil || o.job.ID != jobID {
		o.mu.Unlock()
		return nil, appErrors.NewJobNotFound(jobID)
	}
	if !o.job.Terminal() {
		o.mu.Unlock()
		return nil, appErrors.NewRetryNotAllowed(jobID, "job is still in flight")
	}
	if o.job.FailedCount == 0 {
		o.mu.Unlock()
		return nil, appErrors.NewRetryNotAllowed(jobID, "no failed recipients")
	}

	// Snapshot the failed subset before the slot is reused.
	failed := []model.MessageStatus{}
	for _, addr := range o.order {
		if msg := o.messages[addr]; msg != nil && msg.Failed() {
			failed = append(failed, *msg)
		}
	}
	o.mu.Unlock()

	resp, err := o.Provider.Retry(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job := resp.Job()
	messages := resp.Messages
	if len(messages) == 0 {
		messages = resetToPending(failed, job.CreatedAt)
	}
	snapshot := *job
	o.startTracking(job, messages)

	return &snapshot, nil
}

// History lists recent jobs. It reads the local record store when one is
// configured and falls back to the provider's read-only list endpoint.
func (o *BulkSendOrchestrator) History(ctx context.Context, limit int) ([]model.BulkSendJob, error) {
	if o.JobRepo != nil {
		return o.JobRepo.List(limit)
	}

	responses, err := o.Provider.ListJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	jobs := make([]model.BulkSendJob, len(responses))
	for i := range responses {
		jobs[i] = *responses[i].Job()
	}
	return jobs, nil
}

// State returns the orchestrator lifecycle state.
func (o *BulkSendOrchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

// Job returns a copy of the tracked job, or nil before the first submit.
func (o *BulkSendOrchestrator) Job() *model.BulkSendJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job == nil {
		return nil
	}
	snapshot := *o.job
	return &snapshot
}

// Messages returns copies of the per-recipient outcome records in
// submission order.
func (o *BulkSendOrchestrator) Messages() []model.MessageStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.MessageStatus, 0, len(o.order))
	for _, addr := range o.order {
		if msg := o.messages[addr]; msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

// Done returns a channel closed when the current tracking loop has
// stopped: terminal status observed or cancellation. Before any submit
// it returns an already-closed channel.
func (o *BulkSendOrchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return o.done
}

// startTracking installs the new job as the tracked one and launches the
// polling loop, unless the provider already reported it terminal.
func (o *BulkSendOrchestrator) startTracking(job *model.BulkSendJob, messages []model.MessageStatus) {
	byAddr := make(map[string]*model.MessageStatus, len(messages))
	order := make([]string, 0, len(messages))
	for i := range messages {
		msg := messages[i]
		if _, ok := byAddr[msg.RecipientAddress]; ok {
			continue
		}
		byAddr[msg.RecipientAddress] = &msg
		order = append(order, msg.RecipientAddress)
	}

	o.mu.Lock()
	o.job = job
	o.messages = byAddr
	o.order = order

	if job.Terminal() {
		o.state = StateTerminal
		o.stopPoll = nil
		done := make(chan struct{})
		close(done)
		o.done = done
		snapshot := *job
		o.mu.Unlock()

		o.persistNewJob(&snapshot, messages)
		o.publish(queue.EventJobSubmitted, &snapshot)
		o.publish(queue.EventJobTerminal, &snapshot)
		return
	}

	o.state = StateTracking
	pollCtx, cancel := context.WithCancel(context.Background())
	o.stopPoll = cancel
	done := make(chan struct{})
	o.done = done
	snapshot := *job
	o.mu.Unlock()

	o.persistNewJob(&snapshot, messages)
	o.publish(queue.EventJobSubmitted, &snapshot)

	go func() {
		defer close(done)
		poller := &StatusPoller{
			Fetcher:  o.Provider,
			Interval: o.PollInterval,
			Timeout:  o.PollTimeout,
		}
		poller.Run(pollCtx, snapshot.ID, o.applyStatus)
	}()
}

// applyStatus merges one poll response into the tracked job. The merge
// is monotonic: counts never decrease, the status never moves backwards,
// and a response for a stale or already-terminal job is ignored. The
// count invariant sent+failed+pending == total is re-established on
// every merge.
func (o *BulkSendOrchestrator) applyStatus(resp *provider.StatusResponse) {
	o.mu.Lock()
	if o.job == nil || o.job.ID != resp.ID || o.job.Terminal() {
		o.mu.Unlock()
		return
	}

	job := o.job
	now := time.Now()

	if job.TotalRecipients == 0 {
		job.TotalRecipients = resp.Progress.Total
	}
	if resp.Progress.Sent > job.SentCount {
		job.SentCount = resp.Progress.Sent
	}
	if resp.Progress.Failed > job.FailedCount {
		job.FailedCount = resp.Progress.Failed
	}
	job.PendingCount = job.TotalRecipients - job.SentCount - job.FailedCount
	if job.PendingCount < 0 {
		job.PendingCount = 0
	}
	if model.StatusAdvances(job.Status, resp.Status) {
		job.Status = resp.Status
	}
	job.UpdatedAt = now

	changed := []model.MessageStatus{}
	for _, re := range resp.Errors {
		msg, ok := o.messages[re.Recipient]
		if !ok || (msg.Failed() && msg.Error == re.Error) {
			continue
		}
		msg.Status = model.MessageStatusFailed
		msg.Error = re.Error
		msg.Timestamp = now
		changed = append(changed, *msg)
	}

	terminal := job.Terminal()
	if terminal {
		o.state = StateTerminal
		if job.Status == model.JobStatusCompleted {
			// Everyone the provider did not report failed went out.
			for _, addr := range o.order {
				msg := o.messages[addr]
				if msg != nil && msg.Status == model.MessageStatusPending {
					msg.Status = model.MessageStatusSent
					msg.Timestamp = now
					changed = append(changed, *msg)
				}
			}
		}
	}
	snapshot := *job
	o.mu.Unlock()

	o.persistProgress(&snapshot, changed)
	if terminal {
		o.publish(queue.EventJobTerminal, &snapshot)
	}
}

func (o *BulkSendOrchestrator) persistNewJob(job *model.BulkSendJob, messages []model.MessageStatus) {
	if o.JobRepo == nil {
		return
	}
	if err := o.JobRepo.Create(job); err != nil {
		log.Println("⚠️ failed to store job record:", err)
		return
	}
	for i := range messages {
		if err := o.JobRepo.UpsertMessageStatus(job.ID, &messages[i]); err != nil {
			log.Println("⚠️ failed to store message status:", err)
			return
		}
	}
}

func (o *BulkSendOrchestrator) persistProgress(job *model.BulkSendJob, changed []model.MessageStatus) {
	if o.JobRepo == nil {
		return
	}
	if err := o.JobRepo.UpdateProgress(job); err != nil {
		log.Println("⚠️ failed to update job record:", err)
	}
	for i := range changed {
		if err := o.JobRepo.UpsertMessageStatus(job.ID, &changed[i]); err != nil {
			log.Println("⚠️ failed to update message status:", err)
			return
		}
	}
}

func (o *BulkSendOrchestrator) publish(eventType string, job *model.BulkSendJob) {
	if o.Events == nil {
		return
	}
	topic := o.EventTopic
	if topic == "" {
		topic = DefaultEventTopic
	}
	event := queue.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		JobID:      job.ID,
		Channel:    job.Channel,
		Status:     job.Status,
		Sent:       job.SentCount,
		Failed:     job.FailedCount,
		Pending:    job.PendingCount,
		OccurredAt: time.Now(),
	}
	if err := o.Events.Publish(topic, event); err != nil {
		log.Println("⚠️ failed to publish lifecycle event:", err)
	}
}

// buildCreateRequest converts the payload and the validated recipient
// subset into the provider wire shape, merging per-recipient overrides.
func buildCreateRequest(payload BulkSendPayload, recipients []model.Recipient) provider.CreateJobRequest {
	wire := make([]provider.Recipient, 0, len(recipients))
	for _, r := range recipients {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		wr := provider.Recipient{
			ID:             id,
			DisplayName:    r.DisplayName,
			ChannelAddress: r.ChannelAddress,
			Variables:      r.Variables,
		}
		if override, ok := payload.Overrides[r.ID]; ok && strings.TrimSpace(override) != "" {
			wr.Message = override
		}
		wire = append(wire, wr)
	}

	batchSize := payload.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return provider.CreateJobRequest{
		EventID:     payload.EventID,
		Channel:     payload.Channel,
		Subject:     payload.Subject,
		Message:     payload.Message,
		HTML:        payload.HTML,
		MediaURL:    payload.MediaURL,
		Recipients:  wire,
		TemplateID:  payload.TemplateID,
		ScheduledAt: payload.ScheduledAt,
		BatchSize:   batchSize,
	}
}

// seedMessages builds the initial per-recipient records: the provider's
// own message list when it returns one, otherwise one pending entry per
// submitted recipient.
func seedMessages(resp *provider.JobResponse, recipients []provider.Recipient) []model.MessageStatus {
	if len(resp.Messages) > 0 {
		return resp.Messages
	}

	out := make([]model.MessageStatus, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, model.MessageStatus{
			ID:               uuid.NewString(),
			RecipientID:      r.ID,
			RecipientAddress: r.ChannelAddress,
			DisplayName:      r.DisplayName,
			Status:           model.MessageStatusPending,
			Timestamp:        resp.CreatedAt,
		})
	}
	return out
}

// resetToPending rebuilds the failed subset as fresh pending records for
// a retry job.
func resetToPending(failed []model.MessageStatus, createdAt time.Time) []model.MessageStatus {
	out := make([]model.MessageStatus, 0, len(failed))
	for _, msg := range failed {
		out = append(out, model.MessageStatus{
			ID:               uuid.NewString(),
			RecipientID:      msg.RecipientID,
			RecipientAddress: msg.RecipientAddress,
			DisplayName:      msg.DisplayName,
			Status:           model.MessageStatusPending,
			Timestamp:        createdAt,
		})
	}
	return out
}
