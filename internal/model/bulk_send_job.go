// internal/model/bulk_send_job.go
package model

import "time"

// Job statuses. The provider only ever reports queued, processing,
// completed or failed; cancelled is local-only and set when the operator
// aborts tracking. Transitions are monotonic: queued -> processing ->
// {completed|failed}, never backwards.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// BulkSendJob is the tracked unit of work for one batch dispatch.
// Invariant: SentCount + FailedCount + PendingCount == TotalRecipients
// at every observation.
type BulkSendJob struct {
	ID              string    `db:"id" json:"id"`
	Channel         string    `db:"channel" json:"channel"`
	Status          string    `db:"status" json:"status"`
	TotalRecipients int       `db:"total_recipients" json:"total_recipients"`
	SentCount       int       `db:"sent_count" json:"sent_count"`
	FailedCount     int       `db:"failed_count" json:"failed_count"`
	PendingCount    int       `db:"pending_count" json:"pending_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether no further status change is expected.
func (j *BulkSendJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// statusRank orders job statuses so that merges never move backwards.
func statusRank(status string) int {
	switch status {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return 2
	}
	return -1
}

// StatusAdvances reports whether moving from to next is a forward
// transition. Equal-rank terminal statuses never replace each other.
func StatusAdvances(from, next string) bool {
	return statusRank(next) > statusRank(from)
}
