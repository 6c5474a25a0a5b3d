// internal/provider/types.go
package provider

import (
	"time"

	"github.com/unclebandit/bulksend-backend/internal/model"
)

// Recipient is the wire shape sent to the delivery provider. Message is
// the per-recipient override, merged with the default body at submission
// time; the domain Recipient entity itself is never mutated.
type Recipient struct {
	ID             string            `json:"id"`
	DisplayName    string            `json:"display_name"`
	ChannelAddress string            `json:"channel_address"`
	Variables      map[string]string `json:"variables,omitempty"`
	Message        string            `json:"message,omitempty"`
}

// CreateJobRequest is the POST /bulk-send body.
type CreateJobRequest struct {
	EventID     string      `json:"event_id"`
	Channel     string      `json:"channel"`
	Subject     string      `json:"subject"`
	Message     string      `json:"message"`
	HTML        string      `json:"html,omitempty"`
	MediaURL    string      `json:"media_url,omitempty"`
	Recipients  []Recipient `json:"recipients"`
	TemplateID  string      `json:"template_id,omitempty"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
	BatchSize   int         `json:"batch_size,omitempty"`
}

// JobResponse is the create-job and retry response shape.
type JobResponse struct {
	ID              string                `json:"id"`
	Channel         string                `json:"channel"`
	TotalRecipients int                   `json:"total_recipients"`
	SentCount       int                   `json:"sent_count"`
	FailedCount     int                   `json:"failed_count"`
	PendingCount    int                   `json:"pending_count"`
	Status          string                `json:"status"`
	Messages        []model.MessageStatus `json:"messages,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Progress carries the aggregate counts inside a status response.
type Progress struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// RecipientError is one per-recipient delivery failure, keyed by address.
type RecipientError struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// StatusResponse is the GET /bulk-send/{id}/status body.
type StatusResponse struct {
	ID       string           `json:"id"`
	Status   string           `json:"status"`
	Progress Progress         `json:"progress"`
	Errors   []RecipientError `json:"errors,omitempty"`
}

// Job converts a provider job response into the local record.
func (r *JobResponse) Job() *model.BulkSendJob {
	return &model.BulkSendJob{
		ID:              r.ID,
		Channel:         r.Channel,
		Status:          r.Status,
		TotalRecipients: r.TotalRecipients,
		SentCount:       r.SentCount,
		FailedCount:     r.FailedCount,
		PendingCount:    r.PendingCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
