// internal/model/message_status.go
package model

import "time"

// Per-recipient delivery outcomes. delivered and sent are both
// terminal-success variants; failed is terminal-failure; pending is the
// only non-terminal status.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusFailed    = "failed"
)

// MessageStatus is the per-recipient delivery outcome record,
// independent of the job's aggregate status.
type MessageStatus struct {
	ID                string    `db:"id" json:"id"`
	RecipientID       string    `db:"recipient_id" json:"recipient_id"`
	RecipientAddress  string    `db:"recipient_address" json:"recipient_address"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	Status            string    `db:"status" json:"status"` // pending, sent, delivered, failed
	Error             string    `db:"last_error" json:"error,omitempty"`
	Timestamp         time.Time `db:"updated_at" json:"timestamp"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
}

// Delivered reports terminal success for the recipient.
func (m *MessageStatus) Delivered() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusDelivered
}

// Failed reports terminal failure for the recipient.
func (m *MessageStatus) Failed() bool {
	return m.Status == MessageStatusFailed
}
