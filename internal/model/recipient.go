// internal/model/recipient.go
package model

// Delivery channels. The channel decides which address rule applies
// during validation and which provider endpoint handles the batch.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelMMS      = "mms"
	ChannelWhatsApp = "whatsapp"
)

// Recipient is one addressable target in a batch: an email address or a
// phone number plus the per-recipient template variables. Addresses must
// be unique within a batch; validity is derived, never stored.
type Recipient struct {
	ID             string            `json:"id"`
	DisplayName    string            `json:"display_name"`
	ChannelAddress string            `json:"channel_address"`
	Variables      map[string]string `json:"variables,omitempty"`
}
