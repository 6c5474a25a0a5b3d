// internal/service/preview.go
package service

import (
	"strings"
)

// RecipientPreview is one rendered message as the provider would send it.
type RecipientPreview struct {
	RecipientID      string   `json:"recipient_id"`
	ChannelAddress   string   `json:"channel_address"`
	RenderedMessage  string   `json:"rendered_message"`
	MissingVariables []string `json:"missing_variables,omitempty"`
}

// PreviewMessages runs validation and substitution over the payload the
// same way a submission would, without calling the provider. It lets the
// operator see each recipient's final message, including any referenced
// variables the recipient does not cover (those substitute to empty).
func PreviewMessages(payload BulkSendPayload) ([]RecipientPreview, error) {
	valid, err := FilterRecipients(payload.Channel, payload.Recipients)
	if err != nil {
		return nil, err
	}

	previews := make([]RecipientPreview, 0, len(valid))
	for _, r := range valid {
		body := payload.Message
		if override, ok := payload.Overrides[r.ID]; ok && strings.TrimSpace(override) != "" {
			body = override
		}
		preview := RecipientPreview{
			RecipientID:     r.ID,
			ChannelAddress:  r.ChannelAddress,
			RenderedMessage: Substitute(body, r.Variables),
		}
		if missing := MissingVariables(body, r.Variables); len(missing) > 0 {
			preview.MissingVariables = missing
		}
		previews = append(previews, preview)
	}
	return previews, nil
}
