// internal/service/recipient_validator.go
package service

import (
	"strings"

	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/model"
)

// FilterRecipients applies the global batch constraints and then the
// per-channel address rule. It returns the valid subset, or a typed error
// when the batch as a whole cannot be submitted: an empty list, a list
// over the cap, or a list with zero valid entries after filtering. The
// second address occurrence within a batch is dropped; the first wins.
func FilterRecipients(channel string, recipients []model.Recipient) ([]model.Recipient, error) {
	if len(recipients) == 0 {
		return nil, appErrors.NewNoRecipients()
	}
	if len(recipients) > appErrors.MaxRecipients {
		return nil, appErrors.NewTooManyRecipients(len(recipients))
	}

	valid := []model.Recipient{}
	seen := map[string]bool{}
	for _, r := range recipients {
		if !ValidAddress(channel, r.ChannelAddress) {
			continue
		}
		if seen[r.ChannelAddress] {
			continue
		}
		seen[r.ChannelAddress] = true
		valid = append(valid, r)
	}

	if len(valid) == 0 {
		return nil, appErrors.NewNoValidRecipients(channel)
	}
	return valid, nil
}

// ValidAddress checks one address against the channel's rule.
func ValidAddress(channel, address string) bool {
	switch channel {
	case model.ChannelEmail:
		return validEmailAddress(address)
	case model.ChannelSMS, model.ChannelMMS, model.ChannelWhatsApp:
		return len(NormalizePhone(address)) >= 10
	}
	return false
}

// validEmailAddress checks the simple local@domain.tld shape: non-empty
// local part, a single @, and a domain containing an interior dot.
func validEmailAddress(address string) bool {
	at := strings.Index(address, "@")
	if at < 1 || at != strings.LastIndex(address, "@") {
		return false
	}
	domain := address[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// NormalizePhone strips every non-digit character from a phone address.
func NormalizePhone(address string) string {
	var b strings.Builder
	for _, c := range address {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
