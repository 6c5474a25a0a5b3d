// internal/errors/errors.go
package appErrors

import "fmt"

// MaxRecipients caps a single batch. Exceeding it fails the whole
// submission before any network call; there is no partial submission.
const MaxRecipients = 500

// ErrTooManyRecipients is a sentinel error
type ErrTooManyRecipients struct {
	Count int
}

func (e *ErrTooManyRecipients) Error() string {
	return fmt.Sprintf("too many recipients: got %d, maximum is %d per batch", e.Count, MaxRecipients)
}

// Helper constructor
func NewTooManyRecipients(count int) error {
	return &ErrTooManyRecipients{Count: count}
}

// ErrNoRecipients rejects an empty recipient list.
type ErrNoRecipients struct{}

func (e *ErrNoRecipients) Error() string {
	return "recipient list cannot be empty"
}

func NewNoRecipients() error {
	return &ErrNoRecipients{}
}

// ErrNoValidRecipients means channel filtering left nothing to send to.
type ErrNoValidRecipients struct {
	Channel string
}

func (e *ErrNoValidRecipients) Error() string {
	return fmt.Sprintf("no valid recipients for channel %s", e.Channel)
}

func NewNoValidRecipients(channel string) error {
	return &ErrNoValidRecipients{Channel: channel}
}

// ErrEmptyMessage rejects a submission with an empty message body.
type ErrEmptyMessage struct{}

func (e *ErrEmptyMessage) Error() string {
	return "message body cannot be empty"
}

func NewEmptyMessage() error {
	return &ErrEmptyMessage{}
}

// ErrMissingField rejects a submission missing a required content field.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func NewMissingField(field string) error {
	return &ErrMissingField{Field: field}
}

// ErrJobNotFound is returned when a job id does not match any tracked job.
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("bulk send job %s not found", e.JobID)
}

func NewJobNotFound(id string) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrJobActive rejects a second submission while a job is still tracked.
type ErrJobActive struct {
	JobID string
}

func (e *ErrJobActive) Error() string {
	return fmt.Sprintf("job %s is still being tracked; cancel it before submitting another batch", e.JobID)
}

func NewJobActive(id string) error {
	return &ErrJobActive{JobID: id}
}

// ErrRetryNotAllowed rejects a retry that does not meet the preconditions.
type ErrRetryNotAllowed struct {
	JobID  string
	Reason string
}

func (e *ErrRetryNotAllowed) Error() string {
	return fmt.Sprintf("cannot retry job %s: %s", e.JobID, e.Reason)
}

func NewRetryNotAllowed(id, reason string) error {
	return &ErrRetryNotAllowed{JobID: id, Reason: reason}
}

// ErrCancelNotAllowed rejects cancellation of a job already terminal.
type ErrCancelNotAllowed struct {
	JobID  string
	Status string
}

func (e *ErrCancelNotAllowed) Error() string {
	return fmt.Sprintf("cannot cancel job %s in status %s", e.JobID, e.Status)
}

func NewCancelNotAllowed(id, status string) error {
	return &ErrCancelNotAllowed{JobID: id, Status: status}
}
