// internal/controller/bulk_send_controller.go
package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/service"
)

type BulkSendController struct {
	Orchestrator *service.BulkSendOrchestrator
}

// writeError maps the typed error taxonomy onto HTTP statuses. Local
// validation errors are the caller's fault; lifecycle conflicts are 409;
// everything else (provider/transport) bubbles up as 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch err.(type) {
	case *appErrors.ErrTooManyRecipients, *appErrors.ErrNoRecipients, *appErrors.ErrNoValidRecipients,
		*appErrors.ErrEmptyMessage, *appErrors.ErrMissingField:
		status = http.StatusBadRequest
	case *appErrors.ErrJobNotFound:
		status = http.StatusNotFound
	case *appErrors.ErrJobActive, *appErrors.ErrRetryNotAllowed, *appErrors.ErrCancelNotAllowed:
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// SubmitBulkSend validates and dispatches a batch, then starts tracking.
func (c *BulkSendController) SubmitBulkSend(w http.ResponseWriter, r *http.Request) {
	var payload service.BulkSendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.Orchestrator.Submit(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

// CancelBulkSend stops tracking and requests best-effort cancellation.
func (c *BulkSendController) CancelBulkSend(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := c.Orchestrator.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id":    jobID,
		"cancelled": true,
	})
}

// RetryBulkSend starts a fresh job scoped to the failed recipients.
func (c *BulkSendController) RetryBulkSend(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := c.Orchestrator.Retry(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

// PreviewBulkSend renders each recipient's message without dispatching.
func (c *BulkSendController) PreviewBulkSend(w http.ResponseWriter, r *http.Request) {
	var payload service.BulkSendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	previews, err := service.PreviewMessages(payload)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"previews":  previews,
		"variables": service.ExtractVariables(payload.Message),
	})
}
