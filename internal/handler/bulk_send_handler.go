// internal/handler/bulk_send_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/bulksend-backend/internal/service"
)

// BulkSendHandler serves the read-only side: job snapshots with their
// per-recipient outcomes, and the recent-jobs history.
type BulkSendHandler struct {
	Orchestrator *service.BulkSendOrchestrator
}

// GetJobHandler returns the latest known state of the tracked job plus
// its message list.
func (h *BulkSendHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job := h.Orchestrator.Job()
	if job == nil || job.ID != jobID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job":      job,
		"state":    h.Orchestrator.State(),
		"messages": h.Orchestrator.Messages(),
	})
}

// ListJobsHandler returns recent jobs, newest first.
func (h *BulkSendHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.Orchestrator.History(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to fetch jobs: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": jobs,
	})
}
