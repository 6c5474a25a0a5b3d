// internal/service/status_poller.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/unclebandit/bulksend-backend/internal/model"
	"github.com/unclebandit/bulksend-backend/internal/provider"
)

// StatusFetcher is the single provider call the poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (*provider.StatusResponse, error)
}

// StatusPoller queries a job's status on a fixed cadence until the
// provider reports a terminal state. Ticks are sequential: the next
// request is only scheduled once the previous response has been handled,
// so at most one status request is ever in flight per job. Transport
// errors never end the loop; they are logged and the next tick backs off
// exponentially until a response comes through again.
type StatusPoller struct {
	Fetcher    StatusFetcher
	Interval   time.Duration // default 2s
	Timeout    time.Duration // per-request bound, default 10s
	MaxBackoff time.Duration // backoff cap after repeated failures, default 30s
}

// Run blocks until the job reaches completed or failed, or ctx is
// cancelled. Every successful response is handed to onUpdate before the
// stop condition is checked, so the terminal response is always observed.
func (p *StatusPoller) Run(ctx context.Context, jobID string, onUpdate func(*provider.StatusResponse)) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	failures := 0
	for {
		delay := interval
		for i := 0; i < failures; i++ {
			delay *= 2
			if delay >= maxBackoff {
				delay = maxBackoff
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := p.Fetcher.GetStatus(reqCtx, jobID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			log.Printf("status poll for job %s failed (%d in a row): %v", jobID, failures, err)
			continue
		}
		failures = 0

		onUpdate(resp)

		if resp.Status == model.JobStatusCompleted || resp.Status == model.JobStatusFailed {
			return
		}
	}
}
