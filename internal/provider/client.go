// internal/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the HTTP client for the delivery provider collaborator. The
// provider owns the actual fan-out; this client only submits batches and
// observes them.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// Config holds the provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each individual request. Zero means 30s.
	Timeout time.Duration
}

// NewClient creates a delivery provider client with retrying transport.
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: NewRetryClient(&http.Client{
			Timeout: timeout,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request against the provider API.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// CreateJob submits a validated batch and returns the new job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*JobResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/bulk-send", req)
	if err != nil {
		return nil, err
	}

	var job JobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse create-job response: %w", err)
	}
	return &job, nil
}

// GetStatus fetches the current aggregate progress for a job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/bulk-send/"+url.PathEscape(jobID)+"/status", nil)
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &status, nil
}

// Cancel requests best-effort cancellation of an in-flight job. The
// provider may have already dispatched some sends to the channel.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/bulk-send/"+url.PathEscape(jobID)+"/cancel", nil)
	return err
}

// Retry asks the provider to re-attempt delivery to the failed subset of
// a terminal job. The response is a fresh job with its own counts.
func (c *Client) Retry(ctx context.Context, jobID string) (*JobResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/bulk-send/"+url.PathEscape(jobID)+"/retry", nil)
	if err != nil {
		return nil, err
	}

	var job JobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse retry response: %w", err)
	}
	return &job, nil
}

// ListJobs fetches recent jobs, newest first. Read-only history; not part
// of the tracking loop.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]JobResponse, error) {
	endpoint := "/bulk-send"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var jobs []JobResponse
	if err := json.Unmarshal(respBody, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse job list response: %w", err)
	}
	return jobs, nil
}
