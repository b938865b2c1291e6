// Package recorder is the HTTP client for the recorder job API.
package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Ensure Client satisfies the interfaces the rest of the system depends on.
var (
	_ model.StatusFetcher   = (*Client)(nil)
	_ model.SessionEnqueuer = (*Client)(nil)
)

type enqueueResponse struct {
	JobID string `json:"jobId"`
}

// Client talks to the recorder API rooted at a base URL.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, client *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &model.InvalidURLError{URL: baseURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &model.InvalidURLError{URL: baseURL, Err: errors.New("not an absolute url")}
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: u, client: client}, nil
}

// BaseURL returns the API base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// EnqueueSession starts a recorder session and returns the job ID.
func (c *Client) EnqueueSession(ctx context.Context, req model.SessionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("enqueue session: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "recorder", "sessions"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("enqueue session: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("enqueue session: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("enqueue session: %w", err)
	}

	var out enqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("enqueue session: decode response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("enqueue session: response has no jobId")
	}
	return out.JobID, nil
}

// FetchStatus returns the current status of jobID.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "jobs", url.PathEscape(jobID)), nil)
	if err != nil {
		return model.JobStatus{}, fmt.Errorf("fetch status for %s: %w", jobID, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return model.JobStatus{}, fmt.Errorf("fetch status for %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return model.JobStatus{}, fmt.Errorf("fetch status for %s: %w", jobID, err)
	}

	var st model.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return model.JobStatus{}, fmt.Errorf("fetch status for %s: decode response: %w", jobID, err)
	}
	if st.ID == "" {
		st.ID = jobID
	}
	return st, nil
}

// endpoint joins escaped path segments onto the base URL, keeping any path
// prefix the base has.
func (c *Client) endpoint(segments ...string) string {
	u := c.baseURL.JoinPath(segments...)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// checkStatus turns any non-2xx response into a *model.HTTPError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        errors.New(msg),
	}
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
