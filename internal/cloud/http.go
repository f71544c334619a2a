package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// HTTPClient talks to the habit cloud store over its REST surface.
// Every call carries a per-request timeout so a stalled server cannot
// wedge a sync cycle.
type HTTPClient struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

// NewHTTPClient builds a client for the cloud store at baseURL.
// A zero timeout defaults to 15 seconds.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		http:    &http.Client{},
	}
}

type deleteRequest struct {
	DeletedAt time.Time `json:"deleted_at"`
}

func (c *HTTPClient) UpsertHabit(ctx context.Context, h *schema.HabitRecord) error {
	if err := h.Validate(); err != nil {
		return &Error{Op: "upsert habit", Permanent: true, Err: err}
	}
	return c.do(ctx, "upsert habit", http.MethodPut, "/v1/habits/"+url.PathEscape(h.ID), h, nil)
}

func (c *HTTPClient) DeleteHabit(ctx context.Context, id string, deletedAt time.Time) error {
	return c.do(ctx, "delete habit", http.MethodDelete, "/v1/habits/"+url.PathEscape(id), deleteRequest{DeletedAt: deletedAt}, nil)
}

func (c *HTTPClient) UpsertCompletion(ctx context.Context, cr *schema.CompletionRecord) error {
	if err := cr.Validate(); err != nil {
		return &Error{Op: "upsert completion", Permanent: true, Err: err}
	}
	return c.do(ctx, "upsert completion", http.MethodPut, "/v1/completions/"+url.PathEscape(cr.ID), cr, nil)
}

func (c *HTTPClient) DeleteCompletion(ctx context.Context, id string, deletedAt time.Time) error {
	return c.do(ctx, "delete completion", http.MethodDelete, "/v1/completions/"+url.PathEscape(id), deleteRequest{DeletedAt: deletedAt}, nil)
}

func (c *HTTPClient) FetchHabits(ctx context.Context, userID string) ([]*schema.HabitRecord, error) {
	var habits []*schema.HabitRecord
	path := "/v1/habits?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "fetch habits", http.MethodGet, path, nil, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

func (c *HTTPClient) FetchCompletions(ctx context.Context, userID string, since time.Time) ([]*schema.CompletionRecord, error) {
	var completions []*schema.CompletionRecord
	path := fmt.Sprintf("/v1/completions?user_id=%s&since=%s",
		url.QueryEscape(userID), url.QueryEscape(since.Format(schema.DateLayout)))
	if err := c.do(ctx, "fetch completions", http.MethodGet, path, nil, &completions); err != nil {
		return nil, err
	}
	return completions, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/v1/ping", nil, nil)
}

// do issues one request and decodes the response into out when non-nil.
// 4xx statuses other than 408 and 429 are permanent; everything else
// that fails is transient.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Permanent: true, Err: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Permanent: true, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		permanent := resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout &&
			resp.StatusCode != http.StatusTooManyRequests
		return &Error{Op: op, Permanent: permanent, Err: err}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
