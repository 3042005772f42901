/*
Package client implements the consumed external interfaces over HTTP.

PURPOSE:
  The engine knows its collaborators only as capabilities:

    execute(action_id, row_id, column_id, inputs, ...) -> {success, value, metadata, error}
    suggestions(fundId) -> {suggestions, insights} (+ accept/reject/add)
    cellEdit(rowId, columnId, value, opts)

  This package is the one place that knows those capabilities are HTTP
  endpoints. Retry policy lives here and nowhere else:

  - Idempotent reads (fetches, lists): retried ONCE with a fixed backoff on
    transient failure (network error or 5xx)
  - Writes (accept, reject, edit, execute): NEVER auto-retried — a repeated
    write is a duplicate side effect; callers roll back optimistic state
    and surface a single error instead

ABORT SEMANTICS:
  All calls take a context. Cancellation with a supersession cause is the
  caller's "a newer request took over" signal and is classified by
  grid.IsSuperseded; this package just propagates it.

SEE ALSO:
  - actions.go: Action execution client
  - suggestions.go: Suggestion feed client
  - cells.go: Cell persistence client
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warp/matrix-engine/grid"
)

// retryBackoff is the fixed delay before the single read retry.
const retryBackoff = 500 * time.Millisecond

// Client is the shared HTTP plumbing for all consumed interfaces.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// getJSON performs an idempotent read with a single fixed-backoff retry on
// transient failure.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	err := c.doJSON(ctx, http.MethodGet, path, nil, out)
	if err == nil || !grid.IsRetryable(err) {
		return err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return grid.CancellationError(ctx, ctx.Err())
	}
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// postJSON performs a write. Never retried.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return grid.CancellationError(ctx, ctx.Err())
		}
		return &grid.TransientError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &grid.TransientError{
			Op:     method + " " + path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("server error"),
		}
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
