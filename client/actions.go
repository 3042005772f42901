/*
actions.go - HTTP implementation of the action execution capability

SEE ALSO:
  - action/gateway.go: The Executor consumer
*/
package client

import (
	"context"

	"github.com/warp/matrix-engine/action"
)

// ActionClient executes named actions against the backend compute service.
// Satisfies action.Executor.
type ActionClient struct {
	*Client
}

// NewActionClient wraps the shared client.
func NewActionClient(c *Client) *ActionClient { return &ActionClient{Client: c} }

// Execute runs one action. An execution is a write from the engine's point
// of view and is never auto-retried.
func (c *ActionClient) Execute(ctx context.Context, req action.Request) (action.Response, error) {
	var resp action.Response
	if err := c.postJSON(ctx, "/api/actions/execute", req, &resp); err != nil {
		return action.Response{}, err
	}
	return resp, nil
}
