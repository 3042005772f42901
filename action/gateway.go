/*
gateway.go - Execution wrapper around the external action service

PURPOSE:
  Thin, capability-injected wrapper: the gateway knows how to run one named
  action and hand the result to ApplyResult. It does NOT retry — action
  executions are writes from the system's point of view, and writes are
  never auto-retried (duplicate side effects). Read retries live in the
  HTTP client layer.

SEE ALSO:
  - apply.go: Result application
  - client/actions.go: HTTP Executor implementation
*/
package action

import (
	"context"
	"fmt"

	"github.com/warp/matrix-engine/grid"
)

// Executor is the capability to run one named action remotely. Satisfied by
// client.ActionClient in production and by stubs in tests.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Gateway couples an Executor with the grid application logic.
type Gateway struct {
	Exec Executor
}

// NewGateway creates a gateway around the executor.
func NewGateway(exec Executor) *Gateway {
	return &Gateway{Exec: exec}
}

// Execute runs the action. Transport failure and service-level failure are
// both returned as errors; the Response is also returned for its metadata.
func (gw *Gateway) Execute(ctx context.Context, req Request) (Response, error) {
	resp, err := gw.Exec.Execute(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("action %s failed: %s", req.ActionID, resp.Error)
	}
	return resp, nil
}

// ExecuteAndApply runs the action and folds the result into the snapshot via
// the ref's fresh accessor — the snapshot is re-read at apply time, never
// captured before the network call.
func (gw *Gateway) ExecuteAndApply(ctx context.Context, ref *grid.GridRef, req Request) (Response, error) {
	resp, err := gw.Execute(ctx, req)
	if err != nil {
		return resp, err
	}
	err = ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return ApplyResult(g, grid.RowID(req.RowID), grid.ColumnID(req.ColumnID), resp)
	})
	return resp, err
}
