/*
portfolio.go - HTTP implementation of the portfolio snapshot capability

SEE ALSO:
  - api/handlers.go: Reload endpoint merging the fetched snapshot through
    the protected-source rule
*/
package client

import (
	"context"
	"net/url"

	"github.com/warp/matrix-engine/grid"
)

// PortfolioClient loads authoritative grid snapshots from the backend.
type PortfolioClient struct {
	*Client
}

// NewPortfolioClient wraps the shared client.
func NewPortfolioClient(c *Client) *PortfolioClient {
	return &PortfolioClient{Client: c}
}

// Load fetches the server's current grid state for the fund. Idempotent
// read: retried once on transient failure.
func (c *PortfolioClient) Load(ctx context.Context, fundID string) (grid.Snapshot, error) {
	var snap grid.Snapshot
	path := "/api/portfolio?fund_id=" + url.QueryEscape(fundID)
	if err := c.getJSON(ctx, path, &snap); err != nil {
		return grid.Snapshot{}, err
	}
	return snap, nil
}
