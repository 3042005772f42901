/*
cells.go - HTTP implementation of the cell persistence capability

SEE ALSO:
  - workflow/run.go: The CellPersister consumer
*/
package client

import (
	"context"

	"github.com/warp/matrix-engine/workflow"
)

// CellClient persists committed cell edits. Satisfies workflow.CellPersister.
type CellClient struct {
	*Client
}

// NewCellClient wraps the shared client.
func NewCellClient(c *Client) *CellClient { return &CellClient{Client: c} }

type cellEditBody struct {
	RowID            string         `json:"row_id"`
	ColumnID         string         `json:"column_id"`
	Value            any            `json:"value"`
	DataSource       string         `json:"data_source,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	SourceDocumentID string         `json:"source_document_id,omitempty"`
}

// PersistEdit stores one committed edit. A write: never auto-retried.
func (c *CellClient) PersistEdit(ctx context.Context, rowID, columnID string, value any, opts workflow.EditOptions) error {
	return c.postJSON(ctx, "/api/cells/edit", cellEditBody{
		RowID:            rowID,
		ColumnID:         columnID,
		Value:            value,
		DataSource:       opts.DataSource,
		Metadata:         opts.Metadata,
		SourceDocumentID: opts.SourceDocumentID,
	}, nil)
}
