/*
documents.go - HTTP implementation of the document attachment capability

SEE ALSO:
  - workflow/run.go: The DocumentAttacher consumer
*/
package client

import "context"

// DocumentClient links source documents to rows. Satisfies
// workflow.DocumentAttacher.
type DocumentClient struct {
	*Client
}

// NewDocumentClient wraps the shared client.
func NewDocumentClient(c *Client) *DocumentClient { return &DocumentClient{Client: c} }

type attachDocumentBody struct {
	RowID      string `json:"row_id"`
	DocumentID string `json:"document_id"`
}

// AttachDocument links a document to a row. A write: never auto-retried.
func (c *DocumentClient) AttachDocument(ctx context.Context, rowID, documentID string) error {
	return c.postJSON(ctx, "/api/documents/attach", attachDocumentBody{
		RowID:      rowID,
		DocumentID: documentID,
	}, nil)
}
