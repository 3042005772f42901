/*
suggestions.go - HTTP implementation of the suggestion feed capability

SEE ALSO:
  - suggest/store.go: The API consumer
*/
package client

import (
	"context"
	"net/url"

	"github.com/warp/matrix-engine/suggest"
)

// SuggestionClient talks to the suggestion feed service. Satisfies
// suggest.API.
type SuggestionClient struct {
	*Client
}

// NewSuggestionClient wraps the shared client.
func NewSuggestionClient(c *Client) *SuggestionClient {
	return &SuggestionClient{Client: c}
}

// Fetch loads the feed. Idempotent read: retried once on transient failure.
func (c *SuggestionClient) Fetch(ctx context.Context, fundID string) (suggest.Feed, error) {
	var feed suggest.Feed
	path := "/api/suggestions?fund_id=" + url.QueryEscape(fundID)
	if err := c.getJSON(ctx, path, &feed); err != nil {
		return suggest.Feed{}, err
	}
	return feed, nil
}

// Accept durably resolves a suggestion. Never auto-retried.
func (c *SuggestionClient) Accept(ctx context.Context, suggestionID string, payload suggest.AcceptPayload) error {
	return c.postJSON(ctx, "/api/suggestions/"+url.PathEscape(suggestionID)+"/accept", payload, nil)
}

// Reject durably dismisses a suggestion. Never auto-retried.
func (c *SuggestionClient) Reject(ctx context.Context, suggestionID string, reason map[string]any) error {
	return c.postJSON(ctx, "/api/suggestions/"+url.PathEscape(suggestionID)+"/reject", reason, nil)
}

// Add registers a new suggestion produced by a collaborator.
func (c *SuggestionClient) Add(ctx context.Context, fundID string, s suggest.Suggestion) error {
	body := struct {
		FundID string `json:"fund_id"`
		suggest.Suggestion
	}{FundID: fundID, Suggestion: s}
	return c.postJSON(ctx, "/api/suggestions", body, nil)
}
