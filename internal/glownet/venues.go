package glownet

import (
	"context"
	"encoding/json"
	"net/http"
)

// ListVenues returns every venue. The vendor does not paginate this endpoint.
func (c *Client) ListVenues(ctx context.Context) ([]Venue, error) {
	var recs []json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/venues", nil, &recs, http.StatusOK); err != nil {
		return nil, err
	}
	return decodeRecords(recs, func(v *Venue, r json.RawMessage) { v.Raw = r })
}
