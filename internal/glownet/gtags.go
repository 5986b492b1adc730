package glownet

import (
	"context"
	"encoding/json"
	"net/http"
)

func gtagsPath(event string) string { return "/events/" + escape(event) + "/gtags" }

// ListGtags returns every G-Tag registered with event.
func (c *Client) ListGtags(ctx context.Context, event string) ([]Gtag, error) {
	recs, err := c.ListGtagsRaw(ctx, event)
	if err != nil {
		return nil, err
	}
	return decodeRecords(recs, func(g *Gtag, r json.RawMessage) { g.Raw = r })
}

// ListGtagsRaw returns every G-Tag of event exactly as the API sent them.
func (c *Client) ListGtagsRaw(ctx context.Context, event string) ([]json.RawMessage, error) {
	return c.collect(ctx, "gtags", gtagsPath(event))
}

type newGtag struct {
	TagUID     string `json:"tag_uid"`
	CustomerID string `json:"customer_id,omitempty"`
}

// RegisterGtag registers tagUID with event, bound to customerID when it is not
// empty.
func (c *Client) RegisterGtag(ctx context.Context, event, tagUID, customerID string) (*Gtag, error) {
	var raw json.RawMessage
	body := map[string]newGtag{"gtag": {TagUID: tagUID, CustomerID: customerID}}
	if err := c.call(ctx, http.MethodPost, gtagsPath(event), body, &raw, http.StatusCreated); err != nil {
		return nil, err
	}
	var g Gtag
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, err
		}
	}
	g.Raw = raw
	return &g, nil
}

// TopupGtag adds credits to a G-Tag. Non-positive amounts are a no-op and report
// false.
func (c *Client) TopupGtag(ctx context.Context, event, gtagID string, credits int64, gateway string) (bool, error) {
	if credits <= 0 {
		return false, nil
	}
	body := struct {
		Credits int64  `json:"credits"`
		Gateway string `json:"gateway"`
	}{credits, gateway}
	path := gtagsPath(event) + "/" + escape(gtagID) + "/topup"
	if err := c.call(ctx, http.MethodPost, path, body, nil, http.StatusCreated); err != nil {
		return false, err
	}
	return true, nil
}
