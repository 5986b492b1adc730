package glownet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the vendor's date format (DD/MM/YYYY HH:MM:SS).
const DateLayout = "02/01/2006 15:04:05"

// DefaultTimezone is used when an event is created without one.
const DefaultTimezone = "Madrid"

// NewEvent is the payload for CreateEvent.
type NewEvent struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Timezone  string `json:"timezone"`
}

// DefaultWindow returns an event spanning now to now+7 days in DateLayout.
func DefaultWindow(now time.Time) (start, end string) {
	return now.Format(DateLayout), now.AddDate(0, 0, 7).Format(DateLayout)
}

// ListEvents returns every event visible to the API key.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	recs, err := c.collect(ctx, "events", "/events")
	if err != nil {
		return nil, err
	}
	return decodeRecords(recs, func(e *Event, r json.RawMessage) { e.Raw = r })
}

// GetEvent returns a single event by id or slug.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	var e Event
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/events/"+escape(id), nil, &raw, http.StatusOK); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	e.Raw = raw
	return &e, nil
}

// CreateEvent creates an event and returns it as echoed by the API.
func (c *Client) CreateEvent(ctx context.Context, ev NewEvent) (*Event, error) {
	if ev.Timezone == "" {
		ev.Timezone = DefaultTimezone
	}
	var raw json.RawMessage
	body := map[string]NewEvent{"event": ev}
	if err := c.call(ctx, http.MethodPost, "/events", body, &raw, http.StatusCreated); err != nil {
		return nil, err
	}
	var e Event
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
	}
	e.Raw = raw
	c.log.Info("event created", zap.String("name", ev.Name), zap.String("id", e.ID.String()), zap.String("slug", e.Slug))
	return &e, nil
}

// DeleteEvent issues DELETE /events/{id} for each candidate identifier in order
// and stops at the first 200 or 204, returning the identifier that worked.
//
// The vendor documentation is unclear whether the id or the slug addresses an
// event for deletion, so callers pass both. A transport failure stops the
// sequence; API errors move on to the next candidate and the last one is returned
// if none succeeds.
func (c *Client) DeleteEvent(ctx context.Context, candidates ...string) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("glownet: no event identifier to delete")
	}
	var last error
	for _, id := range candidates {
		path := "/events/" + escape(id)
		r, err := c.do(ctx, http.MethodDelete, path, nil, nil)
		if err != nil {
			return "", err
		}
		if err := c.expect(http.MethodDelete, path, r, http.StatusOK, http.StatusNoContent); err != nil {
			c.log.Info("delete candidate rejected", zap.String("id", id), zap.Error(err))
			last = err
			continue
		}
		return id, nil
	}
	return "", last
}
