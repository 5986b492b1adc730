package glownet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrNothingToRefund marks a 422 from the refund endpoint: the customer has no
// refundable balance or the request failed validation.
var ErrNothingToRefund = errors.New("no refundable balance or validation error")

// NewCustomer is the payload for CreateCustomer.
type NewCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func customersPath(event string) string { return "/events/" + escape(event) + "/customers" }

func customerPath(event, id string) string { return customersPath(event) + "/" + escape(id) }

// ListCustomers returns every customer of event.
func (c *Client) ListCustomers(ctx context.Context, event string) ([]Customer, error) {
	recs, err := c.ListCustomersRaw(ctx, event)
	if err != nil {
		return nil, err
	}
	return decodeRecords(recs, func(cu *Customer, r json.RawMessage) { cu.Raw = r })
}

// ListCustomersRaw returns every customer of event exactly as the API sent them.
func (c *Client) ListCustomersRaw(ctx context.Context, event string) ([]json.RawMessage, error) {
	return c.collect(ctx, "customers", customersPath(event))
}

// GetCustomer returns one customer; a missing customer is ErrNotFound.
func (c *Client) GetCustomer(ctx context.Context, event, id string) (*Customer, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, customerPath(event, id), nil, &raw, http.StatusOK); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	var cu Customer
	if err := json.Unmarshal(raw, &cu); err != nil {
		return nil, err
	}
	cu.Raw = raw
	return &cu, nil
}

// CreateCustomer registers a customer with event.
func (c *Client) CreateCustomer(ctx context.Context, event string, nc NewCustomer) (*Customer, error) {
	var raw json.RawMessage
	body := map[string]NewCustomer{"customer": nc}
	if err := c.call(ctx, http.MethodPost, customersPath(event), body, &raw, http.StatusCreated); err != nil {
		return nil, err
	}
	var cu Customer
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cu); err != nil {
			return nil, err
		}
	}
	cu.Raw = raw
	return &cu, nil
}

type virtualTopup struct {
	Gateway   string `json:"gateway"`
	Credits   int64  `json:"credits"`
	SendEmail bool   `json:"send_email"`
}

// VirtualTopup adds credits to a customer's virtual balance.
func (c *Client) VirtualTopup(ctx context.Context, event, customer string, credits int64, gateway string) error {
	body := virtualTopup{Gateway: gateway, Credits: credits}
	err := c.call(ctx, http.MethodPost, customerPath(event, customer)+"/virtual_topup", body, nil,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)
	if err != nil {
		return err
	}
	c.log.Info("virtual topup", zap.String("event", event), zap.String("customer", customer), zap.Int64("credits", credits))
	return nil
}

type refund struct {
	Gateway   string `json:"gateway"`
	SendEmail bool   `json:"send_email"`
}

// RefundCustomer refunds the customer's whole balance through gateway. A 422 is
// reported as an *APIError that also matches ErrNothingToRefund.
func (c *Client) RefundCustomer(ctx context.Context, event, customer, gateway string) error {
	err := c.call(ctx, http.MethodPost, customerPath(event, customer)+"/refund", refund{Gateway: gateway}, nil,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return &refundError{apiErr}
	}
	return err
}

type refundError struct{ *APIError }

func (e *refundError) Unwrap() []error { return []error{e.APIError, ErrNothingToRefund} }
