package glownet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a vendor identifier. The API is inconsistent about sending ids as numbers
// or strings, so both decode into the same textual form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("glownet: id %s is neither string nor number", b)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Event is a vendor event. Raw keeps the full record as returned.
type Event struct {
	ID        ID     `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Timezone  string `json:"timezone"`

	VirtualCredit *CreditRef `json:"virtual_credit,omitempty"`
	Credit        *CreditRef `json:"credit,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// CreditRef identifies one of an event's credit types.
type CreditRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Identifier is what the API accepts in paths: the slug when there is one,
// otherwise the numeric id.
func (e Event) Identifier() string {
	if e.Slug != "" {
		return e.Slug
	}
	return e.ID.String()
}

// Customer is a vendor customer. Balances are left undecoded because the API
// returns them as strings or numbers depending on the endpoint.
type Customer struct {
	ID           ID             `json:"id"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Email        string         `json:"email"`
	VirtualMoney any            `json:"virtual_money"`
	Money        any            `json:"money"`
	Balances     map[string]any `json:"balances"`

	Raw json.RawMessage `json:"-"`
}

// Name joins first and last name, or "N/A" when both are empty.
func (c Customer) Name() string {
	n := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if n == "" {
		return "N/A"
	}
	return n
}

// Gtag is an NFC tag registered with an event.
type Gtag struct {
	ID         ID              `json:"id"`
	TagUID     string          `json:"tag_uid"`
	Status     string          `json:"status"`
	State      string          `json:"state"`
	CustomerID *ID             `json:"customer_id"`
	Balance    json.RawMessage `json:"balance"`

	Raw json.RawMessage `json:"-"`
}

// BalanceCents returns balance.cents as text, or "N/A".
func (g Gtag) BalanceCents() string {
	var b struct {
		Cents json.RawMessage `json:"cents"`
	}
	if len(g.Balance) == 0 || json.Unmarshal(g.Balance, &b) != nil || len(b.Cents) == 0 {
		return "N/A"
	}
	return strings.Trim(string(b.Cents), `"`)
}

// Venue is a vendor venue; only the fields glowctl reads are typed.
type Venue struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`

	Raw json.RawMessage `json:"-"`
}

// decodeRecords unmarshals every raw record into T and keeps the raw bytes via set.
func decodeRecords[T any](recs []json.RawMessage, set func(*T, json.RawMessage)) ([]T, error) {
	out := make([]T, 0, len(recs))
	for i, r := range recs {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("glownet: record %d: %w", i, err)
		}
		set(&v, r)
		out = append(out, v)
	}
	return out, nil
}
