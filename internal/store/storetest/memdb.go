// Package storetest provides an in-memory store.DB that understands exactly the
// statements package store issues.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Venue is a stored venues row.
type Venue struct {
	ID       int64
	Name     string
	Status   string
	ImageURL *string
	Data     any
}

// Card is a stored membership_cards row.
type Card struct {
	Identifier    string
	EventID       int64
	GlownetStatus string
	Status        string
}

// MemDB holds venues and membership_cards in maps. FailCopy and FailExec, when
// set, are returned by the matching calls.
type MemDB struct {
	mu     sync.Mutex
	Venues map[int64]Venue
	Cards  map[string]Card

	FailCopy error
	FailExec error
}

// New returns an empty MemDB.
func New() *MemDB {
	return &MemDB{Venues: map[int64]Venue{}, Cards: map[string]Card{}}
}

func (m *MemDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.HasPrefix(sql, "SELECT id FROM venues"):
		var out []any
		for _, id := range args[0].([]int64) {
			if _, ok := m.Venues[id]; ok {
				out = append(out, id)
			}
		}
		return &rows{vals: out}, nil
	case strings.HasPrefix(sql, "SELECT card_identifier FROM membership_cards"):
		var out []any
		for _, id := range args[0].([]string) {
			if _, ok := m.Cards[id]; ok {
				out = append(out, id)
			}
		}
		return &rows{vals: out}, nil
	}
	return nil, fmt.Errorf("storetest: unsupported query %q", sql)
}

func (m *MemDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailExec != nil {
		return pgconn.CommandTag{}, m.FailExec
	}
	switch {
	case strings.HasPrefix(sql, "UPDATE venues"):
		id := args[0].(int64)
		v := m.Venues[id]
		v.Name, v.Status, v.ImageURL, v.Data = args[1].(string), args[2].(string), args[3].(*string), args[4]
		m.Venues[id] = v
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case strings.HasPrefix(sql, "UPDATE membership_cards"):
		id := args[0].(string)
		c := m.Cards[id]
		c.EventID, c.GlownetStatus = args[1].(int64), args[2].(string)
		m.Cards[id] = c
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("storetest: unsupported statement %q", sql)
}

func (m *MemDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCopy != nil {
		return 0, m.FailCopy
	}
	var n int64
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return n, err
		}
		switch {
		case slices.Equal(table, pgx.Identifier{"venues"}):
			m.Venues[v[0].(int64)] = Venue{ID: v[0].(int64), Name: v[1].(string), Status: v[2].(string), ImageURL: v[3].(*string), Data: v[4]}
		case slices.Equal(table, pgx.Identifier{"membership_cards"}):
			m.Cards[v[0].(string)] = Card{Identifier: v[0].(string), EventID: v[1].(int64), GlownetStatus: v[2].(string), Status: v[3].(string)}
		default:
			return n, fmt.Errorf("storetest: unknown table %v", table)
		}
		n++
	}
	return n, src.Err()
}

// rows is a single-column result set.
type rows struct {
	vals []any
	i    int
}

func (r *rows) Close()                                       {}
func (r *rows) Err() error                                   { return nil }
func (r *rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rows) RawValues() [][]byte                          { return nil }
func (r *rows) Conn() *pgx.Conn                              { return nil }

func (r *rows) Next() bool {
	if r.i >= len(r.vals) {
		return false
	}
	r.i++
	return true
}

func (r *rows) Values() ([]any, error) { return []any{r.vals[r.i-1]}, nil }

func (r *rows) Scan(dest ...any) error {
	v := r.vals[r.i-1]
	switch d := dest[0].(type) {
	case *int64:
		*d = v.(int64)
	case *string:
		*d = v.(string)
	default:
		return fmt.Errorf("storetest: cannot scan into %T", dest[0])
	}
	return nil
}
