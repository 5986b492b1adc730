// Package store writes Glownet venues and G-Tags straight into the companion web
// app's Postgres tables.
//
// Each sync splits incoming rows into new and existing by primary key, inserts the
// new ones in one COPY and updates existing rows one at a time, so a single bad
// row only fails itself.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Detail records why one row did not sync.
type Detail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SyncStats summarises one sync call.
type SyncStats struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Details []Detail `json:"details"`
}

// Add folds o into s.
func (s *SyncStats) Add(o SyncStats) {
	s.Synced += o.Synced
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Details = append(s.Details, o.Details...)
}

func (s *SyncStats) fail(id string, err error) {
	s.Failed++
	s.Details = append(s.Details, Detail{ID: id, Status: "failed", Error: err.Error()})
}

func (s *SyncStats) skip(id, reason string) {
	s.Skipped++
	s.Details = append(s.Details, Detail{ID: id, Status: "skipped", Error: reason})
}

// Store is the companion database.
type Store struct {
	db  DB
	log *zap.Logger
}

// New wraps an existing pool or connection.
func New(db DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Open connects to databaseURL and checks the connection.
func Open(ctx context.Context, databaseURL string, log *zap.Logger) (*Store, func(), error) {
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("store: DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	return New(pool, log), pool.Close, nil
}

// Partition splits rows into those whose key is not in existing and those whose
// key is, keeping input order in both.
func Partition[K comparable, T any](rows []T, key func(T) K, existing map[K]bool) (fresh, present []T) {
	for _, r := range rows {
		if existing[key(r)] {
			present = append(present, r)
		} else {
			fresh = append(fresh, r)
		}
	}
	return fresh, present
}

// queryKeys runs a single-column query and returns the values as a set.
func queryKeys[K comparable](ctx context.Context, db DB, sql string, args ...any) (map[K]bool, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[K])
	if err != nil {
		return nil, err
	}
	set := make(map[K]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}
