package store

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// VenueRow is one row of the venues table.
type VenueRow struct {
	ID       int64
	Name     string
	Status   string
	ImageURL *string
	Data     json.RawMessage
}

var venueColumns = []string{"id", "name", "status", "image_url", "data"}

// SyncVenues inserts new venues and updates existing ones.
func (s *Store) SyncVenues(ctx context.Context, venues []VenueRow) SyncStats {
	var st SyncStats
	if len(venues) == 0 {
		return st
	}
	ids := make([]int64, len(venues))
	for i, v := range venues {
		ids[i] = v.ID
	}
	existing, err := queryKeys[int64](ctx, s.db, `SELECT id FROM venues WHERE id = ANY($1)`, ids)
	if err != nil {
		for _, v := range venues {
			st.fail(venueKey(v), err)
		}
		return st
	}
	fresh, present := Partition(venues, func(v VenueRow) int64 { return v.ID }, existing)

	if len(fresh) > 0 {
		s.log.Info("inserting venues", zap.Int("count", len(fresh)))
		_, err := s.db.CopyFrom(ctx, pgx.Identifier{"venues"}, venueColumns,
			pgx.CopyFromSlice(len(fresh), func(i int) ([]any, error) {
				v := fresh[i]
				return []any{v.ID, v.Name, v.Status, v.ImageURL, data(v.Data)}, nil
			}))
		if err != nil {
			for _, v := range fresh {
				st.fail(venueKey(v), err)
			}
		} else {
			st.Synced += len(fresh)
		}
	}

	if len(present) > 0 {
		s.log.Info("updating venues", zap.Int("count", len(present)))
	}
	for _, v := range present {
		_, err := s.db.Exec(ctx,
			`UPDATE venues SET name = $2, status = $3, image_url = $4, data = $5 WHERE id = $1`,
			v.ID, v.Name, v.Status, v.ImageURL, data(v.Data))
		if err != nil {
			s.log.Warn("venue update failed", zap.Int64("id", v.ID), zap.Error(err))
			st.fail(venueKey(v), err)
			continue
		}
		st.Synced++
	}
	return st
}

// MissingVenueIDs returns the ids that have no row in venues, in input order.
func (s *Store) MissingVenueIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := queryKeys[int64](ctx, s.db, `SELECT id FROM venues WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(slices.Clone(ids), func(id int64) bool { return found[id] }), nil
}

func venueKey(v VenueRow) string { return strconv.FormatInt(v.ID, 10) }

// data keeps absent payloads as SQL NULL rather than an empty jsonb value.
func data(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
