package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Card states written by the sync.
const (
	GlownetStatusActive = "ACTIVE"
	StatusUnregistered  = "unregistered"
)

var cardColumns = []string{"card_identifier", "glownet_event_id", "glownet_status", "status"}

// SyncCards records tag UIDs as membership cards of eventID. New cards start
// unregistered; existing cards are re-pointed at the event and marked active
// without touching their registration status. Blank and repeated UIDs are
// skipped.
func (s *Store) SyncCards(ctx context.Context, eventID int64, uids []string) SyncStats {
	var st SyncStats
	seen := make(map[string]bool, len(uids))
	cards := make([]string, 0, len(uids))
	for _, u := range uids {
		switch {
		case u == "":
			st.skip(u, "empty tag_uid")
		case seen[u]:
			st.skip(u, "duplicate tag_uid")
		default:
			seen[u] = true
			cards = append(cards, u)
		}
	}
	if len(cards) == 0 {
		return st
	}

	existing, err := queryKeys[string](ctx, s.db,
		`SELECT card_identifier FROM membership_cards WHERE card_identifier = ANY($1)`, cards)
	if err != nil {
		for _, c := range cards {
			st.fail(c, err)
		}
		return st
	}
	fresh, present := Partition(cards, func(c string) string { return c }, existing)

	if len(fresh) > 0 {
		s.log.Info("inserting cards", zap.Int64("event", eventID), zap.Int("count", len(fresh)))
		_, err := s.db.CopyFrom(ctx, pgx.Identifier{"membership_cards"}, cardColumns,
			pgx.CopyFromSlice(len(fresh), func(i int) ([]any, error) {
				return []any{fresh[i], eventID, GlownetStatusActive, StatusUnregistered}, nil
			}))
		if err != nil {
			for _, c := range fresh {
				st.fail(c, err)
			}
		} else {
			st.Synced += len(fresh)
		}
	}

	for _, c := range present {
		_, err := s.db.Exec(ctx,
			`UPDATE membership_cards SET glownet_event_id = $2, glownet_status = $3 WHERE card_identifier = $1`,
			c, eventID, GlownetStatusActive)
		if err != nil {
			s.log.Warn("card update failed", zap.String("card", c), zap.Error(err))
			st.fail(c, err)
			continue
		}
		st.Synced++
	}
	return st
}

// Batches splits items into consecutive chunks of at most size.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for size > 0 && len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
