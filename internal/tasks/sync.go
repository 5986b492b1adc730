package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/registry"
	"github.com/samachi/glowctl/internal/store"
	"github.com/samachi/glowctl/internal/webapp"
)

// cardBatchDelay paces direct card batches.
const cardBatchDelay = 500 * time.Millisecond

// Cron is the card sync mode that probes the app's cron trigger.
const Cron = "cron"

// SyncVenues asks the web app to sync venues, or with direct writes them into
// the companion database itself.
func (r *Runner) SyncVenues(ctx context.Context, kind string, direct bool) int {
	if !webapp.ValidKind(kind) {
		r.println("Error: sync_type must be either 'full' or 'incremental'")
		return ExitUsage
	}
	if direct {
		return r.syncVenuesDirect(ctx)
	}
	r.printf("Starting %s venue sync via %s...\n", kind, r.Cfg.AppURL)
	res, err := r.App.SyncVenues(ctx, kind)
	if err != nil {
		r.printf("[FAIL] Failed to sync venues: %v\n", err)
		return ExitFail
	}
	r.printf("[OK  ] %s (%.2fs)\n", orNA(res.Message), res.Elapsed.Seconds())
	if res.Data != nil {
		r.printf("Synced venues: %d\n", len(res.Data))
	}
	return ExitOK
}

// SyncCards asks the web app to sync G-Tags as membership cards, probes the
// cron trigger, or with direct writes the cards itself.
func (r *Runner) SyncCards(ctx context.Context, kind string, batchSize int, direct bool) int {
	if batchSize <= 0 {
		batchSize = webapp.DefaultBatchSize
	}
	if kind == Cron {
		return r.probeCron(ctx)
	}
	if !webapp.ValidKind(kind) {
		r.println("Error: sync_type must be 'full', 'incremental' or 'cron'")
		return ExitUsage
	}
	if direct {
		return r.syncCardsDirect(ctx, batchSize)
	}

	r.printf("Testing Card Sync API at: %s/api/cards/sync-glownet\n", r.Cfg.AppURL)
	r.printf("Parameters: type=%s batchSize=%d\n", kind, batchSize)
	res, err := r.App.SyncCards(ctx, kind, batchSize)
	r.rule("=", 50)
	if res != nil {
		r.printf("Response Status: %d\n", res.StatusCode)
		r.printf("Time taken: %.2f seconds\n", res.Elapsed.Seconds())
	}
	if err != nil {
		r.printf("[FAIL] %v\n", err)
		return ExitFail
	}
	r.printf("Message: %s\n", orNA(res.Message))
	if s := res.Stats; s != nil {
		r.printf("Total cards processed: %d\nSynced: %d\nFailed: %d\n", s.Total, s.Synced, s.Failed)
		if s.Failed > 0 {
			return ExitFail
		}
	}
	return ExitOK
}

func (r *Runner) probeCron(ctx context.Context) int {
	r.printf("Testing Card Sync Cron Trigger at: %s/api/cards/sync-glownet\n", r.Cfg.AppURL)
	r.println("Note: this should return 401 Unauthorized since it is not coming from the cron scheduler")
	res, err := r.App.ProbeCardsCron(ctx)
	if res != nil {
		r.printf("Response Status: %d\n", res.StatusCode)
	}
	if err != nil {
		r.printf("[FAIL] %v\n", err)
		return ExitFail
	}
	r.println("[OK  ] cron trigger refused an unauthenticated request")
	return ExitOK
}

// venueImages loads the venue id to image URL mapping. Any failure yields an
// empty mapping and a warning.
func (r *Runner) venueImages(ctx context.Context) map[string]string {
	b, src, err := registry.LoadFirst(ctx, r.Cfg.Defaults.VenueImages)
	if err != nil {
		r.printf("Warning: venue images unavailable: %v\n", err)
		return map[string]string{}
	}
	var doc struct {
		VenueImages map[string]string `json:"venue_images"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		r.printf("Warning: Error reading venue images from %s: %v\n", src, err)
		return map[string]string{}
	}
	if doc.VenueImages == nil {
		doc.VenueImages = map[string]string{}
	}
	r.Log.Info("venue images loaded", zap.Stringer("source", src), zap.Int("count", len(doc.VenueImages)))
	return doc.VenueImages
}

func (r *Runner) syncVenuesDirect(ctx context.Context) int {
	r.println("=== Glownet Venue Sync Tool ===")
	r.printf("API Base URL: %s\n", r.Cfg.APIBaseURL)
	r.rule("=", 40)

	r.println("\nLoading venue images...")
	images := r.venueImages(ctx)
	r.printf("Loaded %d venue image mappings\n", len(images))

	r.println("\nFetching Glownet venues...")
	venues, err := r.API.ListVenues(ctx)
	if err != nil || len(venues) == 0 {
		r.printf("No venues found or error occurred while fetching venues. %v\n", errOrEmpty(err))
		return ExitFail
	}
	r.printf("\nFound %d venues\n", len(venues))

	var st store.SyncStats
	rows := make([]store.VenueRow, 0, len(venues))
	for _, v := range venues {
		id, err := strconv.ParseInt(v.ID.String(), 10, 64)
		if err != nil {
			st.Skipped++
			st.Details = append(st.Details, store.Detail{ID: v.ID.String(), Status: "skipped", Error: "non-numeric venue id"})
			continue
		}
		row := store.VenueRow{ID: id, Name: v.Name, Status: v.Status, Data: v.Raw}
		if u, ok := images[v.ID.String()]; ok && u != "" {
			row.ImageURL = &u
		}
		rows = append(rows, row)
	}

	db, closeDB, err := r.OpenStore(ctx)
	if err != nil {
		r.printf("[FAIL] %v\n", err)
		return ExitFail
	}
	defer closeDB()

	st.Add(db.SyncVenues(ctx, rows))
	r.printStats("Venues", st)

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	missing, err := db.MissingVenueIDs(ctx, ids)
	if err != nil {
		r.printf("[ERR ] verifying venues: %v\n", err)
		return ExitFail
	}
	r.println("\nVerifying venues in the database:")
	r.printf("Checked %d venues, found %d\n", len(ids), len(ids)-len(missing))
	for _, id := range missing {
		r.printf("- missing: %d\n", id)
	}
	if st.Failed > 0 || len(missing) > 0 {
		return ExitFail
	}
	return ExitOK
}

func (r *Runner) syncCardsDirect(ctx context.Context, batchSize int) int {
	r.println("Starting card sync process...")
	events, err := r.API.ListEvents(ctx)
	if err != nil {
		r.printf("[FAIL] fetching events: %v\n", err)
		return ExitFail
	}
	r.printf("Found %d events\n", len(events))

	db, closeDB, err := r.OpenStore(ctx)
	if err != nil {
		r.printf("[FAIL] %v\n", err)
		return ExitFail
	}
	defer closeDB()

	var total store.SyncStats
	eventErrors := 0
	for _, ev := range events {
		r.printf("\nProcessing G-Tags for event: %s (ID: %s)\n", orNA(ev.Name), ev.ID)
		eventID, err := strconv.ParseInt(ev.ID.String(), 10, 64)
		if err != nil {
			r.printf("[ERR ] event %q has a non-numeric id, skipping\n", ev.ID)
			eventErrors++
			continue
		}
		gtags, err := r.API.ListGtags(ctx, ev.ID.String())
		if err != nil {
			r.printf("[ERR ] fetching G-Tags for event %s: %v\n", ev.ID, err)
			eventErrors++
			continue
		}
		uids := make([]string, 0, len(gtags))
		for _, g := range gtags {
			if g.TagUID != "" {
				uids = append(uids, g.TagUID)
			}
		}
		if len(uids) == 0 {
			r.printf("No G-Tags found for event %s\n", orNA(ev.Name))
			continue
		}
		r.printf("Found %d G-Tags\n", len(uids))

		var evStats store.SyncStats
		done := 0
		for i, batch := range store.Batches(uids, batchSize) {
			if i > 0 {
				r.Sleep(cardBatchDelay)
			}
			done += len(batch)
			r.printf("Syncing batch %d (%d/%d G-Tags) for event ID %d...\n", i+1, done, len(uids), eventID)
			st := db.SyncCards(ctx, eventID, batch)
			for _, d := range st.Details {
				if d.Status == "failed" {
					r.printf("- %s: %s\n", d.ID, d.Error)
				}
			}
			evStats.Add(st)
		}
		r.printStats(fmt.Sprintf("Event %s", orNA(ev.Name)), evStats)
		total.Add(evStats)
	}

	r.rule("=", 40)
	r.printStats("All events", total)
	if total.Failed > 0 || eventErrors > 0 {
		return ExitFail
	}
	return ExitOK
}

func (r *Runner) printStats(label string, st store.SyncStats) {
	r.printf("\n%s sync completed:\n", label)
	r.printf("Synced: %d\nFailed: %d\nSkipped: %d\n", st.Synced, st.Failed, st.Skipped)
}

func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return errors.New("the venue list is empty")
}
