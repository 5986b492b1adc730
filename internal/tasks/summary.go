package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/summary"
)

// DefaultSummaryEvent is the event snapshotted when none is named.
const DefaultSummaryEvent = "test1"

// Summary snapshots one event with its customers and G-Tags, appends the
// snapshot to the summary log and prints it.
func (r *Runner) Summary(ctx context.Context, eventID string) int {
	if eventID == "" {
		eventID = DefaultSummaryEvent
	}
	r.printf("Starting Glownet data summary fetch for Event: %s\n", eventID)
	r.printf("API Base URL: %s\n", r.Cfg.APIBaseURL)
	r.rule("-", 30)

	entry := r.snapshot(ctx, eventID)
	if entry.Error != nil {
		r.printf("Summary generation completed with errors: %s\n", *entry.Error)
	} else {
		r.println("Summary generation completed successfully.")
	}

	path := r.Cfg.Defaults.SummaryPath
	total, warning, err := summary.Append(path, entry)
	if warning != nil {
		r.printf("Warning: existing summary file '%s' was unusable (%v). Starting fresh.\n", path, warning)
	}
	if err != nil {
		r.printf("[ERR ] writing summary file '%s': %v\n", path, err)
	} else {
		r.printf("Appended new summary to %s. Total entries now: %d\n", path, total)
	}

	r.printSnapshot(entry)
	r.rule("-", 30)
	if entry.Error != nil || err != nil {
		return ExitFail
	}
	return ExitOK
}

// snapshot fetches the event and, only when that worked, its customers and
// G-Tags. Whatever failed stays nil in the entry.
func (r *Runner) snapshot(ctx context.Context, eventID string) summary.Entry {
	entry := summary.Entry{
		Timestamp:     r.Now().Format(summary.TimeLayout),
		TargetEventID: eventID,
	}
	ev, err := r.API.GetEvent(ctx, eventID)
	if err != nil {
		r.Log.Warn("event details unavailable", zap.String("event", eventID), zap.Error(err))
		msg := fmt.Sprintf("Failed to retrieve details for event '%s'. It might not exist or API error occurred.", eventID)
		entry.Error = &msg
		return entry
	}
	entry.EventDetails = ev.Raw

	customers, cerr := r.API.ListCustomersRaw(ctx, eventID)
	if cerr != nil {
		r.Log.Warn("customers unavailable", zap.String("event", eventID), zap.Error(cerr))
	}
	gtags, gerr := r.API.ListGtagsRaw(ctx, eventID)
	if gerr != nil {
		r.Log.Warn("gtags unavailable", zap.String("event", eventID), zap.Error(gerr))
	}
	entry.Customers, entry.Gtags = customers, gtags
	if cerr != nil || gerr != nil {
		msg := "Failed to retrieve customers or G-Tags."
		entry.Error = &msg
	}
	return entry
}

func (r *Runner) printSnapshot(e summary.Entry) {
	r.println()
	r.rule("=", 40)
	r.printf("--- Summary of Fetched Data (%s) ---\n", e.Timestamp)
	r.printf("Target Event: %s\n", e.TargetEventID)
	r.rule("-", 40)
	if e.Error != nil {
		r.printf("Error during fetch: %s\n", *e.Error)
		r.println("No data to display.")
		r.rule("=", 40)
		return
	}

	var details map[string]json.RawMessage
	if len(e.EventDetails) > 0 && json.Unmarshal(e.EventDetails, &details) == nil && details != nil {
		r.println("Event Details (1):")
		for _, k := range []string{"id", "slug", "name", "status", "start_date", "end_date", "timezone"} {
			if v, ok := details[k]; ok {
				r.printf("  %s: %s\n", k, plain(v))
			} else {
				r.printf("  %s: (Not available)\n", k)
			}
		}
	} else {
		r.println("Event Details: Not Fetched")
	}
	r.rule("-", 40)

	customers, _ := decodeAll[glownet.Customer](e.Customers)
	r.printf("Customers (%d):\n", len(customers))
	if len(customers) == 0 {
		r.println("  (No customers found for this event)")
	}
	for _, c := range customers {
		r.printf("  - ID: %s, Name: %s, Email: %s\n", orNA(c.ID.String()), c.Name(), orNA(c.Email))
	}
	r.rule("-", 40)

	gtags, _ := decodeAll[glownet.Gtag](e.Gtags)
	r.printf("G-Tags (%d):\n", len(gtags))
	if len(gtags) == 0 {
		r.println("  (No G-Tags found for this event)")
	}
	for _, g := range gtags {
		cust := "None"
		if g.CustomerID != nil && *g.CustomerID != "" {
			cust = g.CustomerID.String()
		}
		r.printf("  - ID: %s, UID: %s, Status: %s, Balance: %s, Cust ID: %s\n",
			orNA(g.ID.String()), orNA(g.TagUID), orNA(g.Status), g.BalanceCents(), cust)
	}
	r.rule("=", 40)
}

// plain renders a JSON scalar without quotes.
func plain(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	return string(v)
}

func decodeAll[T any](recs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
