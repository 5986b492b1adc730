package tasks

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/glownet"
)

// CreateEvents keeps offering to create events until the operator says no.
func (r *Runner) CreateEvents(ctx context.Context) int {
	r.header("Glownet Event Creator")
	created, failed := 0, 0
	for {
		more, err := r.Prompt.YesNo("Do you want to create a new event?")
		if err != nil {
			return r.promptFailed(err)
		}
		if !more {
			break
		}
		ne, err := r.askEvent()
		if err != nil {
			return r.promptFailed(err)
		}
		ev, err := r.API.CreateEvent(ctx, ne)
		if err != nil {
			r.printf("[ERR ] %s: %v\n", ne.Name, err)
			failed++
			continue
		}
		r.printf("[OK  ] %s: created (ID: %s, Slug: %s)\n", ne.Name, orNA(ev.ID.String()), orNA(ev.Slug))
		created++
	}
	r.rule("-", 40)
	r.printf("Events created: %d, failed: %d\n", created, failed)
	if failed > 0 {
		return ExitFail
	}
	return ExitOK
}

func (r *Runner) askEvent() (glownet.NewEvent, error) {
	var ne glownet.NewEvent
	var err error
	if ne.Name, err = r.Prompt.Required("Enter the name for the new event"); err != nil {
		return ne, err
	}
	useDefault, err := r.Prompt.YesNo("Use default dates (now to 7 days from now)?")
	if err != nil {
		return ne, err
	}
	if useDefault {
		ne.StartDate, ne.EndDate = glownet.DefaultWindow(r.Now())
	} else {
		r.println("Enter dates as DD/MM/YYYY HH:MM:SS")
		if ne.StartDate, err = r.Prompt.Required("Enter start date"); err != nil {
			return ne, err
		}
		if ne.EndDate, err = r.Prompt.Required("Enter end date"); err != nil {
			return ne, err
		}
	}
	ne.Timezone, err = r.Prompt.String("Enter timezone (default: "+glownet.DefaultTimezone+")", glownet.DefaultTimezone)
	return ne, err
}

// DeleteEvent deletes one event after an explicit confirmation.
func (r *Runner) DeleteEvent(ctx context.Context) int {
	r.println("--- Glownet Event Deletion Tool ---")
	r.println("*** WARNING: This action is IRREVERSIBLE! ***")
	r.printf("API Base URL: %s\n", r.Cfg.APIBaseURL)
	r.rule("-", 40)

	id, err := r.Prompt.String("Enter the ID or Slug of the event you want to delete", "")
	if err != nil {
		return r.promptFailed(err)
	}
	if id == "" {
		r.println("No event ID/Slug entered. Exiting.")
		return ExitOK
	}
	r.rule("*", 40)
	r.printf("You are about to delete the event with ID/Slug: '%s'\n", id)
	r.println("This will permanently remove the event and potentially associated data.")
	r.rule("*", 40)

	sure, err := r.Prompt.YesNo("ARE YOU ABSOLUTELY SURE you want to delete event '" + id + "'?")
	if err != nil {
		return r.promptFailed(err)
	}
	if !sure {
		r.println("Deletion cancelled by user.")
		return ExitOK
	}

	used, err := r.API.DeleteEvent(ctx, r.deleteCandidates(ctx, id)...)
	if err != nil {
		r.printf("[FAIL] Failed to delete event '%s': %v\n", id, err)
		return ExitFail
	}
	r.printf("[OK  ] Deletion command for event '%s' sent successfully (as '%s').\n", id, used)
	r.println("(Check Glownet dashboard to confirm removal)")
	return ExitOK
}

// deleteCandidates returns the identifiers to try: the operator's input first,
// then the id and slug of the event it names, if the event list has it.
func (r *Runner) deleteCandidates(ctx context.Context, input string) []string {
	out := []string{input}
	events, err := r.API.ListEvents(ctx)
	if err != nil {
		r.Log.Warn("event list unavailable, deleting by input only", zap.Error(err))
		return out
	}
	for _, e := range events {
		if e.ID.String() != input && e.Slug != input {
			continue
		}
		for _, c := range []string{e.ID.String(), e.Slug} {
			if c != "" && !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
		break
	}
	return out
}
