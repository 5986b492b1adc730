package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/samachi/glowctl/internal/glownet"
)

var (
	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elena", "Felix", "Greta", "Hugo", "Ines", "Jonas", "Lucia", "Mateo", "Nora", "Oscar", "Paula", "Rafael"}
	lastNames  = []string{"Garcia", "Martin", "Lopez", "Silva", "Novak", "Berg", "Rossi", "Dubois", "Moreno", "Weber", "Costa", "Ortiz"}
)

// fakeCustomer returns a random identity with an email that is unique per call.
func fakeCustomer() glownet.NewCustomer {
	first := firstNames[rand.IntN(len(firstNames))]
	last := lastNames[rand.IntN(len(lastNames))]
	return glownet.NewCustomer{
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s.%s+%s@example.com", strings.ToLower(first), strings.ToLower(last), uuid.NewString()),
	}
}

// Tag UIDs: a prefix, "a" for tags assigned to a customer or "u" for unassigned
// ones, and a four digit counter starting at 1.
func assignedTag(prefix string, n int) string   { return fmt.Sprintf("%sa%04d", prefix, n) }
func unassignedTag(prefix string, n int) string { return fmt.Sprintf("%su%04d", prefix, n) }

// testDataTally counts attempts and successes for the closing summary.
type testDataTally struct {
	customers, customersOK   int
	assigned, assignedOK     int
	topupCents, topupsOK     int
	unassigned, unassignedOK int
}

// CreateTestData populates an event with customers and G-Tags.
func (r *Runner) CreateTestData(ctx context.Context) int {
	r.header("Glownet Interactive Data Creator")

	event, prefix, created, code, ok := r.testDataTarget(ctx)
	if !ok {
		return code
	}
	r.rule("-", 40)

	var t testDataTally
	var customerIDs []string
	pause := func() { r.Sleep(r.Cfg.Defaults.ActionDelay) }

	yes, err := r.Prompt.YesNo(fmt.Sprintf("Create customers for event '%s'?", event))
	if err != nil {
		return r.promptFailed(err)
	}
	if yes {
		if t.customers, err = r.Prompt.Int("How many customers to create?", 1); err != nil {
			return r.promptFailed(err)
		}
		r.printf("\n--- Creating %d Customers ---\n", t.customers)
		for range t.customers {
			nc := fakeCustomer()
			cu, err := r.API.CreateCustomer(ctx, event, nc)
			if err != nil || cu.ID == "" {
				r.printf("  [ERR ] customer %s: %v\n", nc.Email, errOrMissingID(err))
			} else {
				r.printf("  [OK  ] customer %s (ID: %s)\n", nc.Email, cu.ID)
				customerIDs = append(customerIDs, cu.ID.String())
				t.customersOK++
			}
			pause()
		}
		r.printf("Finished creating customers: %d succeeded out of %d.\n", t.customersOK, t.customers)
		r.rule("-", 40)
	}

	var assignedIDs []string
	if t.customersOK > 0 {
		yes, err := r.Prompt.YesNo(fmt.Sprintf("Create and assign G-Tags to the %d new customers?", t.customersOK))
		if err != nil {
			return r.promptFailed(err)
		}
		if yes {
			n, err := r.Prompt.Int(fmt.Sprintf("How many assigned G-Tags to create (max %d)?", t.customersOK), 1)
			if err != nil {
				return r.promptFailed(err)
			}
			t.assigned = min(n, t.customersOK)
			r.printf("\n--- Registering and Assigning %d G-Tags ---\n", t.assigned)
			for i := range t.assigned {
				uid := assignedTag(prefix, i+1)
				g, err := r.API.RegisterGtag(ctx, event, uid, customerIDs[i])
				if err != nil || g.ID == "" {
					r.printf("  [ERR ] G-Tag %s: %v\n", uid, errOrMissingID(err))
				} else {
					r.printf("  [OK  ] G-Tag %s assigned to customer %s (ID: %s)\n", uid, customerIDs[i], g.ID)
					assignedIDs = append(assignedIDs, g.ID.String())
					t.assignedOK++
				}
				pause()
			}
			r.printf("Finished assigning G-Tags: %d succeeded out of %d.\n", t.assignedOK, t.assigned)
			r.rule("-", 40)

			if code, ok := r.topupAssigned(ctx, event, assignedIDs, &t); !ok {
				return code
			}
		}
	}

	yes, err = r.Prompt.YesNo(fmt.Sprintf("Create unassigned G-Tags for event '%s'?", event))
	if err != nil {
		return r.promptFailed(err)
	}
	if yes {
		if t.unassigned, err = r.Prompt.Int("How many unassigned G-Tags to create?", 1); err != nil {
			return r.promptFailed(err)
		}
		r.printf("\n--- Registering %d Unassigned G-Tags ---\n", t.unassigned)
		for i := range t.unassigned {
			uid := unassignedTag(prefix, i+1)
			g, err := r.API.RegisterGtag(ctx, event, uid, "")
			if err != nil || g.ID == "" {
				r.printf("  [ERR ] G-Tag %s: %v\n", uid, errOrMissingID(err))
			} else {
				r.printf("  [OK  ] G-Tag %s unassigned (ID: %s)\n", uid, g.ID)
				t.unassignedOK++
			}
			pause()
		}
		r.printf("Finished registering unassigned G-Tags: %d succeeded out of %d.\n", t.unassignedOK, t.unassigned)
		r.rule("-", 40)
	}

	r.printTally(event, created, t)
	return ExitOK
}

func (r *Runner) topupAssigned(ctx context.Context, event string, gtagIDs []string, t *testDataTally) (int, bool) {
	if len(gtagIDs) == 0 {
		return ExitOK, true
	}
	yes, err := r.Prompt.YesNo(fmt.Sprintf("Top up the %d newly assigned G-Tags?", len(gtagIDs)))
	if err != nil {
		return r.promptFailed(err), false
	}
	if !yes {
		return ExitOK, true
	}
	if t.topupCents, err = r.Prompt.Int("Enter the balance (in cents) to add to each tag", 0); err != nil {
		return r.promptFailed(err), false
	}
	if t.topupCents == 0 {
		r.println("Skipping topup as balance entered is 0.")
		return ExitOK, true
	}
	r.printf("\n--- Topping Up %d Assigned G-Tags with %d cents ---\n", len(gtagIDs), t.topupCents)
	for _, id := range gtagIDs {
		if _, err := r.API.TopupGtag(ctx, event, id, int64(t.topupCents), r.Cfg.Defaults.TopupGateway); err != nil {
			r.printf("  [ERR ] topup G-Tag %s: %v\n", id, err)
		} else {
			r.printf("  [OK  ] topup G-Tag %s\n", id)
			t.topupsOK++
		}
		r.Sleep(r.Cfg.Defaults.ActionDelay)
	}
	r.printf("Finished topping up: %d succeeded out of %d.\n", t.topupsOK, len(gtagIDs))
	r.rule("-", 40)
	return ExitOK, true
}

// testDataTarget creates a new event or picks an existing one, and asks for the
// tag prefix.
func (r *Runner) testDataTarget(ctx context.Context) (event, prefix string, created bool, code int, ok bool) {
	fresh, err := r.Prompt.YesNo("Do you want to create a NEW event?")
	if err != nil {
		return "", "", false, r.promptFailed(err), false
	}
	if fresh {
		name, err := r.Prompt.Required("Enter the name for the new event")
		if err != nil {
			return "", "", false, r.promptFailed(err), false
		}
		if prefix, err = r.askPrefix(); err != nil {
			return "", "", false, r.promptFailed(err), false
		}
		start, end := glownet.DefaultWindow(r.Now())
		ev, err := r.API.CreateEvent(ctx, glownet.NewEvent{Name: name, StartDate: start, EndDate: end})
		if err != nil || ev.Identifier() == "" {
			r.printf("[FAIL] Failed to create event '%s': %v. Cannot proceed.\n", name, errOrMissingID(err))
			return "", "", false, ExitFail, false
		}
		r.printf("Successfully created event '%s' with ID/Slug: %s\n", name, ev.Identifier())
		return ev.Identifier(), prefix, true, ExitOK, true
	}

	ev, picked, code := r.chooseEvent(ctx)
	if !picked {
		return "", "", false, code, false
	}
	if prefix, err = r.askPrefix(); err != nil {
		return "", "", false, r.promptFailed(err), false
	}
	r.printf("Targeting existing event: %s\n", ev.Identifier())
	return ev.Identifier(), prefix, false, ExitOK, true
}

func (r *Runner) askPrefix() (string, error) {
	for {
		p, err := r.Prompt.Required("Enter a short prefix (1-9 chars, e.g., 'fest') for G-Tags")
		if err != nil {
			return "", err
		}
		p = strings.ToLower(p)
		if n := len([]rune(p)); n >= 1 && n <= 9 {
			return p, nil
		}
		r.println("Error: Prefix must be between 1 and 9 characters long.")
	}
}

func (r *Runner) printTally(event string, created bool, t testDataTally) {
	r.println()
	r.rule("=", 40)
	r.println("--- Data Creation Summary ---")
	r.printf("Target Event ID/Slug: %s\n", event)
	if created {
		r.println("Event Status: Newly Created")
	} else {
		r.println("Event Status: Used Existing")
	}
	if t.customers > 0 {
		r.printf("Customers: %d / %d attempted\n", t.customersOK, t.customers)
	}
	if t.assigned > 0 {
		r.printf("Assigned G-Tags: %d / %d attempted\n", t.assignedOK, t.assigned)
	}
	if t.topupCents > 0 && t.assignedOK > 0 {
		r.printf("Topups: %d / %d attempted with %d cents each\n", t.topupsOK, t.assignedOK, t.topupCents)
	}
	if t.unassigned > 0 {
		r.printf("Unassigned G-Tags: %d / %d attempted\n", t.unassignedOK, t.unassigned)
	}
	if t.customers == 0 && t.assigned == 0 && t.unassigned == 0 {
		r.println("No assets were requested to be created in this run.")
	}
	r.rule("=", 40)
}

func errOrMissingID(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("response has no id")
}
