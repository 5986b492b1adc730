package tasks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/registry"
	"github.com/samachi/glowctl/internal/store"
	"github.com/samachi/glowctl/internal/store/storetest"
	"github.com/samachi/glowctl/internal/summary"
	"github.com/samachi/glowctl/internal/webapp"

	_ "github.com/samachi/glowctl/internal/handlers/file"
)

var ctx = context.Background()

func TestCreateEvents(t *testing.T) {
	fake := newFakeGlownet()
	h := newHarness(t, fake,
		"y", "Summer Fest", "y", "",
		"y", "Winter Fest", "n", "01/12/2025 10:00:00", "03/12/2025 23:00:00", "Lisbon",
		"n")

	require.Equal(t, ExitOK, h.CreateEvents(ctx))
	require.Len(t, fake.created, 2)
	assert.Equal(t, "Summer Fest", fake.created[0]["name"])
	assert.Equal(t, "14/03/2025 18:00:00", fake.created[0]["start_date"])
	assert.Equal(t, "21/03/2025 18:00:00", fake.created[0]["end_date"])
	assert.Equal(t, "Madrid", fake.created[0]["timezone"])
	assert.Equal(t, "01/12/2025 10:00:00", fake.created[1]["start_date"])
	assert.Equal(t, "Lisbon", fake.created[1]["timezone"])
	assert.Contains(t, h.out.String(), "Events created: 2, failed: 0")
}

func TestCreateEvents_Failure(t *testing.T) {
	fake := newFakeGlownet()
	fake.fail["/api/v2/events"] = http.StatusUnprocessableEntity
	h := newHarness(t, fake, "y", "Dup", "y", "", "n")

	assert.Equal(t, ExitFail, h.CreateEvents(ctx))
	assert.Contains(t, h.out.String(), "[ERR ] Dup")
}

func TestCreateEvents_InputEnds(t *testing.T) {
	h := newHarness(t, newFakeGlownet(), "y")
	assert.Equal(t, ExitUsage, h.CreateEvents(ctx))
}

func TestDeleteEvent(t *testing.T) {
	t.Run("tries id then slug", func(t *testing.T) {
		fake := newFakeGlownet()
		fake.addEvent(42, "summer-fest", "Summer Fest")
		fake.deletable = "summer-fest"
		h := newHarness(t, fake, "42", "y")

		assert.Equal(t, ExitOK, h.DeleteEvent(ctx))
		assert.Equal(t, []string{"42", "summer-fest"}, fake.deleted)
		assert.Contains(t, h.out.String(), "sent successfully (as 'summer-fest')")
	})

	t.Run("cancelled", func(t *testing.T) {
		fake := newFakeGlownet()
		h := newHarness(t, fake, "42", "n")

		assert.Equal(t, ExitOK, h.DeleteEvent(ctx))
		assert.Empty(t, fake.deleted)
		assert.Contains(t, h.out.String(), "Deletion cancelled by user.")
	})

	t.Run("empty input", func(t *testing.T) {
		h := newHarness(t, newFakeGlownet(), "")
		assert.Equal(t, ExitOK, h.DeleteEvent(ctx))
		assert.Contains(t, h.out.String(), "No event ID/Slug entered.")
	})

	t.Run("unknown event", func(t *testing.T) {
		fake := newFakeGlownet()
		h := newHarness(t, fake, "nope", "y")

		assert.Equal(t, ExitFail, h.DeleteEvent(ctx))
		assert.Equal(t, []string{"nope"}, fake.deleted)
	})
}

func TestCreateTestData_NewEvent(t *testing.T) {
	fake := newFakeGlownet()
	h := newHarness(t, fake,
		"y", "Fest", "prefixtoolong", "FEST",
		"y", "2",
		"y", "5",
		"y", "500",
		"y", "1",
	)

	require.Equal(t, ExitOK, h.CreateTestData(ctx))
	require.Len(t, fake.events, 1)
	ev := fake.events[0]["slug"].(string)

	customers := fake.customers[ev]
	require.Len(t, customers, 2)
	assert.NotEqual(t, customers[0]["email"], customers[1]["email"])

	tags := fake.gtags[ev]
	require.Len(t, tags, 3, "assigned tags are capped at the customer count")
	assert.Equal(t, "festa0001", tags[0]["tag_uid"])
	assert.Equal(t, "festa0002", tags[1]["tag_uid"])
	assert.Equal(t, "festu0001", tags[2]["tag_uid"])
	assert.Equal(t, jsonString(customers[0]["id"]), tags[0]["customer_id"])
	assert.NotContains(t, tags[2], "customer_id")

	require.Len(t, fake.topups, 2)
	assert.Equal(t, float64(500), fake.topups[0]["credits"])
	assert.Equal(t, h.Cfg.Defaults.TopupGateway, fake.topups[0]["gateway"])

	out := h.out.String()
	assert.Contains(t, out, "Prefix must be between 1 and 9 characters")
	assert.Contains(t, out, "Event Status: Newly Created")
	assert.Contains(t, out, "Customers: 2 / 2 attempted")
	assert.Contains(t, out, "Assigned G-Tags: 2 / 2 attempted")
	assert.Contains(t, out, "Topups: 2 / 2 attempted with 500 cents each")
	assert.Contains(t, out, "Unassigned G-Tags: 1 / 1 attempted")
}

func TestCreateTestData_ExistingEventNothingRequested(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(7, "test1", "Test One")
	h := newHarness(t, fake, "n", "1", "t", "n", "n")

	require.Equal(t, ExitOK, h.CreateTestData(ctx))
	assert.Contains(t, h.out.String(), "Event Status: Used Existing")
	assert.Contains(t, h.out.String(), "No assets were requested to be created in this run.")
	assert.Empty(t, fake.gtags)
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func seedSummaryEvent(fake *fakeGlownet) {
	fake.addEvent(7, "test1", "Test One")
	fake.customers["test1"] = []record{
		{"id": 1, "first_name": "Ana", "last_name": "Silva", "email": "ana@example.com"},
		{"id": 2, "email": "anon@example.com"},
		{"id": 3, "first_name": "Café", "email": "<c>@example.com"},
	}
	fake.gtags["test1"] = []record{
		{"id": 10, "tag_uid": "festa0001", "status": "active", "customer_id": 1, "balance": record{"cents": 500}},
		{"id": 11, "tag_uid": "festu0001"},
	}
}

func TestSummary(t *testing.T) {
	fake := newFakeGlownet()
	seedSummaryEvent(fake)
	h := newHarness(t, fake)

	require.Equal(t, ExitOK, h.Summary(ctx, ""))

	raw, err := summary.Read(h.Cfg.Defaults.SummaryPath)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	var e summary.Entry
	require.NoError(t, json.Unmarshal(raw[0], &e))
	assert.Equal(t, "2025-03-14 18:00:00", e.Timestamp)
	assert.Equal(t, "test1", e.TargetEventID)
	assert.Nil(t, e.Error)
	assert.Len(t, e.Customers, 3)
	assert.Len(t, e.Gtags, 2)
	assert.JSONEq(t, `{"id":7,"slug":"test1","name":"Test One","state":"launched"}`, string(e.EventDetails))

	b, err := os.ReadFile(h.Cfg.Defaults.SummaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Café")
	assert.Contains(t, string(b), "<c>@example.com", "HTML characters are not escaped")

	out := h.out.String()
	assert.Contains(t, out, "Customers (3):")
	assert.Contains(t, out, "- ID: 1, Name: Ana Silva, Email: ana@example.com")
	assert.Contains(t, out, "- ID: 2, Name: N/A, Email: anon@example.com")
	assert.Contains(t, out, "- ID: 10, UID: festa0001, Status: active, Balance: 500, Cust ID: 1")
	assert.Contains(t, out, "- ID: 11, UID: festu0001, Status: N/A, Balance: N/A, Cust ID: None")
	assert.Contains(t, out, "  status: (Not available)")

	require.Equal(t, ExitOK, h.Summary(ctx, "test1"))
	raw, err = summary.Read(h.Cfg.Defaults.SummaryPath)
	require.NoError(t, err)
	assert.Len(t, raw, 2, "runs append")
}

func TestSummary_MissingEvent(t *testing.T) {
	fake := newFakeGlownet()
	h := newHarness(t, fake)

	assert.Equal(t, ExitFail, h.Summary(ctx, "ghost"))

	raw, err := summary.Read(h.Cfg.Defaults.SummaryPath)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.JSONEq(t, `{
		"timestamp": "2025-03-14 18:00:00",
		"target_event_id": "ghost",
		"event_details": null,
		"customers": null,
		"gtags": null,
		"error": "Failed to retrieve details for event 'ghost'. It might not exist or API error occurred."
	}`, string(raw[0]))
	assert.NotContains(t, fake.requested, "GET /api/v2/events/ghost/customers")
	assert.Contains(t, h.out.String(), "No data to display.")
}

func TestSummary_PartialFailure(t *testing.T) {
	fake := newFakeGlownet()
	seedSummaryEvent(fake)
	fake.fail["/api/v2/events/test1/gtags"] = http.StatusInternalServerError
	h := newHarness(t, fake)
	require.NoError(t, os.WriteFile(h.Cfg.Defaults.SummaryPath, []byte(`{"not":"an array"}`), 0o644))

	assert.Equal(t, ExitFail, h.Summary(ctx, "test1"))

	raw, err := summary.Read(h.Cfg.Defaults.SummaryPath)
	require.NoError(t, err)
	require.Len(t, raw, 1, "an unusable log is started fresh")
	var e summary.Entry
	require.NoError(t, json.Unmarshal(raw[0], &e))
	require.NotNil(t, e.Error)
	assert.Equal(t, "Failed to retrieve customers or G-Tags.", *e.Error)
	assert.Len(t, e.Customers, 3)
	assert.Nil(t, e.Gtags)
	assert.Contains(t, h.out.String(), "Starting fresh")
}

func TestVerifyBalance(t *testing.T) {
	tests := []struct {
		name    string
		vmScale float64
		want    string
		code    int
	}{
		{"cents", 1, "unambiguous-match-at-scale-100", ExitOK},
		{"standard units", 0.01, "unambiguous-match-at-scale-1", ExitOK},
		{"neither", 0.5, "no-match", ExitFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGlownet()
			fake.vmScale = tt.vmScale
			fake.addEvent(7, "test1", "Test One")
			fake.customers["test1"] = []record{{"id": 5, "email": "c@example.com", "virtual_money": "0.0"}}
			h := newHarness(t, fake, "x", "1", "", "5", "abc", "10.50")

			assert.Equal(t, tt.code, h.VerifyBalance(ctx))
			require.Len(t, fake.vtopups, 1)
			assert.Equal(t, float64(1050), fake.vtopups[0]["credits"])
			assert.Equal(t, false, fake.vtopups[0]["send_email"])
			assert.Contains(t, h.out.String(), "virtual_money: "+tt.want)
		})
	}
}

func TestVerifyBalance_RejectsNonFiniteAmounts(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(7, "test1", "Test One")
	fake.customers["test1"] = []record{{"id": 5, "virtual_money": "0.0"}}
	h := newHarness(t, fake, "1", "5", "nan", "inf", "1e400")

	assert.Equal(t, ExitFail, h.VerifyBalance(ctx))
	assert.Equal(t, 2, strings.Count(h.out.String(), "Invalid amount"))
	assert.Contains(t, h.out.String(), "is too large to send as credits")
	assert.Empty(t, fake.vtopups)
}

func TestVerifyBalance_TopupFails(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(7, "test1", "Test One")
	h := newHarness(t, fake, "1", "404", "1")

	assert.Equal(t, ExitFail, h.VerifyBalance(ctx))
	assert.Contains(t, h.out.String(), "Top-up failed")
}

func TestVerifyBalance_Unparseable(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(7, "test1", "Test One")
	fake.customers["test1"] = []record{{"id": 5}}
	h := newHarness(t, fake, "1", "5", "2")
	// Drop the stored top-up so the read-back has no balance.
	h.Sleep = func(time.Duration) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		delete(fake.customers["test1"][0], "virtual_money")
	}

	assert.Equal(t, ExitFail, h.VerifyBalance(ctx))
	assert.Contains(t, h.out.String(), "virtual_money: unparseable")
	assert.Contains(t, h.out.String(), "(type: null)")
}

func TestResetBalances(t *testing.T) {
	seed := func() *fakeGlownet {
		fake := newFakeGlownet()
		fake.addEvent(7, "test1", "Test One")
		fake.customers["test1"] = []record{
			{"id": 1, "virtual_money": "0.0", "money": "0.0"},
			{"id": 2, "first_name": "Ana", "virtual_money": "5.0"},
			{"id": 3, "balances": record{"9": "2.5"}},
			{"id": 4, "money": "bogus"},
		}
		fake.refundStatus["3"] = http.StatusUnprocessableEntity
		return fake
	}

	t.Run("all", func(t *testing.T) {
		fake := seed()
		h := newHarness(t, fake, "1", "yes")

		assert.Equal(t, ExitOK, h.ResetBalances(ctx))
		assert.Equal(t, []string{"2", "3"}, fake.refunded)
		out := h.out.String()
		assert.Contains(t, out, "1. ID: 2, Name: Ana")
		assert.Contains(t, out, `Balances Object: {"9":"2.5"}`)
		assert.Contains(t, out, "[SKIP] customer 3")
		assert.Contains(t, out, "Attempted refund/settlement for 1 customer(s).")
	})

	t.Run("one by one", func(t *testing.T) {
		fake := seed()
		h := newHarness(t, fake, "1", "no", "yes", "n")

		assert.Equal(t, ExitOK, h.ResetBalances(ctx))
		assert.Equal(t, []string{"2"}, fake.refunded)
		assert.Contains(t, h.out.String(), "Skipping refund/settlement for customer 3.")
	})

	t.Run("nothing to do", func(t *testing.T) {
		fake := newFakeGlownet()
		fake.addEvent(7, "test1", "Test One")
		fake.customers["test1"] = []record{{"id": 1, "virtual_money": "0"}}
		h := newHarness(t, fake, "1")

		assert.Equal(t, ExitOK, h.ResetBalances(ctx))
		assert.Empty(t, fake.refunded)
	})

	t.Run("refund error", func(t *testing.T) {
		fake := seed()
		fake.refundStatus["2"] = http.StatusInternalServerError
		h := newHarness(t, fake, "1", "yes")

		assert.Equal(t, ExitFail, h.ResetBalances(ctx))
	})
}

func TestHasBalance(t *testing.T) {
	assert.False(t, hasBalance(glownetCustomer(nil, nil, nil)))
	assert.True(t, hasBalance(glownetCustomer("0.01", nil, nil)))
	assert.True(t, hasBalance(glownetCustomer(nil, float64(3), nil)))
	assert.True(t, hasBalance(glownetCustomer("x", "-1", map[string]any{"a": "0", "b": "1"})))
	assert.False(t, hasBalance(glownetCustomer("-5", "0.0", map[string]any{"a": "oops"})))
}

func glownetCustomer(vm, money any, balances map[string]any) glownet.Customer {
	return glownet.Customer{ID: "1", VirtualMoney: vm, Money: money, Balances: balances}
}

func TestSyncVenues_App(t *testing.T) {
	var got map[string]any
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"message":"Venues synced","data":[{},{},{}]}`)
	}))
	defer app.Close()
	h := newHarness(t, newFakeGlownet())
	h.App = webapp.New(app.URL, time.Second, nil)

	assert.Equal(t, ExitOK, h.SyncVenues(ctx, "incremental", false))
	assert.Equal(t, "incremental", got["type"])
	assert.Contains(t, h.out.String(), "Synced venues: 3")

	assert.Equal(t, ExitUsage, h.SyncVenues(ctx, "partial", false))
}

func TestSyncVenues_Direct(t *testing.T) {
	fake := newFakeGlownet()
	fake.venues = []record{
		{"id": 1, "name": "Main Hall", "status": "active"},
		{"id": 2, "name": "Annex"},
		{"id": "vip", "name": "VIP"},
	}
	h := newHarness(t, fake)
	manifest := filepath.Join(h.dir, "venue_images.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"venue_images":{"1":"https://cdn.example.com/1.jpg"}}`), 0o644))
	h.Cfg.Defaults.VenueImages = []registry.Source{
		{Type: "file", Path: filepath.Join(h.dir, "missing.json")},
		{Type: "file", Path: manifest},
	}
	db := storetest.New()
	h.OpenStore = func(context.Context) (*store.Store, func(), error) { return store.New(db, nil), func() {}, nil }

	assert.Equal(t, ExitOK, h.SyncVenues(ctx, "full", true))
	require.Len(t, db.Venues, 2)
	require.NotNil(t, db.Venues[1].ImageURL)
	assert.Equal(t, "https://cdn.example.com/1.jpg", *db.Venues[1].ImageURL)
	assert.Nil(t, db.Venues[2].ImageURL)
	out := h.out.String()
	assert.Contains(t, out, "Loaded 1 venue image mappings")
	assert.Contains(t, out, "Skipped: 1")
	assert.Contains(t, out, "Checked 2 venues, found 2")
}

func TestSyncVenues_DirectWithoutManifest(t *testing.T) {
	fake := newFakeGlownet()
	fake.venues = []record{{"id": 1, "name": "Main Hall"}}
	h := newHarness(t, fake)
	h.Cfg.Defaults.VenueImages = []registry.Source{{Type: "file", Path: filepath.Join(h.dir, "missing.json")}}
	db := storetest.New()
	h.OpenStore = func(context.Context) (*store.Store, func(), error) { return store.New(db, nil), func() {}, nil }

	assert.Equal(t, ExitOK, h.SyncVenues(ctx, "full", true))
	assert.Contains(t, h.out.String(), "Warning: venue images unavailable")
	assert.Len(t, db.Venues, 1)
}

func TestSyncVenues_DirectNoVenues(t *testing.T) {
	h := newHarness(t, newFakeGlownet())
	assert.Equal(t, ExitFail, h.SyncVenues(ctx, "full", true))
	assert.Contains(t, h.out.String(), "No venues found")
}

func TestSyncCards_Direct(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(10, "ten", "Ten")
	fake.addEvent(11, "eleven", "Eleven")
	fake.addEvent(12, "empty", "Empty")
	fake.gtags["ten"] = []record{{"id": 1, "tag_uid": "a1"}, {"id": 2, "tag_uid": ""}, {"id": 3, "tag_uid": "a2"}, {"id": 4, "tag_uid": "a3"}}
	fake.gtags["eleven"] = []record{{"id": 5, "tag_uid": "b1"}}
	h := newHarness(t, fake)
	db := storetest.New()
	h.OpenStore = func(context.Context) (*store.Store, func(), error) { return store.New(db, nil), func() {}, nil }
	var pauses int
	h.Sleep = func(d time.Duration) {
		assert.Equal(t, cardBatchDelay, d)
		pauses++
	}

	assert.Equal(t, ExitOK, h.SyncCards(ctx, "full", 2, true))
	require.Len(t, db.Cards, 4)
	assert.Equal(t, int64(10), db.Cards["a3"].EventID)
	assert.Equal(t, int64(11), db.Cards["b1"].EventID)
	assert.Equal(t, store.StatusUnregistered, db.Cards["b1"].Status)
	assert.Equal(t, 1, pauses, "two batches for event ten, one for eleven")
	out := h.out.String()
	assert.Contains(t, out, "Syncing batch 2 (3/3 G-Tags) for event ID 10")
	assert.Contains(t, out, "No G-Tags found for event Empty")
	assert.Contains(t, out, "All events sync completed:\nSynced: 4")
}

func TestSyncCards_DirectEventFailure(t *testing.T) {
	fake := newFakeGlownet()
	fake.addEvent(10, "ten", "Ten")
	fake.fail["/api/v2/events/10/gtags"] = http.StatusBadGateway
	h := newHarness(t, fake)
	db := storetest.New()
	h.OpenStore = func(context.Context) (*store.Store, func(), error) { return store.New(db, nil), func() {}, nil }

	assert.Equal(t, ExitFail, h.SyncCards(ctx, "full", 0, true))
	assert.Empty(t, db.Cards)
}

func TestSyncCards_App(t *testing.T) {
	var got map[string]any
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(int(status.Load()))
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"message":"ok","stats":{"total":4,"synced":4,"failed":0}}`)
	}))
	defer app.Close()
	h := newHarness(t, newFakeGlownet())
	h.App = webapp.New(app.URL, time.Second, nil)

	assert.Equal(t, ExitOK, h.SyncCards(ctx, "full", 25, false))
	assert.Equal(t, float64(25), got["batchSize"])
	assert.Contains(t, h.out.String(), "Total cards processed: 4")

	assert.Equal(t, ExitOK, h.SyncCards(ctx, Cron, 0, false))
	status.Store(http.StatusOK)
	assert.Equal(t, ExitFail, h.SyncCards(ctx, Cron, 0, false))

	assert.Equal(t, ExitUsage, h.SyncCards(ctx, "weekly", 0, false))
}
