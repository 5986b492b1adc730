package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samachi/glowctl/internal/config"
	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/paging"
	"github.com/samachi/glowctl/internal/prompt"
	"github.com/samachi/glowctl/internal/store"
	"github.com/samachi/glowctl/internal/webapp"
)

type record = map[string]any

// fakeGlownet is an in-memory Glownet v2 API. Events are addressed by id or slug;
// child collections are keyed by the event's slug.
type fakeGlownet struct {
	mu sync.Mutex

	events    []record
	customers map[string][]record
	gtags     map[string][]record
	venues    []record

	nextID int

	// vmScale multiplies virtual top-up credits into the reported virtual_money.
	vmScale float64
	// deletable is the only identifier DELETE accepts.
	deletable string
	// refundStatus overrides the refund response per customer id.
	refundStatus map[string]int
	// fail maps a request path to a status code returned instead of the result.
	fail map[string]int

	created   []record
	deleted   []string
	topups    []record
	refunded  []string
	vtopups   []record
	requested []string
}

func newFakeGlownet() *fakeGlownet {
	return &fakeGlownet{
		customers:    map[string][]record{},
		gtags:        map[string][]record{},
		nextID:       100,
		vmScale:      1,
		refundStatus: map[string]int{},
		fail:         map[string]int{},
	}
}

func (f *fakeGlownet) addEvent(id int, slug, name string) {
	f.events = append(f.events, record{"id": id, "slug": slug, "name": name, "state": "launched"})
}

func (f *fakeGlownet) eventKey(idOrSlug string) (string, bool) {
	for _, e := range f.events {
		if fmt.Sprint(e["id"]) == idOrSlug || e["slug"] == idOrSlug {
			return e["slug"].(string), true
		}
	}
	return "", false
}

func (f *fakeGlownet) id() int {
	f.nextID++
	return f.nextID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func paginate(w http.ResponseWriter, r *http.Request, all []record) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if per < 1 {
		per = 100
	}
	out := []record{}
	for i := (page - 1) * per; i < page*per && i < len(all); i++ {
		out = append(out, all[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeGlownet) handler() http.Handler {
	mux := http.NewServeMux()
	locked := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.requested = append(f.requested, r.Method+" "+r.URL.Path)
			if code, ok := f.fail[r.URL.Path]; ok {
				writeJSON(w, code, record{"error": "injected failure"})
				return
			}
			h(w, r)
		}
	}
	event := func(w http.ResponseWriter, r *http.Request) (string, bool) {
		k, ok := f.eventKey(r.PathValue("e"))
		if !ok {
			writeJSON(w, http.StatusNotFound, record{"error": "Event not found"})
		}
		return k, ok
	}
	findCustomer := func(ev, id string) record {
		for _, c := range f.customers[ev] {
			if fmt.Sprint(c["id"]) == id {
				return c
			}
		}
		return nil
	}

	mux.HandleFunc("GET /api/v2/events", locked(func(w http.ResponseWriter, r *http.Request) {
		paginate(w, r, f.events)
	}))
	mux.HandleFunc("POST /api/v2/events", locked(func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Event record }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body.Event)
		id := f.id()
		slug := fmt.Sprintf("event-%d", id)
		f.addEvent(id, slug, fmt.Sprint(body.Event["name"]))
		writeJSON(w, http.StatusCreated, f.events[len(f.events)-1])
	}))
	mux.HandleFunc("GET /api/v2/events/{e}", locked(func(w http.ResponseWriter, r *http.Request) {
		for _, e := range f.events {
			if fmt.Sprint(e["id"]) == r.PathValue("e") || e["slug"] == r.PathValue("e") {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, record{"error": "Event not found"})
	}))
	mux.HandleFunc("DELETE /api/v2/events/{e}", locked(func(w http.ResponseWriter, r *http.Request) {
		f.deleted = append(f.deleted, r.PathValue("e"))
		if r.PathValue("e") == f.deletable {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusNotFound, record{"error": "Event not found"})
	}))
	mux.HandleFunc("GET /api/v2/events/{e}/customers", locked(func(w http.ResponseWriter, r *http.Request) {
		if ev, ok := event(w, r); ok {
			paginate(w, r, f.customers[ev])
		}
	}))
	mux.HandleFunc("POST /api/v2/events/{e}/customers", locked(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := event(w, r)
		if !ok {
			return
		}
		var body struct{ Customer record }
		_ = json.NewDecoder(r.Body).Decode(&body)
		c := body.Customer
		c["id"] = f.id()
		c["virtual_money"] = "0.0"
		f.customers[ev] = append(f.customers[ev], c)
		writeJSON(w, http.StatusCreated, c)
	}))
	mux.HandleFunc("GET /api/v2/events/{e}/customers/{c}", locked(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := event(w, r)
		if !ok {
			return
		}
		if c := findCustomer(ev, r.PathValue("c")); c != nil {
			writeJSON(w, http.StatusOK, c)
			return
		}
		writeJSON(w, http.StatusNotFound, record{"error": "Customer not found"})
	}))
	mux.HandleFunc("POST /api/v2/events/{e}/customers/{c}/virtual_topup", locked(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := event(w, r)
		if !ok {
			return
		}
		c := findCustomer(ev, r.PathValue("c"))
		if c == nil {
			writeJSON(w, http.StatusNotFound, record{"error": "Customer not found"})
			return
		}
		var body record
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.vtopups = append(f.vtopups, body)
		prev, _ := strconv.ParseFloat(fmt.Sprint(c["virtual_money"]), 64)
		c["virtual_money"] = strconv.FormatFloat(prev+body["credits"].(float64)*f.vmScale, 'f', 1, 64)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /api/v2/events/{e}/customers/{c}/refund", locked(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("c")
		f.refunded = append(f.refunded, id)
		if code, ok := f.refundStatus[id]; ok {
			writeJSON(w, code, record{"error": "Customer has no refundable balance"})
			return
		}
		writeJSON(w, http.StatusOK, record{"status": "ok"})
	}))
	mux.HandleFunc("GET /api/v2/events/{e}/gtags", locked(func(w http.ResponseWriter, r *http.Request) {
		if ev, ok := event(w, r); ok {
			paginate(w, r, f.gtags[ev])
		}
	}))
	mux.HandleFunc("POST /api/v2/events/{e}/gtags", locked(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := event(w, r)
		if !ok {
			return
		}
		var body struct{ Gtag record }
		_ = json.NewDecoder(r.Body).Decode(&body)
		g := body.Gtag
		g["id"] = f.id()
		f.gtags[ev] = append(f.gtags[ev], g)
		writeJSON(w, http.StatusCreated, g)
	}))
	mux.HandleFunc("POST /api/v2/events/{e}/gtags/{g}/topup", locked(func(w http.ResponseWriter, r *http.Request) {
		var body record
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["gtag"] = r.PathValue("g")
		f.topups = append(f.topups, body)
		writeJSON(w, http.StatusCreated, record{"status": "ok"})
	}))
	mux.HandleFunc("GET /api/v2/venues", locked(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.venues)
	}))
	return mux
}

// harness wires a Runner to a fake API and a scripted operator.
type harness struct {
	*Runner
	fake *fakeGlownet
	out  *bytes.Buffer
	dir  string
}

func newHarness(t *testing.T, fake *fakeGlownet, answers ...string) *harness {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	cfg.APIBaseURL = srv.URL
	cfg.Defaults.SummaryPath = filepath.Join(dir, "summary.json")
	cfg.Defaults.VenueImages = nil

	out := &bytes.Buffer{}
	noSleep := func(time.Duration) {}
	r := (&Runner{
		Cfg: cfg,
		API: glownet.New(srv.URL, "key", time.Second,
			glownet.WithPerPage(2),
			glownet.WithCollector(paging.New(paging.WithSleep(noSleep)))),
		App:    webapp.New(cfg.AppURL, time.Second, nil),
		Prompt: prompt.Scripted(out, answers...),
		Out:    out,
		Now:    func() time.Time { return time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC) },
		Sleep:  noSleep,
		OpenStore: func(context.Context) (*store.Store, func(), error) {
			return nil, nil, fmt.Errorf("no database in this test")
		},
	}).Init()
	return &harness{Runner: r, fake: fake, out: out, dir: dir}
}
