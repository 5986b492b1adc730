// Package paging collects complete list resources from page-based REST endpoints.
//
// A Collector knows nothing about HTTP. Callers hand it a FetchFunc that issues one
// page request and classifies the outcome; the Collector decides when to stop and
// guarantees that a failed collection never exposes partial data.
//
// Termination rules, checked after every page:
//  1. a transport or protocol error aborts the whole collection
//  2. an empty page ends the collection successfully
//  3. a page shorter than PerPage is accepted and ends the collection
//  4. otherwise the page is accepted and the next one is requested
package paging

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPerPage is the page size used when a Request leaves PerPage unset.
const DefaultPerPage = 100

// DefaultDelay is the pause between consecutive page requests.
const DefaultDelay = 100 * time.Millisecond

// Status classifies the outcome of a single page request.
type Status int

const (
	StatusOK Status = iota
	StatusTransportError
	StatusProtocolError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTransportError:
		return "transport-error"
	case StatusProtocolError:
		return "protocol-error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Page is the result of one page request. Records are opaque JSON values owned by
// the caller; Err carries the cause when Status is not StatusOK.
type Page struct {
	Status  Status
	Number  int
	Records []json.RawMessage
	Err     error
}

// Request describes the collection to fetch. Resource and Kind are informational
// and only show up in progress events and errors.
type Request struct {
	Resource string
	PerPage  int
	Kind     string
}

func (r Request) perPage() int {
	if r.PerPage <= 0 {
		return DefaultPerPage
	}
	return r.PerPage
}

// Result is either the complete record sequence or a failure. On failure Records is
// nil and Err describes the page that aborted the collection.
type Result struct {
	Records []json.RawMessage
	Pages   int
	Err     error
}

// OK reports whether the collection completed.
func (r Result) OK() bool { return r.Err == nil }

// FetchFunc issues the request for one page. Page numbers start at 1.
type FetchFunc func(page int) Page

// Progress is delivered to an Observer after every accepted page.
type Progress struct {
	Kind     string
	Resource string
	Page     int
	Fetched  int // records on this page
	Total    int // records accumulated so far
	Done     bool
}

// Observer receives progress events. It must not block.
type Observer func(Progress)

// PageError is the failure marker returned when a page aborts the collection.
type PageError struct {
	Kind     string
	Resource string
	Page     int
	Status   Status
	Err      error
}

func (e *PageError) Error() string {
	what := e.Kind
	if what == "" {
		what = e.Resource
	}
	if e.Err == nil {
		return fmt.Sprintf("collect %s: page %d: %s", what, e.Page, e.Status)
	}
	return fmt.Sprintf("collect %s: page %d: %s: %v", what, e.Page, e.Status, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Collector walks pages until one of the termination rules fires.
type Collector struct {
	delay   time.Duration
	sleep   func(time.Duration)
	observe Observer
}

// Option configures a Collector.
type Option func(*Collector)

// WithDelay sets the pause between consecutive page requests.
func WithDelay(d time.Duration) Option {
	return func(c *Collector) { c.delay = d }
}

// WithSleep replaces time.Sleep, mainly so tests can skip the pacing delay.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Collector) { c.sleep = fn }
}

// WithObserver installs a progress observer.
func WithObserver(fn Observer) Option {
	return func(c *Collector) { c.observe = fn }
}

// New returns a Collector with the default 100ms pacing delay.
func New(opts ...Option) *Collector {
	c := &Collector{delay: DefaultDelay, sleep: time.Sleep, observe: func(Progress) {}}
	for _, opt := range opts {
		opt(c)
	}
	if c.sleep == nil {
		c.sleep = func(time.Duration) {}
	}
	if c.observe == nil {
		c.observe = func(Progress) {}
	}
	return c
}

// Collect fetches pages starting at 1 and returns either every record in server
// order or a failure. A panic inside fetch is not recovered.
func (c *Collector) Collect(req Request, fetch FetchFunc) Result {
	size := req.perPage()
	var all []json.RawMessage
	for n := 1; ; n++ {
		if n > 1 && c.delay > 0 {
			c.sleep(c.delay)
		}
		p := fetch(n)
		if p.Status != StatusOK {
			return Result{Pages: n, Err: &PageError{
				Kind: req.Kind, Resource: req.Resource, Page: n, Status: p.Status, Err: p.Err,
			}}
		}
		if len(p.Records) == 0 {
			c.observe(Progress{Kind: req.Kind, Resource: req.Resource, Page: n, Total: len(all), Done: true})
			return Result{Records: nonNil(all), Pages: n}
		}
		all = append(all, p.Records...)
		last := len(p.Records) < size
		c.observe(Progress{
			Kind: req.Kind, Resource: req.Resource, Page: n,
			Fetched: len(p.Records), Total: len(all), Done: last,
		})
		if last {
			return Result{Records: all, Pages: n}
		}
	}
}

// nonNil keeps "zero records" distinguishable from the nil failure payload.
func nonNil(rs []json.RawMessage) []json.RawMessage {
	if rs == nil {
		return []json.RawMessage{}
	}
	return rs
}
