package engine

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/scraper"
	"github.com/use-agent/scout/stream"
)

type siteMap map[string]*models.SiteConfig

func (m siteMap) Lookup(id string) (*models.SiteConfig, bool) {
	s, ok := m[id]
	return s, ok
}

func newSite(id, name string, mode models.FetchMode) *models.SiteConfig {
	s := &models.SiteConfig{
		ID:                      id,
		Name:                    name,
		BaseURL:                 "https://" + id + ".test",
		SearchEndpoint:          "/s?q=%QUERY%",
		FetchMode:               mode,
		ResultContainerSelector: "div.item",
		ResultTitleSelector:     "h3",
		ResultLinkSelector:      "a",
		ResultPosterSelector:    "img",
	}
	s.Defaults()
	return s
}

// fakeFetcher serves canned bodies per site and extracts with the real
// extractor.
type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
	panics map[string]bool

	delay   time.Duration
	running atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, site *models.SiteConfig, term string) (*scraper.Response, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[site.ID] {
		panic("selector engine exploded")
	}
	if err := f.errs[site.ID]; err != nil {
		return nil, err
	}
	return &scraper.Response{Body: f.bodies[site.ID]}, nil
}

func (f *fakeFetcher) Records(site *models.SiteConfig, resp *scraper.Response) (iter.Seq[models.ResultRecord], error) {
	return scraper.NewExtractor(nil).Records(site, resp)
}

const scenarioA = `
<div class="item"><h3>Matrix</h3><a href="/m/1">go</a><img src="/p/1.jpg"></div>
<div class="item"><h3>Broken</h3><a href="/m/2">go</a></div>
<div class="item"><h3>Matrix Reloaded</h3><a href="https://x.test/m/3">go</a><img src="https://x.test/p/3.jpg"></div>`

func TestRun_ResultsForCompleteContainers(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	out := stream.NewCollector()
	r := NewRunner(sites, &fakeFetcher{bodies: map[string]string{"x": scenarioA}}, out, nil)

	got := r.Run(context.Background(), Unit{SiteID: "x", Query: "matrix", Channel: "c1"})
	if got.Status != StatusCompleted || got.Published != 2 {
		t.Fatalf("outcome = %+v", got)
	}

	msgs := out.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	want := []models.ResultRecord{
		{Source: "SiteX", Title: "Matrix", Link: "https://x.test/m/1", Poster: "https://x.test/p/1.jpg"},
		{Source: "SiteX", Title: "Matrix Reloaded", Link: "https://x.test/m/3", Poster: "https://x.test/p/3.jpg"},
	}
	for i, m := range msgs {
		if m.Type != models.MessageResult || *m.Result != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, m, want[i])
		}
	}
}

func TestRun_FetchFailureSendsOneError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"empty body", models.NewScrapeError(models.ErrCodeEmptyResponse, "site returned an empty page", nil)},
		{"wait timeout", models.NewScrapeError(models.ErrCodeWaitTimeout, "no results appeared within 20s", context.DeadlineExceeded)},
		{"locked profile", models.NewScrapeError(models.ErrCodeSessionLocked, "browser profile is in use", nil)},
		{"plain error", errors.New("dial tcp: refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sites := siteMap{"y": newSite("y", "SiteY", models.FetchModeBrowser)}
			out := stream.NewCollector()
			r := NewRunner(sites, &fakeFetcher{errs: map[string]error{"y": tt.err}}, out, nil)

			got := r.Run(context.Background(), Unit{SiteID: "y", Query: "q", Channel: "c1"})
			if got.Status != StatusFailed || !errors.Is(got.Err, tt.err) {
				t.Errorf("outcome = %+v", got)
			}

			msgs := out.Messages("c1")
			if len(msgs) != 1 || msgs[0].Type != models.MessageError {
				t.Fatalf("messages = %+v, want exactly one error", msgs)
			}
			want := FailureMessage(sites["y"], tt.err)
			if msgs[0].ErrorMessage != want {
				t.Errorf("message = %q, want %q", msgs[0].ErrorMessage, want)
			}
		})
	}
}

func TestFailureMessage(t *testing.T) {
	site := newSite("y", "SiteY", models.FetchModePlainHTTP)
	err := models.NewScrapeError(models.ErrCodeFetch, "site answered HTTP 503", nil)
	if got := FailureMessage(site, err); got != "Failed to fetch data from SiteY: site answered HTTP 503" {
		t.Errorf("FailureMessage = %q", got)
	}
}

func TestRun_UnknownSiteIsSilent(t *testing.T) {
	out := stream.NewCollector()
	r := NewRunner(siteMap{}, &fakeFetcher{}, out, nil)

	got := r.Run(context.Background(), Unit{SiteID: "nope", Query: "q", Channel: "c1"})
	if got.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", got.Status)
	}
	if msgs := out.Messages("c1"); len(msgs) != 0 {
		t.Errorf("messages = %+v, want none", msgs)
	}
}

func TestRun_ZeroResultsSendsNothing(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	out := stream.NewCollector()
	r := NewRunner(sites, &fakeFetcher{bodies: map[string]string{"x": "<p>no matches</p>"}}, out, nil)

	got := r.Run(context.Background(), Unit{SiteID: "x", Query: "q", Channel: "c1"})
	if got.Status != StatusCompleted || got.Published != 0 {
		t.Errorf("outcome = %+v", got)
	}
	if msgs := out.Messages("c1"); len(msgs) != 0 {
		t.Errorf("messages = %+v, want none", msgs)
	}
}

func TestRun_PanicBecomesErrorMessage(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	out := stream.NewCollector()
	r := NewRunner(sites, &fakeFetcher{panics: map[string]bool{"x": true}}, out, nil)

	got := r.Run(context.Background(), Unit{SiteID: "x", Query: "q", Channel: "c1"})
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	msgs := out.Messages("c1")
	if len(msgs) != 1 || msgs[0].Type != models.MessageError {
		t.Errorf("messages = %+v, want one error", msgs)
	}
}

// failingPublisher accepts n messages then reports the session gone.
type failingPublisher struct {
	mu    sync.Mutex
	left  int
	count int
}

func (p *failingPublisher) Publish(context.Context, string, models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.left == 0 {
		return stream.ErrNoSubscriber
	}
	p.left--
	p.count++
	return nil
}

func TestRun_PublishFailureStopsUnit(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	pub := &failingPublisher{left: 1}
	r := NewRunner(sites, &fakeFetcher{bodies: map[string]string{"x": scenarioA}}, pub, nil)

	got := r.Run(context.Background(), Unit{SiteID: "x", Query: "q", Channel: "c1"})
	if got.Status != StatusFailed || got.Published != 1 || !errors.Is(got.Err, stream.ErrNoSubscriber) {
		t.Errorf("outcome = %+v", got)
	}
	if pub.count != 1 {
		t.Errorf("delivered = %d, want 1", pub.count)
	}
}

func TestPool_RunsEveryUnitOnce(t *testing.T) {
	sites := siteMap{
		"x": newSite("x", "SiteX", models.FetchModePlainHTTP),
		"y": newSite("y", "SiteY", models.FetchModeBrowser),
	}
	out := stream.NewCollector()
	fetcher := &fakeFetcher{
		bodies: map[string]string{"x": scenarioA},
		errs:   map[string]error{"y": models.NewScrapeError(models.ErrCodeWaitTimeout, "no results", nil)},
	}
	r := NewRunner(sites, fetcher, out, nil)
	p := NewPool(config.WorkerConfig{PlainWorkers: 2, BrowserWorkers: 1, QueueSize: 8, UnitTimeout: time.Second}, r, sites, nil)

	for _, u := range FanOut([]string{"x", "y", "missing"}, "matrix", "c1") {
		if err := p.Submit(u); err != nil {
			t.Fatalf("Submit %s: %v", u.SiteID, err)
		}
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var results, errs int
	for _, m := range out.Messages("c1") {
		switch m.Type {
		case models.MessageResult:
			results++
		case models.MessageError:
			errs++
		}
	}
	if results != 2 || errs != 1 {
		t.Errorf("results = %d, errors = %d, want 2 and 1", results, errs)
	}

	if err := p.Submit(Unit{SiteID: "x"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit after Stop = %v, want ErrPoolStopped", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	fetcher := &fakeFetcher{bodies: map[string]string{"x": scenarioA}, delay: 50 * time.Millisecond}
	r := NewRunner(sites, fetcher, stream.NewCollector(), nil)
	p := NewPool(config.WorkerConfig{PlainWorkers: 1, BrowserWorkers: 1, QueueSize: 1, UnitTimeout: time.Second}, r, sites, nil)
	defer p.Stop(context.Background())

	var rejected error
	for range 5 {
		if err := p.Submit(Unit{SiteID: "x", Query: "q", Channel: "c1"}); err != nil {
			rejected = err
			break
		}
	}
	if models.CodeOf(rejected) != models.ErrCodeQueueFull {
		t.Errorf("CodeOf = %s, want %s", models.CodeOf(rejected), models.ErrCodeQueueFull)
	}
}

func TestPool_BrowserLaneSingleWorker(t *testing.T) {
	sites := siteMap{"x": newSite("x", "SiteX", models.FetchModePlainHTTP)}
	r := NewRunner(sites, &fakeFetcher{}, stream.NewCollector(), nil)

	for _, requested := range []int{0, 1, 4} {
		p := NewPool(config.WorkerConfig{PlainWorkers: 2, BrowserWorkers: requested, QueueSize: 1, UnitTimeout: time.Second}, r, sites, nil)
		if got := p.Stats().BrowserWorkers; got != 1 {
			t.Errorf("BrowserWorkers(%d) = %d, want 1", requested, got)
		}
		_ = p.Stop(context.Background())
	}
}

func TestRunAll_SerializesBrowserUnits(t *testing.T) {
	sites := siteMap{
		"b1": newSite("b1", "B1", models.FetchModeBrowser),
		"b2": newSite("b2", "B2", models.FetchModeBrowser),
		"b3": newSite("b3", "B3", models.FetchModeBrowser),
	}
	fetcher := &fakeFetcher{
		bodies: map[string]string{"b1": scenarioA, "b2": scenarioA, "b3": scenarioA},
		delay:  10 * time.Millisecond,
	}
	r := NewRunner(sites, fetcher, stream.NewCollector(), nil)

	outcomes := RunAll(context.Background(), r, FanOut([]string{"b1", "b2", "b3"}, "q", "c1"), 8)
	for i, o := range outcomes {
		if o.Status != StatusCompleted || o.Published != 2 {
			t.Errorf("outcome %d = %+v", i, o)
		}
	}
	if got := fetcher.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent browser fetches = %d, want 1", got)
	}
}

func TestRunAll_OrderAndMixedOutcomes(t *testing.T) {
	sites := siteMap{
		"x": newSite("x", "SiteX", models.FetchModePlainHTTP),
		"y": newSite("y", "SiteY", models.FetchModePlainHTTP),
	}
	fetcher := &fakeFetcher{
		bodies: map[string]string{"x": scenarioA},
		errs:   map[string]error{"y": errors.New("boom")},
	}
	r := NewRunner(sites, fetcher, stream.NewCollector(), nil)

	outcomes := RunAll(context.Background(), r, FanOut([]string{"y", "missing", "x"}, "q", "c1"), 4)
	want := []Status{StatusFailed, StatusSkipped, StatusCompleted}
	for i, o := range outcomes {
		if o.Status != want[i] {
			t.Errorf("outcome %d = %s, want %s", i, o.Status, want[i])
		}
	}
}
