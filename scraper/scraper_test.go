package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/scout/cache"
	"github.com/use-agent/scout/models"
)

func testScraper(t *testing.T, sess *fakeSession) *Scraper {
	t.Helper()
	return &Scraper{
		http:      testHTTPFetcher(time.Second),
		browser:   testBrowserFetcher(t, launchFake(sess)),
		extractor: NewExtractor(nil),
	}
}

func TestScraper_PlainFetchAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<div class="item"><h3>Matrix</h3><a href="/m/1">go</a><img src="/p/1.jpg"></div>`)
	}))
	defer srv.Close()

	site := catalogSite()
	site.BaseURL = srv.URL
	s := testScraper(t, &fakeSession{})

	resp, err := s.Fetch(context.Background(), site, "matrix")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	seq, err := s.Records(site, resp)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	got := slices.Collect(seq)
	if len(got) != 1 || got[0].Link != srv.URL+"/m/1" {
		t.Errorf("records = %+v", got)
	}
}

func TestScraper_BrowserModeIgnoresSearchType(t *testing.T) {
	sess := &fakeSession{html: "<html></html>"}
	site := browserSite()
	site.SearchType = models.SearchPOST
	site.PostPayloadTemplate = "not a payload"

	resp, err := testScraper(t, sess).Fetch(context.Background(), site, "matrix")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Kind != KindBrowse {
		t.Errorf("Kind = %v, want browser", resp.Kind)
	}
	if !sess.closed {
		t.Error("browser session not closed")
	}
}

func TestScraper_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "  \n ")
	}))
	defer srv.Close()

	site := catalogSite()
	site.BaseURL = srv.URL

	_, err := testScraper(t, &fakeSession{}).Fetch(context.Background(), site, "matrix")
	if models.CodeOf(err) != models.ErrCodeEmptyResponse {
		t.Errorf("CodeOf = %s, want %s", models.CodeOf(err), models.ErrCodeEmptyResponse)
	}
}

func TestScraper_PageCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `<div class="item"><h3>Matrix</h3><a href="/m/1">go</a><img src="/p/1.jpg"></div>`)
	}))
	defer srv.Close()

	site := catalogSite()
	site.BaseURL = srv.URL
	s := testScraper(t, &fakeSession{})
	s.pages = cache.New[*Response](8, time.Minute)

	for _, term := range []string{"matrix", "matrix", "alien"} {
		if _, err := s.Fetch(context.Background(), site, term); err != nil {
			t.Fatalf("Fetch(%q): %v", term, err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}
