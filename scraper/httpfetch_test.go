package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
)

func testHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return NewHTTPFetcher(
		config.ScraperConfig{HTTPTimeout: timeout},
		config.BrowserConfig{UserAgent: "scout-test"},
	)
}

func TestHTTPFetch_GET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Query().Get("q") != "the matrix" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		if r.Header.Get("User-Agent") != "scout-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		io.WriteString(w, "<html>ok</html>")
	}))
	defer srv.Close()

	site := getSite()
	site.BaseURL = srv.URL
	req, err := BuildRequest(site, "the matrix")
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}

	resp, err := testHTTPFetcher(time.Second).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Body != "<html>ok</html>" || resp.Structured() {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPFetch_POSTUnwrapsDataResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"q":"matrix"}` {
			t.Errorf("body = %s", body)
		}
		io.WriteString(w, `{"data":{"results":[{"title":"A"},{"title":"B"}]}}`)
	}))
	defer srv.Close()

	req := &Request{Kind: KindPOST, URL: srv.URL, JSON: map[string]any{"q": "matrix"}}
	resp, err := testHTTPFetcher(time.Second).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !resp.Structured() || len(resp.Items) != 2 || resp.Items[1].Get("title").String() != "B" {
		t.Errorf("items = %v", resp.Items)
	}
}

func TestHTTPFetch_POSTEmptyResultsIsNotEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"results":[]}}`)
	}))
	defer srv.Close()

	req := &Request{Kind: KindPOST, URL: srv.URL, JSON: map[string]any{}}
	resp, err := testHTTPFetcher(time.Second).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !resp.Structured() || resp.Empty() {
		t.Errorf("Structured = %v, Empty = %v", resp.Structured(), resp.Empty())
	}
}

func TestHTTPFetch_POSTShapeMismatchKeepsBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"html", `<div class="item">x</div>`},
		{"other json", `{"results":[{"title":"A"}]}`},
		{"results not a list", `{"data":{"results":{"title":"A"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			req := &Request{Kind: KindPOST, URL: srv.URL, JSON: map[string]any{}}
			resp, err := testHTTPFetcher(time.Second).Fetch(context.Background(), req)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if resp.Structured() || resp.Body != tt.body {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestHTTPFetch_FormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("q") != "matrix" || r.PostForm.Get("type") != "movie" {
			t.Errorf("form = %v", r.PostForm)
		}
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	site := getSite()
	site.BaseURL = srv.URL
	site.SearchType = models.SearchPOST
	site.PostPayloadTemplate = "q: %QUERY%\ntype=movie"
	req, err := BuildRequest(site, "matrix")
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if _, err := testHTTPFetcher(time.Second).Fetch(context.Background(), req); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestHTTPFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testHTTPFetcher(time.Second).Fetch(context.Background(), &Request{Kind: KindGET, URL: srv.URL})
	if models.CodeOf(err) != models.ErrCodeFetch {
		t.Errorf("CodeOf = %s, want %s", models.CodeOf(err), models.ErrCodeFetch)
	}
}

func TestHTTPFetch_Timeout(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-unblock:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(unblock)

	start := time.Now()
	_, err := testHTTPFetcher(50*time.Millisecond).Fetch(context.Background(), &Request{Kind: KindGET, URL: srv.URL})
	if models.CodeOf(err) != models.ErrCodeFetch {
		t.Errorf("CodeOf = %s, want %s", models.CodeOf(err), models.ErrCodeFetch)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}
