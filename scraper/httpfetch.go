package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/tidwall/gjson"
	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPFetcher issues plain GET/POST search requests with a Chrome TLS
// fingerprint. It is safe for concurrent use.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	maxBody   int64
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(scraperCfg config.ScraperConfig, browserCfg config.BrowserConfig) *HTTPFetcher {
	transport := &http.Transport{
		DialTLSContext:    dialTLSChrome,
		ForceAttemptHTTP2: false,
	}
	if browserCfg.DefaultProxy != "" {
		proxyURL, err := url.Parse(browserCfg.DefaultProxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	maxBody := scraperCfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	timeout := scraperCfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: browserCfg.UserAgent,
		timeout:   timeout,
		maxBody:   maxBody,
	}
}

// dialTLSChrome establishes a TLS connection using the Chrome h1 fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Fetch executes a GET or POST request. It is never retried.
//
// POST responses shaped {"data":{"results":[...]}} are returned as a
// pre-structured list; every other response is returned as a raw body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	var contentType string
	if req.Kind == KindPOST {
		method = http.MethodPost
		b, ct, err := req.Body()
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodePayload, "failed to encode POST payload", err)
		}
		body = bytes.NewReader(b)
		contentType = ct
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, "invalid search URL", err)
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(models.ErrCodeFetch, "request timed out", err)
		}
		return nil, models.NewScrapeError(models.ErrCodeFetch, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, "failed to read response body", err)
	}

	if resp.StatusCode >= 400 {
		return nil, models.NewScrapeError(
			models.ErrCodeFetch,
			fmt.Sprintf("site answered HTTP %d", resp.StatusCode),
			nil,
		)
	}

	out := &Response{
		Kind:       req.Kind,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Body:       string(raw),
	}
	if req.Kind == KindPOST {
		if items, ok := unwrapDataResults(raw); ok {
			out.Items = items
			out.Body = ""
		}
	}
	return out, nil
}

// unwrapDataResults recognises the {"data":{"results":[...]}} envelope
// returned by one family of search APIs. It is a named exception, not a
// general contract: any other shape falls back to generic extraction.
func unwrapDataResults(body []byte) ([]gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	results := gjson.GetBytes(body, "data.results")
	if !results.IsArray() {
		return nil, false
	}
	items := results.Array()
	if items == nil {
		items = []gjson.Result{}
	}
	return items, true
}
