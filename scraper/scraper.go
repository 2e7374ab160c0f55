package scraper

import (
	"context"
	"iter"
	"log/slog"

	"github.com/use-agent/scout/cache"
	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
)

// Scraper resolves a site's fetch strategy, runs the matching fetcher and
// extracts records from the result. It is safe for concurrent use.
type Scraper struct {
	http      *HTTPFetcher
	browser   *BrowserFetcher
	extractor *Extractor
	pages     *cache.Cache[*Response] // nil when caching is off
	logger    *slog.Logger
}

// New builds the evasion payload once and wires both fetchers.
func New(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	payload, err := NewEvasionPayload(cfg.Browser)
	if err != nil {
		return nil, err
	}
	logger.Info("evasion payload ready", "bytes", len(payload.Script()), "accept_language", payload.AcceptLanguage())

	return &Scraper{
		http:      NewHTTPFetcher(cfg.Scraper, cfg.Browser),
		browser:   NewBrowserFetcher(cfg.Browser, cfg.Scraper, payload, logger),
		extractor: NewExtractor(logger),
		pages:     cache.New[*Response](cfg.Scraper.CacheEntries, cfg.Scraper.CacheTTL),
		logger:    logger,
	}, nil
}

// Fetch performs the search for term on site. Browser-mode sites always go
// through the browser; everything else is a single plain request. A
// response with nothing to extract is reported as EMPTY_RESPONSE.
// Successful responses are reused for the same site and term while the
// page cache holds them.
func (s *Scraper) Fetch(ctx context.Context, site *models.SiteConfig, term string) (*Response, error) {
	req, err := BuildRequest(site, term)
	if err != nil {
		return nil, err
	}

	key := cache.Key(site.ID, term)
	if resp, ok := s.pages.Get(key); ok {
		if s.logger != nil {
			s.logger.Debug("page cache hit", "event", "scraper.cache_hit", "site", site.ID)
		}
		return resp, nil
	}

	var resp *Response
	if req.Kind == KindBrowse {
		resp, err = s.browser.Fetch(ctx, site, req.URL)
	} else {
		resp, err = s.http.Fetch(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp.Empty() {
		return nil, models.NewScrapeError(models.ErrCodeEmptyResponse, "site returned an empty page", nil)
	}
	s.pages.Set(key, resp)
	return resp, nil
}

// Records extracts the result records from a response returned by Fetch.
func (s *Scraper) Records(site *models.SiteConfig, resp *Response) (iter.Seq[models.ResultRecord], error) {
	return s.extractor.Records(site, resp)
}

// ActiveSessions returns the number of live browser sessions.
func (s *Scraper) ActiveSessions() int {
	return s.browser.ActiveSessions()
}
