package scraper

import (
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"github.com/use-agent/scout/models"
	"golang.org/x/net/html"
)

// Extractor turns a fetched Response into ResultRecords using the site's
// selectors. It is stateless apart from its logger.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Records returns the records found in resp, in document order.
//
// The sequence is lazy: each container is resolved only when the consumer
// asks for the next record. Containers missing a title, link or poster are
// skipped. A document without containers yields nothing and is not an error.
func (e *Extractor) Records(site *models.SiteConfig, resp *Response) (iter.Seq[models.ResultRecord], error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, models.NewScrapeError(
			models.ErrCodeExtraction,
			fmt.Sprintf("base_url %q is not an absolute URL", site.BaseURL),
			err,
		)
	}

	logger := e.logger.With("site", site.ID)

	if resp.Structured() {
		return e.jsonRecords(site, base, resp.Items, logger), nil
	}

	root, err := html.Parse(strings.NewReader(resp.Body))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "failed to parse document", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	containers := doc.Find(site.ResultContainerSelector)
	if containers.Length() == 0 {
		logger.Info("no result containers found",
			"event", "extract.zero_results", "selector", site.ResultContainerSelector)
	}

	return func(yield func(models.ResultRecord) bool) {
		for i := range containers.Length() {
			rec, missing := recordFromContainer(site, base, containers.Eq(i))
			if missing != "" {
				logger.Debug("container skipped", "event", "extract.skip", "index", i, "missing", missing)
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}, nil
}

// recordFromContainer resolves the three fields inside one container.
// On failure it returns the name of the first missing field.
func recordFromContainer(site *models.SiteConfig, base *url.URL, c *goquery.Selection) (models.ResultRecord, string) {
	title := cleanText(c.Find(site.ResultTitleSelector).First().Text())
	if title == "" {
		return models.ResultRecord{}, "title"
	}

	href, _ := c.Find(site.ResultLinkSelector).First().Attr("href")
	link, ok := resolveURL(base, href)
	if !ok {
		return models.ResultRecord{}, "link"
	}

	src, _ := c.Find(site.ResultPosterSelector).First().Attr(site.ResultPosterAttribute)
	poster, ok := resolveURL(base, src)
	if !ok {
		return models.ResultRecord{}, "poster"
	}

	return models.ResultRecord{
		Source: site.Name,
		Title:  title,
		Link:   link,
		Poster: poster,
	}, ""
}

// jsonRecords maps a pre-structured result list through the site's JSON paths.
func (e *Extractor) jsonRecords(site *models.SiteConfig, base *url.URL, items []gjson.Result, logger *slog.Logger) iter.Seq[models.ResultRecord] {
	if len(items) == 0 {
		logger.Info("structured response has no results", "event", "extract.zero_results")
	}

	return func(yield func(models.ResultRecord) bool) {
		for i, item := range items {
			title := cleanText(item.Get(site.JSONTitlePath).String())
			link, linkOK := resolveURL(base, item.Get(site.JSONLinkPath).String())
			poster, posterOK := resolveURL(base, item.Get(site.JSONPosterPath).String())

			var missing string
			switch {
			case title == "":
				missing = "title"
			case !linkOK:
				missing = "link"
			case !posterOK:
				missing = "poster"
			}
			if missing != "" {
				logger.Debug("item skipped", "event", "extract.skip", "index", i, "missing", missing)
				continue
			}

			rec := models.ResultRecord{Source: site.Name, Title: title, Link: link, Poster: poster}
			if !yield(rec) {
				return
			}
		}
	}
}

// resolveURL makes raw absolute. Values that already carry a scheme are
// returned untouched; anything else is resolved against base. A stray '%'
// that does not start an escape is encoded as %25 before giving up.
func resolveURL(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		raw = escapeStrayPercent(raw)
		if ref, err = url.Parse(raw); err != nil {
			return "", false
		}
	}
	if ref.Scheme != "" {
		return raw, true
	}
	return base.ResolveReference(ref).String(), true
}

// escapeStrayPercent replaces every '%' not followed by two hex digits
// with "%25".
func escapeStrayPercent(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && !(i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2])) {
			sb.WriteString("%25")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// cleanText trims s and collapses internal whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
