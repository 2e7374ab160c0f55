package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/use-agent/scout/models"
)

// RequestKind is the fetch strategy resolved for a site.
type RequestKind int

const (
	KindGET RequestKind = iota
	KindPOST
	KindBrowse
)

func (k RequestKind) String() string {
	switch k {
	case KindGET:
		return "GET"
	case KindPOST:
		return "POST"
	case KindBrowse:
		return "browser"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// Request is the concrete request built from a SiteConfig and a query term.
//
// For KindPOST exactly one of JSON or Form is set.
type Request struct {
	Kind RequestKind
	URL  string
	JSON any
	Form url.Values
}

// Body returns the encoded POST body and its content type.
func (r *Request) Body() ([]byte, string, error) {
	switch {
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("request: encode json payload: %w", err)
		}
		return b, "application/json", nil
	case r.Form != nil:
		return []byte(r.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

// BuildRequest resolves the fetch strategy for site and builds the request.
// Browser mode wins over search_type. A POST payload that yields no keys
// fails with PAYLOAD_INVALID before any network call.
func BuildRequest(site *models.SiteConfig, term string) (*Request, error) {
	target := SearchURL(site, term)

	if site.RequiresBrowser() {
		return &Request{Kind: KindBrowse, URL: target}, nil
	}

	if site.SearchType != models.SearchPOST {
		return &Request{Kind: KindGET, URL: target}, nil
	}

	jsonBody, form, err := ResolvePayload(site.PostPayloadTemplate, term)
	if err != nil {
		return nil, err
	}
	return &Request{Kind: KindPOST, URL: target, JSON: jsonBody, Form: form}, nil
}

// SearchURL joins base_url (trailing slash stripped) and search_endpoint, with
// every placeholder replaced by the percent-encoded term.
func SearchURL(site *models.SiteConfig, term string) string {
	endpoint := strings.ReplaceAll(site.SearchEndpoint, models.QueryPlaceholder, encodeTerm(term))
	return strings.TrimRight(site.BaseURL, "/") + endpoint
}

// encodeTerm percent-encodes term for use inside a URL. Spaces become %20.
func encodeTerm(term string) string {
	return strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
}

// ResolvePayload substitutes the raw term into template and decodes it.
//
// Resolution order:
//  1. a JSON object with at least one key → returned decoded (sent as a JSON body)
//  2. "key: value" / "key=value" lines → returned as form values
//  3. neither yields a key → PAYLOAD_INVALID
//
// Valid JSON that is not a non-empty object (null, [], {}, 42) is not a
// payload and falls through to the line parser.
func ResolvePayload(template, term string) (any, url.Values, error) {
	substituted := strings.ReplaceAll(template, models.QueryPlaceholder, term)

	if raw := []byte(strings.TrimSpace(substituted)); json.Valid(raw) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var payload any
		if err := dec.Decode(&payload); err == nil {
			if obj, ok := payload.(map[string]any); ok && len(obj) > 0 {
				return obj, nil, nil
			}
		}
	}

	form := parseKeyValueLines(substituted)
	if len(form) == 0 {
		return nil, nil, models.NewScrapeError(
			models.ErrCodePayload,
			"POST payload template is neither JSON nor key/value lines",
			nil,
		)
	}
	return nil, form, nil
}

// parseKeyValueLines reads one pair per line. The first ':' or '=' on a line
// separates key from value; lines without either, or with an empty key, are
// ignored.
func parseKeyValueLines(s string) url.Values {
	form := url.Values{}
	for _, line := range strings.Split(s, "\n") {
		idx := strings.IndexAny(line, ":=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		form.Set(key, strings.TrimSpace(line[idx+1:]))
	}
	return form
}
