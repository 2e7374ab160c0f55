package scraper

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Response is the unified return type of both fetchers.
type Response struct {
	// Kind records how the page was fetched.
	Kind RequestKind

	// Body is the raw page or API body. Empty when Items is set.
	Body string

	// Items is a pre-structured result list; non-nil means the body was
	// already unwrapped and selectors do not apply.
	Items []gjson.Result

	StatusCode int
	FinalURL   string
}

// Structured reports whether the response carries a pre-extracted list.
func (r *Response) Structured() bool {
	return r != nil && r.Items != nil
}

// Empty reports whether there is nothing to extract from.
func (r *Response) Empty() bool {
	if r == nil {
		return true
	}
	if r.Structured() {
		return false
	}
	return strings.TrimSpace(r.Body) == ""
}
