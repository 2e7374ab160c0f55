package models

import "strings"

// QueryPlaceholder is the only interpolation point recognised in
// search endpoints and POST payload templates.
const QueryPlaceholder = "%QUERY%"

// FetchMode selects how a site is fetched.
type FetchMode string

const (
	// FetchModePlainHTTP issues a plain GET or POST request.
	FetchModePlainHTTP FetchMode = "http"

	// FetchModeBrowser drives a full browser session with evasion.
	FetchModeBrowser FetchMode = "browser"
)

// SearchType is the HTTP method used for the search request.
type SearchType string

const (
	SearchGET  SearchType = "GET"
	SearchPOST SearchType = "POST"
)

// SiteConfig is the static description of one catalog source.
// It is read-only to the scraping core.
type SiteConfig struct {
	ID             string     `yaml:"id" json:"id"`
	Name           string     `yaml:"name" json:"name"`
	BaseURL        string     `yaml:"base_url" json:"base_url"`
	SearchEndpoint string     `yaml:"search_endpoint" json:"search_endpoint"`
	SearchType     SearchType `yaml:"search_type" json:"search_type"`
	FetchMode      FetchMode  `yaml:"fetch_mode" json:"fetch_mode"`

	// PostPayloadTemplate is either JSON or "key: value" / "key=value" lines.
	PostPayloadTemplate string `yaml:"post_payload_template,omitempty" json:"post_payload_template,omitempty"`

	ResultContainerSelector string `yaml:"result_container_selector" json:"result_container_selector"`
	ResultTitleSelector     string `yaml:"result_title_selector" json:"result_title_selector"`
	ResultLinkSelector      string `yaml:"result_link_selector" json:"result_link_selector"`
	ResultPosterSelector    string `yaml:"result_poster_selector" json:"result_poster_selector"`
	ResultPosterAttribute   string `yaml:"result_poster_attribute" json:"result_poster_attribute"`

	// JSON field paths used when a POST response is already a result list.
	JSONTitlePath  string `yaml:"json_title_path,omitempty" json:"json_title_path,omitempty"`
	JSONLinkPath   string `yaml:"json_link_path,omitempty" json:"json_link_path,omitempty"`
	JSONPosterPath string `yaml:"json_poster_path,omitempty" json:"json_poster_path,omitempty"`
}

// Defaults applies default values to unset fields.
func (s *SiteConfig) Defaults() {
	s.SearchType = SearchType(strings.ToUpper(strings.TrimSpace(string(s.SearchType))))
	if s.SearchType == "" {
		s.SearchType = SearchGET
	}
	s.FetchMode = FetchMode(strings.ToLower(strings.TrimSpace(string(s.FetchMode))))
	if s.FetchMode == "" {
		s.FetchMode = FetchModePlainHTTP
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.ResultPosterAttribute == "" {
		s.ResultPosterAttribute = "src"
	}
	if s.JSONTitlePath == "" {
		s.JSONTitlePath = "title"
	}
	if s.JSONLinkPath == "" {
		s.JSONLinkPath = "link"
	}
	if s.JSONPosterPath == "" {
		s.JSONPosterPath = "poster"
	}
}

// RequiresBrowser reports whether the site is fetched through browser automation.
func (s *SiteConfig) RequiresBrowser() bool {
	return s.FetchMode == FetchModeBrowser
}

// SiteSummary is the public view of a site returned by GET /api/v1/sites.
type SiteSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	FetchMode  FetchMode  `json:"fetch_mode"`
	SearchType SearchType `json:"search_type"`
}

// Summary returns the public view of the site.
func (s *SiteConfig) Summary() SiteSummary {
	return SiteSummary{
		ID:         s.ID,
		Name:       s.Name,
		FetchMode:  s.FetchMode,
		SearchType: s.SearchType,
	}
}
