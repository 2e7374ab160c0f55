package models

// SearchRequest is the payload for POST /api/v1/search and for frames sent
// over a WebSocket session.
type SearchRequest struct {
	// Query is the search term. Required.
	Query string `json:"query" binding:"required"`

	// Sites restricts the search to these site IDs. Empty means all sites.
	Sites []string `json:"sites,omitempty"`

	// CallbackURL, if set, receives every message as a signed webhook
	// instead of a WebSocket session. Ignored on WebSocket sessions.
	CallbackURL string `json:"callback_url,omitempty" binding:"omitempty,url"`

	// Channel is the token of an open WebSocket session. Ignored on
	// WebSocket sessions, which always use their own.
	Channel string `json:"channel,omitempty"`
}

// SessionFrame is the first frame sent on a WebSocket session.
type SessionFrame struct {
	Type    string `json:"type"` // always "session"
	Channel string `json:"channel"`
}
