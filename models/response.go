package models

// SearchResponse is the response for POST /api/v1/search.
type SearchResponse struct {
	// Success indicates whether the units were queued.
	Success bool `json:"success"`

	// Channel is the destination token the units publish to.
	Channel string `json:"channel,omitempty"`

	// Units is the number of site units queued.
	Units int `json:"units"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// SitesResponse is the response for GET /api/v1/sites.
type SitesResponse struct {
	Sites []SiteSummary `json:"sites"`
}

// ErrorResponse is the generic error body for middleware rejections.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Sites     int       `json:"sites"`
	Sessions  int       `json:"sessions"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the worker lanes.
type PoolStats struct {
	PlainWorkers   int `json:"plain_workers"`
	PlainActive    int `json:"plain_active"`
	PlainQueued    int `json:"plain_queued"`
	BrowserWorkers int `json:"browser_workers"`
	BrowserActive  int `json:"browser_active"`
	BrowserQueued  int `json:"browser_queued"`
	QueueCapacity  int `json:"queue_capacity"`
}
