package models

import "strings"

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// Identifier is handed to the worker as its only positional argument,
	// usually the account email. Required.
	Identifier string `json:"identifier" binding:"omitempty,max=320"`

	// Email is accepted as an alias of Identifier.
	Email string `json:"email,omitempty" binding:"omitempty,max=320"`

	// Platform selects the worker script. Unknown or empty values fall
	// back to the default platform.
	Platform string `json:"platform,omitempty" binding:"omitempty,max=64"`

	// Timeout is the maximum duration in seconds for the worker run.
	// Zero means the server's configured worker timeout.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=3600"`
}

// Defaults normalises the request in place.
func (r *ScrapeRequest) Defaults() {
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Identifier == "" {
		r.Identifier = strings.TrimSpace(r.Email)
	}
	r.Platform = strings.ToLower(strings.TrimSpace(r.Platform))
}

// Validate reports whether the request can be dispatched. Call after Defaults.
func (r *ScrapeRequest) Validate() error {
	if r.Identifier == "" {
		return NewScrapeError(ErrCodeInvalidInput, "identifier is required", nil)
	}
	return nil
}

// RunRequest is the payload for POST /api/v1/runs.
type RunRequest struct {
	ScrapeRequest

	// WebhookURL receives a signed run.completed / run.failed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256 when set.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
