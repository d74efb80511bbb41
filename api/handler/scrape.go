package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/scraper"
)

// busyRetryAfter is the Retry-After hint, in seconds, sent with WORKER_BUSY.
const busyRetryAfter = "5"

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse the body, apply defaults, require an identifier.
//  2. Scraper.DoScrape launches exactly one worker bound to the request ctx.
//  3. Relay the worker's final JSON line as the 200 body.
func Scrape(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if !bindRequest(c, &req) {
			return
		}

		// ── 2. Scrape ───────────────────────────────────────────────
		result, err := sc.DoScrape(c.Request.Context(), &req, nil)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 3. Relay ────────────────────────────────────────────────
		respondResult(c, result)
	}
}

// validatable is a request body with Defaults and Validate.
type validatable interface {
	Defaults()
	Validate() error
}

// bindRequest decodes the JSON body into req, normalises and validates it.
// An empty body decodes as an empty request. On failure it writes the 400
// response and returns false.
func bindRequest(c *gin.Context, req validatable) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput,
			"invalid request body: "+err.Error(), err))
		return false
	}
	req.Defaults()
	if err := req.Validate(); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

// respondResult writes the worker's result line unchanged.
func respondResult(c *gin.Context, result *models.ScrapeResult) {
	body, err := result.MarshalJSON()
	if err != nil {
		respondError(c, models.NewScrapeError(models.ErrCodeInternal, "failed to encode result", err))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	se := models.AsScrapeError(err)
	status := mapErrorToStatus(se)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", busyRetryAfter)
	}
	c.AbortWithStatusJSON(status, se.ToResponse())
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeConflict:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeWorkerBusy:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
