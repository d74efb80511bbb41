package handler

import (
	"encoding/json"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/scraper"
)

// SSE event names.
const (
	eventStatus = "status"
	eventResult = "result"
	eventError  = "error"
)

// ScrapeStream returns a handler for POST /api/v1/scrape/stream.
//
// Status messages are sent as `status` events while the worker runs,
// followed by exactly one `result` or `error` event. A client disconnect
// cancels the request context and with it the worker.
func ScrapeStream(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if !bindRequest(c, &req) {
			return
		}
		ctx := c.Request.Context()

		type outcome struct {
			result *models.ScrapeResult
			err    error
		}
		statuses := make(chan models.StatusMessage, 64)
		done := make(chan outcome, 1)

		go func() {
			result, err := sc.DoScrape(ctx, &req, func(msg models.StatusMessage) {
				select {
				case statuses <- msg:
				case <-ctx.Done():
				}
			})
			done <- outcome{result, err}
		}()

		startStream(c)
		for {
			select {
			case msg := <-statuses:
				writeEvent(c, eventStatus, msg)
			case o := <-done:
				// The observer has returned for good; flush what it queued.
				for drained := false; !drained; {
					select {
					case msg := <-statuses:
						writeEvent(c, eventStatus, msg)
					default:
						drained = true
					}
				}
				writeFinal(c, o.result, o.err)
				return
			}
		}
	}
}

func startStream(c *gin.Context) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, name string, data any) {
	c.Render(-1, sse.Event{Event: name, Data: data})
	c.Writer.Flush()
}

// writeFinal sends the terminal `result` or `error` event.
func writeFinal(c *gin.Context, result *models.ScrapeResult, err error) {
	if err != nil {
		writeEvent(c, eventError, models.AsScrapeError(err).ToResponse())
		return
	}
	body, mErr := result.MarshalJSON()
	if mErr != nil {
		writeEvent(c, eventError, models.NewScrapeError(models.ErrCodeInternal, "failed to encode result", mErr).ToResponse())
		return
	}
	writeEvent(c, eventResult, json.RawMessage(body))
}
