package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobscrape/export"
	"github.com/use-agent/jobscrape/jobs"
	"github.com/use-agent/jobscrape/models"
)

// PostRun returns a handler for POST /api/v1/runs.
//
// Starts the worker in the background and returns the run ID immediately.
func PostRun(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if !bindRequest(c, &req) {
			return
		}

		run, err := m.Start(req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Location", "/api/v1/runs/"+run.ID)
		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:     run.ID,
			Status: run.Status(),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := lookupRun(c, m)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, run.Snapshot())
	}
}

// CancelRun returns a handler for DELETE /api/v1/runs/:id.
//
// Cancellation is asynchronous: the response may still report
// "processing" until the worker has been stopped.
func CancelRun(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := m.Cancel(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:     run.ID,
			Status: run.Status(),
		})
	}
}

// RunEvents returns a handler for GET /api/v1/runs/:id/events.
//
// Replays the statuses recorded so far, streams new ones, then ends with
// the run's `result` or `error` event.
func RunEvents(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := lookupRun(c, m)
		if !ok {
			return
		}

		past, updates, unsubscribe := run.Subscribe()
		defer unsubscribe()

		startStream(c)
		for _, msg := range past {
			writeEvent(c, eventStatus, msg)
		}

		ctx := c.Request.Context()
		for {
			select {
			case msg, open := <-updates:
				if !open {
					<-run.Done()
					finishRunStream(c, run)
					return
				}
				writeEvent(c, eventStatus, msg)
			case <-ctx.Done():
				return
			}
		}
	}
}

// finishRunStream writes the terminal event of a finished run.
func finishRunStream(c *gin.Context, run *jobs.Run) {
	if err := run.Err(); err != nil {
		writeEvent(c, eventError, err.ToResponse())
		return
	}
	writeFinal(c, run.Result(), nil)
}

// ExportRun returns a handler for GET /api/v1/runs/:id/export.
//
// Writes the records of a completed run as a CSV attachment.
func ExportRun(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := lookupRun(c, m)
		if !ok {
			return
		}
		result := run.Result()
		if run.Status() != models.RunCompleted || result == nil {
			respondError(c, models.NewScrapeError(models.ErrCodeConflict,
				fmt.Sprintf("run is %s, only completed runs can be exported", run.Status()), nil))
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(time.Now())))
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, result.Data, export.DefaultColumns); err != nil {
			slog.Error("csv export failed", "run_id", run.ID, "error", err)
		}
	}
}

func lookupRun(c *gin.Context, m *jobs.Manager) (*jobs.Run, bool) {
	run, ok := m.Store().Get(c.Param("id"))
	if !ok {
		respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "run not found", nil))
		return nil, false
	}
	return run, true
}
