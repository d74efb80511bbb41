package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// record is one application row as the workers emit it.
type record struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	Date    string `json:"date"`
	Status  string `json:"status"`
	Link    string `json:"link"`
}

// errorResponse mirrors the jobscrape API error body.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// runResponse mirrors the jobscrape run creation response.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// runStatusResponse mirrors the jobscrape run status response.
type runStatusResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Platform string `json:"platform"`
	Statuses []struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"statuses"`
	Result json.RawMessage `json:"result"`
	Error  *errorResponse  `json:"error"`
}

// platformsResponse mirrors the jobscrape platform listing.
type platformsResponse struct {
	Platforms []string `json:"platforms"`
	Default   string   `json:"default"`
}

func main() {
	apiURL := os.Getenv("JOBSCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiURL = strings.TrimRight(apiURL, "/")

	s := server.NewMCPServer(
		"jobscrape",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_applications",
		mcp.WithDescription("Fetch the job-application history of an account from a job platform. Blocks until the scrape finishes, which can take minutes when the platform asks for email verification."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Account identifier on the platform, usually the login email"),
		),
		mcp.WithString("platform",
			mcp.Description("Platform to scrape (see list_platforms). Unknown values use the default platform."),
		),
	)
	s.AddTool(scrapeTool, handleScrape(apiURL))

	startRunTool := mcp.NewTool("start_run",
		mcp.WithDescription("Start a background scrape and return its run ID. Use get_run to follow it."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Account identifier on the platform, usually the login email"),
		),
		mcp.WithString("platform",
			mcp.Description("Platform to scrape (see list_platforms)"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish before returning (default: false)"),
		),
	)
	s.AddTool(startRunTool, handleStartRun(apiURL))

	getRunTool := mcp.NewTool("get_run",
		mcp.WithDescription("Report the progress and, once finished, the result of a background run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run ID returned by start_run"),
		),
	)
	s.AddTool(getRunTool, handleGetRun(apiURL))

	cancelRunTool := mcp.NewTool("cancel_run",
		mcp.WithDescription("Stop a background run that is still processing."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run ID returned by start_run"),
		),
	)
	s.AddTool(cancelRunTool, handleCancelRun(apiURL))

	platformsTool := mcp.NewTool("list_platforms",
		mcp.WithDescription("List the job platforms this server can scrape."),
	)
	s.AddTool(platformsTool, handleListPlatforms(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the jobscrape API and returns the status code
// and response body.
func apiDo(ctx context.Context, client *http.Client, method, url string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// apiError renders an API error body for the model.
func apiError(status int, body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return fmt.Sprintf("API returned status %d", status)
	}
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Error)
	if e.Details != "" {
		msg += "\n\n" + e.Details
	}
	return msg
}

// pollRun polls a run until its status is no longer "processing" or ctx is cancelled.
func pollRun(ctx context.Context, client *http.Client, apiURL, id string) (*runStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/runs/"+id, nil)
			if err != nil {
				return nil, err
			}
			if status != http.StatusOK {
				return nil, fmt.Errorf("%s", apiError(status, body))
			}
			var run runStatusResponse
			if err := json.Unmarshal(body, &run); err != nil {
				return nil, fmt.Errorf("parse run status: %w", err)
			}
			if run.Status != "processing" {
				return &run, nil
			}
		}
	}
}

// formatResult renders a worker result line as a readable summary.
func formatResult(raw json.RawMessage) string {
	var records []record
	var envelope struct {
		Success *bool    `json:"success"`
		Data    []record `json:"data"`
		Count   *int     `json:"count"`
		Message string   `json:"message"`
	}
	switch {
	case json.Unmarshal(raw, &records) == nil:
	case json.Unmarshal(raw, &envelope) == nil:
		if envelope.Success != nil && !*envelope.Success {
			return "Scrape reported failure: " + envelope.Message
		}
		records = envelope.Data
	default:
		return string(raw)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d applications:\n\n", len(records)))
	for i, r := range records {
		sb.WriteString(fmt.Sprintf("%d. %s at %s (%s) status: %s\n", i+1, r.Title, r.Company, r.Date, r.Status))
		if r.Link != "" {
			sb.WriteString("   " + r.Link + "\n")
		}
	}
	return sb.String()
}

// formatRun renders a run status for the model.
func formatRun(run *runStatusResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %s [%s] on %s\n", run.ID, run.Status, run.Platform))
	for _, s := range run.Statuses {
		sb.WriteString(fmt.Sprintf("  - %s", s.Status))
		if s.Message != "" {
			sb.WriteString(": " + s.Message)
		}
		sb.WriteString("\n")
	}
	switch {
	case run.Error != nil:
		sb.WriteString(fmt.Sprintf("\nFailed: [%s] %s\n", run.Error.Code, run.Error.Error))
		if run.Error.Details != "" {
			sb.WriteString(run.Error.Details + "\n")
		}
	case len(run.Result) > 0:
		sb.WriteString("\n" + formatResult(run.Result))
	}
	return sb.String()
}

func scrapeArgs(request mcp.CallToolRequest) (map[string]string, error) {
	identifier, err := request.RequireString("identifier")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"identifier": identifier,
		"platform":   request.GetString("platform", ""),
	}, nil
}

func handleScrape(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 35 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := scrapeArgs(request)
		if err != nil {
			return mcp.NewToolResultError("identifier is required"), nil
		}

		status, body, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText(formatResult(body)), nil
	}
}

func handleStartRun(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := scrapeArgs(request)
		if err != nil {
			return mcp.NewToolResultError("identifier is required"), nil
		}

		status, body, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/runs", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusAccepted {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		var run runResponse
		if err := json.Unmarshal(body, &run); err != nil || run.ID == "" {
			return mcp.NewToolResultError("run creation failed"), nil
		}

		if !request.GetBool("wait", false) {
			return mcp.NewToolResultText(fmt.Sprintf("Run %s started (%s).", run.ID, run.Status)), nil
		}

		final, err := pollRun(ctx, client, apiURL, run.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run %s failed: %v", run.ID, err)), nil
		}
		return mcp.NewToolResultText(formatRun(final)), nil
	}
}

func handleGetRun(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		status, body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/runs/"+id, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		var run runStatusResponse
		if err := json.Unmarshal(body, &run); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run status: %v", err)), nil
		}
		return mcp.NewToolResultText(formatRun(&run)), nil
	}
}

func handleCancelRun(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		status, body, err := apiDo(ctx, client, http.MethodDelete, apiURL+"/api/v1/runs/"+id, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusAccepted {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Cancellation of run %s requested.", id)), nil
	}
}

func handleListPlatforms(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/platforms", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}

		var resp platformsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse platforms: %v", err)), nil
		}

		var sb strings.Builder
		for _, p := range resp.Platforms {
			sb.WriteString(p)
			if p == resp.Default {
				sb.WriteString(" (default)")
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
