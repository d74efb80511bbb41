package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "legacy array",
			raw:  `[{"title":"Real Data Analyst","company":"DataCorp","date":"2025-10-18","status":"interview"}]`,
			want: "Found 1 applications:\n\n1. Real Data Analyst at DataCorp (2025-10-18) status: interview\n",
		},
		{
			name: "result object",
			raw:  `{"success":true,"data":[{"title":"A","company":"B","date":"2025-01-01","status":"viewed","link":"https://hk.jobsdb.com/job/1"}],"count":1}`,
			want: "Found 1 applications:\n\n1. A at B (2025-01-01) status: viewed\n   https://hk.jobsdb.com/job/1\n",
		},
		{
			name: "empty object",
			raw:  `{"success":true,"data":[],"count":0}`,
			want: "Found 0 applications:\n\n",
		},
		{
			name: "worker failure",
			raw:  `{"success":false,"message":"login timed out"}`,
			want: "Scrape reported failure: login timed out",
		},
		{
			name: "not json",
			raw:  `upstream went away`,
			want: "upstream went away",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatResult(json.RawMessage(tt.raw)))
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"code and message", 503, `{"error":"all 4 worker slots are busy","code":"WORKER_BUSY"}`, "[WORKER_BUSY] all 4 worker slots are busy"},
		{"with details", 500, `{"error":"worker exited with code 1","code":"PROCESS_FAILED","details":"Traceback"}`, "[PROCESS_FAILED] worker exited with code 1\n\nTraceback"},
		{"not json", 502, `<html>bad gateway</html>`, "API returned status 502"},
		{"no error field", 500, `{"success":false}`, "API returned status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apiError(tt.status, []byte(tt.body)))
		})
	}
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestHandleScrape(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/scrape", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &gotBody))
		if gotBody["platform"] == "busy" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"all 1 worker slots are busy, try again later","code":"WORKER_BUSY"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"title":"A","company":"B","date":"2025-01-01","status":"applied"}]`))
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleScrape(srv.URL), map[string]any{"identifier": "me@example.com", "platform": "jobsdb"})
	assert.False(t, isErr)
	assert.Equal(t, map[string]string{"identifier": "me@example.com", "platform": "jobsdb"}, gotBody)
	assert.Contains(t, text, "1. A at B (2025-01-01) status: applied")

	text, isErr = callTool(t, handleScrape(srv.URL), map[string]any{"identifier": "me@example.com", "platform": "busy"})
	assert.True(t, isErr)
	assert.Equal(t, "[WORKER_BUSY] all 1 worker slots are busy, try again later", text)

	text, isErr = callTool(t, handleScrape(srv.URL), map[string]any{})
	assert.True(t, isErr)
	assert.Equal(t, "identifier is required", text)
}

func TestHandleListPlatforms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/platforms", r.URL.Path)
		_, _ = w.Write([]byte(`{"platforms":["default","jobsdb"],"default":"default"}`))
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleListPlatforms(srv.URL), nil)
	assert.False(t, isErr)
	assert.Equal(t, "default (default)\njobsdb\n", text)
}

func TestFormatRun(t *testing.T) {
	var run runStatusResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"run-1","status":"failed","platform":"jobsdb",
		"statuses":[{"status":"init","message":"starting"},{"status":"logging_in"}],
		"error":{"error":"worker exited with code 1","code":"PROCESS_FAILED"}
	}`), &run))

	want := "Run run-1 [failed] on jobsdb\n" +
		"  - init: starting\n" +
		"  - logging_in\n" +
		"\nFailed: [PROCESS_FAILED] worker exited with code 1\n"
	assert.Equal(t, want, formatRun(&run))
}
