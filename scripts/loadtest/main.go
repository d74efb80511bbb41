package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL      = flag.String("api-url", "http://localhost:8080", "jobscrape API base URL")
	identifier  = flag.String("identifier", "loadtest@example.com", "Identifier sent with every request")
	platform    = flag.String("platform", "", "Platform to scrape (default: server default)")
	requests    = flag.Int("requests", 20, "Total number of scrape requests")
	concurrency = flag.Int("concurrency", 8, "Requests in flight at once")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Per-request client timeout")
	output      = flag.String("output", "", "Optional JSON report path")
)

type scrapeRequest struct {
	Identifier string `json:"identifier"`
	Platform   string `json:"platform,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Report types ---

type requestResult struct {
	N          int    `json:"n"`
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type report struct {
	Timestamp   string          `json:"timestamp"`
	APIURL      string          `json:"api_url"`
	Requests    int             `json:"requests"`
	Concurrency int             `json:"concurrency"`
	WallMs      int64           `json:"wall_ms"`
	Results     []requestResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== jobscrape load test ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Requests:     %d\n", *requests)
	fmt.Printf("Concurrency:  %d\n", *concurrency)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	rep := report{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		Requests:    *requests,
		Concurrency: *concurrency,
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	start := time.Now()
	for i := 1; i <= *requests; i++ {
		g.Go(func() error {
			rr := scrapeOnce(ctx, client, i)
			mu.Lock()
			rep.Results = append(rep.Results, rr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	rep.WallMs = time.Since(start).Milliseconds()

	sort.Slice(rep.Results, func(a, b int) bool { return rep.Results[a].N < rep.Results[b].N })
	printSummary(rep)

	if *output != "" {
		if err := writeJSON(*output, rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nDetailed results written to %s\n", *output)
	}
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func scrapeOnce(ctx context.Context, client *http.Client, n int) requestResult {
	rr := requestResult{N: n}

	body, err := json.Marshal(scrapeRequest{Identifier: *identifier, Platform: *platform})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *apiURL+"/api/v1/scrape", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.LatencyMs = time.Since(start).Milliseconds()
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	rr.LatencyMs = time.Since(start).Milliseconds()
	rr.StatusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(respBody, &e) == nil {
			rr.Code = e.Code
			rr.Error = e.Error
		}
	}
	return rr
}

func printSummary(rep report) {
	byStatus := map[int][]int64{}
	codes := map[int]map[string]int{}
	for _, r := range rep.Results {
		byStatus[r.StatusCode] = append(byStatus[r.StatusCode], r.LatencyMs)
		if r.Code != "" {
			if codes[r.StatusCode] == nil {
				codes[r.StatusCode] = map[string]int{}
			}
			codes[r.StatusCode][r.Code]++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"HTTP", "Count", "p50", "p95", "Max", "Error codes"})

	statuses := make([]int, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	slices.Sort(statuses)

	for _, s := range statuses {
		lat := byStatus[s]
		slices.Sort(lat)
		label := fmt.Sprintf("%d", s)
		if s == 0 {
			label = "network"
		}
		t.AppendRow(table.Row{
			label,
			len(lat),
			ms(percentile(lat, 50)),
			ms(percentile(lat, 95)),
			ms(lat[len(lat)-1]),
			codeSummary(codes[s]),
		})
	}
	t.AppendFooter(table.Row{"total", len(rep.Results), "", "", ms(rep.WallMs), "wall clock"})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func codeSummary(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

// percentile expects sorted input.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)*p + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}

func ms(v int64) string {
	return (time.Duration(v) * time.Millisecond).String()
}

func writeJSON(path string, rep report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
