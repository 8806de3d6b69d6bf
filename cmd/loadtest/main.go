// Command loadtest drives the search service with a mix of keyword, pattern
// and highlight queries and prints per-kind latency percentiles.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// target is one request shape in the workload.
type target struct {
	kind  string
	path  string
	query string
}

var workload = []target{
	{"keyword", "/api/v1/books/search", "whale"},
	{"keyword", "/api/v1/books/search", "love"},
	{"keyword", "/api/v1/books/search", "sea"},
	{"keyword", "/api/v1/books/search", "war"},
	{"keyword", "/api/v1/books/search", "garden"},
	{"pattern", "/api/v1/books/advanced-search", "^whal"},
	{"pattern", "/api/v1/books/advanced-search", "cap.*n"},
	{"pattern", "/api/v1/books/advanced-search", "[0-9]{4}"},
	{"highlight", "/api/v1/books/highlight-search", "ocean"},
	{"highlight", "/api/v1/books/highlight-search", "castle"},
}

type searchResponse struct {
	CacheHit bool `json:"cache_hit"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	pageSize := flag.Int("page-size", 10, "page_size sent with every query")
	flag.Parse()

	fmt.Println("=== gutensearch load test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n", len(workload))
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	stats := NewStats()
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < *concurrency; w++ {
		next := w
		g.Go(func() error {
			for ctx.Err() == nil {
				t := workload[next%len(workload)]
				next++
				u := fmt.Sprintf("%s%s?q=%s&page_size=%d", *baseURL, t.path, url.QueryEscape(t.query), *pageSize)
				issue(ctx, client, stats, t.kind, u)
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	stats.Report(os.Stdout, elapsed)
	if stats.requests == 0 {
		fmt.Println()
		fmt.Println("WARNING: no requests completed. Is the search service running?")
		os.Exit(1)
	}
}

func issue(ctx context.Context, client *http.Client, stats *Stats, kind, rawURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building request: %v\n", err)
		os.Exit(1)
	}
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.Record(kind, elapsed, 0, false)
		}
		return
	}
	defer resp.Body.Close()

	var body searchResponse
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	stats.Record(kind, elapsed, resp.StatusCode, body.CacheHit)
}
