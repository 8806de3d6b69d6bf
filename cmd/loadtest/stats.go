package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Stats accumulates outcomes per search kind. It is safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	requests  int
	errors    int
	cacheHits int
	latencies map[string][]time.Duration
	codes     map[int]int
}

func NewStats() *Stats {
	return &Stats{
		latencies: make(map[string][]time.Duration),
		codes:     make(map[int]int),
	}
}

// Record adds one request. status 0 means the request never got a response.
func (s *Stats) Record(kind string, elapsed time.Duration, status int, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if status < 200 || status >= 300 {
		s.errors++
	}
	if status == 0 {
		return
	}
	s.codes[status]++
	s.latencies[kind] = append(s.latencies[kind], elapsed)
	if cacheHit {
		s.cacheHits++
	}
}

// Summary is the latency profile of one search kind.
type Summary struct {
	Kind   string
	Count  int
	Min    time.Duration
	Avg    time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
	StdDev time.Duration
}

// Summaries returns one Summary per kind, ordered by kind.
func (s *Stats) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.latencies))
	for kind, lat := range s.latencies {
		out = append(out, summarize(kind, lat))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func summarize(kind string, lat []time.Duration) Summary {
	sorted := append([]time.Duration(nil), lat...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sum := Summary{Kind: kind, Count: len(sorted)}
	if len(sorted) == 0 {
		return sum
	}
	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	avg := total / time.Duration(len(sorted))
	var sq float64
	for _, l := range sorted {
		d := float64(l - avg)
		sq += d * d
	}
	sum.Min = sorted[0]
	sum.Max = sorted[len(sorted)-1]
	sum.Avg = avg
	sum.P50 = percentile(sorted, 50)
	sum.P95 = percentile(sorted, 95)
	sum.P99 = percentile(sorted, 99)
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(sorted))))
	return sum
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Report writes the human-readable summary of a run lasting elapsed.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) {
	summaries := s.Summaries()

	s.mu.Lock()
	requests, errors, hits := s.requests, s.errors, s.cacheHits
	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	counts := make([]int, len(codes))
	for i, c := range codes {
		counts[i] = s.codes[c]
	}
	s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", requests)
	fmt.Fprintf(w, "Errors:          %d\n", errors)
	if requests > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errors)/float64(requests)*100)
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(hits)/float64(requests)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(requests)/elapsed.Seconds())
	}

	for _, sum := range summaries {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "=== %s (%d) ===\n", sum.Kind, sum.Count)
		fmt.Fprintf(w, "Min %s  Avg %s  P50 %s  P95 %s  P99 %s  Max %s  StdDev %s\n",
			sum.Min, sum.Avg, sum.P50, sum.P95, sum.P99, sum.Max, sum.StdDev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for i, c := range codes {
		fmt.Fprintf(w, "  %d: %d\n", c, counts[i])
	}
}
