package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventIndexBuild EventType = "index_build"
)

type SearchKind string

const (
	KindKeyword   SearchKind = "keyword"
	KindPattern   SearchKind = "pattern"
	KindHighlight SearchKind = "highlight"
)

type SearchEvent struct {
	Type      EventType  `json:"type"`
	Kind      SearchKind `json:"kind"`
	Query     string     `json:"query"`
	Author    string     `json:"author,omitempty"`
	TotalHits int        `json:"total_hits"`
	Returned  int        `json:"returned"`
	LatencyMs int64      `json:"latency_ms"`
	CacheHit  bool       `json:"cache_hit"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id"`
}

// IndexEvent is published on index.complete after every build run.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Mode      string    `json:"mode"`
	Indexed   int       `json:"indexed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
