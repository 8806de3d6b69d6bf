package indexer

import (
	"fmt"
	"sort"
	"time"
)

type Mode string

const (
	ModeInverted  Mode = "inverted"
	ModeDual      Mode = "dual"
	ModeTFIDF     Mode = "tfidf"
	ModeRecompute Mode = "recompute"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeInverted, ModeDual, ModeTFIDF, ModeRecompute:
		return m, nil
	case "":
		return ModeInverted, nil
	default:
		return "", fmt.Errorf("unknown index mode %q (want inverted, dual, tfidf or recompute)", s)
	}
}

type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// DocResult is the outcome of processing one document in a build.
type DocResult struct {
	DocID  int64  `json:"doc_id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Terms  int    `json:"terms"`
}

type Report struct {
	Mode     Mode          `json:"mode"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
	Results  []DocResult   `json:"results"`
}

func newReport(mode Mode, results []DocResult) *Report {
	r := &Report{Mode: mode, Results: results}
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].DocID < r.Results[j].DocID
	})
	for _, res := range r.Results {
		switch res.Status {
		case StatusIndexed:
			r.Indexed++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		}
	}
	return r
}

// Failures returns only the failed document results.
func (r *Report) Failures() []DocResult {
	var out []DocResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

func skipped(docID int64, reason string) DocResult {
	return DocResult{DocID: docID, Status: StatusSkipped, Reason: reason}
}

func failed(docID int64, err error) DocResult {
	return DocResult{DocID: docID, Status: StatusFailed, Reason: err.Error()}
}
