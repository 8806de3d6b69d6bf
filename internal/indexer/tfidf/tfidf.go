// Package tfidf holds corpus statistics and the single weighting function
// shared by the full build and the recompute path.
package tfidf

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
)

type Weights struct {
	TF    float64
	IDF   float64
	TFIDF float64
}

// Stats is the document frequency of every term plus the number of
// documents that contributed at least one term.
type Stats struct {
	N  int
	DF map[string]int
}

func NewStats() *Stats {
	return &Stats{DF: make(map[string]int)}
}

func FromFrequencies(n int, df map[string]int) *Stats {
	if df == nil {
		df = make(map[string]int)
	}
	return &Stats{N: n, DF: df}
}

// AddDocument counts each distinct term of a document once. Documents with
// no terms do not change N.
func (s *Stats) AddDocument(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	s.N++
	for term := range counts {
		s.DF[term]++
	}
}

// IDF returns ln(N/df). A term the corpus has never seen is treated as
// df = 1.
func (s *Stats) IDF(term string) float64 {
	if s.N == 0 {
		return 0
	}
	df := s.DF[term]
	if df < 1 {
		df = 1
	}
	if df >= s.N {
		return 0
	}
	return math.Log(float64(s.N) / float64(df))
}

// Weigh computes tf, idf and tfidf for every term of one document. It
// returns nil for a document without terms.
func (s *Stats) Weigh(counts map[string]int) map[string]Weights {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}
	weights := make(map[string]Weights, len(counts))
	for term, c := range counts {
		tf := float64(c) / float64(total)
		idf := s.IDF(term)
		weights[term] = Weights{TF: tf, IDF: idf, TFIDF: tf * idf}
	}
	return weights
}

// Score fills the weights of forward entries from their stored counts.
func (s *Stats) Score(entries []index.ForwardEntry) []index.ForwardEntry {
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.Term] += e.Count
	}
	weights := s.Weigh(counts)
	if weights == nil {
		return nil
	}
	scored := make([]index.ForwardEntry, len(entries))
	for i, e := range entries {
		w := weights[e.Term]
		e.TF, e.IDF, e.TFIDF, e.Scored = w.TF, w.IDF, w.TFIDF, true
		scored[i] = e
	}
	return scored
}

func Counts(positions map[string][]int) map[string]int {
	counts := make(map[string]int, len(positions))
	for term, pos := range positions {
		counts[term] = len(pos)
	}
	return counts
}
