package index

import "sort"

type Document struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Language      string   `json:"language"`
	Text          string   `json:"-"`
	Authors       []string `json:"authors"`
	DownloadCount int      `json:"download_count"`
}

type Posting struct {
	Term      string
	DocID     int64
	Positions []int
	Count     int
}

type PostingList []Posting

// ForwardEntry holds the per-document statistics of one term. Entries
// written by a dual-mode build carry raw counts only and have Scored unset
// until the TF-IDF pass fills in the weights.
type ForwardEntry struct {
	DocID     int64
	Term      string
	Count     int
	Positions []int
	TF        float64
	IDF       float64
	TFIDF     float64
	Scored    bool
}

type TermCount struct {
	Term  string
	Total int
}

// NewPostings converts a tokenizer position map into postings for docID,
// sorted by term so commits touch rows in a stable order.
func NewPostings(docID int64, positions map[string][]int) PostingList {
	postings := make(PostingList, 0, len(positions))
	for term, pos := range positions {
		postings = append(postings, Posting{
			Term:      term,
			DocID:     docID,
			Positions: pos,
			Count:     len(pos),
		})
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].Term < postings[j].Term
	})
	return postings
}

// Forward builds unscored forward entries mirroring the postings.
func (pl PostingList) Forward() []ForwardEntry {
	entries := make([]ForwardEntry, 0, len(pl))
	for _, p := range pl {
		entries = append(entries, ForwardEntry{
			DocID:     p.DocID,
			Term:      p.Term,
			Count:     p.Count,
			Positions: p.Positions,
		})
	}
	return entries
}

func (pl PostingList) DocIDs() []int64 {
	seen := make(map[int64]struct{}, len(pl))
	ids := make([]int64, 0, len(pl))
	for _, p := range pl {
		if _, ok := seen[p.DocID]; ok {
			continue
		}
		seen[p.DocID] = struct{}{}
		ids = append(ids, p.DocID)
	}
	return ids
}

// CountsByDoc sums occurrence counts per document across all terms.
func (pl PostingList) CountsByDoc() map[int64]int {
	counts := make(map[int64]int, len(pl))
	for _, p := range pl {
		counts[p.DocID] += p.Count
	}
	return counts
}
