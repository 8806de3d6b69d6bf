package ranker

import "sort"

// ScoredDoc is one ranked document. Score is the occurrence count plus the
// PageRank score.
type ScoredDoc struct {
	DocID       int64   `json:"id"`
	Occurrences int     `json:"occurrences"`
	PageRank    float64 `json:"pagerank"`
	Score       float64 `json:"score"`
}

// TopByOccurrence returns the ids of at most limit documents with the most
// occurrences, ties broken by id.
func TopByOccurrence(counts map[int64]int, limit int) []int64 {
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func score(counts map[int64]int, pr map[int64]float64) []ScoredDoc {
	docs := make([]ScoredDoc, 0, len(counts))
	for id, c := range counts {
		docs = append(docs, ScoredDoc{
			DocID:       id,
			Occurrences: c,
			PageRank:    pr[id],
			Score:       float64(c) + pr[id],
		})
	}
	return docs
}

// RankByOccurrence orders by occurrences, then PageRank, both descending,
// then by id.
func RankByOccurrence(counts map[int64]int, pr map[int64]float64) []ScoredDoc {
	docs := score(counts, pr)
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Occurrences != docs[j].Occurrences {
			return docs[i].Occurrences > docs[j].Occurrences
		}
		if docs[i].PageRank != docs[j].PageRank {
			return docs[i].PageRank > docs[j].PageRank
		}
		return docs[i].DocID < docs[j].DocID
	})
	return docs
}

// RankByScore orders by PageRank plus occurrences descending, then by id.
func RankByScore(counts map[int64]int, pr map[int64]float64) []ScoredDoc {
	docs := score(counts, pr)
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
	return docs
}
