package ranker

import (
	"math"
	"math/rand"
	"testing"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"cat", "sat"}, []string{"sat", "cat"}, 1},
		{"disjoint", []string{"cat"}, []string{"dog"}, 0},
		{"partial", []string{"cat", "sat", "mat"}, []string{"cat"}, 1.0 / 3},
		{"duplicates ignored", []string{"cat", "cat"}, []string{"cat"}, 1},
		{"both empty", nil, nil, 0},
		{"one empty", []string{"cat"}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Jaccard = %v, want %v", got, tt.want)
			}
			if rev := Jaccard(tt.b, tt.a); rev != got {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
			if got < 0 || got > 1 {
				t.Errorf("out of bounds: %v", got)
			}
		})
	}
}

func TestBuildGraphThreshold(t *testing.T) {
	sets := map[int64][]string{
		1: {"a", "b", "c"},
		2: {"a"},                                              // 1/3 with 1
		3: {"a", "x", "y", "z", "w", "v", "u", "t", "s", "r"}, // 1/10 with 2: not above threshold
		4: {"q"},
	}
	g := BuildGraph([]int64{4, 3, 2, 1, 2}, sets)
	if len(g.Nodes) != 4 || g.Nodes[0] != 1 || g.Nodes[3] != 4 {
		t.Fatalf("nodes = %v", g.Nodes)
	}
	for _, e := range g.Edges {
		if e.Weight <= SimilarityThreshold {
			t.Errorf("edge %+v at or below threshold", e)
		}
	}
	if g.Degree(2) != 1 || g.Degree(4) != 0 {
		t.Errorf("degrees: 2=%d 4=%d", g.Degree(2), g.Degree(4))
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	sets := map[int64][]string{
		1: {"whale", "sea", "ship"},
		2: {"whale", "sea"},
		3: {"whale", "ship", "captain"},
		4: {"love", "marriage"},
		5: {"love", "ball"},
		6: {"train"},
	}
	scores, iterations := PageRank(BuildGraph([]int64{1, 2, 3, 4, 5, 6}, sets))
	if iterations < 1 || iterations > MaxIterations {
		t.Errorf("iterations = %d", iterations)
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("scores sum to %v", sum)
	}
	if scores[6] != 1.0/6 {
		t.Errorf("isolated node score = %v, want exactly 1/6", scores[6])
	}
	if scores[1] <= scores[2] {
		t.Errorf("best-connected node should outrank: %v", scores)
	}
}

func TestPageRankOrderIndependent(t *testing.T) {
	sets := make(map[int64][]string)
	vocab := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	r := rand.New(rand.NewSource(7))
	ids := make([]int64, 30)
	for i := range ids {
		ids[i] = int64(i + 1)
		for _, w := range vocab {
			if r.Intn(3) == 0 {
				sets[ids[i]] = append(sets[ids[i]], w)
			}
		}
	}
	want, _ := PageRank(BuildGraph(ids, sets))
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]int64(nil), ids...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, _ := PageRank(BuildGraph(shuffled, sets))
		for id, s := range want {
			if got[id] != s {
				t.Fatalf("trial %d: node %d scored %v, want %v", trial, id, got[id], s)
			}
		}
	}
}

func TestPageRankDegenerateGraphs(t *testing.T) {
	scores, it := PageRank(BuildGraph(nil, nil))
	if len(scores) != 0 || it != 0 {
		t.Errorf("empty graph: %v, %d", scores, it)
	}
	scores, it = PageRank(BuildGraph([]int64{3, 1}, map[int64][]string{1: {"a"}, 3: {"b"}}))
	if it != 0 || scores[1] != 0.5 || scores[3] != 0.5 {
		t.Errorf("edgeless graph should be uniform: %v", scores)
	}
}

func TestRankByOccurrence(t *testing.T) {
	counts := map[int64]int{1: 1, 2: 1, 3: 5}
	pr := map[int64]float64{1: 0.2, 2: 0.5, 3: 0.1}
	docs := RankByOccurrence(counts, pr)
	order := []int64{docs[0].DocID, docs[1].DocID, docs[2].DocID}
	if order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("order = %v", order)
	}

	tied := RankByOccurrence(map[int64]int{9: 2, 4: 2}, nil)
	if tied[0].DocID != 4 {
		t.Errorf("ties should break by id: %+v", tied)
	}
}

func TestRankByScore(t *testing.T) {
	docs := RankByScore(map[int64]int{1: 2, 2: 1, 3: 2}, map[int64]float64{1: 0.1, 2: 0.8, 3: 0.1})
	if docs[0].DocID != 1 || docs[1].DocID != 3 || docs[2].DocID != 2 {
		t.Errorf("unexpected order %+v", docs)
	}
	if math.Abs(docs[0].Score-2.1) > 1e-12 {
		t.Errorf("score = %v", docs[0].Score)
	}
}

func TestTopByOccurrence(t *testing.T) {
	ids := TopByOccurrence(map[int64]int{1: 3, 2: 9, 3: 3, 4: 1}, 3)
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 1 || ids[2] != 3 {
		t.Errorf("TopByOccurrence = %v", ids)
	}
}

func BenchmarkRankCandidateCap(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	sets := make(map[int64][]string)
	ids := make([]int64, 50)
	for i := range ids {
		ids[i] = int64(i)
		for w := 0; w < 400; w++ {
			sets[ids[i]] = append(sets[ids[i]], string(rune('a'+r.Intn(26)))+string(rune('a'+r.Intn(26))))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PageRank(BuildGraph(ids, sets))
	}
}
