package ranker

import "sort"

// SimilarityThreshold is the Jaccard similarity an edge must exceed.
const SimilarityThreshold = 0.1

// Jaccard returns |a ∩ b| / |a ∪ b| over the distinct terms of a and b. Two
// empty sets have similarity 0.
func Jaccard(a, b []string) float64 {
	return jaccardSets(toSet(a), toSet(b))
}

type Edge struct {
	A, B   int64
	Weight float64
}

// Graph is an undirected weighted similarity graph. Nodes are kept sorted
// so every traversal is independent of insertion order.
type Graph struct {
	Nodes []int64
	Edges []Edge
	adj   map[int64][]neighbor
}

type neighbor struct {
	id     int64
	weight float64
}

// BuildGraph compares every unordered pair of nodes and links those whose
// term sets are more than SimilarityThreshold similar. Nodes without a term
// set stay isolated.
func BuildGraph(nodes []int64, termSets map[int64][]string) *Graph {
	g := &Graph{adj: make(map[int64][]neighbor)}
	seen := make(map[int64]struct{}, len(nodes))
	for _, id := range nodes {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Nodes = append(g.Nodes, id)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i] < g.Nodes[j] })

	sets := make([]map[string]struct{}, len(g.Nodes))
	for i, id := range g.Nodes {
		sets[i] = toSet(termSets[id])
	}
	for i := 0; i < len(g.Nodes); i++ {
		for j := i + 1; j < len(g.Nodes); j++ {
			w := jaccardSets(sets[i], sets[j])
			if w <= SimilarityThreshold {
				continue
			}
			a, b := g.Nodes[i], g.Nodes[j]
			g.Edges = append(g.Edges, Edge{A: a, B: b, Weight: w})
			g.adj[a] = append(g.adj[a], neighbor{id: b, weight: w})
			g.adj[b] = append(g.adj[b], neighbor{id: a, weight: w})
		}
	}
	return g
}

func (g *Graph) Degree(id int64) int {
	return len(g.adj[id])
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}
