package ranker

const (
	Damping       = 0.85
	Tolerance     = 1e-6
	MaxIterations = 100
)

// PageRank scores every node of g and reports how many power iterations
// ran.
//
// Isolated nodes receive exactly 1/N. The m connected nodes share the
// remaining m/N in proportion to their weighted PageRank within the
// connected subgraph, computed by power iteration from a uniform start.
// Iteration stops after the first step whose L1 change is below
// Tolerance*m, or after MaxIterations steps. Scores sum to 1.
func PageRank(g *Graph) (map[int64]float64, int) {
	n := len(g.Nodes)
	scores := make(map[int64]float64, n)
	if n == 0 {
		return scores, 0
	}
	baseline := 1 / float64(n)

	var connected []int64
	for _, id := range g.Nodes {
		if g.Degree(id) == 0 {
			scores[id] = baseline
		} else {
			connected = append(connected, id)
		}
	}
	m := len(connected)
	if m == 0 {
		return scores, 0
	}

	pos := make(map[int64]int, m)
	for i, id := range connected {
		pos[id] = i
	}
	out := make([]float64, m)
	for i, id := range connected {
		for _, nb := range g.adj[id] {
			out[i] += nb.weight
		}
	}

	x := make([]float64, m)
	for i := range x {
		x[i] = 1 / float64(m)
	}
	next := make([]float64, m)
	teleport := (1 - Damping) / float64(m)
	iterations := 0
	for iterations < MaxIterations {
		iterations++
		for i := range next {
			next[i] = teleport
		}
		for i, id := range connected {
			share := Damping * x[i] / out[i]
			for _, nb := range g.adj[id] {
				next[pos[nb.id]] += share * nb.weight
			}
		}
		delta := 0.0
		for i := range x {
			d := next[i] - x[i]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		x, next = next, x
		if delta < Tolerance*float64(m) {
			break
		}
	}

	mass := float64(m) / float64(n)
	for i, id := range connected {
		scores[id] = x[i] * mass
	}
	return scores, iterations
}
