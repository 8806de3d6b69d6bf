package indexer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
)

var corpus = []index.Document{
	{ID: 1, Title: "Moby Dick", Language: "en", DownloadCount: 300,
		Text: "Call me Ishmael. The whale, the white whale, swam past the ship."},
	{ID: 2, Title: "Le Comte de Monte-Cristo", Language: "fr", DownloadCount: 200,
		Text: "Le navire entra dans le port de Marseille avec la baleine."},
	{ID: 3, Title: "Twenty Thousand Leagues", Language: "en", DownloadCount: 100,
		Text: "The submarine hunted the whale across the deep sea."},
	{ID: 4, Title: "Blank", Language: "en", DownloadCount: 50},
	{ID: 5, Title: "Only stopwords", Language: "en", DownloadCount: 10, Text: "the and of to"},
}

func newTestStore(t *testing.T) *index.MemoryStore {
	t.Helper()
	s := index.NewMemoryStore()
	for _, d := range corpus {
		if err := s.SaveDocument(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func newTestEngine(store index.Store, opts ...Option) *Engine {
	return NewEngine(store, config.IndexerConfig{Parallelism: 2}, opts...)
}

func TestRebuildReport(t *testing.T) {
	store := newTestStore(t)
	report, err := newTestEngine(store).Rebuild(context.Background(), ModeInverted)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Indexed != 3 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Results[len(report.Results)-1].DocID != 5 || report.Results[len(report.Results)-1].Reason != "no qualifying terms" {
		t.Errorf("stopword-only document should be skipped: %+v", report.Results)
	}

	postings, _ := store.Postings(context.Background(), "whale")
	if len(postings) != 2 {
		t.Fatalf("whale postings = %+v", postings)
	}
	if postings[0].DocID != 1 || postings[0].Count != 2 {
		t.Errorf("unexpected posting %+v", postings[0])
	}
	if fwd, _ := store.ForwardDocuments(context.Background()); len(fwd) != 0 {
		t.Errorf("inverted mode wrote forward entries for %v", fwd)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	e := newTestEngine(store)
	for i := 0; i < 2; i++ {
		if _, err := e.Rebuild(ctx, ModeDual); err != nil {
			t.Fatal(err)
		}
	}
	// re-index one document on top of the existing rows
	e.IndexDocument(ctx, corpus[0], true)

	postings, _ := store.Postings(ctx, "whale", "ishmael")
	seen := make(map[[2]any]bool)
	for _, p := range postings {
		key := [2]any{p.Term, p.DocID}
		if seen[key] {
			t.Fatalf("duplicate posting %v", key)
		}
		seen[key] = true
	}
	entries, _ := store.ForwardEntries(ctx, 1)
	for _, fe := range entries {
		if fe.Scored || fe.TFIDF != 0 {
			t.Errorf("dual build should leave weights blank: %+v", fe)
		}
	}
}

func TestLanguageStopwordsApplied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := newTestEngine(store).Rebuild(ctx, ModeInverted); err != nil {
		t.Fatal(err)
	}
	if p, _ := store.Postings(ctx, "le"); len(p) != 0 {
		t.Errorf("french stopword indexed: %+v", p)
	}
	if p, _ := store.Postings(ctx, "marseille"); len(p) != 1 {
		t.Errorf("expected marseille posting, got %+v", p)
	}
}

func TestRecomputeMatchesFullBuild(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	e := newTestEngine(store)
	if _, err := e.BuildTFIDF(ctx); err != nil {
		t.Fatal(err)
	}

	before := snapshot(t, store)
	for _, entries := range before {
		for _, fe := range entries {
			if !fe.Scored || fe.TF < 0 || fe.TF > 1 || fe.IDF < 0 || fe.TFIDF < 0 {
				t.Fatalf("entry out of range: %+v", fe)
			}
			if len([]rune(fe.Term)) < 3 {
				t.Fatalf("scoring build kept short term %q", fe.Term)
			}
		}
	}

	report, err := e.RecomputeTFIDF(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != len(before) {
		t.Fatalf("recompute touched %d documents, want %d", report.Indexed, len(before))
	}
	after := snapshot(t, store)
	for id, entries := range before {
		for i, fe := range entries {
			got := after[id][i]
			if math.Abs(got.TFIDF-fe.TFIDF) > 1e-12 || math.Abs(got.IDF-fe.IDF) > 1e-12 {
				t.Errorf("doc %d term %s: recompute %+v, full %+v", id, fe.Term, got, fe)
			}
		}
	}
}

func storeWith(t *testing.T, docs ...index.Document) *index.MemoryStore {
	t.Helper()
	s := index.NewMemoryStore()
	for _, d := range docs {
		if err := s.SaveDocument(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func weights(t *testing.T, store *index.MemoryStore) map[int64]map[string]index.ForwardEntry {
	t.Helper()
	out := make(map[int64]map[string]index.ForwardEntry)
	for id, entries := range snapshot(t, store) {
		out[id] = make(map[string]index.ForwardEntry, len(entries))
		for _, fe := range entries {
			out[id][fe.Term] = fe
		}
	}
	return out
}

func TestTFIDFWeights(t *testing.T) {
	ctx := context.Background()
	store := storeWith(t,
		index.Document{ID: 1, Text: "cat sat mat", DownloadCount: 2},
		index.Document{ID: 2, Text: "cat", DownloadCount: 1},
	)
	if _, err := newTestEngine(store).BuildTFIDF(ctx); err != nil {
		t.Fatal(err)
	}
	doc1 := weights(t, store)[1]
	if got := doc1["cat"]; math.Abs(got.TF-1.0/3) > 1e-12 || got.IDF != 0 || got.TFIDF != 0 {
		t.Errorf("cat: %+v", got)
	}
	sat := doc1["sat"]
	if math.Abs(sat.IDF-math.Ln2) > 1e-12 || math.Abs(sat.TFIDF-0.231) > 1e-3 {
		t.Errorf("sat: %+v", sat)
	}
}

func TestRecomputeRestoresFullBuildWeights(t *testing.T) {
	ctx := context.Background()
	docs := []index.Document{
		{ID: 1, Text: "whale ship ocean whale", DownloadCount: 4},
		{ID: 2, Text: "ship harbor", DownloadCount: 3},
		{ID: 3, Text: "ocean storm whale sailor", DownloadCount: 2},
		{ID: 4, Text: "harbor lights harbor", DownloadCount: 1},
	}

	full := storeWith(t, docs...)
	if _, err := newTestEngine(full).BuildTFIDF(ctx); err != nil {
		t.Fatal(err)
	}
	recomputed := storeWith(t, docs...)
	e := newTestEngine(recomputed)
	if _, err := e.Rebuild(ctx, ModeDual); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecomputeTFIDF(ctx); err != nil {
		t.Fatal(err)
	}

	want, got := weights(t, full), weights(t, recomputed)
	if len(got) != len(want) {
		t.Fatalf("recomputed %d documents, full build %d", len(got), len(want))
	}
	for id, terms := range want {
		if len(got[id]) != len(terms) {
			t.Fatalf("doc %d: %d terms, want %d", id, len(got[id]), len(terms))
		}
		for term, w := range terms {
			g := got[id][term]
			if !g.Scored || math.Abs(g.TF-w.TF) > 1e-12 || math.Abs(g.IDF-w.IDF) > 1e-12 || math.Abs(g.TFIDF-w.TFIDF) > 1e-12 {
				t.Errorf("doc %d %s: recompute %+v, full %+v", id, term, g, w)
			}
		}
	}
	if w := want[4]["lights"]; w.TFIDF == 0 {
		t.Fatalf("expected a non-zero weight for a rare term: %+v", w)
	}
}

func TestRecomputeCountsInvertedOnlyDocuments(t *testing.T) {
	ctx := context.Background()
	store := storeWith(t,
		index.Document{ID: 1, Text: "cat sat mat", DownloadCount: 2},
		index.Document{ID: 2, Text: "cat", DownloadCount: 1},
	)
	e := newTestEngine(store)
	if _, err := e.BuildTFIDF(ctx); err != nil {
		t.Fatal(err)
	}
	if res := e.IndexDocument(ctx, index.Document{ID: 3, Text: "sat dog"}, false); res.Status != StatusIndexed {
		t.Fatalf("IndexDocument: %+v", res)
	}
	if _, err := e.RecomputeTFIDF(ctx); err != nil {
		t.Fatal(err)
	}

	n, _ := store.IndexedDocuments(ctx)
	df, _ := store.DocumentFrequencies(ctx)
	if n != 3 {
		t.Fatalf("indexed documents = %d, want 3", n)
	}
	for term, f := range df {
		if f < 1 || f > n {
			t.Errorf("df(%s) = %d outside [1, %d]", term, f, n)
		}
	}
	sat := weights(t, store)[1]["sat"]
	if math.Abs(sat.IDF-math.Log(1.5)) > 1e-12 {
		t.Errorf("idf(sat) = %v, want ln(3/2)", sat.IDF)
	}
}

func TestRecomputeScoresDualBuild(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	e := newTestEngine(store)
	if _, err := e.Run(ctx, ModeDual); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(ctx, ModeRecompute); err != nil {
		t.Fatal(err)
	}
	for _, entries := range snapshot(t, store) {
		for _, fe := range entries {
			if !fe.Scored {
				t.Fatalf("entry left unscored: %+v", fe)
			}
		}
	}
}

type failingStore struct {
	*index.MemoryStore
	failID int64
}

func (f failingStore) Commit(ctx context.Context, docID int64, p index.PostingList, fwd []index.ForwardEntry) error {
	if docID == f.failID {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Commit(ctx, docID, p, fwd)
}

func TestCommitFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	mem := newTestStore(t)
	report, err := newTestEngine(failingStore{MemoryStore: mem, failID: 3}).Rebuild(ctx, ModeInverted)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 || report.Indexed != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f := report.Failures(); len(f) != 1 || f[0].DocID != 3 {
		t.Errorf("failures = %+v", f)
	}
	if p, _ := mem.Postings(ctx, "submarine"); len(p) != 0 {
		t.Errorf("failed document left postings behind: %+v", p)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestBuildAnnouncesCompletion(t *testing.T) {
	pub := &recordingPublisher{}
	if _, err := newTestEngine(newTestStore(t), WithPublisher(pub)).Run(context.Background(), ModeTFIDF); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	ev, ok := pub.events[0].Value.(analytics.IndexEvent)
	if !ok || ev.Mode != "tfidf" || ev.Indexed != 3 {
		t.Errorf("unexpected event %+v", pub.events[0])
	}
}

func TestConcurrentBuildRejected(t *testing.T) {
	e := newTestEngine(newTestStore(t))
	e.running.Store(true)
	if _, err := e.Run(context.Background(), ModeInverted); !errors.Is(err, apperrors.ErrIndexBusy) {
		t.Fatalf("expected ErrIndexBusy, got %v", err)
	}
}

type gatedStore struct {
	*index.MemoryStore
	gate chan struct{}
}

func (g gatedStore) Reset(ctx context.Context) error {
	<-g.gate
	return g.MemoryStore.Reset(ctx)
}

func TestStartClaimsEngine(t *testing.T) {
	store := gatedStore{MemoryStore: newTestStore(t), gate: make(chan struct{})}
	e := newTestEngine(store)

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	err := e.Start(context.Background(), ModeInverted, func(r *Report, err error) { done <- outcome{r, err} })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.Running() {
		t.Fatal("engine should be claimed before Start returns")
	}
	if err := e.Start(context.Background(), ModeDual, nil); !errors.Is(err, apperrors.ErrIndexBusy) {
		t.Errorf("second Start: expected ErrIndexBusy, got %v", err)
	}
	if _, err := e.Run(context.Background(), ModeTFIDF); !errors.Is(err, apperrors.ErrIndexBusy) {
		t.Errorf("Run during Start: expected ErrIndexBusy, got %v", err)
	}

	close(store.gate)
	got := <-done
	if got.err != nil || got.report.Indexed != 3 {
		t.Fatalf("unexpected outcome %+v, %v", got.report, got.err)
	}
	if e.Running() {
		t.Error("engine still claimed after done")
	}
	if err := e.Start(context.Background(), "bm25", nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("unknown mode: %v", err)
	}
}

func TestCancelledRebuildIsNotAnnounced(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(newTestStore(t), WithPublisher(pub)).Rebuild(ctx, ModeInverted)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("cancelled build announced: %+v", pub.events)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("dual"); err != nil || m != ModeDual {
		t.Errorf("ParseMode(dual) = %v, %v", m, err)
	}
	if _, err := ParseMode("bm25"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRunPoolDrainsAllResults(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	out := runPool(context.Background(), 4, items, func(_ context.Context, n int) int { return n * 2 })
	if len(out) != 100 {
		t.Fatalf("got %d results", len(out))
	}
	sum := 0
	for _, v := range out {
		sum += v
	}
	if sum != 9900 {
		t.Errorf("sum = %d", sum)
	}
	if got := runPool(context.Background(), 2, []int{}, func(_ context.Context, n int) int { return n }); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
}

func snapshot(t *testing.T, store *index.MemoryStore) map[int64][]index.ForwardEntry {
	t.Helper()
	ctx := context.Background()
	ids, err := store.ForwardDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[int64][]index.ForwardEntry, len(ids))
	for _, id := range ids {
		out[id], _ = store.ForwardEntries(ctx, id)
	}
	return out
}

func BenchmarkBuild(b *testing.B) {
	words := []string{"whale", "ship", "harpoon", "captain", "ocean", "storm", "island", "sailor", "the", "and"}
	store := index.NewMemoryStore()
	for i := 0; i < 100; i++ {
		text := ""
		for j := 0; j < 500; j++ {
			text += words[(i*7+j*j)%len(words)] + " "
		}
		if err := store.SaveDocument(context.Background(), index.Document{ID: int64(i + 1), Text: text}); err != nil {
			b.Fatal(err)
		}
	}
	for _, mode := range []Mode{ModeInverted, ModeDual, ModeTFIDF} {
		b.Run(string(mode), func(b *testing.B) {
			engine := NewEngine(store, config.IndexerConfig{Parallelism: 4})
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Run(context.Background(), mode); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
