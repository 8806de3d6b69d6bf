package storage

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/postgres"
)

func TestTranslate(t *testing.T) {
	err := translate(&pq.Error{Code: codeInvalidRegex, Message: "invalid regular expression: parentheses () not balanced"})
	if !errors.Is(err, apperrors.ErrInvalidInput) || apperrors.HTTPStatusCode(err) != 400 {
		t.Errorf("invalid regex should map to a 400, got %v", err)
	}
	if err := translate(&pq.Error{Code: codeQueryCanceled}); !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("query cancel should map to a timeout, got %v", err)
	}
	plain := errors.New("boom")
	if translate(plain) != plain {
		t.Error("non-postgres errors should pass through")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

// newTestStore connects to the database named by SP_TEST_POSTGRES and
// empties every table. Never point it at a database with real data.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("SP_TEST_POSTGRES") == "" {
		t.Skip("SP_TEST_POSTGRES not set, skipping postgres integration test")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.DB.ExecContext(ctx,
		`TRUNCATE books, authors, book_authors, inverted_index, forward_index, analytics_snapshots CASCADE`); err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	docs := []index.Document{
		{ID: 1, Title: "Moby Dick", Language: "en", Text: "the whale the whale the sea", Authors: []string{"Melville, Herman"}, DownloadCount: 10},
		{ID: 2, Title: "The Sea Wolf", Language: "en", Text: "the sea wolf", Authors: []string{"London, Jack"}, DownloadCount: 30},
		{ID: 3, Title: "Empty", Language: "en", DownloadCount: 5},
	}
	for _, d := range docs {
		created, err := s.SaveDocument(context.Background(), d)
		if err != nil || !created {
			t.Fatalf("saving %d: created=%v err=%v", d.ID, created, err)
		}
	}
}

func TestSaveBookIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	book := catalog.Book{ID: 7, Title: "Les Misérables", Languages: []string{"fr"}, Authors: []catalog.Person{{Name: "Hugo, Victor"}}}
	if created, err := s.SaveBook(ctx, book, "text"); err != nil || !created {
		t.Fatalf("first save: %v %v", created, err)
	}
	book.Title = "changed"
	book.Authors = append(book.Authors, catalog.Person{Name: "Translator, A"})
	if created, err := s.SaveBook(ctx, book, "other"); err != nil || created {
		t.Fatalf("second save: %v %v", created, err)
	}
	docs, err := s.GetDocuments(ctx, []int64{7}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Title != "Les Misérables" || docs[0].Text != "text" || len(docs[0].Authors) != 2 {
		t.Errorf("unexpected stored book %+v", docs)
	}
}

func TestDocumentQueries(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if n, err := s.CountDocuments(ctx); err != nil || n != 3 {
		t.Errorf("CountDocuments = %d, %v", n, err)
	}
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != 2 || docs[1].Authors[0] != "Melville, Herman" {
		t.Errorf("ListDocuments = %+v", docs)
	}
	if ids, _ := s.DocumentsByAuthor(ctx, "melville"); !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("DocumentsByAuthor = %v", ids)
	}
	if ids, _ := s.MatchTitles(ctx, "^the", 0); !reflect.DeepEqual(ids, []int64{2}) {
		t.Errorf("MatchTitles = %v", ids)
	}
	if ids, _ := s.MatchText(ctx, "wh.le", 1); len(ids) != 0 {
		t.Errorf("MatchText over budget 1 should only scan book 2, got %v", ids)
	}
	if ids, _ := s.MatchText(ctx, "WH.LE", 0); !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("MatchText = %v", ids)
	}
	if _, err := s.MatchTitles(ctx, "(unclosed", 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("invalid regex error = %v", err)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	engine := indexer.NewEngine(s, config.IndexerConfig{Parallelism: 2})
	report, err := engine.Run(ctx, indexer.ModeTFIDF)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 2 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}

	postings, err := s.Postings(ctx, "whale", "sea")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 3 || postings[2].Term != "whale" || !reflect.DeepEqual(postings[2].Positions, []int{4, 14}) {
		t.Errorf("postings = %+v", postings)
	}
	top, _ := s.TopTerms(ctx, 1)
	if len(top) != 1 || top[0] != (index.TermCount{Term: "sea", Total: 2}) {
		t.Errorf("TopTerms = %+v", top)
	}
	df, _ := s.DocumentFrequencies(ctx)
	if df["sea"] != 2 || df["whale"] != 1 {
		t.Errorf("df = %v", df)
	}
	sets, _ := s.TermSets(ctx, []int64{1, 2})
	if !reflect.DeepEqual(sets[2], []string{"sea", "wolf"}) {
		t.Errorf("term sets = %v", sets)
	}

	before, _ := s.ForwardEntries(ctx, 1)
	if _, err := engine.Run(ctx, indexer.ModeRecompute); err != nil {
		t.Fatal(err)
	}
	after, _ := s.ForwardEntries(ctx, 1)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("recompute changed weights:\n%+v\n%+v", before, after)
	}

	// Re-committing existing rows is a no-op.
	if err := s.Commit(ctx, 1, postings[2:], nil); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if snap, err := s.LatestSnapshot(ctx); err != nil || snap != nil {
		t.Fatalf("empty table: %v %v", snap, err)
	}
	if err := s.SaveSnapshot(ctx, analytics.AggregatedStats{TotalSearches: 9}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.LatestSnapshot(ctx)
	if err != nil || snap == nil || snap.TotalSearches != 9 {
		t.Errorf("latest = %+v, %v", snap, err)
	}
}

func TestLibraryQueries(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	books, total, err := s.ListBooks(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(books) != 2 || books[0].ID != 2 || books[1].ID != 1 {
		t.Fatalf("ListBooks = %+v, total %d", books, total)
	}
	if len(books[1].Authors) != 1 || books[1].Authors[0].Name != "Melville, Herman" || books[1].Text != "" {
		t.Errorf("listed book = %+v", books[1])
	}
	if books, _, _ := s.ListBooks(ctx, 10, 2); len(books) != 0 {
		t.Errorf("offset past the end returned %v", books)
	}

	book, err := s.GetBook(ctx, 1, true)
	if err != nil || book.Text != "the whale the whale the sea" || book.Language != "en" {
		t.Fatalf("GetBook = %+v, %v", book, err)
	}
	if _, err := s.GetBook(ctx, 404, false); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing book error = %v", err)
	}

	authors, err := s.ListAuthors(ctx)
	if err != nil || len(authors) != 2 || authors[0].Name != "London, Jack" {
		t.Fatalf("ListAuthors = %+v, %v", authors, err)
	}
	detail, err := s.GetAuthor(ctx, authors[1].ID)
	if err != nil || len(detail.Books) != 1 || detail.Books[0].Title != "Moby Dick" {
		t.Errorf("GetAuthor = %+v, %v", detail, err)
	}
	if _, err := s.GetAuthor(ctx, -1); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing author error = %v", err)
	}
}
