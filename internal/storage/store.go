package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/postgres"
)

// PostgreSQL error codes the store translates.
const (
	codeInvalidRegex  = "2201B"
	codeQueryCanceled = "57014"
)

// Store implements index.Store on PostgreSQL. Positions are stored as
// INTEGER[] columns.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

var _ index.Store = (*Store)(nil)

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("storage"),
	}
}

const documentColumns = `b.id, b.title, b.language, b.download_count,
	ARRAY(SELECT a.name FROM book_authors ba JOIN authors a ON a.id = ba.author_id
	      WHERE ba.book_id = b.id ORDER BY a.name)`

func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting books: %w", err)
	}
	return n, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]index.Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+documentColumns+`, b.text_content
		   FROM books b
		  WHERE b.text_content <> ''
		  ORDER BY b.download_count DESC, b.id`)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return scanDocuments(rows)
}

func (s *Store) GetDocuments(ctx context.Context, ids []int64, withText bool) ([]index.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+documentColumns+`, CASE WHEN $2 THEN b.text_content ELSE '' END
		   FROM books b
		  WHERE b.id = ANY($1)
		  ORDER BY b.download_count DESC, b.id`,
		pq.Array(ids), withText)
	if err != nil {
		return nil, fmt.Errorf("loading %d books: %w", len(ids), err)
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]index.Document, error) {
	defer rows.Close()
	var docs []index.Document
	for rows.Next() {
		var d index.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Language, &d.DownloadCount, pq.Array(&d.Authors), &d.Text); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) DocumentsByAuthor(ctx context.Context, name string) ([]int64, error) {
	return s.queryIDs(ctx, "finding books by author",
		`SELECT DISTINCT ba.book_id
		   FROM book_authors ba JOIN authors a ON a.id = ba.author_id
		  WHERE a.name ILIKE '%' || $1::text || '%'
		  ORDER BY ba.book_id`,
		escapeLike(name))
}

func (s *Store) MatchTitles(ctx context.Context, pattern string, limit int) ([]int64, error) {
	return s.queryIDs(ctx, "matching titles",
		`SELECT id FROM books WHERE title ~* $1 ORDER BY id LIMIT NULLIF($2, 0)`,
		pattern, max(limit, 0))
}

func (s *Store) MatchText(ctx context.Context, pattern string, budget int) ([]int64, error) {
	return s.queryIDs(ctx, "matching book text",
		`SELECT id FROM (
			SELECT id, text_content, download_count FROM books
			 WHERE text_content <> ''
			 ORDER BY download_count DESC, id
			 LIMIT NULLIF($2, 0)
		 ) popular
		 WHERE text_content ~* $1
		 ORDER BY download_count DESC, id`,
		pattern, max(budget, 0))
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, `TRUNCATE inverted_index, forward_index`); err != nil {
		return fmt.Errorf("truncating indices: %w", err)
	}
	return nil
}

// Commit inserts the document's rows in one transaction. Existing
// (term, book) rows are kept as they are.
func (s *Store) Commit(ctx context.Context, docID int64, postings index.PostingList, forward []index.ForwardEntry) error {
	for _, p := range postings {
		if p.DocID != docID {
			return fmt.Errorf("posting for %q belongs to document %d, not %d", p.Term, p.DocID, docID)
		}
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		inv, err := tx.PrepareContext(ctx,
			`INSERT INTO inverted_index (term, book_id, occurrences, positions)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (term, book_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing inverted insert: %w", err)
		}
		defer inv.Close()
		for _, p := range postings {
			if _, err := inv.ExecContext(ctx, p.Term, docID, p.Count, pq.Array(toInt64(p.Positions))); err != nil {
				return fmt.Errorf("inserting posting %q for book %d: %w", p.Term, docID, err)
			}
		}

		if len(forward) == 0 {
			return nil
		}
		fwd, err := tx.PrepareContext(ctx,
			`INSERT INTO forward_index (book_id, term, occurrences, positions, tf, idf, tfidf, scored)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (book_id, term) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing forward insert: %w", err)
		}
		defer fwd.Close()
		for _, e := range forward {
			if _, err := fwd.ExecContext(ctx, docID, e.Term, e.Count, pq.Array(toInt64(e.Positions)),
				e.TF, e.IDF, e.TFIDF, e.Scored); err != nil {
				return fmt.Errorf("inserting forward entry %q for book %d: %w", e.Term, docID, err)
			}
		}
		return nil
	})
}

func (s *Store) Postings(ctx context.Context, terms ...string) (index.PostingList, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term, book_id, occurrences, positions
		   FROM inverted_index
		  WHERE term = ANY($1)
		  ORDER BY term, book_id`,
		pq.Array(terms))
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	defer rows.Close()

	var postings index.PostingList
	for rows.Next() {
		var p index.Posting
		var positions []int64
		if err := rows.Scan(&p.Term, &p.DocID, &p.Count, pq.Array(&positions)); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		p.Positions = toInt(positions)
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *Store) TopTerms(ctx context.Context, limit int) ([]index.TermCount, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term, SUM(occurrences) AS total
		   FROM inverted_index
		  GROUP BY term
		  ORDER BY total DESC, term
		  LIMIT NULLIF($1, 0)`,
		max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("querying vocabulary: %w", err)
	}
	defer rows.Close()

	var counts []index.TermCount
	for rows.Next() {
		var tc index.TermCount
		if err := rows.Scan(&tc.Term, &tc.Total); err != nil {
			return nil, fmt.Errorf("scanning term count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

func (s *Store) TermSets(ctx context.Context, ids []int64) (map[int64][]string, error) {
	sets := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return sets, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT book_id, term FROM inverted_index WHERE book_id = ANY($1) ORDER BY book_id, term`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying term sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var term string
		if err := rows.Scan(&id, &term); err != nil {
			return nil, fmt.Errorf("scanning term set row: %w", err)
		}
		sets[id] = append(sets[id], term)
	}
	return sets, rows.Err()
}

func (s *Store) DocumentFrequencies(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT term, COUNT(*) FROM inverted_index GROUP BY term`)
	if err != nil {
		return nil, fmt.Errorf("aggregating document frequencies: %w", err)
	}
	defer rows.Close()
	df := make(map[string]int)
	for rows.Next() {
		var term string
		var n int
		if err := rows.Scan(&term, &n); err != nil {
			return nil, fmt.Errorf("scanning document frequency: %w", err)
		}
		df[term] = n
	}
	return df, rows.Err()
}

func (s *Store) IndexedDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT book_id) FROM inverted_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting indexed books: %w", err)
	}
	return n, nil
}

func (s *Store) ForwardDocuments(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, "listing forward documents",
		`SELECT DISTINCT book_id FROM forward_index ORDER BY book_id`)
}

func (s *Store) ForwardEntries(ctx context.Context, docID int64) ([]index.ForwardEntry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term, occurrences, positions, tf, idf, tfidf, scored
		   FROM forward_index
		  WHERE book_id = $1
		  ORDER BY term`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("querying forward entries of book %d: %w", docID, err)
	}
	defer rows.Close()

	var entries []index.ForwardEntry
	for rows.Next() {
		e := index.ForwardEntry{DocID: docID}
		var positions []int64
		if err := rows.Scan(&e.Term, &e.Count, pq.Array(&positions), &e.TF, &e.IDF, &e.TFIDF, &e.Scored); err != nil {
			return nil, fmt.Errorf("scanning forward entry: %w", err)
		}
		e.Positions = toInt(positions)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateScores writes the weights of entries in one transaction and marks
// them scored.
func (s *Store) UpdateScores(ctx context.Context, docID int64, entries []index.ForwardEntry) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE forward_index SET tf = $3, idf = $4, tfidf = $5, scored = TRUE
			  WHERE book_id = $1 AND term = $2`)
		if err != nil {
			return fmt.Errorf("preparing score update: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, docID, e.Term, e.TF, e.IDF, e.TFIDF); err != nil {
				return fmt.Errorf("updating score of %q in book %d: %w", e.Term, docID, err)
			}
		}
		return nil
	})
}

func (s *Store) queryIDs(ctx context.Context, what, query string, args ...any) ([]int64, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(fmt.Errorf("%s: %w", what, err))
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scanning id: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(fmt.Errorf("%s: %w", what, err))
	}
	return ids, nil
}

// translate maps PostgreSQL errors that callers should see as typed
// application errors.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeInvalidRegex:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid pattern: %s", pqErr.Message)
	case codeQueryCanceled:
		return apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "query took too long")
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func toInt(in []int64) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
