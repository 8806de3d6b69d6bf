package index

import "context"

// DocumentReader exposes the book catalog owned by the storage layer.
type DocumentReader interface {
	CountDocuments(ctx context.Context) (int, error)
	// ListDocuments returns every document that has text, most downloaded
	// first.
	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocuments(ctx context.Context, ids []int64, withText bool) ([]Document, error)
	// DocumentsByAuthor matches author names by case-insensitive substring.
	DocumentsByAuthor(ctx context.Context, name string) ([]int64, error)
	// MatchTitles and MatchText apply a case-insensitive regular expression.
	// MatchText only considers the budget most downloaded documents.
	MatchTitles(ctx context.Context, pattern string, limit int) ([]int64, error)
	MatchText(ctx context.Context, pattern string, budget int) ([]int64, error)
}

type IndexWriter interface {
	// Reset clears the inverted and forward indices.
	Reset(ctx context.Context) error
	// Commit writes all postings and forward entries of one document
	// atomically. Rows that already exist for a (term, document) key are
	// left untouched.
	Commit(ctx context.Context, docID int64, postings PostingList, forward []ForwardEntry) error
}

type IndexReader interface {
	Postings(ctx context.Context, terms ...string) (PostingList, error)
	// TopTerms returns the vocabulary ordered by total occurrences
	// descending, then term ascending.
	TopTerms(ctx context.Context, limit int) ([]TermCount, error)
	TermSets(ctx context.Context, ids []int64) (map[int64][]string, error)
	DocumentFrequencies(ctx context.Context) (map[string]int, error)
	// IndexedDocuments counts the documents with at least one posting.
	IndexedDocuments(ctx context.Context) (int, error)
}

type ForwardStore interface {
	ForwardDocuments(ctx context.Context) ([]int64, error)
	ForwardEntries(ctx context.Context, docID int64) ([]ForwardEntry, error)
	UpdateScores(ctx context.Context, docID int64, entries []ForwardEntry) error
}

type Store interface {
	DocumentReader
	IndexWriter
	IndexReader
	ForwardStore
}
