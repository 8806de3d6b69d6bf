package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
)

var _ catalog.Sink = (*Store)(nil)

// SaveBook inserts book unless its id is already stored, then links every
// author. An existing book keeps its row; missing author links are added.
func (s *Store) SaveBook(ctx context.Context, book catalog.Book, text string) (bool, error) {
	created := false
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		copyright := book.Copyright != nil && *book.Copyright
		res, err := tx.ExecContext(ctx,
			`INSERT INTO books (id, title, language, description, subjects, bookshelves,
			                    cover_image, download_count, copyright, text_content)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO NOTHING`,
			book.ID, book.Title, book.Language(), book.Description(),
			strings.Join(book.Subjects, ", "), strings.Join(book.Bookshelves, ", "),
			book.CoverImage(), book.DownloadCount, copyright, text)
		if err != nil {
			return fmt.Errorf("inserting book %d: %w", book.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting book %d: %w", book.ID, err)
		}
		created = n == 1

		for _, a := range book.Authors {
			if err := linkAuthor(ctx, tx, book.ID, a); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// SaveDocument stores a document that did not come from the catalog. It is
// used to seed small corpora.
func (s *Store) SaveDocument(ctx context.Context, doc index.Document) (bool, error) {
	book := catalog.Book{
		ID:            doc.ID,
		Title:         doc.Title,
		DownloadCount: doc.DownloadCount,
	}
	if doc.Language != "" {
		book.Languages = strings.Split(doc.Language, ", ")
	}
	for _, name := range doc.Authors {
		book.Authors = append(book.Authors, catalog.Person{Name: name})
	}
	return s.SaveBook(ctx, book, doc.Text)
}

func linkAuthor(ctx context.Context, tx *sql.Tx, bookID int64, a catalog.Person) error {
	var authorID int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO authors (name, birth_year, death_year)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		a.Name, a.BirthYear, a.DeathYear).Scan(&authorID)
	if err != nil {
		return fmt.Errorf("upserting author %q: %w", a.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO book_authors (book_id, author_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		bookID, authorID); err != nil {
		return fmt.Errorf("linking author %q to book %d: %w", a.Name, bookID, err)
	}
	return nil
}
