package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/library"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
)

var _ library.Store = (*Store)(nil)

const bookColumns = `id, title, language, description, subjects, bookshelves,
	cover_image, download_count, copyright`

func scanBook(row interface{ Scan(...any) error }, b *library.Book, extra ...any) error {
	dest := append([]any{&b.ID, &b.Title, &b.Language, &b.Description, &b.Subjects,
		&b.Bookshelves, &b.CoverImage, &b.DownloadCount, &b.Copyright}, extra...)
	return row.Scan(dest...)
}

func (s *Store) ListBooks(ctx context.Context, offset, limit int) ([]library.Book, int, error) {
	total, err := s.CountDocuments(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books
		  ORDER BY download_count DESC, id
		  LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []library.Book
	for rows.Next() {
		var b library.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, 0, fmt.Errorf("scanning book row: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}
	if err := s.attachAuthors(ctx, books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (s *Store) GetBook(ctx context.Context, id int64, withText bool) (*library.Book, error) {
	var b library.Book
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+`, CASE WHEN $2 THEN text_content ELSE '' END
		   FROM books WHERE id = $1`,
		id, withText)
	if err := scanBook(row, &b, &b.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "book %d not found", id)
		}
		return nil, fmt.Errorf("loading book %d: %w", id, err)
	}
	books := []library.Book{b}
	if err := s.attachAuthors(ctx, books); err != nil {
		return nil, err
	}
	return &books[0], nil
}

func (s *Store) attachAuthors(ctx context.Context, books []library.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]int64, len(books))
	byID := make(map[int64]int, len(books))
	for i, b := range books {
		ids[i] = b.ID
		byID[b.ID] = i
		books[i].Authors = []library.Author{}
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT ba.book_id, a.id, a.name, a.birth_year, a.death_year
		   FROM book_authors ba JOIN authors a ON a.id = ba.author_id
		  WHERE ba.book_id = ANY($1)
		  ORDER BY a.name`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("loading authors of %d books: %w", len(ids), err)
	}
	defer rows.Close()
	for rows.Next() {
		var bookID int64
		var a library.Author
		if err := rows.Scan(&bookID, &a.ID, &a.Name, &a.BirthYear, &a.DeathYear); err != nil {
			return fmt.Errorf("scanning author row: %w", err)
		}
		i := byID[bookID]
		books[i].Authors = append(books[i].Authors, a)
	}
	return rows.Err()
}

func (s *Store) ListAuthors(ctx context.Context) ([]library.Author, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, birth_year, death_year FROM authors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer rows.Close()
	var authors []library.Author
	for rows.Next() {
		var a library.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.BirthYear, &a.DeathYear); err != nil {
			return nil, fmt.Errorf("scanning author row: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (s *Store) GetAuthor(ctx context.Context, id int64) (*library.AuthorDetail, error) {
	d := &library.AuthorDetail{Books: []library.BookRef{}}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, birth_year, death_year FROM authors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.BirthYear, &d.DeathYear)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "author %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading author %d: %w", id, err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT b.id, b.title
		   FROM book_authors ba JOIN books b ON b.id = ba.book_id
		  WHERE ba.author_id = $1
		  ORDER BY b.download_count DESC, b.id`, id)
	if err != nil {
		return nil, fmt.Errorf("loading books of author %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref library.BookRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		d.Books = append(d.Books, ref)
	}
	return d, rows.Err()
}
