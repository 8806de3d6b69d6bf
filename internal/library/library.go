// Package library serves the browsable book and author catalogue: paginated
// listings and detail views over the stored books.
package library

import "context"

type Author struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

type Book struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Authors       []Author `json:"authors"`
	Language      string   `json:"language"`
	Description   string   `json:"description"`
	Subjects      string   `json:"subjects"`
	Bookshelves   string   `json:"bookshelves"`
	CoverImage    string   `json:"cover_image"`
	DownloadCount int      `json:"download_count"`
	Copyright     bool     `json:"copyright"`
	Text          string   `json:"text_content,omitempty"`
}

// BookRef is the short form of a book listed under its author.
type BookRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type AuthorDetail struct {
	Author
	Books []BookRef `json:"books"`
}

// Store reads the catalogue. Get methods return apperrors.ErrDocumentNotFound
// for unknown ids.
type Store interface {
	// ListBooks returns one page of books ordered by popularity and the total
	// number of books.
	ListBooks(ctx context.Context, offset, limit int) ([]Book, int, error)
	GetBook(ctx context.Context, id int64, withText bool) (*Book, error)
	ListAuthors(ctx context.Context) ([]Author, error)
	GetAuthor(ctx context.Context, id int64) (*AuthorDetail, error)
}
