// Package catalog imports books from a Gutendex-compatible API: it pages
// through the catalog, downloads each book's plain text and hands the
// qualifying books to a Sink.
package catalog

import (
	"strings"
	"time"
)

// Page is one page of the catalog listing.
type Page struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []Book `json:"results"`
}

type Person struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

type Book struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Authors       []Person          `json:"authors"`
	Summaries     []string          `json:"summaries"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves"`
	Languages     []string          `json:"languages"`
	Copyright     *bool             `json:"copyright"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
}

var textFormats = []string{
	"text/plain",
	"text/plain; charset=utf-8",
	"text/plain; charset=iso-8859-1",
	"text/plain; charset=us-ascii",
}

// TextURL returns the download URL of the first plain-text format offered.
func (b Book) TextURL() (string, bool) {
	for _, f := range textFormats {
		if u, ok := b.Formats[f]; ok && u != "" {
			return u, true
		}
	}
	return "", false
}

// Language joins the language codes the way documents store them.
func (b Book) Language() string {
	return strings.Join(b.Languages, ", ")
}

func (b Book) Description() string {
	if len(b.Summaries) == 0 {
		return ""
	}
	return b.Summaries[0]
}

func (b Book) CoverImage() string {
	return b.Formats["image/jpeg"]
}

func (b Book) AuthorNames() []string {
	names := make([]string, 0, len(b.Authors))
	for _, a := range b.Authors {
		names = append(names, a.Name)
	}
	return names
}

// ImportEvent is published on books.imported for every newly stored book.
type ImportEvent struct {
	BookID    int64     `json:"book_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}
