package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
)

type fakeStore struct {
	books   []Book
	authors map[int64]*AuthorDetail
}

func (f *fakeStore) ListBooks(_ context.Context, offset, limit int) ([]Book, int, error) {
	if offset >= len(f.books) {
		return nil, len(f.books), nil
	}
	return f.books[offset:min(offset+limit, len(f.books))], len(f.books), nil
}

func (f *fakeStore) GetBook(_ context.Context, id int64, withText bool) (*Book, error) {
	for _, b := range f.books {
		if b.ID == id {
			if !withText {
				b.Text = ""
			}
			return &b, nil
		}
	}
	return nil, apperrors.ErrDocumentNotFound
}

func (f *fakeStore) ListAuthors(context.Context) ([]Author, error) {
	var out []Author
	for _, a := range f.authors {
		out = append(out, a.Author)
	}
	return out, nil
}

func (f *fakeStore) GetAuthor(_ context.Context, id int64) (*AuthorDetail, error) {
	if a, ok := f.authors[id]; ok {
		return a, nil
	}
	return nil, apperrors.ErrDocumentNotFound
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	melville := Author{ID: 7, Name: "Melville, Herman"}
	store := &fakeStore{authors: map[int64]*AuthorDetail{
		7: {Author: melville, Books: []BookRef{{ID: 2701, Title: "Moby Dick"}}},
	}}
	for i := 1; i <= 12; i++ {
		store.books = append(store.books, Book{ID: int64(i), Title: "Book", Text: "some text"})
	}
	store.books[0] = Book{ID: 2701, Title: "Moby Dick", Authors: []Author{melville}, Text: "Call me Ishmael."}

	mux := http.NewServeMux()
	NewHandler(store, 10, 100).Routes(mux)
	mux.HandleFunc("GET /api/v1/books/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestListBooksPaginates(t *testing.T) {
	srv := newServer(t)
	var page Page
	if code := getJSON(t, srv.URL+"/api/v1/books?page=2", &page); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if page.Count != 12 || page.TotalPages != 2 || len(page.Results) != 2 {
		t.Errorf("page = %+v", page)
	}

	page = Page{}
	getJSON(t, srv.URL+"/api/v1/books?page=9", &page)
	if page.Results == nil || len(page.Results) != 0 {
		t.Errorf("out-of-range page should hold an empty list, got %v", page.Results)
	}
	if code := getJSON(t, srv.URL+"/api/v1/books?page_size=0", nil); code != http.StatusBadRequest {
		t.Errorf("page_size=0 status %d", code)
	}
}

func TestGetBook(t *testing.T) {
	srv := newServer(t)
	var book Book
	if code := getJSON(t, srv.URL+"/api/v1/books/2701", &book); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if book.Title != "Moby Dick" || book.Text != "Call me Ishmael." || len(book.Authors) != 1 {
		t.Errorf("book = %+v", book)
	}

	book = Book{}
	getJSON(t, srv.URL+"/api/v1/books/2701?text=false", &book)
	if book.Text != "" {
		t.Error("text=false still returned the text")
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/books/99999", http.StatusNotFound},
		{"/api/v1/books/abc", http.StatusBadRequest},
		{"/api/v1/books/search", http.StatusTeapot},
	}
	for _, tt := range tests {
		if code := getJSON(t, srv.URL+tt.path, nil); code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, code, tt.want)
		}
	}
}

func TestAuthors(t *testing.T) {
	srv := newServer(t)
	var authors []Author
	if code := getJSON(t, srv.URL+"/api/v1/authors", &authors); code != http.StatusOK || len(authors) != 1 {
		t.Fatalf("authors = %v (status %d)", authors, code)
	}

	var detail AuthorDetail
	if code := getJSON(t, srv.URL+"/api/v1/authors/7", &detail); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if detail.Name != "Melville, Herman" || len(detail.Books) != 1 || detail.Books[0].ID != 2701 {
		t.Errorf("detail = %+v", detail)
	}
	if code := getJSON(t, srv.URL+"/api/v1/authors/8", nil); code != http.StatusNotFound {
		t.Errorf("unknown author status %d", code)
	}
}
