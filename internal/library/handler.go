package library

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
)

// Page is a paginated book listing.
type Page struct {
	Count      int    `json:"count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	Results    []Book `json:"results"`
}

type Handler struct {
	store        Store
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func NewHandler(store Store, defaultLimit, maxResults int) *Handler {
	return &Handler{
		store:        store,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       logger.WithComponent("library-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/books", h.ListBooks)
	mux.HandleFunc("GET /api/v1/books/{id}", h.GetBook)
	mux.HandleFunc("GET /api/v1/authors", h.ListAuthors)
	mux.HandleFunc("GET /api/v1/authors/{id}", h.GetAuthor)
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, size, err := h.pagination(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	books, total, err := h.store.ListBooks(r.Context(), (page-1)*size, size)
	if err != nil {
		h.logger.Error("listing books failed", "error", err)
		h.writeError(w, err)
		return
	}
	if books == nil {
		books = []Book{}
	}
	h.writeJSON(w, http.StatusOK, Page{
		Count:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
		Results:    books,
	})
}

// GetBook returns one book with its text. text=false leaves the text out.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	book, err := h.store.GetBook(r.Context(), id, r.URL.Query().Get("text") != "false")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, book)
}

func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.store.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("listing authors failed", "error", err)
		h.writeError(w, err)
		return
	}
	if authors == nil {
		authors = []Author{}
	}
	h.writeJSON(w, http.StatusOK, authors)
}

func (h *Handler) GetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	author, err := h.store.GetAuthor(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, author)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperrors.Invalid("id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) pagination(r *http.Request) (page, size int, err error) {
	page, size = 1, h.defaultLimit
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, apperrors.Invalid("page must be a positive integer")
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size < 1 {
			return 0, 0, apperrors.Invalid("page_size must be a positive integer")
		}
		size = min(size, h.maxResults)
	}
	return page, size, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}
