// Package storage is the PostgreSQL implementation of the index store and
// the catalog sink.
package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id             BIGINT PRIMARY KEY,
		title          TEXT NOT NULL,
		language       TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		subjects       TEXT NOT NULL DEFAULT '',
		bookshelves    TEXT NOT NULL DEFAULT '',
		cover_image    TEXT NOT NULL DEFAULT '',
		download_count INTEGER NOT NULL DEFAULT 0,
		copyright      BOOLEAN NOT NULL DEFAULT FALSE,
		text_content   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS books_popularity_idx ON books (download_count DESC, id)`,
	`CREATE TABLE IF NOT EXISTS authors (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		birth_year INTEGER,
		death_year INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS book_authors (
		book_id   BIGINT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
		author_id BIGINT NOT NULL REFERENCES authors (id) ON DELETE CASCADE,
		PRIMARY KEY (book_id, author_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inverted_index (
		term        TEXT NOT NULL,
		book_id     BIGINT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
		occurrences INTEGER NOT NULL,
		positions   INTEGER[] NOT NULL,
		PRIMARY KEY (term, book_id)
	)`,
	`CREATE INDEX IF NOT EXISTS inverted_index_book_idx ON inverted_index (book_id)`,
	`CREATE TABLE IF NOT EXISTS forward_index (
		book_id     BIGINT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
		term        TEXT NOT NULL,
		occurrences INTEGER NOT NULL,
		positions   INTEGER[] NOT NULL,
		tf          DOUBLE PRECISION NOT NULL DEFAULT 0,
		idf         DOUBLE PRECISION NOT NULL DEFAULT 0,
		tfidf       DOUBLE PRECISION NOT NULL DEFAULT 0,
		scored      BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (book_id, term)
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}
	s.logger.Info("schema up to date", "statements", len(schema))
	return nil
}
