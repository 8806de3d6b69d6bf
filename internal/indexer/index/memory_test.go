package index

import (
	"context"
	"reflect"
	"testing"
)

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	docs := []Document{
		{ID: 1, Title: "Moby Dick", Text: "call me ishmael", Authors: []string{"Melville, Herman"}, DownloadCount: 50},
		{ID: 2, Title: "Pride and Prejudice", Text: "a truth universally acknowledged", Authors: []string{"Austen, Jane"}, DownloadCount: 90},
		{ID: 3, Title: "Empty", DownloadCount: 100},
	}
	for _, d := range docs {
		if err := s.SaveDocument(ctx, d); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
	}
	return s
}

func TestCommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	postings := NewPostings(1, map[string][]int{"whale": {3, 40}, "sea": {10}})
	for i := 0; i < 2; i++ {
		if err := s.Commit(ctx, 1, postings, postings.Forward()); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	got, _ := s.Postings(ctx, "whale", "sea")
	if len(got) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(got))
	}
	for _, p := range got {
		if p.Count != len(p.Positions) {
			t.Errorf("%s: count %d != %d positions", p.Term, p.Count, len(p.Positions))
		}
	}
	entries, _ := s.ForwardEntries(ctx, 1)
	if len(entries) != 2 || entries[0].Scored {
		t.Fatalf("unexpected forward entries %+v", entries)
	}
}

func TestCommitRejectsForeignPostings(t *testing.T) {
	s := seed(t)
	postings := NewPostings(2, map[string][]int{"truth": {2}})
	if err := s.Commit(context.Background(), 1, postings, nil); err == nil {
		t.Fatal("expected error for posting of another document")
	}
}

func TestTopTermsOrdering(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	s.Commit(ctx, 1, NewPostings(1, map[string][]int{"b": {0, 2}, "a": {4, 6}, "c": {8}}), nil)
	s.Commit(ctx, 2, NewPostings(2, map[string][]int{"c": {0, 1}}), nil)

	top, _ := s.TopTerms(ctx, 2)
	want := []TermCount{{Term: "c", Total: 3}, {Term: "a", Total: 2}}
	if !reflect.DeepEqual(top, want) {
		t.Fatalf("TopTerms = %v, want %v", top, want)
	}

	df, _ := s.DocumentFrequencies(ctx)
	if df["c"] != 2 || df["a"] != 1 {
		t.Errorf("unexpected document frequencies %v", df)
	}
	if n, _ := s.IndexedDocuments(ctx); n != 2 {
		t.Errorf("IndexedDocuments = %d, want 2", n)
	}
}

func TestDocumentLookups(t *testing.T) {
	ctx := context.Background()
	s := seed(t)

	docs, _ := s.ListDocuments(ctx)
	if len(docs) != 2 || docs[0].ID != 2 {
		t.Fatalf("ListDocuments should skip empty text and order by popularity, got %+v", docs)
	}
	ids, _ := s.DocumentsByAuthor(ctx, "austen")
	if !reflect.DeepEqual(ids, []int64{2}) {
		t.Errorf("DocumentsByAuthor = %v", ids)
	}
	ids, _ = s.MatchTitles(ctx, "^moby", 10)
	if !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("MatchTitles = %v", ids)
	}
	ids, _ = s.MatchText(ctx, "ISHMAEL", 1)
	if len(ids) != 0 {
		t.Errorf("MatchText should respect the scan budget, got %v", ids)
	}
	ids, _ = s.MatchText(ctx, "ISHMAEL", 2)
	if !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("MatchText = %v", ids)
	}
	withText, _ := s.GetDocuments(ctx, []int64{1, 99}, false)
	if len(withText) != 1 || withText[0].Text != "" {
		t.Errorf("GetDocuments = %+v", withText)
	}
}
