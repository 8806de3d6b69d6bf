package index

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the -memory mode of
// the commands.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[int64]Document
	inverted map[string]map[int64]Posting
	forward  map[int64]map[string]ForwardEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[int64]Document),
		inverted: make(map[string]map[int64]Posting),
		forward:  make(map[int64]map[string]ForwardEntry),
	}
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return nil
	}
	doc.Authors = append([]string(nil), doc.Authors...)
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryStore) CountDocuments(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *MemoryStore) ListDocuments(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		if d.Text != "" {
			docs = append(docs, d)
		}
	}
	sortByPopularity(docs)
	return docs, nil
}

func (m *MemoryStore) GetDocuments(_ context.Context, ids []int64, withText bool) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		d, ok := m.docs[id]
		if !ok {
			continue
		}
		if !withText {
			d.Text = ""
		}
		docs = append(docs, d)
	}
	sortByPopularity(docs)
	return docs, nil
}

func (m *MemoryStore) DocumentsByAuthor(_ context.Context, name string) ([]int64, error) {
	needle := strings.ToLower(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id, d := range m.docs {
		for _, a := range d.Authors {
			if strings.Contains(strings.ToLower(a), needle) {
				ids = append(ids, id)
				break
			}
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (m *MemoryStore) MatchTitles(_ context.Context, pattern string, limit int) ([]int64, error) {
	re, err := compileInsensitive(pattern)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id, d := range m.docs {
		if re.MatchString(d.Title) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) MatchText(ctx context.Context, pattern string, budget int) ([]int64, error) {
	re, err := compileInsensitive(pattern)
	if err != nil {
		return nil, err
	}
	docs, err := m.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if budget > 0 && len(docs) > budget {
		docs = docs[:budget]
	}
	var ids []int64
	for _, d := range docs {
		if re.MatchString(d.Text) {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inverted = make(map[string]map[int64]Posting)
	m.forward = make(map[int64]map[string]ForwardEntry)
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, docID int64, postings PostingList, forward []ForwardEntry) error {
	for _, p := range postings {
		if p.DocID != docID {
			return fmt.Errorf("posting for %q belongs to document %d, not %d", p.Term, p.DocID, docID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range postings {
		docs, exists := m.inverted[p.Term]
		if !exists {
			docs = make(map[int64]Posting)
			m.inverted[p.Term] = docs
		}
		if _, exists := docs[docID]; !exists {
			p.Positions = append([]int(nil), p.Positions...)
			docs[docID] = p
		}
	}
	if len(forward) > 0 {
		terms, exists := m.forward[docID]
		if !exists {
			terms = make(map[string]ForwardEntry)
			m.forward[docID] = terms
		}
		for _, e := range forward {
			if _, exists := terms[e.Term]; !exists {
				e.DocID = docID
				e.Positions = append([]int(nil), e.Positions...)
				terms[e.Term] = e
			}
		}
	}
	return nil
}

func (m *MemoryStore) Postings(_ context.Context, terms ...string) (PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result PostingList
	for _, term := range terms {
		for _, p := range m.inverted[term] {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Term != result[j].Term {
			return result[i].Term < result[j].Term
		}
		return result[i].DocID < result[j].DocID
	})
	return result, nil
}

func (m *MemoryStore) TopTerms(_ context.Context, limit int) ([]TermCount, error) {
	m.mu.RLock()
	counts := make([]TermCount, 0, len(m.inverted))
	for term, docs := range m.inverted {
		total := 0
		for _, p := range docs {
			total += p.Count
		}
		counts = append(counts, TermCount{Term: term, Total: total})
	}
	m.mu.RUnlock()
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Total != counts[j].Total {
			return counts[i].Total > counts[j].Total
		}
		return counts[i].Term < counts[j].Term
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func (m *MemoryStore) TermSets(_ context.Context, ids []int64) (map[int64][]string, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	sets := make(map[int64][]string, len(ids))
	m.mu.RLock()
	for term, docs := range m.inverted {
		for id := range docs {
			if _, ok := want[id]; ok {
				sets[id] = append(sets[id], term)
			}
		}
	}
	m.mu.RUnlock()
	for _, terms := range sets {
		sort.Strings(terms)
	}
	return sets, nil
}

func (m *MemoryStore) DocumentFrequencies(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	df := make(map[string]int, len(m.inverted))
	for term, docs := range m.inverted {
		df[term] = len(docs)
	}
	return df, nil
}

func (m *MemoryStore) IndexedDocuments(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, docs := range m.inverted {
		for id := range docs {
			seen[id] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *MemoryStore) ForwardDocuments(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.forward))
	for id := range m.forward {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sortIDs(ids)
	return ids, nil
}

func (m *MemoryStore) ForwardEntries(_ context.Context, docID int64) ([]ForwardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]ForwardEntry, 0, len(m.forward[docID]))
	for _, e := range m.forward[docID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries, nil
}

func (m *MemoryStore) UpdateScores(_ context.Context, docID int64, entries []ForwardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	terms, ok := m.forward[docID]
	if !ok {
		return fmt.Errorf("no forward entries for document %d", docID)
	}
	for _, e := range entries {
		cur, ok := terms[e.Term]
		if !ok {
			continue
		}
		cur.TF, cur.IDF, cur.TFIDF, cur.Scored = e.TF, e.IDF, e.TFIDF, true
		terms[e.Term] = cur
	}
	return nil
}

func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	return re, nil
}

func sortByPopularity(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].DownloadCount != docs[j].DownloadCount {
			return docs[i].DownloadCount > docs[j].DownloadCount
		}
		return docs[i].ID < docs[j].ID
	})
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
