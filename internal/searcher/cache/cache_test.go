package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/redis"
)

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]string)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memoryBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestGetOrComputeCachesResults(t *testing.T) {
	c := New(newMemoryBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()
	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return &executor.SearchResult{Query: "Whale", Kind: analytics.KindKeyword, TotalHits: 3}, nil
	}

	k := Key{Kind: analytics.KindKeyword, Query: "Whale"}
	if _, hit, err := c.GetOrCompute(ctx, k, compute); err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	res, hit, err := c.GetOrCompute(ctx, Key{Kind: analytics.KindKeyword, Query: "  whale "}, compute)
	if err != nil || !hit || res.TotalHits != 3 {
		t.Fatalf("second call: res=%+v hit=%v err=%v", res, hit, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times", calls.Load())
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestKeysSeparateKindsAndAuthors(t *testing.T) {
	base := Key{Kind: analytics.KindKeyword, Query: "cat"}
	keys := map[string]bool{
		buildKey(base): true,
		buildKey(Key{Kind: analytics.KindHighlight, Query: "cat"}):              true,
		buildKey(Key{Kind: analytics.KindKeyword, Query: "cat", Author: "Doe"}): true,
	}
	if len(keys) != 3 {
		t.Error("distinct queries collided")
	}
	if buildKey(Key{Kind: analytics.KindPattern, Query: "[A-Z]"}) == buildKey(Key{Kind: analytics.KindPattern, Query: "[a-z]"}) {
		t.Error("pattern keys must keep case")
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(newMemoryBackend(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	k := Key{Kind: analytics.KindPattern, Query: "("}
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute(context.Background(), k, func() (*executor.SearchResult, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := c.Get(context.Background(), k); ok {
		t.Error("error result was cached")
	}
}

func TestInvalidate(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Kind: analytics.KindKeyword, Query: "a"}, &executor.SearchResult{})
	c.Set(ctx, Key{Kind: analytics.KindPattern, Query: "b"}, &executor.SearchResult{})
	backend.data["unrelated"] = "keep"

	n, err := c.Invalidate(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Invalidate = %d, %v", n, err)
	}
	if _, ok := backend.data["unrelated"]; !ok {
		t.Error("invalidate removed a foreign key")
	}
}

func TestOnIndexCompleteFlushesCache(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Kind: analytics.KindKeyword, Query: "whale"}, &executor.SearchResult{Query: "whale"})

	var got []analytics.IndexEvent
	handle := c.OnIndexComplete(func(e analytics.IndexEvent) { got = append(got, e) })
	if err := handle(ctx, []byte("tfidf"), []byte(`{"type":"index_build","mode":"tfidf","indexed":3}`)); err != nil {
		t.Fatal(err)
	}
	if len(backend.data) != 0 {
		t.Errorf("cache should be empty, has %d keys", len(backend.data))
	}
	if len(got) != 1 || got[0].Mode != "tfidf" || got[0].Indexed != 3 {
		t.Errorf("recorded events = %+v", got)
	}
	if err := handle(ctx, nil, []byte("not json")); err != nil {
		t.Errorf("undecodable messages should be dropped, got %v", err)
	}
}
