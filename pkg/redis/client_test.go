package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SP_REDIS_ADDR")
	if addr == "" {
		t.Skip("SP_REDIS_ADDR not set, skipping redis integration test")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFlushByPattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		key := "gutensearch:test:" + time.Now().Format("150405.000000000") + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if err := c.Set(ctx, key, "v", time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	deleted, err := c.FlushByPattern(ctx, "gutensearch:test:*")
	if err != nil {
		t.Fatal(err)
	}
	if deleted < 150 {
		t.Errorf("deleted %d keys, want at least 150", deleted)
	}
	if _, err := c.Get(ctx, "gutensearch:test:missing"); !IsNilError(err) {
		t.Errorf("expected nil error, got %v", err)
	}
}
