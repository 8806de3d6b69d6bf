package cache

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
)

// OnIndexComplete returns a handler for index.complete messages. Every
// finished build makes cached rankings stale, so the cache is flushed
// before record sees the event. record may be nil.
func (c *QueryCache) OnIndexComplete(record func(analytics.IndexEvent)) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analytics.IndexEvent](value)
		if err != nil {
			c.logger.Error("failed to decode index event", "key", string(key), "error", err)
			return nil
		}
		if _, err := c.Invalidate(ctx); err != nil {
			return err
		}
		c.logger.Info("cache flushed after index build",
			"mode", event.Mode,
			"indexed", event.Indexed,
			"failed", event.Failed,
		)
		if record != nil {
			record(event)
		}
		return nil
	}
}
