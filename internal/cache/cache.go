package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/observability"

	"github.com/redis/go-redis/v9"
)

// GetOrLoad reads key from Redis, falling back to loader on miss or on any
// cache failure. Loaded values are stored back with the given TTL on a
// best-effort basis. A cache failure never surfaces to the caller.
func GetOrLoad[T any](ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	if client == nil {
		observability.CacheRequests.WithLabelValues("bypass").Inc()
		return loader(ctx)
	}

	raw, err := client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached T
		if unmarshalErr := json.Unmarshal([]byte(raw), &cached); unmarshalErr == nil {
			observability.CacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		// Corrupt entry: drop it and reload.
		client.Del(ctx, key)
	case errors.Is(err, redis.Nil):
		observability.CacheRequests.WithLabelValues("miss").Inc()
	default:
		observability.CacheRequests.WithLabelValues("error").Inc()
		middleware.Logger.WarnContext(ctx, "cache read failed, falling through to store",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	value, err := loader(ctx)
	if err != nil {
		return value, err
	}

	if data, marshalErr := json.Marshal(value); marshalErr == nil {
		if setErr := client.Set(ctx, key, data, ttl).Err(); setErr != nil {
			middleware.Logger.WarnContext(ctx, "cache write failed",
				slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}

	return value, nil
}

// Invalidate removes the given keys. Best-effort.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// InvalidateComment removes the single-comment projection.
func InvalidateComment(ctx context.Context, commentID uint) {
	Invalidate(ctx, CommentKey(commentID))
}

// InvalidateContentItem sweeps every list/tree/stat projection for a content
// item. Runs synchronously on the mutation path so the caller's next read
// observes its own write.
func InvalidateContentItem(ctx context.Context, itemID uint) {
	if client == nil {
		return
	}

	prefix := ItemPrefix(itemID)
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			middleware.Logger.WarnContext(ctx, "cache sweep failed",
				slog.String("prefix", prefix), slog.String("error", err.Error()))
			return
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				middleware.Logger.WarnContext(ctx, "cache sweep delete failed",
					slog.String("prefix", prefix), slog.String("error", err.Error()))
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// IncrViews bumps the view counter for a content item. Best-effort; returns
// the new count, or 0 when Redis is unavailable.
func IncrViews(ctx context.Context, itemID uint) int64 {
	if client == nil {
		return 0
	}
	n, err := client.Incr(ctx, ItemViewsKey(itemID)).Result()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "view counter increment failed",
			slog.Any("item_id", itemID), slog.String("error", err.Error()))
		return 0
	}
	return n
}

// Views reads the view counter for a content item.
func Views(ctx context.Context, itemID uint) int64 {
	if client == nil {
		return 0
	}
	n, err := client.Get(ctx, ItemViewsKey(itemID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(ctx, "view counter read failed",
			slog.Any("item_id", itemID), slog.String("error", err.Error()))
	}
	return n
}
