package cache

import (
	"fmt"
	"time"

	"murmur/internal/models"
)

// All comment read-model keys for one content item share the
// "comments:item:<id>:" prefix so InvalidateContentItem can sweep them in one
// pass.
const (
	CommentKeyPrefix   = "comments:comment:%d"
	ItemPrefixFormat   = "comments:item:%d:"
	ItemTreeKeyFormat  = "comments:item:%d:tree:%d:%s:%s"
	ItemPageKeyFormat  = "comments:item:%d:page:%s:%s:%d:%d"
	ItemStatsKeyFormat = "comments:item:%d:stats"
	// View counters live outside the item prefix: they are authoritative
	// accumulators, not rebuildable projections, and must survive the
	// invalidation sweep.
	ItemViewsKeyFormat = "comments:views:%d"
)

const (
	CommentTTL = 5 * time.Minute
	// DefaultReadTTL is the fallback TTL for list/tree/stat projections when
	// no configured TTL is supplied.
	DefaultReadTTL = time.Minute
)

// Audience distinguishes public projections from moderator projections so
// they never share cache entries.
type Audience string

const (
	AudiencePublic    Audience = "public"
	AudienceModerator Audience = "mod"
)

func CommentKey(commentID uint) string {
	return fmt.Sprintf(CommentKeyPrefix, commentID)
}

func ItemPrefix(itemID uint) string {
	return fmt.Sprintf(ItemPrefixFormat, itemID)
}

func ItemTreeKey(itemID uint, maxDepth int, sort models.SortMode, aud Audience) string {
	return fmt.Sprintf(ItemTreeKeyFormat, itemID, maxDepth, sort, aud)
}

func ItemPageKey(itemID uint, sort models.SortMode, aud Audience, page, size int) string {
	return fmt.Sprintf(ItemPageKeyFormat, itemID, sort, aud, page, size)
}

func ItemStatsKey(itemID uint) string {
	return fmt.Sprintf(ItemStatsKeyFormat, itemID)
}

func ItemViewsKey(itemID uint) string {
	return fmt.Sprintf(ItemViewsKeyFormat, itemID)
}
