package models

import (
	"time"
)

// EventType enumerates engine-emitted event kinds consumed by the fan-out
// dispatcher. Constants double as wire event names.
type EventType string

const (
	EventCommentCreated EventType = "comment_created"
	EventCommentUpdated EventType = "comment_updated"
	EventCommentDeleted EventType = "comment_deleted"
	EventCommentLiked   EventType = "comment_liked"
	EventCommentUnliked EventType = "comment_unliked"
)

// CommentEvent is the stable payload handed to the notification fan-out after
// a mutation commits. It carries everything the dispatcher needs so it never
// reads back through the engine.
type CommentEvent struct {
	ID            string    `json:"id"` // uuid, for at-least-once dedup downstream
	Type          EventType `json:"type"`
	ContentItemID uint      `json:"content_item_id"`
	CommentID     uint      `json:"comment_id"`
	ActorID       uint      `json:"actor_id"`
	// ParentAuthorID is the author of the parent comment for reply events,
	// zero otherwise. It is the default notification recipient.
	ParentAuthorID uint      `json:"parent_author_id,omitempty"`
	CommentAuthor  uint      `json:"comment_author,omitempty"`
	Comment        *Comment  `json:"comment,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
