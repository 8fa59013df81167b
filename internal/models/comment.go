// Package models contains data structures for the comment engine's domain.
package models

import (
	"time"
)

// CommentStatus is the moderation lifecycle state of a comment.
type CommentStatus string

const (
	StatusPending  CommentStatus = "pending"
	StatusApproved CommentStatus = "approved"
	StatusRejected CommentStatus = "rejected"
	StatusHidden   CommentStatus = "hidden"
	StatusDeleted  CommentStatus = "deleted"
)

// Role is the actor role supplied by the request layer.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Moderates reports whether the role can see and change non-approved comments.
func (r Role) Moderates() bool {
	return r == RoleModerator || r == RoleAdmin
}

// TrustLevel is the author's standing, used by the moderation pipeline.
type TrustLevel string

const (
	TrustNew      TrustLevel = "new"
	TrustRegular  TrustLevel = "regular"
	TrustVerified TrustLevel = "verified"
)

// Comment represents a threaded comment on a content item.
// Soft deletion is status-based (StatusDeleted + cleared body) rather than a
// gorm soft-delete column, so deleted stubs stay visible to tree queries and
// descendant replies remain attached.
type Comment struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ContentItemID uint          `gorm:"not null;index" json:"content_item_id"`
	AuthorID      uint          `gorm:"not null;index" json:"author_id"`
	ParentID      *uint         `gorm:"index" json:"parent_id"` // nil marks a root comment
	Parent        *Comment      `gorm:"foreignKey:ParentID" json:"-"`
	Body          string        `gorm:"type:text;not null" json:"body"`
	BodyHTML      string        `gorm:"-" json:"body_html,omitempty"`
	Status        CommentStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	LikeCount     int           `gorm:"not null;default:0" json:"like_count"`
	ReplyCount    int           `gorm:"not null;default:0" json:"reply_count"`
	ReportCount   int           `gorm:"not null;default:0" json:"report_count"`
	EditedAt      *time.Time    `json:"edited_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsRoot reports whether the comment is attached directly to its content item.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Visible reports whether the comment may be shown to a non-moderating viewer.
// Deleted and hidden comments remain visible as stubs so thread structure is
// preserved; callers mask the body via Stub.
func (c *Comment) Visible() bool {
	switch c.Status {
	case StatusApproved, StatusHidden, StatusDeleted:
		return true
	}
	return false
}

// Stub returns a copy with the body masked for hidden or deleted comments.
func (c *Comment) Stub() *Comment {
	out := *c
	switch c.Status {
	case StatusDeleted:
		out.Body = "[deleted]"
		out.BodyHTML = ""
	case StatusHidden:
		out.Body = "[hidden]"
		out.BodyHTML = ""
	}
	return &out
}

// SortMode enumerates sibling orderings for lists and trees.
type SortMode string

const (
	SortNewest    SortMode = "newest"
	SortMostLiked SortMode = "most_liked"
	SortHot       SortMode = "hot"
)

// ValidSortMode reports whether s is a recognized sort mode.
func ValidSortMode(s SortMode) bool {
	switch s {
	case SortNewest, SortMostLiked, SortHot:
		return true
	}
	return false
}

// CommentQuery carries pagination and filtering for flat comment listings.
type CommentQuery struct {
	Page       int
	PageSize   int
	Sort       SortMode
	Moderation bool // include non-approved statuses (moderator view)
}

// CommentPage is a paginated flat listing result.
type CommentPage struct {
	Comments []*Comment `json:"comments"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// CommentStats aggregates per-content-item counters.
type CommentStats struct {
	ContentItemID uint       `json:"content_item_id"`
	Total         int64      `json:"total"`
	Roots         int64      `json:"roots"`
	Likes         int64      `json:"likes"`
	Views         int64      `json:"views"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}
