package models

import (
	"time"
)

// NotificationType enumerates persistent notification kinds.
type NotificationType string

const (
	NotifyReply        NotificationType = "reply"
	NotifyCommentLiked NotificationType = "comment_liked"
)

// Notification is a persistent notification record written by the fan-out
// dispatcher for a single recipient.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index" json:"recipient_id"`
	Type        NotificationType `gorm:"size:32;not null" json:"type"`
	Payload     string           `gorm:"type:text" json:"payload"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
