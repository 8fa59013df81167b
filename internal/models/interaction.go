package models

import (
	"time"
)

// CommentLike records a user's like on a comment.
// The (CommentID, UserID) pair is unique; existence is the sole state.
type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_user_like" json:"comment_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_user_like" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportReason is a bounded code describing why a comment was reported.
type ReportReason string

const (
	ReasonSpam       ReportReason = "spam"
	ReasonHarassment ReportReason = "harassment"
	ReasonHate       ReportReason = "hate"
	ReasonSexual     ReportReason = "sexual"
	ReasonViolence   ReportReason = "violence"
	ReasonOther      ReportReason = "other"
)

// ValidReportReason reports whether r is a recognized reason code.
func ValidReportReason(r ReportReason) bool {
	switch r {
	case ReasonSpam, ReasonHarassment, ReasonHate, ReasonSexual, ReasonViolence, ReasonOther:
		return true
	}
	return false
}

// CommentReport records a distinct user report against a comment.
// The (CommentID, ReporterID) pair is unique.
type CommentReport struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	CommentID  uint         `gorm:"not null;uniqueIndex:idx_comment_reporter" json:"comment_id"`
	ReporterID uint         `gorm:"not null;uniqueIndex:idx_comment_reporter" json:"reporter_id"`
	Reason     ReportReason `gorm:"size:32;not null" json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ReportOutcome describes the result of a successful or no-op Report call.
type ReportOutcome struct {
	Created bool // false when the reporter already reported this comment
	Count   int  // report count after the call
	Hidden  bool // true when this report crossed the auto-hide threshold
}
