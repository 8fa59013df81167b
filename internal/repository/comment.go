// Package repository provides data access layer implementations for the comment engine.
package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/ranking"

	"gorm.io/gorm"
)

// CommentRepository defines the comment store contract.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByItem(ctx context.Context, itemID uint, q models.CommentQuery) (*models.CommentPage, error)
	// FetchThread returns the flat comment set for one content item in a
	// single pass, for tree reconstruction. Non-moderation fetches include
	// hidden and deleted rows so stubs keep descendant replies attached.
	FetchThread(ctx context.Context, itemID uint, moderation bool) ([]*models.Comment, error)
	Update(ctx context.Context, comment *models.Comment) error
	SoftDelete(ctx context.Context, id uint) error
	SetStatus(ctx context.Context, id uint, status models.CommentStatus) error
	ListPending(ctx context.Context, page, size int) (*models.CommentPage, error)
	Stats(ctx context.Context, itemID uint) (*models.CommentStats, error)
}

type commentRepository struct {
	db       *gorm.DB
	maxDepth int
	metrics  *observability.DatabaseMetrics
}

// NewCommentRepository creates a new CommentRepository. maxDepth bounds the
// parent chain accepted at creation time.
func NewCommentRepository(db *gorm.DB, maxDepth int) CommentRepository {
	return &commentRepository{
		db:       db,
		maxDepth: maxDepth,
		metrics:  observability.NewDatabaseMetrics(db),
	}
}

// Create inserts the comment after validating its parent chain, and bumps the
// parent's reply count in the same transaction.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	defer r.metrics.TrackQuery("create", "comments")()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if comment.ParentID != nil {
			parent, depth, err := r.resolveParentChain(tx, *comment.ParentID)
			if err != nil {
				return err
			}
			if parent.ContentItemID != comment.ContentItemID {
				return models.NewInvalidArgumentError("parent comment belongs to a different content item")
			}
			switch parent.Status {
			case models.StatusDeleted, models.StatusRejected:
				return models.NewInvalidArgumentError("cannot reply to this comment")
			}
			// Parent sits at depth; the reply would sit one below.
			if depth+1 > r.maxDepth {
				return models.NewInvalidArgumentError("maximum thread depth exceeded")
			}
		}

		if err := tx.Create(comment).Error; err != nil {
			return models.NewTransientError(err)
		}

		if comment.ParentID != nil {
			if err := recountReplies(tx, *comment.ParentID); err != nil {
				return models.NewTransientError(err)
			}
		}
		return nil
	})
}

// resolveParentChain walks from parentID to the thread root, returning the
// direct parent and its depth (root = 0). The walk is bounded by maxDepth
// hops, which also rules out cycles.
func (r *commentRepository) resolveParentChain(tx *gorm.DB, parentID uint) (*models.Comment, int, error) {
	var parent models.Comment
	if err := tx.First(&parent, parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, models.NewNotFoundError("parent comment", parentID)
		}
		return nil, 0, models.NewTransientError(err)
	}

	depth := 0
	cur := parent
	for cur.ParentID != nil {
		depth++
		if depth > r.maxDepth {
			return nil, 0, models.NewInvalidArgumentError("maximum thread depth exceeded")
		}
		var next models.Comment
		if err := tx.First(&next, *cur.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, models.NewInvalidArgumentError("parent chain does not terminate at a root")
			}
			return nil, 0, models.NewTransientError(err)
		}
		cur = next
	}

	return &parent, depth, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	defer r.metrics.TrackQuery("read", "comments")()

	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("comment", id)
		}
		return nil, models.NewTransientError(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByItem(ctx context.Context, itemID uint, q models.CommentQuery) (*models.CommentPage, error) {
	defer r.metrics.TrackQuery("read", "comments")()

	base := r.db.WithContext(ctx).Model(&models.Comment{}).Where("content_item_id = ?", itemID)
	if q.Moderation {
		base = base.Where("status <> ?", models.StatusDeleted)
	} else {
		base = base.Where("status = ?", models.StatusApproved)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, models.NewTransientError(err)
	}

	var comments []*models.Comment
	switch q.Sort {
	case models.SortMostLiked:
		err := base.Order("like_count DESC, created_at DESC, id DESC").
			Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize).
			Find(&comments).Error
		if err != nil {
			return nil, models.NewTransientError(err)
		}
	case models.SortHot:
		// Hot score is a Go-side formula; fetch the filtered set once and
		// page in memory. Comment sets per item are bounded in practice.
		var all []*models.Comment
		if err := base.Order("created_at DESC, id DESC").Find(&all).Error; err != nil {
			return nil, models.NewTransientError(err)
		}
		sortHot(all, time.Now())
		comments = slicePage(all, q.Page, q.PageSize)
	default: // newest
		err := base.Order("created_at DESC, id DESC").
			Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize).
			Find(&comments).Error
		if err != nil {
			return nil, models.NewTransientError(err)
		}
	}

	return &models.CommentPage{
		Comments: comments,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

// sortHot orders by hot score descending with (created_at, id) tie-breakers
// for deterministic pagination.
func sortHot(comments []*models.Comment, now time.Time) {
	sort.SliceStable(comments, func(i, j int) bool {
		si := ranking.HotScore(comments[i].CreatedAt, comments[i].LikeCount, comments[i].ReplyCount, now)
		sj := ranking.HotScore(comments[j].CreatedAt, comments[j].LikeCount, comments[j].ReplyCount, now)
		if si != sj {
			return si > sj
		}
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})
}

func slicePage(comments []*models.Comment, page, size int) []*models.Comment {
	start := (page - 1) * size
	if start >= len(comments) {
		return nil
	}
	end := start + size
	if end > len(comments) {
		end = len(comments)
	}
	return comments[start:end]
}

func (r *commentRepository) FetchThread(ctx context.Context, itemID uint, moderation bool) ([]*models.Comment, error) {
	defer r.metrics.TrackQuery("read", "comments")()

	query := r.db.WithContext(ctx).Where("content_item_id = ?", itemID)
	if !moderation {
		// Hidden and deleted rows ride along as stubs; pending and rejected
		// rows are invisible outside moderation.
		query = query.Where("status IN ?", []models.CommentStatus{
			models.StatusApproved, models.StatusHidden, models.StatusDeleted,
		})
	}

	var comments []*models.Comment
	if err := query.Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, models.NewTransientError(err)
	}
	return comments, nil
}

func (r *commentRepository) Update(ctx context.Context, comment *models.Comment) error {
	defer r.metrics.TrackQuery("update", "comments")()

	if err := r.db.WithContext(ctx).Save(comment).Error; err != nil {
		return models.NewTransientError(err)
	}
	return nil
}

// SoftDelete clears the body and marks the comment deleted, keeping the row
// as a stub so descendant replies stay attached. The parent's reply count is
// re-derived in the same transaction.
func (r *commentRepository) SoftDelete(ctx context.Context, id uint) error {
	defer r.metrics.TrackQuery("update", "comments")()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("comment", id)
			}
			return models.NewTransientError(err)
		}
		if comment.Status == models.StatusDeleted {
			return models.NewConflictError("comment is already deleted")
		}

		updates := map[string]interface{}{
			"body":   "",
			"status": models.StatusDeleted,
		}
		if err := tx.Model(&models.Comment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return models.NewTransientError(err)
		}

		if comment.ParentID != nil {
			if err := recountReplies(tx, *comment.ParentID); err != nil {
				return models.NewTransientError(err)
			}
		}
		return nil
	})
}

func (r *commentRepository) SetStatus(ctx context.Context, id uint, status models.CommentStatus) error {
	defer r.metrics.TrackQuery("update", "comments")()

	result := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return models.NewTransientError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("comment", id)
	}
	return nil
}

func (r *commentRepository) ListPending(ctx context.Context, page, size int) (*models.CommentPage, error) {
	defer r.metrics.TrackQuery("read", "comments")()

	base := r.db.WithContext(ctx).Model(&models.Comment{}).Where("status = ?", models.StatusPending)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, models.NewTransientError(err)
	}

	var comments []*models.Comment
	err := base.Order("created_at ASC, id ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&comments).Error
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	return &models.CommentPage{Comments: comments, Total: total, Page: page, PageSize: size}, nil
}

func (r *commentRepository) Stats(ctx context.Context, itemID uint) (*models.CommentStats, error) {
	defer r.metrics.TrackQuery("read", "comments")()

	type row struct {
		Total        int64
		Roots        int64
		Likes        int64
		LastActivity *time.Time
	}

	var res row
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select(
			"COUNT(*) AS total, "+
				"COUNT(*) FILTER (WHERE parent_id IS NULL) AS roots, "+
				"COALESCE(SUM(like_count), 0) AS likes, "+
				"MAX(created_at) AS last_activity",
		).
		Where("content_item_id = ? AND status = ?", itemID, models.StatusApproved).
		Scan(&res).Error
	if err != nil {
		return nil, models.NewTransientError(err)
	}

	return &models.CommentStats{
		ContentItemID: itemID,
		Total:         res.Total,
		Roots:         res.Roots,
		Likes:         res.Likes,
		LastActivity:  res.LastActivity,
	}, nil
}

// recountReplies re-derives the parent's reply_count from its child rows so
// the counter can never drift from the stored set.
func recountReplies(tx *gorm.DB, parentID uint) error {
	return tx.Exec(
		"UPDATE comments SET reply_count = (SELECT COUNT(*) FROM comments AS children WHERE children.parent_id = ? AND children.status <> ?) WHERE id = ?",
		parentID, models.StatusDeleted, parentID,
	).Error
}
