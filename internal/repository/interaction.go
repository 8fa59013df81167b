package repository

import (
	"context"
	"errors"

	"murmur/internal/models"
	"murmur/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// InteractionRepository owns like and report state. Every operation and its
// derived counter update run as one transaction: counters are recomputed from
// the join rows inside the transaction, never incremented independently, so
// concurrent writers cannot make them drift.
type InteractionRepository interface {
	// Like returns false (no error) when the (comment, user) pair already exists.
	Like(ctx context.Context, commentID, userID uint) (bool, error)
	// Unlike returns false (no error) when the pair does not exist.
	Unlike(ctx context.Context, commentID, userID uint) (bool, error)
	// Report records a distinct report and applies the auto-hide policy.
	Report(ctx context.Context, commentID, reporterID uint, reason models.ReportReason) (*models.ReportOutcome, error)
}

type interactionRepository struct {
	db            *gorm.DB
	hideThreshold int
	metrics       *observability.DatabaseMetrics
}

// NewInteractionRepository creates an InteractionRepository. hideThreshold is
// the report count at which a comment is hidden automatically.
func NewInteractionRepository(db *gorm.DB, hideThreshold int) InteractionRepository {
	return &interactionRepository{
		db:            db,
		hideThreshold: hideThreshold,
		metrics:       observability.NewDatabaseMetrics(db),
	}
}

func (r *interactionRepository) Like(ctx context.Context, commentID, userID uint) (bool, error) {
	defer r.metrics.TrackQuery("create", "comment_likes")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := commentExists(tx, commentID); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.CommentLike{}).
			Where("comment_id = ? AND user_id = ?", commentID, userID).
			Count(&existing).Error; err != nil {
			return models.NewTransientError(err)
		}
		if existing > 0 {
			return errAlreadyExists
		}

		if err := tx.Create(&models.CommentLike{CommentID: commentID, UserID: userID}).Error; err != nil {
			// A concurrent like may win the unique index race.
			if isDuplicate(err) {
				return errAlreadyExists
			}
			return models.NewTransientError(err)
		}

		return recountLikes(tx, commentID)
	})

	if errors.Is(err, errAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *interactionRepository) Unlike(ctx context.Context, commentID, userID uint) (bool, error) {
	defer r.metrics.TrackQuery("delete", "comment_likes")()

	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := commentExists(tx, commentID); err != nil {
			return err
		}

		result := tx.Where("comment_id = ? AND user_id = ?", commentID, userID).
			Delete(&models.CommentLike{})
		if result.Error != nil {
			return models.NewTransientError(result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		removed = true
		return recountLikes(tx, commentID)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *interactionRepository) Report(ctx context.Context, commentID, reporterID uint, reason models.ReportReason) (*models.ReportOutcome, error) {
	defer r.metrics.TrackQuery("create", "comment_reports")()

	outcome := &models.ReportOutcome{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("comment", commentID)
			}
			return models.NewTransientError(err)
		}

		var existing int64
		if err := tx.Model(&models.CommentReport{}).
			Where("comment_id = ? AND reporter_id = ?", commentID, reporterID).
			Count(&existing).Error; err != nil {
			return models.NewTransientError(err)
		}
		if existing > 0 {
			outcome.Count = comment.ReportCount
			return errAlreadyExists
		}

		report := &models.CommentReport{
			CommentID:  commentID,
			ReporterID: reporterID,
			Reason:     reason,
		}
		if err := tx.Create(report).Error; err != nil {
			if isDuplicate(err) {
				outcome.Count = comment.ReportCount
				return errAlreadyExists
			}
			return models.NewTransientError(err)
		}

		if err := recountReports(tx, commentID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.CommentReport{}).
			Where("comment_id = ?", commentID).
			Count(&count).Error; err != nil {
			return models.NewTransientError(err)
		}
		outcome.Created = true
		outcome.Count = int(count)

		// Auto-hide exactly once: the status guard keeps reports beyond the
		// threshold from re-triggering the transition.
		if outcome.Count >= r.hideThreshold {
			result := tx.Model(&models.Comment{}).
				Where("id = ? AND status IN ?", commentID, []models.CommentStatus{
					models.StatusApproved, models.StatusPending,
				}).
				Update("status", models.StatusHidden)
			if result.Error != nil {
				return models.NewTransientError(result.Error)
			}
			outcome.Hidden = result.RowsAffected > 0
		}
		return nil
	})

	if errors.Is(err, errAlreadyExists) {
		outcome.Created = false
		outcome.Hidden = false
		return outcome, nil
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

var errAlreadyExists = errors.New("row already exists")

func commentExists(tx *gorm.DB, commentID uint) error {
	var count int64
	if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).Count(&count).Error; err != nil {
		return models.NewTransientError(err)
	}
	if count == 0 {
		return models.NewNotFoundError("comment", commentID)
	}
	return nil
}

// isDuplicate detects unique-constraint violations across the translated
// gorm error and the raw Postgres error code.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func recountLikes(tx *gorm.DB, commentID uint) error {
	err := tx.Exec(
		"UPDATE comments SET like_count = (SELECT COUNT(*) FROM comment_likes WHERE comment_likes.comment_id = ?) WHERE id = ?",
		commentID, commentID,
	).Error
	if err != nil {
		return models.NewTransientError(err)
	}
	return nil
}

func recountReports(tx *gorm.DB, commentID uint) error {
	err := tx.Exec(
		"UPDATE comments SET report_count = (SELECT COUNT(*) FROM comment_reports WHERE comment_reports.comment_id = ?) WHERE id = ?",
		commentID, commentID,
	).Error
	if err != nil {
		return models.NewTransientError(err)
	}
	return nil
}
