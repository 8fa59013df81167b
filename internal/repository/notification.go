package repository

import (
	"context"
	"time"

	"murmur/internal/models"
	"murmur/internal/observability"

	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID uint, page, pageSize int) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, notificationID, recipientID uint) error
}

type notificationRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{
		db:      db,
		metrics: observability.NewDatabaseMetrics(db),
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	defer r.metrics.TrackQuery("create", "notifications")()

	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return models.NewTransientError(err)
	}
	return nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uint, page, pageSize int) ([]models.Notification, int64, error) {
	defer r.metrics.TrackQuery("select", "notifications")()

	base := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ?", recipientID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewTransientError(err)
	}

	var notifications []models.Notification
	err := base.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, models.NewTransientError(err)
	}
	return notifications, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, recipientID uint) error {
	defer r.metrics.TrackQuery("update", "notifications")()

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, recipientID).
		Update("read_at", &now)
	if result.Error != nil {
		return models.NewTransientError(result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		err := r.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND recipient_id = ?", notificationID, recipientID).
			Count(&count).Error
		if err != nil {
			return models.NewTransientError(err)
		}
		if count == 0 {
			return models.NewNotFoundError("notification", notificationID)
		}
		// Already read, treat as success.
	}
	return nil
}
