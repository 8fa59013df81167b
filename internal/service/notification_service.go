package service

import (
	"context"

	"murmur/internal/models"
	"murmur/internal/repository"
)

// NotificationService exposes the persistent notification inbox written by
// the fan-out dispatcher.
type NotificationService struct {
	notifications repository.NotificationRepository
}

func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

func (s *NotificationService) List(ctx context.Context, actor Actor, page, size int) ([]models.Notification, int64, error) {
	return s.notifications.ListByRecipient(ctx, actor.UserID, clampPage(page), clampSize(size))
}

func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, notificationID uint) error {
	return s.notifications.MarkRead(ctx, notificationID, actor.UserID)
}
