package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications returns the caller's inbox, newest first (protected).
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	ctx := c.UserContext()

	page := c.QueryInt("page", 1)
	size := c.QueryInt("page_size", 20)

	items, total, err := s.notificationService.List(ctx, s.actor(c), page, size)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": items,
		"total":         total,
		"page":          page,
		"page_size":     size,
	})
}

// MarkNotificationRead marks one of the caller's notifications as read
// (protected, idempotent).
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	ctx := c.UserContext()

	notificationID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.notificationService.MarkRead(ctx, s.actor(c), notificationID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
