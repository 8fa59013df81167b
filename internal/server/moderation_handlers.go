package server

import (
	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetModerationQueue returns pending comments ordered oldest first
// (moderators only).
func (s *Server) GetModerationQueue(c *fiber.Ctx) error {
	ctx := c.UserContext()

	page, err := s.commentService.ListPending(ctx, s.actor(c),
		c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(page)
}

// SetCommentStatus applies a moderation decision to a comment (moderators
// only). Accepted statuses: approved, rejected, hidden.
func (s *Server) SetCommentStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Status string `json:"status"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidArgumentError("Invalid request body"))
	}

	if err := s.commentService.SetStatus(ctx, s.actor(c), commentID,
		models.CommentStatus(req.Status)); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
