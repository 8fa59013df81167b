package server

import (
	"murmur/internal/models"
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateComment posts a new comment or reply on a content item (protected).
// A comment held for moderation comes back with status "pending"; that is
// still a 201, the caller just does not see it in public listings yet.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	itemID, err := s.parseID(c, "itemId")
	if err != nil {
		return nil
	}

	var req struct {
		Body     string `json:"body"`
		ParentID *uint  `json:"parent_id"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidArgumentError("Invalid request body"))
	}

	created, err := s.commentService.CreateComment(ctx, service.CreateCommentInput{
		Actor:         s.actor(c),
		ContentItemID: itemID,
		ParentID:      req.ParentID,
		Body:          req.Body,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetComments returns a flat page of comments for a content item (public).
// Query parameters: page, page_size, sort (newest|most_liked|hot), and
// moderation=true for the moderator view including non-approved statuses.
func (s *Server) GetComments(c *fiber.Ctx) error {
	ctx := c.UserContext()

	itemID, err := s.parseID(c, "itemId")
	if err != nil {
		return nil
	}

	q := models.CommentQuery{
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 20),
		Sort:       models.SortMode(c.Query("sort", string(models.SortNewest))),
		Moderation: c.QueryBool("moderation", false),
	}

	page, err := s.commentService.GetPage(ctx, s.actor(c), itemID, q)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(page)
}

// GetCommentTree returns the nested comment tree for a content item (public).
// Query parameters: depth and sort.
func (s *Server) GetCommentTree(c *fiber.Ctx) error {
	ctx := c.UserContext()

	itemID, err := s.parseID(c, "itemId")
	if err != nil {
		return nil
	}

	depth := c.QueryInt("depth", s.config.MaxTreeDepth)
	sort := models.SortMode(c.Query("sort", string(models.SortNewest)))

	tree, err := s.commentService.GetTree(ctx, s.actor(c), itemID, depth, sort)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(tree)
}

// GetCommentStats returns aggregate counters for a content item (public).
func (s *Server) GetCommentStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	itemID, err := s.parseID(c, "itemId")
	if err != nil {
		return nil
	}

	stats, err := s.commentService.Stats(ctx, itemID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(stats)
}

// RecordView bumps the view counter for a content item (public).
func (s *Server) RecordView(c *fiber.Ctx) error {
	itemID, err := s.parseID(c, "itemId")
	if err != nil {
		return nil
	}

	s.commentService.RecordView(c.UserContext(), itemID)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetComment returns a single comment by ID (public). Hidden and deleted
// comments come back as stubs; pending and rejected ones are only visible to
// their author and moderators.
func (s *Server) GetComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	comment, err := s.commentService.GetComment(ctx, s.actor(c), commentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(comment)
}

// UpdateComment edits a comment's body (owner within the edit window, or
// moderator).
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Body string `json:"body"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidArgumentError("Invalid request body"))
	}

	updated, err := s.commentService.UpdateComment(ctx, service.UpdateCommentInput{
		Actor:     s.actor(c),
		CommentID: commentID,
		Body:      req.Body,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(updated)
}

// DeleteComment soft-deletes a comment (owner or moderator). Replies stay
// attached under a "[deleted]" stub.
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.DeleteComment(ctx, s.actor(c), commentID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// LikeComment records a like (protected, idempotent).
func (s *Server) LikeComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.LikeComment(ctx, s.actor(c), commentID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// UnlikeComment removes a like (protected, idempotent).
func (s *Server) UnlikeComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.commentService.UnlikeComment(ctx, s.actor(c), commentID); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ReportComment files a report against a comment (protected). The response
// says whether this report was new and whether it tripped the auto-hide
// threshold.
func (s *Server) ReportComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	commentID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidArgumentError("Invalid request body"))
	}

	outcome, err := s.commentService.ReportComment(ctx, service.ReportCommentInput{
		Actor:     s.actor(c),
		CommentID: commentID,
		Reason:    models.ReportReason(req.Reason),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"created": outcome.Created,
		"count":   outcome.Count,
		"hidden":  outcome.Hidden,
	})
}
