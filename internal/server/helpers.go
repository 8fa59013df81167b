// Package server contains HTTP and WebSocket handlers for the comment API.
package server

import (
	"errors"
	"strings"
	"unicode"

	"murmur/internal/models"
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewInvalidArgumentError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "itemId" -> "item ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		prefix := param[:len(param)-2]
		words := splitCamel(prefix)
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// actor builds the engine caller identity from the locals set by the auth
// middleware. Anonymous requests yield the zero Actor.
func (s *Server) actor(c *fiber.Ctx) service.Actor {
	var actor service.Actor
	if uid, ok := c.Locals("userID").(uint); ok {
		actor.UserID = uid
	}
	if role, ok := c.Locals("role").(models.Role); ok {
		actor.Role = role
	}
	if trust, ok := c.Locals("trust").(models.TrustLevel); ok {
		actor.Trust = trust
	}
	return actor
}

// statusForError maps engine error codes onto HTTP statuses.
func statusForError(err error) int {
	switch models.CodeOf(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodePermissionDenied:
		return fiber.StatusForbidden
	case models.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case models.CodeRateLimited:
		return fiber.StatusTooManyRequests
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeTransient:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError writes the standard error envelope with the mapped status.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, statusForError(err), err)
}
