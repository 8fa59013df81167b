package server

import (
	"errors"
	"net/http"
	"testing"

	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestHumanizeParam(t *testing.T) {
	t.Parallel()
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"itemId", "item ID"},
		{"commentId", "comment ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestStatusForError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", models.NewNotFoundError("comment", 1), http.StatusNotFound},
		{"permission denied", models.NewPermissionDeniedError("no"), http.StatusForbidden},
		{"invalid argument", models.NewInvalidArgumentError("bad"), http.StatusBadRequest},
		{"rate limited", models.NewRateLimitedError("comments"), http.StatusTooManyRequests},
		{"conflict", models.NewConflictError("stale"), http.StatusConflict},
		{"transient", models.NewTransientError(errors.New("db")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusForError(tt.err))
		})
	}
}

func TestParseID_Invalid(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	s := &Server{}
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for _, path := range []string{"/items/abc", "/items/0", "/items/-3"} {
		resp := doJSON(t, app, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}
