package middleware

import (
	"strconv"
	"strings"

	"murmur/internal/config"
	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// actorFromClaims extracts user id, role, and trust level from token claims.
// The "sub" claim (RFC 7519) carries the user id; "role" and "trust" are
// application claims issued by the identity service.
func actorFromClaims(claims jwt.MapClaims) (uint, models.Role, models.TrustLevel, bool) {
	subClaim, ok := claims["sub"]
	if !ok {
		return 0, "", "", false
	}
	subStr, ok := subClaim.(string)
	if !ok {
		return 0, "", "", false
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, "", "", false
	}

	role := models.RoleUser
	if r, ok := claims["role"].(string); ok && r != "" {
		role = models.Role(r)
	}
	trust := models.TrustNew
	if tl, ok := claims["trust"].(string); ok && tl != "" {
		trust = models.TrustLevel(tl)
	}

	return uint(userID), role, trust, true
}

func parseToken(tokenString string) (jwt.MapClaims, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	return claims, ok
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func setActorLocals(c *fiber.Ctx, claims jwt.MapClaims) bool {
	userID, role, trust, ok := actorFromClaims(claims)
	if !ok {
		return false
	}
	c.Locals("userID", userID)
	c.Locals("role", role)
	c.Locals("trust", trust)
	return true
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}

	claims, ok := parseToken(token)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	if !setActorLocals(c, claims) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	return c.Next()
}

// OptionalAuth populates actor locals when a valid token is present but lets
// anonymous requests through. Read endpoints use it so public and moderator
// views share a handler.
func OptionalAuth(c *fiber.Ctx) error {
	if token := bearerToken(c); token != "" {
		if claims, ok := parseToken(token); ok {
			setActorLocals(c, claims)
		}
	}
	return c.Next()
}

// WebSocketAuthRequired validates JWT tokens from query parameters for
// WebSocket connections, falling back to the Authorization header.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Token required",
		})
	}

	claims, ok := parseToken(token)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	if !setActorLocals(c, claims) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	return c.Next()
}
