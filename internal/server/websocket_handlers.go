package server

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade gates the stream route on a proper upgrade request and
// rejects it early when no hub is running (no Redis, no live stream).
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if s.hub == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "live comment stream unavailable")
	}
	return c.Next()
}

// WebSocketCommentStream handles WebSocket connections for the live comment
// stream of one content item. Anonymous connections receive item broadcasts;
// authenticated ones additionally receive their personal notifications.
func (s *Server) WebSocketCommentStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		itemID, err := strconv.ParseUint(conn.Params("itemId"), 10, 32)
		if err != nil || itemID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid item ID"}`))
			_ = conn.Close()
			return
		}

		// Zero when the request carried no (valid) token.
		userID, _ := conn.Locals("userID").(uint)

		client, regErr := s.hub.Register(userID, uint(itemID), conn)
		if regErr != nil {
			log.Printf("WebSocket: failed to register watcher for item %d: %v", itemID, regErr)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+regErr.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		// ReadPump blocks until the peer disconnects and unregisters the
		// client on the way out.
		client.ReadPump()
	})
}
