package api

import (
	"log/slog"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades the HTTP connection to WebSocket and hands it to the
// transport. HandleConnection blocks until the socket closes.
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin validation belongs in a deployment-level allowlist; the hub
		// accepts all origins and relies on the initialize handshake.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err, "client_ip", c.ClientIP())
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
