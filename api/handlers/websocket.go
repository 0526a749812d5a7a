package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-console/stream/internal/server"
)

// StreamHandler handles WebSocket attach requests for the session event
// stream.
type StreamHandler struct {
	streamServer *server.Handler
	token        string
}

// NewStreamHandler creates a new StreamHandler. token is the shared
// bearer token a console must present; an empty token disables auth.
func NewStreamHandler(streamServer *server.Handler, token string) *StreamHandler {
	return &StreamHandler{
		streamServer: streamServer,
		token:        token,
	}
}

// Attach handles WS /api/stream - attaches a console to the event stream.
// Browser WebSocket clients cannot set headers, so the token travels in
// the query string and is checked before the upgrade.
func (h *StreamHandler) Attach(c *gin.Context) {
	if h.token != "" {
		presented := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) != 1 {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing token")
			return
		}
	}

	if err := h.streamServer.HandleConnection(c.Writer, c.Request); err != nil {
		// Upgrade failures already wrote a response.
		return
	}
}

// RegisterRoutes registers the stream handler routes on a Gin router group.
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stream", h.Attach)
}
