package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcpe-dev/hub/pkg/models"
)

// PublishResponse is returned by POST /v1/events.
type PublishResponse struct {
	ID string `json:"id"`
}

// publishHandler handles POST /v1/events, the process-boundary ingress that
// producers push events through. The body is a single event; id, timestamp
// and priority are defaulted when absent.
func (s *Server) publishHandler(c *gin.Context) {
	if !s.limiter.Allow() {
		s.mtr.PublishRejected()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "publish rate limit exceeded"})
		return
	}

	var evt models.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload: " + err.Error()})
		return
	}

	if err := s.eventRouter.Publish(&evt); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		slog.Error("Publish failed", "error", err, "event_type", evt.Type)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusAccepted, PublishResponse{ID: evt.ID})
}
