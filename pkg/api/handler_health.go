package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mcpe-dev/hub/pkg/version"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	Sessions      int    `json:"sessions"`
	Subscriptions int    `json:"subscriptions"`
}

// healthHandler handles GET /healthz. The hub has no external dependencies
// to probe; liveness of the process is the health signal, counts are
// context for operators.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, &HealthResponse{
		Status:        "ok",
		Version:       version.GitCommit,
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Sessions:      s.registry.Len(),
		Subscriptions: s.subscriptions.Len(),
	})
}
