package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz GET /healthz；停机后返回 503 以便负载均衡摘除
func (s *Server) Healthz(c *gin.Context) {
	users, conns := s.reg.Len()

	s.mu.Lock()
	stopped, started := s.stopped, s.started
	s.mu.Unlock()

	status, code := "ok", http.StatusOK
	switch {
	case stopped:
		status, code = "stopping", http.StatusServiceUnavailable
	case !started:
		status, code = "starting", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":      status,
		"users":       users,
		"connections": conns,
		"pending":     s.fanout.Pending(),
	})
}
