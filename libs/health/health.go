// Package health backs the /healthz and /readyz endpoints. Liveness is
// unconditional; readiness flips on once Postgres and Kafka are wired and
// flips off at shutdown so in-flight consumers drain before the process
// exits.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Manager is the readiness flag shared between main and the HTTP router.
type Manager struct {
	ready atomic.Bool
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// LivenessHandler answers as long as the process is serving at all.
func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadinessHandler reports 503 until dependencies are wired, and again once
// shutdown has begun.
func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
	}
}
