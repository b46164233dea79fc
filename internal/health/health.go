// Package health exposes liveness and readiness probes. Readiness is the
// manager flag plus the registered dependency checks (Postgres, session
// Redis); liveness is unconditional.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type CheckFunc func(ctx context.Context) error

type Manager struct {
	ready  atomic.Bool
	mu     sync.Mutex
	checks map[string]CheckFunc
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{checks: make(map[string]CheckFunc)}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// AddCheck registers a named dependency probe run on every readiness
// request. A later registration under the same name replaces the earlier
// one.
func (m *Manager) AddCheck(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

func (m *Manager) snapshot() map[string]CheckFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		out[name] = check
	}
	return out
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		results := gin.H{}
		healthy := true
		for name, check := range m.snapshot() {
			if err := check(c.Request.Context()); err != nil {
				results[name] = err.Error()
				healthy = false
			} else {
				results[name] = "ok"
			}
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
	}
}
