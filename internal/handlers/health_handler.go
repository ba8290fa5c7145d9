package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     Pinger
	storeKind string
	nats      func() bool
}

// NewHealthHandler creates a new health handler. store may be nil for the
// memory and file stores, nats may be nil when events are disabled.
func NewHealthHandler(storeKind string, store Pinger, nats func() bool) *HealthHandler {
	return &HealthHandler{store: store, storeKind: storeKind, nats: nats}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  h.storeKind + " ping failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cart-service",
		"store":   h.storeKind,
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	resp := gin.H{"status": "ready"}
	if h.nats != nil {
		resp["events"] = h.nats()
	}
	c.JSON(http.StatusOK, resp)
}
