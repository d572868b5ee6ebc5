package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casechat-sync/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, svc SyncService, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/engine", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Status())
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "info", "audit_test", "audit test event", nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
