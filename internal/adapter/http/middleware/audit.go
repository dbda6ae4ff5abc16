package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditAccessDenied records every request rejected with 401 or 403.
// Successful mutations are audited by the services themselves.
func AuditAccessDenied(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}

		var ownerID *uuid.UUID
		if id, ok := OwnerID(c); ok {
			ownerID = &id
		}

		resourceType, resourceID := resourceFor(c.FullPath(), c.Param("id"))
		details, _ := json.Marshal(map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			OwnerID:      ownerID,
			Action:       domain.AuditActionAccessDenied,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// resourceFor maps a route template to the audited resource type.
func resourceFor(route, id string) (string, string) {
	switch {
	case strings.HasPrefix(route, "/api/v1/wallets"):
		return "wallet", id
	case strings.HasPrefix(route, "/api/v1/transactions"):
		return "transaction", id
	}
	return "request", ""
}
