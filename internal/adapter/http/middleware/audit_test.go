package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditAccessDenied_Forbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	owner := uuid.New()
	walletID := uuid.New().String()

	var got *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) {
			got = entry
		},
	)

	r := gin.New()
	r.Use(AuditAccessDenied(mockAudit))
	r.GET("/api/v1/wallets/:id", func(c *gin.Context) {
		c.Set(CtxOwnerID, owner)
		c.JSON(http.StatusForbidden, gin.H{"error_code": "AUTH_002"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+walletID, nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	if assert.NotNil(t, got) {
		assert.Equal(t, domain.AuditActionAccessDenied, got.Action)
		assert.Equal(t, "wallet", got.ResourceType)
		assert.Equal(t, walletID, got.ResourceID)
		if assert.NotNil(t, got.OwnerID) {
			assert.Equal(t, owner, *got.OwnerID)
		}
		assert.Contains(t, got.Details, `"status":403`)
	}
}

func TestAuditAccessDenied_UnauthorizedHasNoOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) {
			assert.Nil(t, entry.OwnerID)
			assert.Equal(t, "transaction", entry.ResourceType)
		},
	)

	r := gin.New()
	r.Use(AuditAccessDenied(mockAudit))
	r.POST("/api/v1/transactions/:id/status", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error_code": "AUTH_001"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/transactions/abc/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditAccessDenied_SkipsOtherStatuses(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)
	// No expectations: Log must not be called.

	r := gin.New()
	r.Use(AuditAccessDenied(mockAudit))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/bad", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
}

func TestResourceFor(t *testing.T) {
	tests := []struct {
		route, id    string
		resourceType string
		resourceID   string
	}{
		{"/api/v1/wallets", "", "wallet", ""},
		{"/api/v1/wallets/:id/send", "w1", "wallet", "w1"},
		{"/api/v1/transactions/:id", "t1", "transaction", "t1"},
		{"/health", "", "request", ""},
		{"", "", "request", ""},
	}

	for _, tc := range tests {
		rt, id := resourceFor(tc.route, tc.id)
		assert.Equal(t, tc.resourceType, rt, "route=%s", tc.route)
		assert.Equal(t, tc.resourceID, id, "route=%s", tc.route)
	}
}
