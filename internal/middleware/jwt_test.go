package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type validatorMock struct {
	claims *models.AdminClaims
}

func (m *validatorMock) ValidateToken(token string) (*models.AdminClaims, error) {
	if token == "valid" {
		return m.claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
}

func newAuthRouter() (*gin.Engine, *validatorMock) {
	gin.SetMode(gin.TestMode)
	mock := &validatorMock{claims: &models.AdminClaims{Username: "admin"}}
	r := gin.New()
	r.GET("/protected", JWTAuth(mock), func(c *gin.Context) {
		claims, ok := AdminFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": claims.Username})
	})
	return r, mock
}

func TestJWTAuthMissingHeader(t *testing.T) {
	r, _ := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMalformedHeader(t *testing.T) {
	r, _ := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthInvalidToken(t *testing.T) {
	r, _ := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer expired")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthValidToken(t *testing.T) {
	r, _ := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer valid")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}
