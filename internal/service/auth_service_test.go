package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/asliddin-dev/edu-crm-api/pkg/config"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

func newAuthService(t *testing.T, password string) *AuthService {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(
		config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		config.AdminConfig{Username: "admin", PasswordHash: string(hash)},
		zap.NewNop(),
	)
}

func TestAuthServiceLogin(t *testing.T) {
	svc := newAuthService(t, "s3cret")

	result, err := svc.Login(LoginRequest{Username: "admin", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc := newAuthService(t, "s3cret")

	_, err := svc.Login(LoginRequest{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongUsername(t *testing.T) {
	svc := newAuthService(t, "s3cret")

	_, err := svc.Login(LoginRequest{Username: "root", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnconfigured(t *testing.T) {
	svc := NewAuthService(
		config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		config.AdminConfig{Username: "admin"},
		zap.NewNop(),
	)

	_, err := svc.Login(LoginRequest{Username: "admin", Password: "anything"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(t, "s3cret")

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := newAuthService(t, "s3cret")
	result, err := issuer.Login(LoginRequest{Username: "admin", Password: "s3cret"})
	require.NoError(t, err)

	verifier := NewAuthService(
		config.JWTConfig{Secret: "different-secret", Expiration: time.Hour},
		config.AdminConfig{Username: "admin"},
		zap.NewNop(),
	)
	_, err = verifier.ValidateToken(result.Token)
	require.Error(t, err)
}
