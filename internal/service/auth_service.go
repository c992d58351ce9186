package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	"github.com/asliddin-dev/edu-crm-api/pkg/config"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and its expiry.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type adminTokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService authenticates the configured administrator and issues
// HS256 tokens for the protected endpoints.
type AuthService struct {
	jwtCfg   config.JWTConfig
	adminCfg config.AdminConfig
	logger   *zap.Logger
}

// NewAuthService constructs AuthService.
func NewAuthService(jwtCfg config.JWTConfig, adminCfg config.AdminConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{jwtCfg: jwtCfg, adminCfg: adminCfg, logger: logger}
}

// Login verifies the credential against the configured bcrypt hash and
// issues a signed token.
func (s *AuthService) Login(req LoginRequest) (*LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username and password are required")
	}
	if s.adminCfg.PasswordHash == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "admin access is not configured")
	}
	if req.Username != s.adminCfg.Username {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminCfg.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("admin login rejected", zap.String("username", req.Username))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")
	}

	expiresAt := time.Now().Add(s.jwtCfg.Expiration)
	claims := adminTokenClaims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	s.logger.Info("admin login", zap.String("username", req.Username))
	return &LoginResponse{Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateToken parses and verifies a token, returning the admin claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	claims := &adminTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return &models.AdminClaims{Username: claims.Username}, nil
}
