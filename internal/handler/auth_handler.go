package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/asliddin-dev/edu-crm-api/internal/service"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
	"github.com/asliddin-dev/edu-crm-api/pkg/response"
)

type authService interface {
	Login(req service.LoginRequest) (*service.LoginResponse, error)
}

// AuthHandler serves admin authentication.
type AuthHandler struct {
	auth authService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth authService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary Admin login
// @Description Verifies the admin credential and issues a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body service.LoginRequest true "Credentials"
// @Success 200 {object} response.Envelope{data=service.LoginResponse}
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	result, err := h.auth.Login(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, result, nil)
}
