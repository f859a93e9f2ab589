package handler

import (
	"net/http"

	"vallenar/internal/apierror"
	"vallenar/internal/dto"
	"vallenar/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc service.AuthService }

func NewAuthHandler(svc service.AuthService) *AuthHandler { return &AuthHandler{svc: svc} }

// Login godoc
// @Summary Login de usuario
// @Tags auth
// @Accept json
// @Produce json
// @Param body body dto.LoginRequest true "Credenciales"
// @Success 200 {object} dto.LoginResponse
// @Failure 401 {object} apierror.APIError
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "auth.login", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, "auth.refresh", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// fail answers bad credentials with 401 rather than the 403 used for PIN denials.
func (h *AuthHandler) fail(c *gin.Context, op string, err error) {
	if apierror.KindOf(err) == apierror.KindAuthorizationDenied {
		_, body := apierror.ToResponse(err)
		c.JSON(http.StatusUnauthorized, body)
		return
	}
	respondError(c, op, err)
}
