package handler

import (
	"net/http"

	"vallenar/internal/dto"
	"vallenar/internal/middleware"
	"vallenar/internal/service"

	"github.com/gin-gonic/gin"
)

type TerminalHandler struct{ svc service.TerminalService }

func NewTerminalHandler(svc service.TerminalService) *TerminalHandler {
	return &TerminalHandler{svc: svc}
}

// Abrir godoc
// @Summary Abre el terminal para el usuario autenticado
// @Tags terminales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID del terminal"
// @Param body body dto.AbrirTerminalRequest true "Monto inicial"
// @Success 201 {object} dto.AperturaResponse
// @Success 200 {object} dto.AperturaResponse "sesion existente reutilizada"
// @Failure 409 {object} apierror.APIError
// @Router /v1/terminales/{id}/abrir [post]
func (h *TerminalHandler) Abrir(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.AbrirTerminalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "terminal.open", err)
		return
	}
	status := http.StatusCreated
	if resp.Reutilizada {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// Cerrar godoc
// @Summary Cierra el terminal con arqueo y retiro opcional a tesoreria
// @Tags terminales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID del terminal"
// @Param body body dto.CerrarTerminalRequest true "Arqueo"
// @Success 200 {object} dto.CierreResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/terminales/{id}/cerrar [post]
func (h *TerminalHandler) Cerrar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CerrarTerminalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "terminal.close", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ForzarCierre godoc
// @Summary Cierre forzado de un terminal bloqueado (gerente o superior)
// @Tags terminales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID del terminal"
// @Param body body dto.ForzarCierreRequest true "Justificacion"
// @Success 200 {object} dto.CierreResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/terminales/{id}/forzar-cierre [post]
func (h *TerminalHandler) ForzarCierre(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ForzarCierreRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ForceClose(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "terminal.force_close", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TerminalHandler) Obtener(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		respondError(c, "terminal.get", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
