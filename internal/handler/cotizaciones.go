package handler

import (
	"net/http"

	"vallenar/internal/dto"
	"vallenar/internal/middleware"
	"vallenar/internal/service"

	"github.com/gin-gonic/gin"
)

type CotizacionHandler struct{ svc service.QuoteService }

func NewCotizacionHandler(svc service.QuoteService) *CotizacionHandler {
	return &CotizacionHandler{svc: svc}
}

// Crear godoc
// @Summary Crea una cotizacion PENDING
// @Tags cotizaciones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CrearCotizacionRequest true "Items y validez"
// @Success 201 {object} dto.CotizacionResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/cotizaciones [post]
func (h *CotizacionHandler) Crear(c *gin.Context) {
	var req dto.CrearCotizacionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		respondError(c, "quote.create", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CotizacionHandler) Obtener(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		respondError(c, "quote.get", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CotizacionHandler) Actualizar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ActualizarCotizacionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "quote.update", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Descuento godoc
// @Summary Aplica un descuento global; sobre 10% requiere PIN de un superior
// @Tags cotizaciones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de la cotizacion"
// @Param body body dto.DescuentoRequest true "Porcentaje, PIN y motivo"
// @Success 200 {object} dto.CotizacionResponse
// @Failure 403 {object} apierror.APIError
// @Router /v1/cotizaciones/{id}/descuento [post]
func (h *CotizacionHandler) Descuento(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.DescuentoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ApplyDiscount(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "quote.discount", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Convertir godoc
// @Summary Convierte la cotizacion en venta reservando stock
// @Tags cotizaciones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de la cotizacion"
// @Param body body dto.ConvertirCotizacionRequest true "Terminal y pagos"
// @Success 201 {object} dto.VentaResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cotizaciones/{id}/convertir [post]
func (h *CotizacionHandler) Convertir(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ConvertirCotizacionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ConvertToSale(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "quote.convert", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CotizacionHandler) Cancelar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CancelarCotizacionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Cancel(c.Request.Context(), id, middleware.UserID(c), req)
	if err != nil {
		respondError(c, "quote.cancel", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Expirar runs the expiry sweep on demand.
func (h *CotizacionHandler) Expirar(c *gin.Context) {
	resp, err := h.svc.ExpireQuotes(c.Request.Context())
	if err != nil {
		respondError(c, "quote.expire", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
