package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CotizacionItemRequest struct {
	ProductoID   string          `json:"producto_id"     validate:"required,uuid"`
	Cantidad     int             `json:"cantidad"        validate:"required,min=1"`
	DescuentoPct decimal.Decimal `json:"descuento_pct"   validate:"min=0,max=100"`
}

type CrearCotizacionRequest struct {
	ClienteID   *string                 `json:"cliente_id"    validate:"omitempty,uuid"`
	Items       []CotizacionItemRequest `json:"items"         validate:"required,min=1,dive"`
	DiasValidez int                     `json:"dias_validez"  validate:"omitempty,min=1,max=90"`
	Notas       *string                 `json:"notas"         validate:"omitempty,max=500"`
}

// ActualizarCotizacionRequest: nil fields are left untouched.
type ActualizarCotizacionRequest struct {
	Items       []CotizacionItemRequest `json:"items"         validate:"omitempty,min=1,dive"`
	Notas       *string                 `json:"notas"         validate:"omitempty,max=500"`
	DiasValidez *int                    `json:"dias_validez"  validate:"omitempty,min=1,max=90"`
}

type DescuentoRequest struct {
	Porcentaje decimal.Decimal `json:"porcentaje" validate:"min=0"`
	Pin        *string         `json:"pin"        validate:"omitempty,min=4,max=12"`
	Motivo     string          `json:"motivo"     validate:"required,min=3,max=300"`
}

type PagoRequest struct {
	Metodo string          `json:"metodo" validate:"required,oneof=efectivo debito credito transferencia"`
	Monto  decimal.Decimal `json:"monto"  validate:"required,gt=0"`
}

type ConvertirCotizacionRequest struct {
	TerminalID string        `json:"terminal_id" validate:"required,uuid"`
	Pagos      []PagoRequest `json:"pagos"       validate:"required,min=1,dive"`
}

type CancelarCotizacionRequest struct {
	Motivo string `json:"motivo" validate:"required,max=300"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CotizacionItemResponse struct {
	Posicion       int             `json:"posicion"`
	ProductoID     string          `json:"producto_id"`
	Producto       string          `json:"producto"`
	Cantidad       int             `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	DescuentoPct   decimal.Decimal `json:"descuento_pct"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Total          decimal.Decimal `json:"total"`
}

type CotizacionResponse struct {
	ID              string                   `json:"id"`
	Codigo          string                   `json:"codigo"`
	ClienteID       *string                  `json:"cliente_id"`
	Estado          string                   `json:"estado"`
	Subtotal        decimal.Decimal          `json:"subtotal"`
	DescuentoPct    decimal.Decimal          `json:"descuento_pct"`
	Descuento       decimal.Decimal          `json:"descuento"`
	Total           decimal.Decimal          `json:"total"`
	MotivoDescuento *string                  `json:"motivo_descuento,omitempty"`
	AutorizadoPor   *string                  `json:"autorizado_por,omitempty"`
	ValidaHasta     string                   `json:"valida_hasta"`
	VentaID         *string                  `json:"venta_id,omitempty"`
	Notas           *string                  `json:"notas,omitempty"`
	Items           []CotizacionItemResponse `json:"items"`
}

type VentaResponse struct {
	ID           string          `json:"id"`
	NumeroTicket int             `json:"numero_ticket"`
	CotizacionID string          `json:"cotizacion_id"`
	Total        decimal.Decimal `json:"total"`
	Vuelto       decimal.Decimal `json:"vuelto"`
}

type ExpirarResponse struct {
	Expiradas int64 `json:"expiradas"`
}
