package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type AbrirTerminalRequest struct {
	MontoInicial decimal.Decimal `json:"monto_inicial" validate:"min=0"`
}

type CerrarTerminalRequest struct {
	MontoFinal    decimal.Decimal `json:"monto_final"     validate:"min=0"`
	MontoRetiro   decimal.Decimal `json:"monto_retiro"    validate:"min=0"`
	Observaciones *string         `json:"observaciones"   validate:"omitempty,max=500"`
}

type ForzarCierreRequest struct {
	Justificacion string `json:"justificacion" validate:"required,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SesionResponse struct {
	ID                  string           `json:"id"`
	TerminalID          string           `json:"terminal_id"`
	UsuarioID           string           `json:"usuario_id"`
	Estado              string           `json:"estado"`
	MontoInicial        decimal.Decimal  `json:"monto_inicial"`
	MontoEsperado       *decimal.Decimal `json:"monto_esperado,omitempty"`
	MontoFinal          *decimal.Decimal `json:"monto_final,omitempty"`
	Diferencia          *decimal.Decimal `json:"diferencia,omitempty"`
	ClasificacionDesvio *string          `json:"clasificacion_desvio,omitempty"`
	Observaciones       *string          `json:"observaciones,omitempty"`
	AperturaEn          string           `json:"apertura_en"`
	CierreEn            *string          `json:"cierre_en,omitempty"`
}

type AperturaResponse struct {
	SesionID string `json:"sesion_id"`
	// Reutilizada es true cuando ya existia una sesion abierta para el mismo par terminal/usuario
	Reutilizada          bool     `json:"reutilizada"`
	SesionesAutoCerradas []string `json:"sesiones_auto_cerradas,omitempty"`
}

type CierreResponse struct {
	TerminalID string          `json:"terminal_id"`
	Sesion     *SesionResponse `json:"sesion,omitempty"`
	RemesaID   *string         `json:"remesa_id,omitempty"`
	// SinSesion indica que se cerro el terminal sin sesion abierta (discrepancia registrada)
	SinSesion bool `json:"sin_sesion"`
}

type TerminalResponse struct {
	ID            string          `json:"id"`
	Nombre        string          `json:"nombre"`
	SucursalID    string          `json:"sucursal_id"`
	Estado        string          `json:"estado"`
	CajeroActual  *string         `json:"cajero_actual_id"`
	SesionAbierta *SesionResponse `json:"sesion_abierta,omitempty"`
}
