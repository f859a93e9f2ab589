package handler

import (
	"errors"
	"net/http"
	"reflect"

	"vallenar/internal/apierror"
	"vallenar/internal/infra"
	"vallenar/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New("Solicitud invalida"))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps a classified service error onto the HTTP envelope.
// Transient kinds carry Retry-After so clients can repeat the call as-is.
func respondError(c *gin.Context, op string, err error) {
	kind := apierror.KindOf(err)
	infra.EngineErrors.WithLabelValues(op, string(kind)).Inc()

	status, body := apierror.ToResponse(err)
	if kind.Transient() {
		c.Header("Retry-After", "1")
	}

	evt := log.Debug()
	if kind == apierror.KindInfrastructure {
		evt = log.Error()
	}
	evt.Err(err).
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("op", op).
		Str("kind", string(kind)).
		Msg("request failed")

	c.AbortWithStatusJSON(status, body)
}
