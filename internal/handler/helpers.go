package handler

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Mossos12/AlemAuto/internal/apierror"
	"github.com/Mossos12/AlemAuto/internal/pricing"
	"github.com/Mossos12/AlemAuto/internal/service"
	"github.com/Mossos12/AlemAuto/internal/storage"
	"github.com/Mossos12/AlemAuto/internal/vin"
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

	// `vin` tag — 17 chars over the restricted alphabet.
	_ = validate.RegisterValidation("vin", func(fl validator.FieldLevel) bool {
		return vin.Valid(fl.Field().String())
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails —
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// writeServiceError maps the service error taxonomy onto HTTP codes.
// Persistence failures are retryable and come back as 503; validation
// failures are the caller's to fix.
func writeServiceError(c *gin.Context, err error) {
	var pErr *storage.PersistenceError
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
	case errors.Is(err, service.ErrDuplicateVin), errors.Is(err, service.ErrAlreadySold):
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
	case errors.Is(err, service.ErrMissingField),
		errors.Is(err, service.ErrInvalidVin),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, pricing.ErrInvalidNumeric):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
	case errors.As(err, &pErr):
		c.JSON(http.StatusServiceUnavailable, apierror.New("storage unavailable, retry the operation"))
	default:
		_ = c.Error(err)
	}
}
