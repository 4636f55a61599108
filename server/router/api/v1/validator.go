package v1

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// MaxMessageBytes bounds the size of one customer message.
const MaxMessageBytes = 8 * 1024

// requestValidator adapts go-playground/validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxMessageBytes
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &requestValidator{validate: v}
}

func (r *requestValidator) Validate(i any) error {
	if err := r.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, describe(err)).SetInternal(err)
	}
	return nil
}

// describe turns validation errors into a short client-facing message.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(parts, ", ")
}
