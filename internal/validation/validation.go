// Package validation checks request payloads with go-playground/validator
// struct tags. Field names in messages follow the json tags.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ErrValidationFailed wraps every validation error.
var ErrValidationFailed = errors.New("validation failed")

// Error describes the first field that failed validation.
type Error struct {
	Field string
	Tag   string
	Param string
}

func (e *Error) Error() string {
	if format, ok := messages[e.Tag]; ok {
		return fmt.Sprintf(format, e.Field, e.Param)
	}
	return fmt.Sprintf("'%s' failed '%s' check", e.Field, e.Tag)
}

func (e *Error) Unwrap() error { return ErrValidationFailed }

var messages = map[string]string{
	"required":          "'%s' is required%.0s",
	"min":               "'%s' must be at least %s characters",
	"max":               "'%s' must be at most %s characters",
	"email":             "'%s' must be a valid email%.0s",
	"oneof":             "'%s' must be one of [%s]",
	"positive_cents":    "'%s' must be a positive amount in whole cents%.0s",
	"nonnegative_cents": "'%s' must be zero or a positive amount in whole cents%.0s",
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errInit      error
)

func instance() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errInit = newValidator()
	})
	return validate, errInit
}

func newValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())
	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	cents := func(allowZero bool) validator.Func {
		return func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			if !ok {
				return false
			}
			if d.IsNegative() || (!allowZero && d.IsZero()) {
				return false
			}
			return d.Equal(d.Truncate(2))
		}
	}
	if err := vld.RegisterValidation("positive_cents", cents(false)); err != nil {
		return nil, fmt.Errorf("register positive_cents: %w", err)
	}
	if err := vld.RegisterValidation("nonnegative_cents", cents(true)); err != nil {
		return nil, fmt.Errorf("register nonnegative_cents: %w", err)
	}
	return vld, nil
}

// Struct validates payload against its validate tags and returns an *Error
// for the first failing field.
func Struct(payload any) error {
	vld, err := instance()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := vld.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &Error{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
		}
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// ParseBody decodes the request body into payload and validates it. Failures
// come back as 400 fiber errors.
func ParseBody(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := Struct(payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}
