package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so messages match the request payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct-tag validation and converts the first failure into a
// *ValidationError. messages maps JSON field names to client-facing text.
func validateInput(input any, messages map[string]string) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	msg, ok := messages[fe.Field()]
	if !ok {
		msg = fmt.Sprintf("%s is invalid.", fe.Field())
	}
	return newValidationError(fe.Field(), msg)
}

// trimmed returns s without surrounding whitespace; used before validation so that
// whitespace-only ids count as missing.
func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func optionalTrimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
