// Package validation wraps go-playground/validator for the request structs
// declared in internal/domain. Business-rule validation (duplicate tier
// triples, unit uniqueness, referential checks) stays in the store layer;
// this covers field-level constraints only.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	FailedField string
	Tag         string
	Param       string
}

func (e FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("field %s failed on %s=%s", e.FailedField, e.Tag, e.Param)
	}
	return fmt.Sprintf("field %s failed on %s", e.FailedField, e.Tag)
}

var validate = validator.New()

func ValidateStruct(data any) []FieldError {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	var result []FieldError
	for _, fieldErr := range err.(validator.ValidationErrors) {
		result = append(result, FieldError{
			FailedField: fieldErr.StructNamespace(),
			Tag:         fieldErr.Tag(),
			Param:       fieldErr.Param(),
		})
	}
	return result
}

// Describe joins field errors into one user-facing message.
func Describe(errs []FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}
