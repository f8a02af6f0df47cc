// Package validator wraps go-playground validation with JSON-aware field
// names and messages suitable for API responses.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

// jsonFieldName reports the json tag name for a struct field so failures
// reference wire names rather than Go identifiers.
func jsonFieldName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" || tag == "-" {
		return fld.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// FieldError describes a single failed rule on one field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// Message renders the failure for API clients.
func (e FieldError) Message() string {
	field := humanise(e.Field)
	switch e.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + e.Param + " characters"
	case "max":
		return field + " must be at most " + e.Param + " characters"
	case "uuid4":
		return field + " must be a valid UUID"
	case "oneof":
		return field + " must be one of: " + strings.Join(strings.Fields(e.Param), ", ")
	default:
		if e.Param != "" {
			return field + " failed validation: " + e.Tag + "=" + e.Param
		}
		return field + " failed validation: " + e.Tag
	}
}

// FieldErrors aggregates every failed rule for a payload.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Message()
	}
	return strings.Join(parts, "; ")
}

// Struct runs registered rules against s. Failures come back as FieldErrors;
// any other error is returned unchanged.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make(FieldErrors, 0, len(ve))
		for _, fe := range ve {
			out = append(out, FieldError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return out
	}

	return err
}

func humanise(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}
