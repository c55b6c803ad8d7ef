package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against its struct tags. All violations are reported
// in one error, one per line.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fieldPath(fe), describe(fe)))
	}
	return fmt.Errorf("invalid config:\n%s", strings.Join(msgs, "\n"))
}

// fieldPath strips the root struct name from the namespace of fe.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
