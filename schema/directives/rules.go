package directives

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/schema"
)

// RulesDirective validates argument values with go-playground/validator
// tags. Rules use the validator syntax; "min:3" is accepted for "min=3".
// Arguments without a required rule are only checked when present.
type RulesDirective struct {
	validate *validator.Validate
}

// NewRulesDirective returns the directive with its own validator.
func NewRulesDirective() *RulesDirective {
	return &RulesDirective{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validator returns the validator so custom rules can be registered.
func (d *RulesDirective) Validator() *validator.Validate { return d.validate }

func (*RulesDirective) Name() string { return "rules" }

func (*RulesDirective) Definition() string {
	return `
"""
Validate an argument before the field is resolved.
"""
directive @rules(
  """
  The rules to apply, e.g. ["required", "email", "max=255"].
  """
  apply: [String!]!
  """
  Messages replacing the default message of a rule.
  """
  messages: [RulesMessage!]
) repeatable on ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION

"""
A custom message for a validation rule.
"""
input RulesMessage {
  rule: String!
  message: String!
}
`
}

func (*RulesDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{ArgTransformer: true}
}

// TransformArg implements schema.ArgTransformer.
func (d *RulesDirective) TransformArg(_ *schema.AttachContext, arg schema.Arg, dir *ast.Directive) (schema.Transform, error) {
	rules := schema.ListArg(dir, "apply")
	if len(rules) == 0 {
		return nil, beacon.NewDefinitionError("The @%s directive on %s requires at least one rule.", dir.Name, arg.Path())
	}
	required := false
	for i, r := range rules {
		name, param, ok := strings.Cut(r, ":")
		if ok && !strings.Contains(r, "=") {
			r = name + "=" + param
			rules[i] = r
		}
		required = required || strings.HasPrefix(r, "required")
	}
	tag := strings.Join(rules, ",")
	if !required {
		tag = "omitempty," + tag
	}
	if err := d.checkTag(tag); err != nil {
		return nil, beacon.NewDefinitionError("Invalid rules %q of @%s on %s: %s.", rules, dir.Name, arg.Path(), err)
	}
	messages := customMessages(dir)
	return func(path string, value any) (any, error) {
		err := d.validate.Var(value, tag)
		if err == nil {
			return value, nil
		}
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return nil, err
		}
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			if m, ok := messages[fe.Tag()]; ok {
				msgs = append(msgs, m)
				continue
			}
			msgs = append(msgs, message(path, fe))
		}
		return nil, beacon.NewValidationError(path, msgs...)
	}, nil
}

// checkTag reports tags the validator does not know. Unknown tags panic
// inside the validator.
func (d *RulesDirective) checkTag(tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_ = d.validate.Var("", tag)
	return nil
}

func customMessages(dir *ast.Directive) map[string]string {
	out := make(map[string]string)
	arg := dir.Arguments.ForName("messages")
	if arg == nil || arg.Value == nil {
		return out
	}
	v, err := arg.Value.Value(nil)
	if err != nil {
		return out
	}
	list, _ := v.([]any)
	for _, e := range list {
		m, _ := e.(map[string]any)
		rule, _ := m["rule"].(string)
		msg, _ := m["message"].(string)
		if rule != "" && msg != "" {
			out[rule] = msg
		}
	}
	return out
}

func message(path string, fe validator.FieldError) string {
	var unit string
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", path)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", path)
	case "url", "http_url":
		return fmt.Sprintf("The %s must be a valid URL.", path)
	case "uuid", "uuid4":
		return fmt.Sprintf("The %s must be a valid UUID.", path)
	case "min", "gte":
		return fmt.Sprintf("The %s must be at least %s%s.", path, fe.Param(), unit)
	case "max", "lte":
		return fmt.Sprintf("The %s may not be greater than %s%s.", path, fe.Param(), unit)
	case "len":
		return fmt.Sprintf("The %s must be %s%s.", path, fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", path)
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("The %s field does not satisfy the %s=%s rule.", path, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("The %s field does not satisfy the %s rule.", path, fe.Tag())
	}
}
