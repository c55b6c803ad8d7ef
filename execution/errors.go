package execution

import (
	"context"
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/syssam/beacon"
)

// DefaultErrorPresenter converts resolver errors to GraphQL errors. Errors
// that already are GraphQL errors are kept. Validation errors, alone or
// joined, are reported as one error whose extensions map every argument
// path to its messages:
//
//	{"message": "Validation failed for the field [createUser].",
//	 "extensions": {"validation": {"input.email": ["The email must be a valid email address."]}}}
func DefaultErrorPresenter(_ context.Context, err error, path ast.Path) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		c := *gerr
		return &c
	}
	if verrs := validationErrors(err); len(verrs) > 0 {
		messages := make(map[string][]string, len(verrs))
		for _, v := range verrs {
			messages[v.Path] = append(messages[v.Path], v.Messages...)
		}
		return &gqlerror.Error{
			Err:     err,
			Message: "Validation failed for the field [" + fieldPath(path) + "].",
			Path:    path,
			Extensions: map[string]any{
				"validation": messages,
			},
		}
	}
	return gqlerror.WrapPath(path, err)
}

// fieldPath returns the dotted path of the field without list indexes.
func fieldPath(path ast.Path) string {
	var out string
	for _, el := range path {
		name, ok := el.(ast.PathName)
		if !ok {
			continue
		}
		if out != "" {
			out += "."
		}
		out += string(name)
	}
	return out
}

func validationErrors(err error) []*beacon.ValidationError {
	var out []*beacon.ValidationError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
			return
		case *beacon.ValidationError:
			out = append(out, e)
			return
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}
