package server

import (
	"context"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/execution"
)

// ExecutableSchema adapts an execution.Executor to gqlgen, so the gqlgen
// transports, caches and extensions serve beacon schemas.
type ExecutableSchema struct {
	executor *execution.Executor
}

var _ graphql.ExecutableSchema = (*ExecutableSchema)(nil)

// NewExecutableSchema returns the gqlgen schema of e.
func NewExecutableSchema(e *execution.Executor) *ExecutableSchema {
	return &ExecutableSchema{executor: e}
}

// Schema implements graphql.ExecutableSchema.
func (s *ExecutableSchema) Schema() *ast.Schema {
	return s.executor.Schema()
}

// Complexity implements graphql.ExecutableSchema with the complexity
// functions registered by directives.
func (s *ExecutableSchema) Complexity(_ context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	fn := s.executor.Resolvers().Complexity(typeName, fieldName)
	if fn == nil {
		return 0, false
	}
	return fn(childComplexity, args), true
}

// Exec implements graphql.ExecutableSchema. The operation is executed once;
// subscriptions answer with their registration and deliver later through
// the broadcaster.
func (s *ExecutableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	var once sync.Once
	return func(ctx context.Context) *graphql.Response {
		var out *graphql.Response
		once.Do(func() {
			resp := s.executor.Execute(ctx, execution.Request{
				Query:         opCtx.RawQuery,
				OperationName: opCtx.OperationName,
				Variables:     opCtx.Variables,
				Doc:           opCtx.Doc,
			})
			for k, v := range resp.Extensions {
				graphql.RegisterExtension(ctx, k, v)
			}
			out = &graphql.Response{Data: resp.Data, Errors: resp.Errors}
		})
		return out
	}
}
