package execution

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vektah/gqlparser/v2/validator/rules"

	"github.com/syssam/beacon/model"
)

// Request is a GraphQL request.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	// Doc is a parsed query. When set, Query is not parsed again.
	Doc *ast.QueryDocument
	// Root is the root value of the operation. A subscription executed with
	// a root resolves against it instead of registering a subscriber.
	Root any
}

// Response is the result of executing a Request.
type Response struct {
	Data       json.RawMessage `json:"data"`
	Errors     gqlerror.List   `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
	Result     *OrderedMap     `json:"-"`
}

// RulesProvider supplies the query validation rules of a request.
type RulesProvider interface {
	RulesWithVariables(vars map[string]any) *rules.Rules
}

// SubscriptionHandler registers the subscriber of a subscription operation
// executed without a root value. The returned extensions are added to the
// response.
type SubscriptionHandler interface {
	Subscribe(ctx context.Context, p ResolveParams) (map[string]any, error)
}

// ErrorPresenter converts a resolver error into a GraphQL error.
type ErrorPresenter func(ctx context.Context, err error, path ast.Path) *gqlerror.Error

// Option configures an Executor.
type Option func(*Executor)

// WithRepository sets the repository placed in the context of every request
// that does not carry one.
func WithRepository(repo model.Repository) Option {
	return func(e *Executor) { e.repo = repo }
}

// WithRules sets the validation rules provider.
func WithRules(p RulesProvider) Option {
	return func(e *Executor) { e.rules = p }
}

// WithSubscriptions sets the subscription handler.
func WithSubscriptions(h SubscriptionHandler) Option {
	return func(e *Executor) { e.subscriptions = h }
}

// WithLogger sets the logger for recovered resolver panics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithErrorPresenter replaces DefaultErrorPresenter.
func WithErrorPresenter(p ErrorPresenter) Option {
	return func(e *Executor) { e.presenter = p }
}

// Executor executes requests against a built schema. It is safe for
// concurrent use.
type Executor struct {
	schema        *ast.Schema
	resolvers     *Resolvers
	rules         RulesProvider
	repo          model.Repository
	subscriptions SubscriptionHandler
	logger        *slog.Logger
	presenter     ErrorPresenter
}

// NewExecutor returns an executor over schema and resolvers.
func NewExecutor(schema *ast.Schema, resolvers *Resolvers, opts ...Option) *Executor {
	e := &Executor{
		schema:    schema,
		resolvers: resolvers,
		logger:    slog.Default(),
		presenter: DefaultErrorPresenter,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolvers == nil {
		e.resolvers = NewResolvers()
	}
	return e
}

// Schema returns the executable schema.
func (e *Executor) Schema() *ast.Schema { return e.schema }

// Resolvers returns the resolver registry.
func (e *Executor) Resolvers() *Resolvers { return e.resolvers }

func (e *Executor) rulesFor(vars map[string]any) *rules.Rules {
	if e.rules == nil {
		return rules.NewDefaultRules()
	}
	return e.rules.RulesWithVariables(vars)
}

// Execute parses, validates and executes req. Request errors are returned
// in the response without data; field errors are returned next to the data
// of the fields that succeeded.
func (e *Executor) Execute(ctx context.Context, req Request) *Response {
	doc := req.Doc
	if doc == nil {
		var err error
		doc, err = parser.ParseQuery(&ast.Source{Name: "query", Input: req.Query})
		if err != nil {
			return errorResponse(gqlerror.WrapIfUnwrapped(err))
		}
	}
	if errs := validator.ValidateWithRules(e.schema, doc, e.rulesFor(req.Variables)); len(errs) > 0 {
		return &Response{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return errorResponse(gqlerror.Errorf("An operation name is required when the document contains multiple operations."))
		}
		return errorResponse(gqlerror.Errorf("Unknown operation named %q.", req.OperationName))
	}
	vars, err := validator.VariableValues(e.schema, op, req.Variables)
	if err != nil {
		return errorResponse(gqlerror.WrapIfUnwrapped(err))
	}

	if _, ok := model.FromContext(ctx); !ok && e.repo != nil {
		ctx = model.NewContext(ctx, e.repo)
	}
	if model.LoaderFrom(ctx) == nil {
		ctx = model.WithLoader(ctx, model.NewLoader())
	}

	s := &state{
		e:         e,
		schema:    e.schema,
		doc:       doc,
		op:        op,
		vars:      vars,
		req:       &req,
		fragments: make(map[string]bool),
	}
	data, ok := s.executeOperation(ctx)
	resp := &Response{Errors: s.errs, Extensions: s.extensions}
	if ok {
		resp.Result = data
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		resp.Errors = append(resp.Errors, gqlerror.Errorf("failed to encode response: %v", err))
		raw = []byte("null")
	}
	resp.Data = raw
	return resp
}

func errorResponse(err *gqlerror.Error) *Response {
	return &Response{Errors: gqlerror.List{err}}
}

func (s *state) executeOperation(ctx context.Context) (*OrderedMap, bool) {
	switch s.op.Operation {
	case ast.Mutation:
		if s.schema.Mutation == nil {
			s.errs = append(s.errs, gqlerror.Errorf("Schema is not configured for mutations."))
			return nil, false
		}
		return s.executeFields(ctx, s.schema.Mutation, s.req.Root, s.op.SelectionSet, nil, s.transactional)
	case ast.Subscription:
		if s.schema.Subscription == nil {
			s.errs = append(s.errs, gqlerror.Errorf("Schema is not configured for subscriptions."))
			return nil, false
		}
		if s.req.Root == nil {
			return s.subscribe(ctx)
		}
		return s.executeFields(ctx, s.schema.Subscription, s.req.Root, s.op.SelectionSet, nil, nil)
	default:
		return s.executeFields(ctx, s.schema.Query, s.req.Root, s.op.SelectionSet, nil, nil)
	}
}

// transactional runs the resolver of one mutation field inside a
// transaction and releases its AfterCommit callbacks once it committed.
func (s *state) transactional(ctx context.Context, resolve func(context.Context) (any, error)) (any, error) {
	repo, ok := model.FromContext(ctx)
	if !ok {
		qctx, q := withCommitQueue(ctx)
		v, err := resolve(qctx)
		if err == nil {
			q.flush(ctx)
		}
		return v, err
	}
	qctx, q := withCommitQueue(ctx)
	var out any
	err := repo.Transact(qctx, func(ctx context.Context, _ model.Repository) error {
		v, err := resolve(ctx)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	// Relations loaded inside the transaction may be stale now.
	if l := model.LoaderFrom(ctx); l != nil {
		l.Reset()
	}
	q.flush(ctx)
	return out, nil
}

func (s *state) subscribe(ctx context.Context) (*OrderedMap, bool) {
	root := s.schema.Subscription
	groups := s.collectFields(root, s.op.SelectionSet)
	out := NewOrderedMap(len(groups))
	for _, g := range groups {
		path := ast.Path{ast.PathName(g.key)}
		out.Set(g.key, nil)
		if s.e.subscriptions == nil {
			s.errs = append(s.errs, gqlerror.ErrorPathf(path, "Subscriptions are not enabled."))
			continue
		}
		p, err := s.params(root, nil, g, path)
		if err != nil {
			s.fieldError(ctx, err, g.fields[0], path)
			continue
		}
		ext, err := s.e.subscriptions.Subscribe(ctx, p)
		if err != nil {
			s.fieldError(ctx, err, g.fields[0], path)
			continue
		}
		for k, v := range ext {
			if s.extensions == nil {
				s.extensions = make(map[string]any)
			}
			s.extensions[k] = v
		}
	}
	return out, true
}
