package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
)

// DirectivesSource names the source holding the directive definitions.
const DirectivesSource = "beacon/directives.graphql"

// Schema is a built, executable schema.
type Schema struct {
	// AST is the validated schema.
	AST *ast.Schema
	// Resolvers holds the resolvers attached by directives.
	Resolvers *execution.Resolvers
	// SDL is the manipulated schema document, directive definitions
	// included.
	SDL string
	// Hash identifies the sources the schema was built from.
	Hash string
	// Cached reports whether SDL was read from the cache.
	Cached bool
}

// Option configures a Builder.
type Option func(*Builder) error

// WithConfig sets the configuration. Schema paths and the cache settings
// of cfg are used unless overridden by other options.
func WithConfig(cfg *config.Config) Option {
	return func(b *Builder) error {
		b.cfg = cfg
		return nil
	}
}

// WithDirectives registers directives.
func WithDirectives(dirs ...Directive) Option {
	return func(b *Builder) error {
		for _, d := range dirs {
			if err := b.directives.Register(d); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithModels sets the model registry directives resolve model types with.
func WithModels(r *model.Registry) Option {
	return func(b *Builder) error {
		b.models = r
		return nil
	}
}

// WithCallables sets the registry of resolver classes.
func WithCallables(c *Callables) Option {
	return func(b *Builder) error {
		b.callables = c
		return nil
	}
}

// WithPublisher sets the publisher used by @broadcast.
func WithPublisher(p Publisher) Option {
	return func(b *Builder) error {
		b.publisher = p
		return nil
	}
}

// WithSource adds an SDL source.
func WithSource(name, sdl string) Option {
	return func(b *Builder) error {
		b.sources = append(b.sources, &ast.Source{Name: name, Input: sdl})
		return nil
	}
}

// WithFiles adds SDL files read on every build.
func WithFiles(paths ...string) Option {
	return func(b *Builder) error {
		b.files = append(b.files, paths...)
		return nil
	}
}

// WithCache caches the manipulated schema document at path.
func WithCache(path string) Option {
	return func(b *Builder) error {
		b.cache = NewCache(path)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) error {
		b.logger = l
		return nil
	}
}

// Builder builds executable schemas from SDL annotated with directives.
type Builder struct {
	cfg        *config.Config
	directives *Registry
	models     *model.Registry
	callables  *Callables
	publisher  Publisher
	sources    []*ast.Source
	files      []string
	cache      *Cache
	logger     *slog.Logger
}

// NewBuilder returns a builder configured by opts. Without WithFiles the
// schema paths of the configuration are read; without WithCache the cache
// of the configuration is used when enabled.
func NewBuilder(opts ...Option) (*Builder, error) {
	directives, _ := NewRegistry()
	b := &Builder{
		directives: directives,
		callables:  NewCallables(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.cfg == nil {
		b.cfg = config.Default()
	}
	if len(b.files) == 0 && len(b.sources) == 0 {
		b.files = b.cfg.Schema.Path
	}
	if b.cache == nil && b.cfg.Schema.Cache.Enable {
		b.cache = NewCache(b.cfg.Schema.Cache.Path)
	}
	return b, nil
}

// Directives returns the directive registry.
func (b *Builder) Directives() *Registry { return b.directives }

// Callables returns the registry of resolver classes.
func (b *Builder) Callables() *Callables { return b.callables }

// Cache returns the schema cache, nil when caching is off.
func (b *Builder) Cache() *Cache { return b.cache }

// Files returns the SDL files read on every build.
func (b *Builder) Files() []string { return b.files }

func (b *Builder) readSources() ([]*ast.Source, error) {
	sources := make([]*ast.Source, 0, len(b.files)+len(b.sources)+1)
	sources = append(sources, &ast.Source{Name: DirectivesSource, Input: b.directives.Definitions()})
	for _, path := range b.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: reading %s: %w", path, err)
		}
		sources = append(sources, &ast.Source{Name: path, Input: string(data)})
	}
	return append(sources, b.sources...), nil
}

func hashSources(sources []*ast.Source) string {
	h := sha256.New()
	for _, s := range sources {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", s.Name, len(s.Input), s.Input)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build parses, manipulates and validates the schema and attaches the
// resolvers of its directives.
func (b *Builder) Build(ctx context.Context) (*Schema, error) {
	sources, err := b.readSources()
	if err != nil {
		return nil, err
	}
	out := &Schema{Hash: hashSources(sources)}

	var doc *ast.SchemaDocument
	if b.cache != nil {
		sdl, ok, err := b.cache.Load(out.Hash)
		if err != nil {
			b.logger.WarnContext(ctx, "schema cache unreadable", slog.String("path", b.cache.Path()), slog.Any("error", err))
		}
		if ok {
			doc, err = parser.ParseSchemas(validator.Prelude, &ast.Source{Name: b.cache.Path(), Input: sdl})
			if err != nil {
				return nil, gqlerror.WrapIfUnwrapped(err)
			}
			out.SDL, out.Cached = sdl, true
		}
	}
	if doc == nil {
		doc, err = parser.ParseSchemas(append([]*ast.Source{validator.Prelude}, sources...)...)
		if err != nil {
			return nil, gqlerror.WrapIfUnwrapped(err)
		}
		mctx := &ManipulateContext{Doc: doc, Config: b.cfg}
		if err := b.mergeExtensions(mctx); err != nil {
			return nil, err
		}
		if err := b.manipulate(mctx); err != nil {
			return nil, err
		}
		out.SDL = FormatDocument(doc)
		if b.cache != nil {
			if err := b.cache.Save(out.Hash, out.SDL); err != nil {
				b.logger.WarnContext(ctx, "schema cache not written", slog.String("path", b.cache.Path()), slog.Any("error", err))
			}
		}
	}

	s, err := validator.ValidateSchemaDocument(doc)
	if err != nil {
		return nil, err
	}
	out.AST = s
	out.Resolvers = execution.NewResolvers()
	actx := &AttachContext{
		Schema:     s,
		Resolvers:  out.Resolvers,
		Config:     b.cfg,
		Models:     b.models,
		Callables:  b.callables,
		Directives: b.directives,
		Publisher:  b.publisher,
	}
	if err := b.attach(actx); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeExtensions folds type extensions into their types so manipulators
// see every field once.
func (b *Builder) mergeExtensions(ctx *ManipulateContext) error {
	doc := ctx.Doc
	for _, ext := range doc.Extensions {
		for _, d := range b.directives.matching(ext.Directives, func(c Capabilities) bool { return c.TypeExtensionManipulator }) {
			if err := d.Directive.(TypeExtensionManipulator).ManipulateTypeExtension(ctx, ext, d.node); err != nil {
				return err
			}
		}
		def := doc.Definitions.ForName(ext.Name)
		if def == nil {
			def = &ast.Definition{Kind: ext.Kind, Name: ext.Name, Position: ext.Position}
			doc.Definitions = append(doc.Definitions, def)
		}
		if def.Kind != ext.Kind {
			return gqlerror.ErrorPosf(ext.Position, "Cannot extend type %s because the base type is a %s, not %s.", ext.Name, def.Kind, ext.Kind)
		}
		def.Directives = append(def.Directives, ext.Directives...)
		def.Interfaces = append(def.Interfaces, ext.Interfaces...)
		def.Fields = append(def.Fields, ext.Fields...)
		def.Types = append(def.Types, ext.Types...)
		def.EnumValues = append(def.EnumValues, ext.EnumValues...)
	}
	doc.Extensions = nil
	return nil
}

func (b *Builder) manipulate(ctx *ManipulateContext) error {
	for _, def := range slices.Clone(ctx.Doc.Definitions) {
		if def.BuiltIn {
			continue
		}
		for _, d := range b.directives.matching(def.Directives, func(c Capabilities) bool { return c.TypeManipulator }) {
			if err := d.Directive.(TypeManipulator).ManipulateType(ctx, def, d.node); err != nil {
				return err
			}
		}
		if def.Kind == ast.InputObject {
			if err := b.manipulateArgs(ctx, InputFields(def)); err != nil {
				return err
			}
			continue
		}
		for _, f := range slices.Clone(def.Fields) {
			for _, d := range b.directives.matching(f.Directives, func(c Capabilities) bool { return c.FieldManipulator }) {
				if err := d.Directive.(FieldManipulator).ManipulateField(ctx, def, f, d.node); err != nil {
					return err
				}
			}
			if err := b.manipulateArgs(ctx, Args(def, f)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) manipulateArgs(ctx *ManipulateContext, args []Arg) error {
	for _, a := range args {
		for _, d := range b.directives.matching(a.Directives, func(c Capabilities) bool { return c.ArgManipulator }) {
			if err := d.Directive.(ArgManipulator).ManipulateArg(ctx, a, d.node); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) attach(ctx *AttachContext) error {
	names := make([]string, 0, len(ctx.Schema.Types))
	for name, def := range ctx.Schema.Types {
		if !def.BuiltIn {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		def := ctx.Schema.Types[name]
		if err := b.attachType(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) attachType(ctx *AttachContext, def *ast.Definition) error {
	for _, d := range b.directives.matching(def.Directives, func(c Capabilities) bool { return c.TypeResolver }) {
		fn, err := d.Directive.(TypeResolver).ResolveType(ctx, def, d.node)
		if err != nil {
			return err
		}
		ctx.Resolvers.SetTypeResolver(def.Name, fn)
	}
	if def.Kind != ast.Object {
		return nil
	}
	var typeMiddleware []execution.Middleware
	for _, d := range b.directives.matching(def.Directives, func(c Capabilities) bool { return c.TypeMiddleware }) {
		mw, err := d.Directive.(TypeMiddleware).HandleType(ctx, def, d.node)
		if err != nil {
			return err
		}
		typeMiddleware = append(typeMiddleware, mw)
	}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		if err := b.attachField(ctx, def, f, typeMiddleware); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) attachField(ctx *AttachContext, parent *ast.Definition, f *ast.FieldDefinition, typeMiddleware []execution.Middleware) error {
	resolvers := b.directives.matching(f.Directives, func(c Capabilities) bool { return c.FieldResolver })
	if len(resolvers) > 1 {
		names := make([]string, len(resolvers))
		for i, r := range resolvers {
			names[i] = "@" + r.Name()
		}
		return beacon.NewDefinitionError("Field %s.%s has more than one resolver directive: %s.", parent.Name, f.Name, strings.Join(names, ", "))
	}
	if len(resolvers) == 1 {
		r := resolvers[0]
		fn, err := r.Directive.(FieldResolver).ResolveField(ctx, parent, f, r.node)
		if err != nil {
			return err
		}
		ctx.Resolvers.SetResolve(parent.Name, f.Name, fn)
	} else if ctx.Schema.Subscription != nil && parent.Name == ctx.Schema.Subscription.Name {
		ctx.Resolvers.SetResolve(parent.Name, f.Name, execution.ResolveSource)
	}

	args := Args(parent, f)
	if err := b.checkNested(ctx, args, map[string]bool{}); err != nil {
		return err
	}
	transforms, err := b.transforms(ctx, args, nil, map[string]bool{})
	if err != nil {
		return err
	}
	if len(transforms) > 0 {
		ctx.Resolvers.Use(parent.Name, f.Name, transformArgs(transforms))
	}

	var middleware []execution.Middleware
	for _, d := range b.directives.matching(f.Directives, func(c Capabilities) bool { return c.FieldMiddleware }) {
		mw, err := d.Directive.(FieldMiddleware).HandleField(ctx, parent, f, d.node)
		if err != nil {
			return err
		}
		middleware = append(middleware, mw)
	}
	middleware = append(slices.Clone(typeMiddleware), middleware...)
	for i := len(middleware) - 1; i >= 0; i-- {
		ctx.Resolvers.Use(parent.Name, f.Name, middleware[i])
	}
	return nil
}

// checkNested runs the ArgResolver checks of args and of the input types
// they reference.
func (b *Builder) checkNested(ctx *AttachContext, args []Arg, seen map[string]bool) error {
	for _, a := range args {
		for _, d := range b.directives.matching(a.Directives, func(c Capabilities) bool { return c.ArgResolver }) {
			if err := d.Directive.(ArgResolver).CheckArg(ctx, a, d.node); err != nil {
				return err
			}
		}
		def := ctx.Schema.Types[a.Type.Name()]
		if def == nil || def.Kind != ast.InputObject || seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		if err := b.checkNested(ctx, InputFields(def), seen); err != nil {
			return err
		}
	}
	return nil
}

type argTransform struct {
	path []string
	fn   Transform
}

func (b *Builder) transforms(ctx *AttachContext, args []Arg, prefix []string, visiting map[string]bool) ([]argTransform, error) {
	var out []argTransform
	for _, a := range args {
		path := append(slices.Clone(prefix), a.Name)
		for _, d := range b.directives.matching(a.Directives, func(c Capabilities) bool { return c.ArgTransformer }) {
			fn, err := d.Directive.(ArgTransformer).TransformArg(ctx, a, d.node)
			if err != nil {
				return nil, err
			}
			out = append(out, argTransform{path: path, fn: fn})
		}
		def := ctx.Schema.Types[a.Type.Name()]
		if def == nil || def.Kind != ast.InputObject || visiting[def.Name] {
			continue
		}
		visiting[def.Name] = true
		nested, err := b.transforms(ctx, InputFields(def), path, visiting)
		delete(visiting, def.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// transformArgs applies argument transforms before the resolver runs. All
// transforms run; their errors are joined.
func transformArgs(transforms []argTransform) execution.Middleware {
	return func(next execution.ResolveFunc) execution.ResolveFunc {
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			var errs []error
			args := any(p.Args)
			for _, t := range transforms {
				var err error
				args, err = applyAt(args, t.path, "", t.fn)
				if err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				return nil, err
			}
			p.Args, _ = args.(map[string]any)
			return next(ctx, p)
		}
	}
}

// applyAt returns a copy of v with fn applied at path. Lists are applied
// element-wise.
func applyAt(v any, path []string, prefix string, fn Transform) (any, error) {
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		var errs []error
		for i, e := range list {
			r, err := applyAt(e, path, fmt.Sprintf("%s.%d", prefix, i), fn)
			if err != nil {
				errs = append(errs, err)
			}
			out[i] = r
		}
		return out, errors.Join(errs...)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	key := path[0]
	name := key
	if prefix != "" {
		name = prefix + "." + key
	}
	cur, present := m[key]
	if len(path) > 1 {
		if !present || cur == nil {
			return v, nil
		}
		r, err := applyAt(cur, path[1:], name, fn)
		if err != nil {
			return v, err
		}
		return with(m, key, r), nil
	}
	r, err := fn(name, cur)
	if err != nil {
		return v, err
	}
	if !present && r == nil {
		return v, nil
	}
	return with(m, key, r), nil
}

func with(m map[string]any, key string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, e := range m {
		out[k] = e
	}
	out[key] = v
	return out
}

// FormatDocument prints the user-defined part of a schema document.
func FormatDocument(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

// Print prints the schema as SDL, directive definitions included.
func Print(s *ast.Schema) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchema(s)
	return buf.String()
}
