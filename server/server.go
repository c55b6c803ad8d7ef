// Package server serves beacon schemas over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/privacy"
	"github.com/syssam/beacon/schema"
	"github.com/syssam/beacon/subscriptions"
)

const (
	queryCacheSize = 1000
	apqCacheSize   = 100
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRepository sets the repository requests run against.
func WithRepository(r model.Repository) Option {
	return func(s *Server) { s.repo = r }
}

// WithSubscriptions enables subscriptions delivered by m.
func WithSubscriptions(m *subscriptions.Manager) Option {
	return func(s *Server) { s.subscriptions = m }
}

// WithViewer resolves the privacy viewer of each GraphQL request. A nil
// viewer leaves the request anonymous.
func WithViewer(fn func(*http.Request) privacy.Viewer) Option {
	return func(s *Server) { s.viewer = fn }
}

// Server serves the GraphQL endpoint, the playground and the subscription
// callbacks. The schema can be swapped while serving.
type Server struct {
	cfg           *config.Config
	logger        *slog.Logger
	repo          model.Repository
	subscriptions *subscriptions.Manager
	viewer        func(*http.Request) privacy.Viewer

	graphql atomic.Pointer[handler.Server]
	mux     *http.ServeMux
}

// New returns a server for s configured by cfg.
func New(cfg *config.Config, s *schema.Schema, opts ...Option) *Server {
	srv := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.Swap(s)

	srv.mux.Handle(cfg.Route.URI, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if srv.viewer != nil {
			if v := srv.viewer(r); v != nil {
				r = r.WithContext(privacy.WithViewer(r.Context(), v))
			}
		}
		srv.graphql.Load().ServeHTTP(w, r)
	}))
	if cfg.Route.Playground != "" {
		srv.mux.Handle(cfg.Route.Playground, playground.Handler("Beacon", cfg.Route.URI))
	}
	if srv.subscriptions != nil {
		srv.subscriptions.Routes(srv.mux, cfg.Route.URI)
	}
	return srv
}

// Swap serves s from now on. Requests in flight finish on the previous
// schema.
func (srv *Server) Swap(s *schema.Schema) {
	rules := execution.NewValidationRulesProvider(srv.cfg.Security, s.Resolvers.Complexity)
	opts := []execution.Option{
		execution.WithRules(rules),
		execution.WithLogger(srv.logger),
	}
	if srv.repo != nil {
		opts = append(opts, execution.WithRepository(srv.repo))
	}
	if srv.subscriptions != nil {
		opts = append(opts, execution.WithSubscriptions(srv.subscriptions))
	}
	e := execution.NewExecutor(s.AST, s.Resolvers, opts...)
	if srv.subscriptions != nil {
		srv.subscriptions.Bind(e)
	}

	h := handler.New(NewExecutableSchema(e))
	h.AddTransport(transport.Options{})
	h.AddTransport(transport.GET{})
	h.AddTransport(transport.POST{})
	h.SetQueryCache(lru.New[*ast.QueryDocument](queryCacheSize))
	h.SetValidationRulesFn(rules.Rules)
	if !srv.cfg.Security.DisableIntrospection {
		h.Use(extension.Introspection{})
	}
	h.Use(extension.AutomaticPersistedQuery{Cache: lru.New[string](apqCacheSize)})
	srv.graphql.Store(h)
}

// Handler returns the HTTP handler of the server, requests logged.
func (srv *Server) Handler() http.Handler {
	return logRequests(srv.logger, srv.mux)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully and waits for pending broadcasts.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	hs := &http.Server{
		Addr:              srv.cfg.Route.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		srv.logger.InfoContext(ctx, "serving graphql", slog.String("addr", hs.Addr), slog.String("uri", srv.cfg.Route.URI))
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdown); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if srv.subscriptions != nil {
		srv.subscriptions.Wait()
	}
	return nil
}
