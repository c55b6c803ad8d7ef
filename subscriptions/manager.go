package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/formatter"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
)

// ExtensionKey is the response extension describing the subscription.
const ExtensionKey = "beacon_subscriptions"

// Executor executes GraphQL requests.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) *execution.Response
}

// ContextSerializer snapshots the subscribing request so broadcasts
// re-execute the query in an equivalent context.
type ContextSerializer interface {
	Serialize(ctx context.Context) map[string]any
	Unserialize(ctx context.Context, snapshot map[string]any) context.Context
}

// Option configures a Manager.
type Option func(*Manager)

// WithStorage replaces the in-memory subscriber storage.
func WithStorage(s Storage) Option {
	return func(m *Manager) { m.storage = s }
}

// WithLogger sets the logger delivery failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithWorkers bounds the concurrent deliveries of one broadcast.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// WithTimeout bounds the delivery to one subscriber.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithVersion sets the version of the response extension.
func WithVersion(v int) Option {
	return func(m *Manager) { m.version = v }
}

// WithContextSerializer sets the serializer of subscriber contexts.
func WithContextSerializer(s ContextSerializer) Option {
	return func(m *Manager) { m.serializer = s }
}

// Manager registers subscribers and broadcasts to them. It implements
// execution.SubscriptionHandler and schema.Publisher.
type Manager struct {
	broadcaster Broadcaster
	storage     Storage
	serializer  ContextSerializer
	logger      *slog.Logger
	workers     int
	timeout     time.Duration
	version     int

	mu       sync.RWMutex
	executor Executor

	pending sync.WaitGroup
}

// NewManager returns a manager delivering through b.
func NewManager(b Broadcaster, opts ...Option) *Manager {
	m := &Manager{
		broadcaster: b,
		storage:     NewMemoryStorage(),
		logger:      slog.Default(),
		workers:     4,
		version:     2,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromConfig returns a manager with the broadcaster, worker and timeout
// settings of cfg.
func FromConfig(cfg config.Subscriptions, opts ...Option) (*Manager, error) {
	m := NewManager(nil, append([]Option{
		WithWorkers(cfg.Workers),
		WithTimeout(cfg.Timeout),
		WithVersion(cfg.Version),
	}, opts...)...)
	switch cfg.Broadcaster {
	case config.BroadcasterLog, "":
		m.broadcaster = NewLogBroadcaster(map[string]any{"driver": config.BroadcasterLog})
	case config.BroadcasterWebhook:
		m.broadcaster = NewWebhookBroadcaster(cfg.WebhookURL, cfg.Timeout, OnVacated(m.Unsubscribe))
	default:
		return nil, fmt.Errorf("subscriptions: unknown broadcaster %q", cfg.Broadcaster)
	}
	return m, nil
}

// Broadcaster returns the broadcaster of the manager.
func (m *Manager) Broadcaster() Broadcaster { return m.broadcaster }

// Storage returns the subscriber storage.
func (m *Manager) Storage() Storage { return m.storage }

// Bind sets the executor stored queries are re-executed with. It is called
// again whenever the schema is rebuilt.
func (m *Manager) Bind(e Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = e
}

func (m *Manager) boundExecutor() Executor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.executor
}

// Subscribe registers the subscriber of a subscription field. It
// implements execution.SubscriptionHandler.
func (m *Manager) Subscribe(ctx context.Context, p execution.ResolveParams) (map[string]any, error) {
	if p.Request == nil {
		return nil, errors.New("subscriptions: subscribing without a request")
	}
	query := p.Request.Query
	if query == "" && p.Request.Doc != nil {
		var b strings.Builder
		formatter.NewFormatter(&b).FormatQueryDocument(p.Request.Doc)
		query = b.String()
	}
	sub := NewSubscriber(Topic(p.Definition.Name), query, p.Request.OperationName, p.Request.Variables)
	if m.serializer != nil {
		sub.Context = m.serializer.Serialize(ctx)
	}
	m.storage.Add(sub)
	m.logger.DebugContext(ctx, "subscriber registered", slog.String("channel", sub.Channel), slog.String("topic", sub.Topic))

	if m.version == 1 {
		return map[string]any{ExtensionKey: map[string]any{
			"version":  1,
			"channels": map[string]any{p.Field.Alias: sub.Channel},
		}}, nil
	}
	return map[string]any{ExtensionKey: map[string]any{
		"version": m.version,
		"channel": sub.Channel,
	}}, nil
}

// Unsubscribe drops the subscriber of channel.
func (m *Manager) Unsubscribe(channel string) {
	if sub, ok := m.storage.Delete(channel); ok {
		m.logger.Debug("subscriber removed", slog.String("channel", sub.Channel), slog.String("topic", sub.Topic))
	}
}

// Publish broadcasts root to the subscribers of a subscription field in
// the background. Failures are logged. It implements schema.Publisher.
func (m *Manager) Publish(ctx context.Context, subscription string, root any) {
	ctx = context.WithoutCancel(ctx)
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if err := m.Broadcast(ctx, subscription, root); err != nil {
			m.logger.WarnContext(ctx, "broadcast failed", slog.String("subscription", subscription), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every broadcast started by Publish finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Broadcast re-executes the query of every subscriber of a subscription
// field with root as the root value and delivers the results. Subscribers
// filtered by the resolver receive nothing. Delivery failures are joined.
func (m *Manager) Broadcast(ctx context.Context, subscription string, root any) error {
	e := m.boundExecutor()
	if e == nil {
		return errors.New("subscriptions: no executor bound")
	}
	subs := m.storage.ByTopic(Topic(subscription))
	if len(subs) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	if m.workers > 0 {
		g.SetLimit(m.workers)
	}
	for _, sub := range subs {
		g.Go(func() error {
			if err := m.deliver(ctx, e, sub, root); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (m *Manager) deliver(ctx context.Context, e Executor, sub *Subscriber, root any) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if m.serializer != nil && sub.Context != nil {
		ctx = m.serializer.Unserialize(ctx, sub.Context)
	}
	resp := e.Execute(ctx, execution.Request{
		Query:         sub.Query,
		OperationName: sub.OperationName,
		Variables:     sub.Variables,
		Root:          root,
	})
	for _, err := range resp.Errors {
		if errors.Is(err, beacon.ErrSubscriptionFiltered) {
			return nil
		}
	}
	payload, err := Payload(resp)
	if err != nil {
		return fmt.Errorf("subscriptions: encoding result for %s: %w", sub.Channel, err)
	}
	if err := m.broadcaster.Broadcast(ctx, sub, payload); err != nil {
		return err
	}
	return nil
}

// Payload converts a response into plain values: {"data": ..., "errors": ...}.
func Payload(resp *execution.Response) (map[string]any, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
