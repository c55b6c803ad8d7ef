// Package subscriptions delivers GraphQL subscription payloads.
//
// A Manager registers a Subscriber whenever a subscription operation is
// executed, and re-executes the stored query of every subscriber of a topic
// when a mutation broadcasts to it. Results are handed to a Broadcaster,
// which pushes them to the client over an external channel.
package subscriptions

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
)

// Broadcaster pushes subscription results to subscribers and answers the
// lifecycle callbacks of the pub/sub provider.
type Broadcaster interface {
	// Authorized answers a channel authorization request that passed.
	Authorized(w http.ResponseWriter, r *http.Request)
	// Unauthorized answers a channel authorization request that failed.
	Unauthorized(w http.ResponseWriter, r *http.Request)
	// Hook answers the webhook of the pub/sub provider.
	Hook(w http.ResponseWriter, r *http.Request)
	// Broadcast delivers data to the channel of sub.
	Broadcast(ctx context.Context, sub *Subscriber, data any) error
}

// LogBroadcaster keeps the last payload of every channel in memory instead
// of delivering it. It is meant for development and tests.
type LogBroadcaster struct {
	config map[string]any

	mu         sync.RWMutex
	broadcasts map[string]any
}

// NewLogBroadcaster returns a broadcaster with the given options.
func NewLogBroadcaster(config map[string]any) *LogBroadcaster {
	return &LogBroadcaster{
		config:     config,
		broadcasts: make(map[string]any),
	}
}

// Authorized implements Broadcaster.
func (*LogBroadcaster) Authorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// Unauthorized implements Broadcaster.
func (*LogBroadcaster) Unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
}

// Hook implements Broadcaster.
func (*LogBroadcaster) Hook(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "okay"})
}

// Broadcast records data as the last payload of the subscriber's channel.
func (b *LogBroadcaster) Broadcast(_ context.Context, sub *Subscriber, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts[sub.Channel] = data
	return nil
}

// Broadcasts returns the last payload sent on channel.
func (b *LogBroadcaster) Broadcasts(channel string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.broadcasts[channel]
	return v, ok
}

// All returns a copy of the last payload of every channel.
func (b *LogBroadcaster) All() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.broadcasts)
}

// Config returns the options the broadcaster was created with.
func (b *LogBroadcaster) Config() map[string]any {
	return b.config
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
