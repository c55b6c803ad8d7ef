package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is the content type of webhook deliveries.
const ContentTypeMsgpack = "application/msgpack"

// Delivery is the body POSTed by WebhookBroadcaster.
type Delivery struct {
	Channel string `msgpack:"channel"`
	Data    any    `msgpack:"data"`
}

// WebhookBroadcaster POSTs every payload, msgpack encoded, to the endpoint
// of a push service. It retains nothing.
type WebhookBroadcaster struct {
	url       string
	client    *http.Client
	onVacated func(channel string)
}

// WebhookOption configures a WebhookBroadcaster.
type WebhookOption func(*WebhookBroadcaster)

// WithHTTPClient sets the client deliveries are sent with.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(b *WebhookBroadcaster) { b.client = c }
}

// OnVacated sets the function called for every channel the push service
// reports as vacated.
func OnVacated(fn func(channel string)) WebhookOption {
	return func(b *WebhookBroadcaster) { b.onVacated = fn }
}

// NewWebhookBroadcaster returns a broadcaster delivering to url. Deliveries
// time out after timeout unless a client is set.
func NewWebhookBroadcaster(url string, timeout time.Duration, opts ...WebhookOption) *WebhookBroadcaster {
	b := &WebhookBroadcaster{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authorized implements Broadcaster.
func (*WebhookBroadcaster) Authorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// Unauthorized implements Broadcaster.
func (*WebhookBroadcaster) Unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
}

// hookEvents is the webhook body of the push service.
type hookEvents struct {
	Events []struct {
		Name    string `json:"name"`
		Channel string `json:"channel"`
	} `json:"events"`
}

// Hook handles channel_vacated events by dropping the subscriber of the
// channel.
func (b *WebhookBroadcaster) Hook(w http.ResponseWriter, r *http.Request) {
	var body hookEvents
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid webhook body"})
		return
	}
	for _, ev := range body.Events {
		if ev.Name == "channel_vacated" && b.onVacated != nil {
			b.onVacated(ev.Channel)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "okay"})
}

// Broadcast implements Broadcaster.
func (b *WebhookBroadcaster) Broadcast(ctx context.Context, sub *Subscriber, data any) error {
	body, err := msgpack.Marshal(Delivery{Channel: sub.Channel, Data: data})
	if err != nil {
		return fmt.Errorf("subscriptions: encoding delivery: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("subscriptions: building delivery: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeMsgpack)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("subscriptions: delivering to %s: %w", sub.Channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("subscriptions: delivering to %s: unexpected status %s", sub.Channel, resp.Status)
	}
	return nil
}
