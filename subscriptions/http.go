package subscriptions

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

var (
	validate    = validator.New()
	formDecoder = schema.NewDecoder()
)

func init() {
	formDecoder.IgnoreUnknownKeys(true)
}

// AuthRequest is the channel authorization form posted by the push
// service client.
type AuthRequest struct {
	ChannelName string `schema:"channel_name" validate:"required,startswith=private-beacon-"`
	SocketID    string `schema:"socket_id" validate:"required"`
}

// AuthHandler authorizes a client to listen on a channel. Only channels of
// registered subscribers are authorized.
func (m *Manager) AuthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		if err := r.ParseForm(); err != nil {
			m.broadcaster.Unauthorized(w, r)
			return
		}
		var req AuthRequest
		if err := formDecoder.Decode(&req, r.PostForm); err != nil {
			m.broadcaster.Unauthorized(w, r)
			return
		}
		if err := validate.Struct(req); err != nil {
			m.broadcaster.Unauthorized(w, r)
			return
		}
		if _, ok := m.storage.ByChannel(req.ChannelName); !ok {
			m.broadcaster.Unauthorized(w, r)
			return
		}
		m.broadcaster.Authorized(w, r)
	})
}

// WebhookHandler passes push service webhooks to the broadcaster.
func (m *Manager) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		m.broadcaster.Hook(w, r)
	})
}

// Routes mounts the auth and webhook handlers under prefix, e.g.
// /graphql/subscriptions/auth.
func (m *Manager) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/subscriptions/auth", m.AuthHandler())
	mux.Handle(prefix+"/subscriptions/webhook", m.WebhookHandler())
}
