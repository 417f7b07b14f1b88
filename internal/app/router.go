package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/message"
	"github.com/novachat/nova/internal/observability"
	"github.com/novachat/nova/internal/relay"
	"github.com/novachat/nova/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Identity       Authorizer
	AuthHandler    *identity.Handler
	MemberHandler  *member.Handler
	MessageHandler *message.Handler
	RelayHandler   *relay.Handler
	WSHandler      http.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Nova defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Get("/metrics", params.Metrics.Handler().ServeHTTP)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(RequestTimeout(params.Config))
		params.AuthHandler.MountRoutes(r)
	})

	// Peer traffic authenticates with the node key, not a user token.
	r.Route("/api/relay", func(r chi.Router) {
		r.Use(RequestTimeout(params.Config))
		params.RelayHandler.Mount(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(RequestTimeout(params.Config))
		r.Use(RequireIdentity(params.Identity, params.Logger))
		params.MemberHandler.MountRoutes(r)
		params.MessageHandler.MountRoutes(r)
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	// The websocket session authorizes in-band with its first frame.
	r.Get("/ws", params.WSHandler.ServeHTTP)

	return r
}
