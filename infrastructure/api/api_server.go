package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/helixml/diffsum"
	apimiddleware "github.com/helixml/diffsum/infrastructure/api/middleware"
	v1 "github.com/helixml/diffsum/infrastructure/api/v1"
)

// requestTimeout bounds every non-streaming request.
const requestTimeout = 60 * time.Second

// APIServer provides an HTTP API backed by a diffsum Client.
type APIServer struct {
	client           *diffsum.Client
	apiKeys          []string
	corsOrigins      []string
	localRepos       bool
	progressInterval time.Duration
	logger           *slog.Logger

	routes     chi.Router
	mountRoute sync.Once

	mu     sync.Mutex
	server *Server
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithCORSOrigins allows browser calls from the given origins.
func WithCORSOrigins(origins ...string) APIServerOption {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// WithLocalRepos lets summarize requests name repositories on the server's
// disk.
func WithLocalRepos(enabled bool) APIServerOption {
	return func(a *APIServer) { a.localRepos = enabled }
}

// WithProgressInterval limits streamed progress to one event per interval.
func WithProgressInterval(d time.Duration) APIServerOption {
	return func(a *APIServer) { a.progressInterval = d }
}

// NewAPIServer creates a new APIServer wired to the given Client.
// apiKeys protects the summarize endpoint, which spends backend tokens;
// read endpoints stay open.
func NewAPIServer(client *diffsum.Client, apiKeys []string, opts ...APIServerOption) *APIServer {
	a := &APIServer{
		client:  client,
		apiKeys: apiKeys,
		logger:  client.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the router the API routes are mounted on. Middleware added
// with Use must be registered before the first call to Handler or
// ListenAndServe.
func (a *APIServer) Router() chi.Router {
	if a.routes == nil {
		a.routes = chi.NewRouter()
	}
	return a.routes
}

// Handler returns the API as an http.Handler, for tests and custom servers.
// It carries no server middleware.
func (a *APIServer) Handler() http.Handler {
	router := a.Router()
	a.mountRoute.Do(func() { a.mountRoutes(router) })
	return router
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	router.Get("/healthz", a.health)

	summarizeRouter := v1.NewSummarizeRouter(c,
		v1.WithLocalRepos(a.localRepos),
		v1.WithProgressInterval(a.progressInterval),
	)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			r.Mount("/estimate", v1.NewEstimateRouter(c).Routes())
			r.Mount("/audit", v1.NewAuditRouter(c).Routes())
			r.Mount("/templates", v1.NewTemplatesRouter(c).Routes())
		})

		// Streams run as long as the pipeline does.
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
			r.Mount("/summarize", summarizeRouter.Routes())
		})
	})
}

func (a *APIServer) health(w http.ResponseWriter, _ *http.Request) {
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  a.client.Model(),
	})
}

// ListenAndServe serves the API on addr until Shutdown.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger, a.corsOrigins...)
	server.Router().Mount("/", a.Handler())

	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	return server.ListenAndServe()
}

// Shutdown gracefully stops a running server. It is a no-op before
// ListenAndServe.
func (a *APIServer) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
