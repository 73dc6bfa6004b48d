// Package v1 implements the version 1 HTTP routes.
package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/infrastructure/api/middleware"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
)

// maxAuditLimit caps how many records one request can return.
const maxAuditLimit = 1000

// AuditRouter serves read access to the audit log.
type AuditRouter struct {
	client *diffsum.Client
	logger *slog.Logger
}

// NewAuditRouter creates a new AuditRouter.
func NewAuditRouter(client *diffsum.Client) *AuditRouter {
	return &AuditRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for audit endpoints.
func (r *AuditRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)

	return router
}

// List handles GET /api/v1/audit?session_id=&repo_path=&limit=.
// Without a limit, matches are returned oldest first.
func (r *AuditRouter) List(w http.ResponseWriter, req *http.Request) {
	params := service.AuditSearchParams{
		SessionID: req.URL.Query().Get("session_id"),
		RepoPath:  req.URL.Query().Get("repo_path"),
	}

	if raw := req.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			middleware.WriteError(w, req, middleware.BadRequest("limit must be a positive integer", err), r.logger)
			return
		}
		params.Limit = min(limit, maxAuditLimit)
	}

	records, err := r.client.Audit.Search(req.Context(), params)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.NewAuditListResponse(records))
}
