package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/infrastructure/api/middleware"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
)

// EstimateRouter sizes diffs against model budgets.
type EstimateRouter struct {
	client *diffsum.Client
	logger *slog.Logger
}

// NewEstimateRouter creates a new EstimateRouter.
func NewEstimateRouter(client *diffsum.Client) *EstimateRouter {
	return &EstimateRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for estimate endpoints.
func (r *EstimateRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Estimate)

	return router
}

// Estimate handles POST /api/v1/estimate.
func (r *EstimateRouter) Estimate(w http.ResponseWriter, req *http.Request) {
	var body dto.EstimateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.BadRequest("invalid request body", err), r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.NewEstimateResponse(r.client.Estimate(body.Text, body.Model)))
}
