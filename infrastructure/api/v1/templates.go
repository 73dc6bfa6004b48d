package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/infrastructure/api/middleware"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
)

// TemplatesRouter lists the aggregation templates.
type TemplatesRouter struct {
	client *diffsum.Client
}

// NewTemplatesRouter creates a new TemplatesRouter.
func NewTemplatesRouter(client *diffsum.Client) *TemplatesRouter {
	return &TemplatesRouter{client: client}
}

// Routes returns the chi router for template endpoints.
func (r *TemplatesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)

	return router
}

// List handles GET /api/v1/templates.
func (r *TemplatesRouter) List(w http.ResponseWriter, _ *http.Request) {
	infos := r.client.Templates()
	data := make([]dto.TemplateInfo, len(infos))
	for i, info := range infos {
		data[i] = dto.TemplateInfo{ID: info.ID, Name: info.Name}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"data": data})
}
