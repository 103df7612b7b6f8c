package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/modules/registry/presentation/controllers/dtos"
	"github.com/windregistry/masterdata/modules/registry/presentation/mappers"
	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/httpapi"
	"github.com/windregistry/masterdata/pkg/logging"
)

const siteIDPattern = "{id:[0-9a-fA-F-]{36}}"

// SitesController serves sites and triggers enrichment of unlinked turbines.
type SitesController struct {
	basePath    string
	opts        ListOptions
	siteService *services.SiteService
	enricher    *services.BackgroundEnricher
}

func NewSitesController(app application.Application, opts ListOptions) application.Controller {
	return &SitesController{
		basePath:    "/api/sites",
		opts:        opts.withDefaults(),
		siteService: app.Service(services.SiteService{}).(*services.SiteService),
		enricher:    app.Service(services.BackgroundEnricher{}).(*services.BackgroundEnricher),
	}
}

func (c *SitesController) Key() string {
	return c.basePath
}

func (c *SitesController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath, c.List).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/stats", c.Stats).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/enrich", c.Enrich).Methods(http.MethodPost)
	r.HandleFunc(c.basePath+"/"+siteIDPattern, c.Get).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/"+siteIDPattern+"/turbines", c.Turbines).Methods(http.MethodGet)
}

func (c *SitesController) List(w http.ResponseWriter, r *http.Request) {
	page, err := httpapi.ParsePage(r, c.opts.PageSize, c.opts.MaxPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	items, total, err := c.siteService.GetPaginated(r.Context(), &site.FindParams{
		Limit:  page.Size,
		Offset: page.Offset(),
	})
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("list sites failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, httpapi.NewPaged(mappers.SiteSummariesToResponse(items), page, total))
}

func (c *SitesController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := c.siteID(w, r)
	if !ok {
		return
	}
	summary, err := c.siteService.GetSummary(r.Context(), id)
	if c.handleLookupError(w, r, id, err) {
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.SiteSummaryToResponse(summary))
}

func (c *SitesController) Turbines(w http.ResponseWriter, r *http.Request) {
	id, ok := c.siteID(w, r)
	if !ok {
		return
	}
	page, err := httpapi.ParsePage(r, c.opts.PageSize, c.opts.MaxPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	summary, err := c.siteService.GetSummary(r.Context(), id)
	if c.handleLookupError(w, r, id, err) {
		return
	}
	items, _, err := c.siteService.Turbines(r.Context(), id, page.Size, page.Offset())
	if c.handleLookupError(w, r, id, err) {
		return
	}
	resp := mappers.SiteDetailToResponse(summary, items)
	resp.Page = page.Number
	resp.PageSize = page.Size
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *SitesController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.siteService.Stats(r.Context())
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("site stats failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, stats)
}

// Enrich schedules a pass over every unlinked turbine and returns at once.
func (c *SitesController) Enrich(w http.ResponseWriter, r *http.Request) {
	c.enricher.EnrichMissing()
	_ = httpapi.WriteJSON(w, http.StatusAccepted, dtos.EnrichAcceptedResponse{Status: "accepted"})
}

func (c *SitesController) siteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SITE_ID", "site id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleLookupError writes the response for err and reports whether it did.
func (c *SitesController) handleLookupError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, site.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "SITE_NOT_FOUND", fmt.Sprintf("Site with ID %s not found", id))
	default:
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("site lookup failed")
		writeInternalError(w, r)
	}
	return true
}
