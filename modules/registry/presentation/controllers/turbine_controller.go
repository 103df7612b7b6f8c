package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/presentation/controllers/dtos"
	"github.com/windregistry/masterdata/modules/registry/presentation/mappers"
	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/httpapi"
	"github.com/windregistry/masterdata/pkg/logging"
)

// TurbinesController serves read access to imported turbines.
type TurbinesController struct {
	basePath       string
	opts           ListOptions
	turbineService *services.TurbineService
}

func NewTurbinesController(app application.Application, opts ListOptions) application.Controller {
	return &TurbinesController{
		basePath:       "/api/turbines",
		opts:           opts.withDefaults(),
		turbineService: app.Service(services.TurbineService{}).(*services.TurbineService),
	}
}

func (c *TurbinesController) Key() string {
	return c.basePath
}

func (c *TurbinesController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath, c.List).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/stats", c.Stats).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/gsrn/batch", c.GetByGSRNs).Methods(http.MethodPost)
	r.HandleFunc(c.basePath+"/gsrn/{gsrn}", c.GetByGSRN).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/model/{modelType}", c.ByModel).Methods(http.MethodGet)
	r.HandleFunc(c.basePath+"/manufacturer/{manufacturer}", c.ByManufacturer).Methods(http.MethodGet)
}

// List accepts optional manufacturer and model substring filters.
func (c *TurbinesController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c.list(w, r, turbine.FindParams{
		Manufacturer: q.Get("manufacturer"),
		Model:        q.Get("model"),
	})
}

func (c *TurbinesController) ByModel(w http.ResponseWriter, r *http.Request) {
	c.list(w, r, turbine.FindParams{Model: mux.Vars(r)["modelType"]})
}

func (c *TurbinesController) ByManufacturer(w http.ResponseWriter, r *http.Request) {
	c.list(w, r, turbine.FindParams{Manufacturer: mux.Vars(r)["manufacturer"]})
}

func (c *TurbinesController) list(w http.ResponseWriter, r *http.Request, params turbine.FindParams) {
	page, err := httpapi.ParsePage(r, c.opts.PageSize, c.opts.MaxPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	params.Limit = page.Size
	params.Offset = page.Offset()

	items, total, err := c.turbineService.GetPaginated(r.Context(), &params)
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("list turbines failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, httpapi.NewPaged(mappers.TurbinesToResponse(items), page, total))
}

func (c *TurbinesController) GetByGSRN(w http.ResponseWriter, r *http.Request) {
	gsrn := mux.Vars(r)["gsrn"]
	t, err := c.turbineService.GetByGSRN(r.Context(), gsrn)
	if errors.Is(err, turbine.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "TURBINE_NOT_FOUND", fmt.Sprintf("Wind turbine with GSRN %s not found", gsrn))
		return
	}
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("get turbine failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.TurbineToResponse(t))
}

// GetByGSRNs takes a JSON array of GSRNs. Unknown GSRNs are left out of the
// response.
func (c *TurbinesController) GetByGSRNs(w http.ResponseWriter, r *http.Request) {
	dto := &dtos.GSRNBatchDTO{}
	if err := json.NewDecoder(r.Body).Decode(&dto.GSRNs); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON array of GSRN strings")
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_GSRN_LIST", firstMessage(errs), errs)
		return
	}
	items, err := c.turbineService.GetByGSRNs(r.Context(), dto.GSRNs)
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("batch turbine lookup failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.TurbinesToResponse(items))
}

func (c *TurbinesController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.turbineService.Stats(r.Context())
	if err != nil {
		composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("turbine stats failed")
		writeInternalError(w, r)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, stats)
}

func firstMessage(errs map[string]string) string {
	if msg, ok := errs["GSRNs"]; ok {
		return msg
	}
	for _, msg := range errs {
		return msg
	}
	return "invalid request"
}
