package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/windregistry/masterdata/modules/registry"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/cadastral"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence"
	"github.com/windregistry/masterdata/modules/registry/presentation/controllers/dtos"
	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/configuration"
	"github.com/windregistry/masterdata/pkg/httpapi"
)

const testGSRN = "571234567890123456"

type fixedLookup struct{}

func (fixedLookup) PropertyID(_ context.Context, district, parcelNo string) (string, error) {
	if district == "Hee By, Hee" {
		return "2345678", nil
	}
	return "", cadastral.ErrNoMatch
}

func (fixedLookup) OwnerName(context.Context, string) (string, error) {
	return "Vindpark Nord ApS", nil
}

type env struct {
	app      application.Application
	router   *mux.Router
	turbines *persistence.InmemTurbineRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conf := &configuration.Configuration{
		PageSize:        100,
		MaxPageSize:     1000,
		MaxUploadSize:   10 << 20,
		MaxUploadMemory: 1 << 20,
		Import: configuration.ImportOptions{
			BatchSize:      1000,
			HeaderScanRows: 20,
			EnrichWorkers:  1,
		},
	}
	logger, _ := logtest.NewNullLogger()
	turbines := persistence.NewInmemTurbineRepository()
	app := application.New(&application.ApplicationOptions{Logger: logger})
	err := registry.NewModule(&registry.ModuleOptions{
		Configuration: conf,
		Turbines:      turbines,
		Sites:         persistence.NewInmemSiteRepository(turbines),
		NewLookup:     func() services.CadastralLookup { return fixedLookup{} },
	}).Register(app)
	require.NoError(t, err)

	r := mux.NewRouter()
	for _, c := range app.Controllers() {
		c.Register(r)
	}
	t.Cleanup(enricher(app).Close)
	return &env{app: app, router: r, turbines: turbines}
}

func enricher(app application.Application) *services.BackgroundEnricher {
	return app.Service(services.BackgroundEnricher{}).(*services.BackgroundEnricher)
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func registryRows() [][]any {
	return [][]any{
		{"Stamdataregister for vindkraftanlæg"},
		{"Møllenummer (GSRN)", "Kapacitet (kW)", "Fabrikat", "Typebetegnelse", "Matrikel ejerlav", "Matrikel-nummer"},
		{testGSRN, "2.000 kW", "Vestas", "V80", "Hee By, Hee", "12a"},
		{"571234567890123457", "3600", "Siemens", "SWT-3.6", "Elsewhere", "1"},
	}
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func TestImportController_Upload(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, uploadRequest(t, "/api/turbines/import", "register.xlsx", workbookBytes(t, registryRows())))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[services.ImportResult](t, rr)
	require.Equal(t, 2, res.ImportedCount)
	require.Equal(t, 2, res.TotalCount)
	require.Empty(t, res.Errors)

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines/gsrn/"+testGSRN, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[dtos.TurbineResponse](t, rr)
	require.Equal(t, 2000, *got.CapacityKW)
	require.Equal(t, "Vestas", *got.Manufacturer)
	require.Nil(t, got.SiteID)
}

func TestImportController_Rejects(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name     string
		filename string
		content  []byte
		message  string
	}{
		{"no file", "", nil, "No file uploaded"},
		{"empty file", "register.xlsx", []byte{}, "No file uploaded"},
		{"wrong extension", "register.csv", []byte("gsrn\n1\n"), "File must be an Excel file (.xlsx)"},
		{"not a workbook", "register.xlsx", []byte("gsrn;capacity\n1;2\n"), "File must be an Excel file (.xlsx)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(t, uploadRequest(t, "/api/turbines/import", tc.filename, tc.content))
			require.Equal(t, http.StatusBadRequest, rr.Code)
			envelope := decode[httpapi.ErrorEnvelope](t, rr)
			require.Equal(t, tc.message, envelope.Message)
		})
	}
	require.Zero(t, e.turbines.Len())
}

func TestImportController_FatalIs422(t *testing.T) {
	e := newEnv(t)
	content := workbookBytes(t, [][]any{{"Name", "Value"}, {"a", "1"}})

	rr := e.do(t, uploadRequest(t, "/api/turbines/import", "register.xlsx", content))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	res := decode[services.ImportResult](t, rr)
	require.Equal(t, []string{"Could not find header row in Excel file"}, res.Errors)
	require.Zero(t, res.ImportedCount)
}

func TestImportController_Enrich(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, uploadRequest(t, "/api/turbines/import?enrich=true", "register.xlsx", workbookBytes(t, registryRows())))
	require.Equal(t, http.StatusOK, rr.Code)
	enricher(e.app).Wait()

	linked, err := e.turbines.GetByGSRN(context.Background(), testGSRN)
	require.NoError(t, err)
	require.True(t, linked.HasSite())
	require.Equal(t, "2345678", *linked.PropertyID())

	rr = e.do(t, uploadRequest(t, "/api/turbines/import?enrich=maybe", "register.xlsx", workbookBytes(t, registryRows())))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTurbinesController_Queries(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, uploadRequest(t, "/api/turbines/import", "register.xlsx", workbookBytes(t, registryRows())))
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("list", func(t *testing.T) {
		rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines?page=2&pageSize=1", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		page := decode[httpapi.Paged[dtos.TurbineResponse]](t, rr)
		require.EqualValues(t, 2, page.TotalCount)
		require.EqualValues(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
		require.Equal(t, "571234567890123457", page.Items[0].GSRN)
	})

	t.Run("invalid page size", func(t *testing.T) {
		rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines?pageSize=5000", nil))
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("by model and manufacturer", func(t *testing.T) {
		rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines/model/swt", nil))
		page := decode[httpapi.Paged[dtos.TurbineResponse]](t, rr)
		require.Len(t, page.Items, 1)
		require.Equal(t, "571234567890123457", page.Items[0].GSRN)

		rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines/manufacturer/vest", nil))
		page = decode[httpapi.Paged[dtos.TurbineResponse]](t, rr)
		require.Len(t, page.Items, 1)
		require.Equal(t, testGSRN, page.Items[0].GSRN)
	})

	t.Run("unknown gsrn", func(t *testing.T) {
		rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines/gsrn/999", nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
		envelope := decode[httpapi.ErrorEnvelope](t, rr)
		require.Equal(t, "TURBINE_NOT_FOUND", envelope.Code)
		require.Equal(t, "Wind turbine with GSRN 999 not found", envelope.Message)
	})

	t.Run("batch", func(t *testing.T) {
		body := `["` + testGSRN + `", "123"]`
		rr := e.do(t, httptest.NewRequest(http.MethodPost, "/api/turbines/gsrn/batch", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rr.Code)
		items := decode[[]dtos.TurbineResponse](t, rr)
		require.Len(t, items, 1)
		require.Equal(t, testGSRN, items[0].GSRN)
	})

	t.Run("batch validation", func(t *testing.T) {
		for body, msg := range map[string]string{
			`[]`:       "GSRN list cannot be empty",
			`null`:     "GSRN list cannot be empty",
			`["12a"]`:  `invalid GSRN "12a"`,
			`{"a": 1}`: "body must be a JSON array of GSRN strings",
		} {
			rr := e.do(t, httptest.NewRequest(http.MethodPost, "/api/turbines/gsrn/batch", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rr.Code, body)
			require.Equal(t, msg, decode[httpapi.ErrorEnvelope](t, rr).Message, body)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rr := e.do(t, httptest.NewRequest(http.MethodGet, "/api/turbines/stats", nil))
		stats := decode[services.TurbineStats](t, rr)
		require.Equal(t, services.TurbineStats{TotalTurbines: 2, Manufacturers: 2, ModelTypes: 2}, stats)
	})
}

func TestSitesController(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, uploadRequest(t, "/api/turbines/import", "register.xlsx", workbookBytes(t, registryRows())))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, httptest.NewRequest(http.MethodPost, "/api/sites/enrich", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	enricher(e.app).Wait()

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sites", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[httpapi.Paged[dtos.SiteResponse]](t, rr)
	require.Len(t, page.Items, 1)
	s := page.Items[0]
	require.Equal(t, "Vindpark Nord ApS", s.Name)
	require.EqualValues(t, 1, s.TurbineCount)

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/"+s.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, s.Name, decode[dtos.SiteResponse](t, rr).Name)

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/"+s.ID+"/turbines", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode[dtos.SiteDetailResponse](t, rr)
	require.Len(t, detail.Turbines, 1)
	require.Equal(t, testGSRN, detail.Turbines[0].GSRN)
	require.Equal(t, s.Name, *detail.Turbines[0].SiteName)
	require.Equal(t, s.ID, *detail.Turbines[0].SiteID)

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, services.SiteStats{
		TotalSites:               1,
		TotalTurbinesWithSite:    1,
		TotalTurbinesWithoutSite: 1,
		AverageTurbinesPerSite:   1,
	}, decode[services.SiteStats](t, rr))

	rr = e.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/00000000-0000-0000-0000-000000000001", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "SITE_NOT_FOUND", decode[httpapi.ErrorEnvelope](t, rr).Code)
}
