package controllers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/httpapi"
	"github.com/windregistry/masterdata/pkg/logging"
)

const (
	msgNoFile  = "No file uploaded"
	msgNotXLSX = "File must be an Excel file (.xlsx)"
)

type ImportOptions struct {
	MaxUploadSize   int64
	MaxUploadMemory int64
	// AutoEnrich means completed imports are already enriched through the
	// event bus, so ?enrich=true schedules nothing extra.
	AutoEnrich bool
}

// ImportController accepts registry workbooks as multipart uploads.
type ImportController struct {
	path     string
	opts     ImportOptions
	importer *services.ImportService
	enricher *services.BackgroundEnricher
}

func NewImportController(app application.Application, opts ImportOptions) application.Controller {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 100 << 20
	}
	if opts.MaxUploadMemory <= 0 {
		opts.MaxUploadMemory = 32 << 20
	}
	return &ImportController{
		path:     "/api/turbines/import",
		opts:     opts,
		importer: app.Service(services.ImportService{}).(*services.ImportService),
		enricher: app.Service(services.BackgroundEnricher{}).(*services.BackgroundEnricher),
	}
}

func (c *ImportController) Key() string {
	return c.path
}

func (c *ImportController) Register(r *mux.Router) {
	r.HandleFunc(c.path, c.Import).Methods(http.MethodPost)
}

func (c *ImportController) Import(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context(), logging.Nop())

	enrich := false
	if raw := r.URL.Query().Get("enrich"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", "enrich must be true or false")
			return
		}
		enrich = v
	}

	r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(c.opts.MaxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "uploaded file exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_FILE", msgNoFile)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil || header.Size == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_FILE", msgNoFile)
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		writeError(w, r, http.StatusBadRequest, "INVALID_FILE", msgNotXLSX)
		return
	}
	mtype, err := mimetype.DetectReader(file)
	if err != nil || !isWorkbook(mtype) {
		writeError(w, r, http.StatusBadRequest, "INVALID_FILE", msgNotXLSX)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		logger.WithError(err).Error("rewind upload failed")
		writeInternalError(w, r)
		return
	}

	result, err := c.importer.Import(r.Context(), file)
	if errors.Is(err, services.ErrImportFatal) {
		logger.WithError(err).Warn("import rejected")
		_ = httpapi.WriteJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	if err != nil {
		logger.WithError(err).Error("import interrupted")
		writeInternalError(w, r)
		return
	}

	logger.WithFields(logrus.Fields{
		"file":     header.Filename,
		"imported": result.ImportedCount,
		"updated":  result.UpdatedCount,
		"errors":   len(result.Errors),
	}).Info("import finished")

	if enrich && !c.opts.AutoEnrich {
		c.enricher.EnrichGSRNs(result.Touched())
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, result)
}

// isWorkbook accepts the xlsx type and its zip container.
func isWorkbook(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") || m.Is("application/zip") {
			return true
		}
	}
	return false
}
