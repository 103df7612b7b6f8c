package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/pkg/eventbus"
	"github.com/windregistry/masterdata/pkg/logging"
)

var (
	// ErrImportFatal marks errors that aborted a run before any row was
	// processed. The accompanying result carries a single message.
	ErrImportFatal = errors.New("import aborted")
	ErrNoWorksheet = errors.New("no worksheet found")
)

// ImportResult is returned for every run, fatal or not.
type ImportResult struct {
	ImportedCount int      `json:"importedCount"`
	UpdatedCount  int      `json:"updatedCount"`
	TotalCount    int      `json:"totalCount"`
	Errors        []string `json:"errors"`

	touched []string
}

// Touched returns the GSRNs staged during the run, in row order.
func (r *ImportResult) Touched() []string {
	return r.touched
}

// ImportCompletedEvent is published after every run that got past header
// resolution.
type ImportCompletedEvent struct {
	GSRNs    []string
	Imported int
	Updated  int
	Total    int
	Errors   int
	Duration time.Duration
}

type ImportOptions struct {
	BatchSize      int
	HeaderScanRows int
	Synonyms       *SynonymTable
	Publisher      eventbus.EventBus
	Logger         *logrus.Entry
}

// ImportService runs header resolution, row parsing and the deduplicating
// upsert over the first worksheet of a workbook.
type ImportService struct {
	turbines  turbine.Repository
	headers   *HeaderResolver
	batchSize int
	publisher eventbus.EventBus
	log       *logrus.Entry
}

func NewImportService(turbines turbine.Repository, opts ImportOptions) *ImportService {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &ImportService{
		turbines:  turbines,
		headers:   NewHeaderResolver(opts.Synonyms, opts.HeaderScanRows),
		batchSize: opts.BatchSize,
		publisher: opts.Publisher,
		log:       opts.Logger.WithField("component", "import"),
	}
}

// Import reads an .xlsx workbook. A non-nil error wrapping ErrImportFatal
// means the input could not be processed at all; the result then holds the
// reason as its only error. Row-level problems never produce an error.
func (s *ImportService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return s.fatal(fmt.Sprintf("Import failed: %v", err), err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return s.fatal("No worksheet found in Excel file", ErrNoWorksheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return s.fatal(fmt.Sprintf("Import failed: %v", err), err)
	}
	return s.ImportRows(ctx, rows)
}

// ImportRows runs the pipeline over an already loaded grid.
func (s *ImportService) ImportRows(ctx context.Context, rows [][]string) (*ImportResult, error) {
	start := time.Now()
	header, err := s.headers.Resolve(rows)
	if err != nil {
		return s.fatal("Could not find header row in Excel file", err)
	}
	s.log.WithFields(logrus.Fields{
		"header_row": header.RowIndex + 1,
		"unknown":    len(header.Unknown),
		"rows":       len(rows) - header.RowIndex - 1,
	}).Info("import started")

	parser := NewRecordParser(header.Columns)
	upserter := NewUpserter(s.turbines, s.batchSize)
	result := &ImportResult{Errors: []string{}}

	for i := header.RowIndex + 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Import failed: %v", err))
			break
		}
		rowNum := i + 1
		outcome, err := processRow(ctx, parser, upserter, rows[i])
		getMetrics().rowsTotal.WithLabelValues(outcome.String()).Inc()
		if err != nil {
			s.log.WithError(err).WithField("row", rowNum).Warn("error importing row")
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}

	if ctx.Err() == nil {
		if err := upserter.Finish(ctx); err != nil {
			s.log.WithError(err).Error("final commit failed")
			result.Errors = append(result.Errors, fmt.Sprintf("Import failed: %v", err))
		}
	}

	result.ImportedCount = upserter.Imported()
	result.UpdatedCount = upserter.Updated()
	result.TotalCount = upserter.Total()
	result.touched = upserter.Touched()

	duration := time.Since(start)
	getMetrics().importDuration.Observe(duration.Seconds())
	getMetrics().importTotal.WithLabelValues("completed").Inc()
	s.log.WithFields(logrus.Fields{
		"imported": result.ImportedCount,
		"updated":  result.UpdatedCount,
		"total":    result.TotalCount,
		"errors":   len(result.Errors),
		"flushes":  upserter.Flushes(),
		"duration": duration,
	}).Info("import finished")

	if s.publisher != nil {
		s.publisher.Publish(ImportCompletedEvent{
			GSRNs:    result.Touched(),
			Imported: result.ImportedCount,
			Updated:  result.UpdatedCount,
			Total:    result.TotalCount,
			Errors:   len(result.Errors),
			Duration: duration,
		})
	}
	return result, ctx.Err()
}

func (s *ImportService) fatal(message string, cause error) (*ImportResult, error) {
	getMetrics().importTotal.WithLabelValues("fatal").Inc()
	s.log.WithError(cause).Error(message)
	return &ImportResult{Errors: []string{message}}, fmt.Errorf("%w: %w", ErrImportFatal, cause)
}

type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowDuplicate
	rowImported
	rowUpdated
	rowFailed
)

func (o rowOutcome) String() string {
	switch o {
	case rowSkipped:
		return "skipped"
	case rowDuplicate:
		return "duplicate"
	case rowImported:
		return "imported"
	case rowUpdated:
		return "updated"
	}
	return "failed"
}

// processRow turns one data row into an outcome. Panics are converted into
// row-scoped errors.
func processRow(ctx context.Context, parser *RecordParser, upserter *Upserter, row []string) (outcome rowOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = rowFailed, fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	rec, ok := parser.Parse(row)
	if !ok {
		return rowSkipped, nil
	}
	res, err := upserter.Upsert(ctx, rec)
	if err != nil {
		return rowFailed, err
	}
	switch res {
	case UpsertDuplicate:
		return rowDuplicate, nil
	case UpsertInserted:
		return rowImported, nil
	default:
		return rowUpdated, nil
	}
}
