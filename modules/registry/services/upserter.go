package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
)

const DefaultBatchSize = 1000

// MaxGSRNLength matches the width of the gsrn column.
const MaxGSRNLength = 100

var ErrGSRNTooLong = fmt.Errorf("GSRN exceeds %d characters", MaxGSRNLength)

type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota + 1
	UpsertUpdated
	UpsertDuplicate
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "imported"
	case UpsertUpdated:
		return "updated"
	case UpsertDuplicate:
		return "duplicate"
	}
	return "unknown"
}

// FlushError wraps a failed batch commit.
type FlushError struct {
	Pending int
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("commit of %d pending turbines failed: %v", e.Pending, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Upserter keeps at most one turbine per GSRN. It deduplicates within its own
// run, resolves each GSRN against the store and commits every batchSize rows.
// An Upserter belongs to a single run and is not safe for concurrent use.
type Upserter struct {
	repo      turbine.Repository
	session   turbine.Session
	batchSize int

	seen     map[string]struct{}
	touched  []string
	imported int
	updated  int
	total    int
	flushes  int
}

func NewUpserter(repo turbine.Repository, batchSize int) *Upserter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Upserter{
		repo:      repo,
		session:   repo.NewSession(),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
	}
}

// Upsert stages rec as an insert or a full-attribute update. A GSRN already
// handled in this run yields UpsertDuplicate without touching the store. The
// returned error is row-scoped; counters reflect the staged row even when the
// batch commit it triggered failed.
func (u *Upserter) Upsert(ctx context.Context, rec ParsedRecord) (UpsertOutcome, error) {
	if len(rec.GSRN) > MaxGSRNLength {
		return 0, fmt.Errorf("%w (%d given)", ErrGSRNTooLong, len(rec.GSRN))
	}
	if _, dup := u.seen[rec.GSRN]; dup {
		return UpsertDuplicate, nil
	}
	u.seen[rec.GSRN] = struct{}{}

	existing, err := u.repo.GetByGSRN(ctx, rec.GSRN)
	var (
		next    turbine.Turbine
		outcome UpsertOutcome
	)
	switch {
	case errors.Is(err, turbine.ErrNotFound):
		next = turbine.New(rec.GSRN, rec.Attributes)
		outcome = UpsertInserted
	case err != nil:
		return 0, fmt.Errorf("lookup turbine %s: %w", rec.GSRN, err)
	default:
		next = existing.WithAttributes(rec.Attributes)
		outcome = UpsertUpdated
	}

	if err := u.session.Upsert(ctx, next); err != nil {
		return 0, fmt.Errorf("stage turbine %s: %w", rec.GSRN, err)
	}
	if outcome == UpsertInserted {
		u.imported++
	} else {
		u.updated++
	}
	u.total++
	u.touched = append(u.touched, rec.GSRN)

	if u.total%u.batchSize == 0 {
		if err := u.flush(ctx); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// Finish commits whatever is still pending. It always issues a commit, even
// when nothing is pending.
func (u *Upserter) Finish(ctx context.Context) error {
	return u.flush(ctx)
}

func (u *Upserter) flush(ctx context.Context) error {
	pending := u.session.Pending()
	u.flushes++
	if err := u.session.Flush(ctx); err != nil {
		getMetrics().flushTotal.WithLabelValues("error").Inc()
		return &FlushError{Pending: pending, Err: err}
	}
	getMetrics().flushTotal.WithLabelValues("ok").Inc()
	return nil
}

func (u *Upserter) Imported() int { return u.imported }
func (u *Upserter) Updated() int  { return u.updated }
func (u *Upserter) Total() int    { return u.total }
func (u *Upserter) Flushes() int  { return u.flushes }

// Touched returns the GSRNs staged in this run, in row order.
func (u *Upserter) Touched() []string {
	out := make([]string, len(u.touched))
	copy(out, u.touched)
	return out
}
