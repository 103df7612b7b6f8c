package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence"
)

func record(gsrn string, manufacturer string) ParsedRecord {
	return ParsedRecord{GSRN: gsrn, Attributes: turbine.Attributes{Manufacturer: &manufacturer}}
}

func TestUpserter_FlushesEveryBatch(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewInmemTurbineRepository()
	u := NewUpserter(repo, DefaultBatchSize)

	for i := 0; i < 2500; i++ {
		outcome, err := u.Upsert(ctx, record(fmt.Sprintf("57%016d", i), "Vestas"))
		require.NoError(t, err)
		require.Equal(t, UpsertInserted, outcome)
	}
	require.Equal(t, 2, repo.Flushes())
	require.Equal(t, 2000, repo.Len())

	require.NoError(t, u.Finish(ctx))
	require.Equal(t, 3, repo.Flushes())
	require.Equal(t, 3, u.Flushes())
	require.Equal(t, 2500, repo.Len())
	require.Equal(t, 2500, u.Imported())
	require.Equal(t, 2500, u.Total())
}

func TestUpserter_DuplicatesWithinRun(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewInmemTurbineRepository()
	u := NewUpserter(repo, 10)

	outcome, err := u.Upsert(ctx, record("1", "first"))
	require.NoError(t, err)
	require.Equal(t, UpsertInserted, outcome)

	outcome, err = u.Upsert(ctx, record("1", "second"))
	require.NoError(t, err)
	require.Equal(t, UpsertDuplicate, outcome)
	require.NoError(t, u.Finish(ctx))

	got, err := repo.GetByGSRN(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "first", *got.Attributes().Manufacturer)
	require.Equal(t, 1, u.Imported())
	require.Equal(t, 0, u.Updated())
	require.Equal(t, 1, u.Total())
	require.Equal(t, []string{"1"}, u.Touched())
}

func TestUpserter_DuplicateAcrossBatchBoundary(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewInmemTurbineRepository()
	u := NewUpserter(repo, 1)

	_, err := u.Upsert(ctx, record("1", "first"))
	require.NoError(t, err)
	require.Equal(t, 1, repo.Flushes())

	outcome, err := u.Upsert(ctx, record("1", "second"))
	require.NoError(t, err)
	require.Equal(t, UpsertDuplicate, outcome, "a GSRN stays claimed after its batch is committed")
}

func TestUpserter_RerunUpdates(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewInmemTurbineRepository()

	first := NewUpserter(repo, 2)
	for _, g := range []string{"1", "2", "3"} {
		_, err := first.Upsert(ctx, record(g, "Vestas"))
		require.NoError(t, err)
	}
	require.NoError(t, first.Finish(ctx))
	before, err := repo.GetByGSRN(ctx, "2")
	require.NoError(t, err)

	second := NewUpserter(repo, 2)
	for _, g := range []string{"1", "2", "3"} {
		outcome, err := second.Upsert(ctx, record(g, "Siemens"))
		require.NoError(t, err)
		require.Equal(t, UpsertUpdated, outcome)
	}
	require.NoError(t, second.Finish(ctx))

	require.Equal(t, 0, second.Imported())
	require.Equal(t, 3, second.Updated())
	require.Equal(t, first.Total(), second.Total())

	after, err := repo.GetByGSRN(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, before.ID(), after.ID())
	require.Equal(t, before.CreatedAt(), after.CreatedAt())
	require.Equal(t, "Siemens", *after.Attributes().Manufacturer)
}

func TestUpserter_FlushFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{InmemTurbineRepository: persistence.NewInmemTurbineRepository(), flushErr: errors.New("disk full")}
	u := NewUpserter(repo, 2)

	_, err := u.Upsert(ctx, record("1", "a"))
	require.NoError(t, err)
	outcome, err := u.Upsert(ctx, record("2", "b"))
	require.Equal(t, UpsertInserted, outcome)

	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	require.Equal(t, 2, flushErr.Pending)
	require.Equal(t, 2, u.Imported(), "counters keep rows whose commit failed")
	require.Equal(t, 0, repo.Len())

	repo.flushErr = nil
	_, err = u.Upsert(ctx, record("3", "c"))
	require.NoError(t, err)
	require.NoError(t, u.Finish(ctx))
	require.Equal(t, 1, repo.Len(), "the failed batch is discarded")
}

func TestUpserter_LookupFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{InmemTurbineRepository: persistence.NewInmemTurbineRepository(), lookupErr: errors.New("timeout")}
	u := NewUpserter(repo, 10)

	_, err := u.Upsert(ctx, record("1", "a"))
	require.ErrorContains(t, err, "timeout")
	require.Equal(t, 0, u.Total())
}

// failingRepo injects store failures into an in-memory repository.
type failingRepo struct {
	*persistence.InmemTurbineRepository
	flushErr  error
	lookupErr error
}

func (r *failingRepo) GetByGSRN(ctx context.Context, gsrn string) (turbine.Turbine, error) {
	if r.lookupErr != nil {
		return turbine.Turbine{}, r.lookupErr
	}
	return r.InmemTurbineRepository.GetByGSRN(ctx, gsrn)
}

func (r *failingRepo) NewSession() turbine.Session {
	return &failingSession{Session: r.InmemTurbineRepository.NewSession(), repo: r}
}

type failingSession struct {
	turbine.Session
	repo *failingRepo
}

func (s *failingSession) Flush(ctx context.Context) error {
	if s.repo.flushErr != nil {
		// A cancelled flush drops the staged rows without applying them.
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_ = s.Session.Flush(cancelled)
		return s.repo.flushErr
	}
	return s.Session.Flush(ctx)
}
