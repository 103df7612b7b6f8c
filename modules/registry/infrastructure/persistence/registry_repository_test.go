package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/pkg/constants"
)

func turbineRow(id uuid.UUID, gsrn string, siteID any, now time.Time) []any {
	return []any{
		id.String(), gsrn,
		now, nil,
		int64(3600),
		"112.00", nil,
		"Vestas", "V112", "Ringkøbing-Skjern", "Land",
		"Hee By, Hee", "12a",
		"450123.45", nil,
		nil,
		"2345678", siteID,
		now, now,
	}
}

func TestTurbineRepository_GetByGSRN_MapsRow(t *testing.T) {
	id := uuid.New()
	siteID := uuid.New()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "FROM turbines WHERE gsrn = $1")
			require.Equal(t, []any{"571234567890123456"}, args)
			return &stubRows{data: [][]any{turbineRow(id, "571234567890123456", siteID.String(), now)}}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	got, err := NewTurbineRepository().GetByGSRN(ctx, "571234567890123456")
	require.NoError(t, err)
	require.Equal(t, id, got.ID())
	require.Equal(t, "571234567890123456", got.GSRN())

	a := got.Attributes()
	require.Equal(t, 3600, *a.CapacityKW)
	require.True(t, decimal.RequireFromString("112").Equal(*a.RotorDiameterM))
	require.Nil(t, a.HubHeightM)
	require.Nil(t, a.DecommissioningDate)
	require.Equal(t, now, *a.OriginalConnectionDate)
	require.Equal(t, "Vestas", *a.Manufacturer)
	require.Nil(t, a.CoordinateOrigin)
	require.Equal(t, siteID, *got.SiteID())
	require.Equal(t, "2345678", *got.PropertyID())
}

func TestTurbineRepository_GetByGSRN_NotFound(t *testing.T) {
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &stubRows{}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	_, err := NewTurbineRepository().GetByGSRN(ctx, "1")
	require.ErrorIs(t, err, turbine.ErrNotFound)
}

func TestTurbineRepository_GetPaginated_BuildsFilters(t *testing.T) {
	var (
		countSQL string
		countArg []any
		listSQL  string
		listArg  []any
	)
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			countSQL, countArg = sql, args
			return stubRow{scan: func(dest ...any) error {
				*dest[0].(*int64) = 42
				return nil
			}}
		},
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			listSQL, listArg = sql, args
			return &stubRows{}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	_, total, err := NewTurbineRepository().GetPaginated(ctx, &turbine.FindParams{
		Manufacturer: "vest",
		Model:        "V1",
		Limit:        10,
		Offset:       20,
	})
	require.NoError(t, err)
	require.EqualValues(t, 42, total)

	require.Contains(t, countSQL, "manufacturer ILIKE '%' || $1 || '%'")
	require.Contains(t, countSQL, "type_designation ILIKE '%' || $2 || '%'")
	require.Equal(t, []any{"vest", "V1"}, countArg)

	require.Contains(t, listSQL, "ORDER BY gsrn LIMIT $3 OFFSET $4")
	require.Equal(t, []any{"vest", "V1", 10, 20}, listArg)
}

func TestTurbineRepository_GetPaginated_Unlinked(t *testing.T) {
	where, args := turbineFilters(&turbine.FindParams{Unlinked: true})
	require.Empty(t, args)
	require.Contains(t, where, "site_id IS NULL")
	require.Contains(t, where, "COALESCE(TRIM(cadastral_district), '') <> ''")
}

func TestTurbineRepository_LinkSite(t *testing.T) {
	siteID := uuid.New()
	var affected string
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "UPDATE turbines SET site_id = $2")
			require.Equal(t, []any{"1", siteID, "99"}, args)
			return pgconn.NewCommandTag(affected), nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)
	repo := NewTurbineRepository()

	affected = "UPDATE 1"
	require.NoError(t, repo.LinkSite(ctx, "1", siteID, "99"))

	affected = "UPDATE 0"
	require.ErrorIs(t, repo.LinkSite(ctx, "1", siteID, "99"), turbine.ErrNotFound)
}

func TestTurbineSession_FlushSendsOneBatch(t *testing.T) {
	var sent []*pgx.Batch
	tx := &stubTx{
		sendBatchFunc: func(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
			sent = append(sent, b)
			return &stubBatchResults{}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	session := NewTurbineRepository().NewSession()
	capacity := 2000
	require.NoError(t, session.Upsert(ctx, turbine.New("1", turbine.Attributes{CapacityKW: &capacity})))
	require.NoError(t, session.Upsert(ctx, turbine.New("2", turbine.Attributes{})))
	require.Equal(t, 2, session.Pending())

	require.NoError(t, session.Flush(ctx))
	require.Equal(t, 0, session.Pending())
	require.Len(t, sent, 1)
	require.Equal(t, 2, sent[0].Len())
	require.Contains(t, sent[0].QueuedQueries[0].SQL, "ON CONFLICT (gsrn) DO UPDATE")
	require.NotContains(t, sent[0].QueuedQueries[0].SQL, "site_id = EXCLUDED")
	require.Equal(t, "1", sent[0].QueuedQueries[0].Arguments[1])
	require.Equal(t, sql.NullInt32{Int32: 2000, Valid: true}, sent[0].QueuedQueries[0].Arguments[4])

	// Nothing pending: no round trip.
	require.NoError(t, session.Flush(ctx))
	require.Len(t, sent, 1)
}

func TestTurbineSession_FlushErrorDropsBatch(t *testing.T) {
	tx := &stubTx{
		sendBatchFunc: func(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
			return &stubBatchResults{execErr: errors.New("connection reset")}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	session := NewTurbineRepository().NewSession()
	require.NoError(t, session.Upsert(ctx, turbine.New("1", turbine.Attributes{})))
	err := session.Flush(ctx)
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 0, session.Pending())
}

func TestTurbineSession_FlushCloseError(t *testing.T) {
	tx := &stubTx{
		sendBatchFunc: func(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
			return &stubBatchResults{closeErr: errors.New("unexpected EOF")}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	session := NewTurbineRepository().NewSession()
	require.NoError(t, session.Upsert(ctx, turbine.New("1", turbine.Attributes{})))
	err := session.Flush(ctx)
	require.ErrorContains(t, err, "failed to close batch")
	require.ErrorContains(t, err, "unexpected EOF")
}

func TestSiteRepository_Create_NameTaken(t *testing.T) {
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			require.Contains(t, sql, "INSERT INTO sites")
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "sites_name_key"}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	_, err := NewSiteRepository().Create(ctx, site.New("Vindpark Nord ApS"))
	require.ErrorIs(t, err, site.ErrNameTaken)
}

func TestSiteRepository_GetSummary(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "LEFT JOIN turbines t ON t.site_id = s.id")
			require.Equal(t, []any{id}, args)
			return &stubRows{data: [][]any{{id.String(), "Vindpark Nord ApS", now, now, int64(7)}}}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	got, err := NewSiteRepository().GetSummary(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.Site.ID())
	require.Equal(t, "Vindpark Nord ApS", got.Site.Name())
	require.EqualValues(t, 7, got.TurbineCount)
}

type stubTx struct {
	queryFunc     func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc  func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc      func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	sendBatchFunc func(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (s *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	if s.sendBatchFunc == nil {
		return &stubBatchResults{execErr: errors.New("batch not implemented")}
	}
	return s.sendBatchFunc(ctx, b)
}

func (s *stubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if s.execFunc == nil {
		return pgconn.CommandTag{}, nil
	}
	return s.execFunc(ctx, sql, arguments...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{scan: func(dest ...any) error { return errors.New("query row not implemented") }}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

type stubBatchResults struct {
	execErr  error
	closeErr error
}

func (b *stubBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), b.execErr
}
func (b *stubBatchResults) Query() (pgx.Rows, error) { return &stubRows{}, b.execErr }
func (b *stubBatchResults) QueryRow() pgx.Row {
	return stubRow{scan: func(dest ...any) error { return b.execErr }}
}
func (b *stubBatchResults) Close() error { return b.closeErr }

type stubRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return errors.New("no current row to scan")
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i, target := range dest {
		if scanner, ok := target.(sql.Scanner); ok {
			if err := scanner.Scan(row[i]); err != nil {
				return fmt.Errorf("column %d: %w", i, err)
			}
			continue
		}
		switch v := target.(type) {
		case *string:
			*v = row[i].(string)
		case *int64:
			*v = row[i].(int64)
		case *time.Time:
			*v = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T", target)
		}
	}
	return nil
}

func (r *stubRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.idx-1], nil
}

func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Err() error          { return r.err }
func (r *stubRows) Close()              {}
func (r *stubRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("scan not implemented")
	}
	return r.scan(dest...)
}
