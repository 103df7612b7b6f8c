package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence/models"
	"github.com/windregistry/masterdata/pkg/composables"
)

const (
	turbineColumns = `id, gsrn, original_connection_date, decommissioning_date, capacity_kw,
		rotor_diameter_m, hub_height_m, manufacturer, type_designation, local_authority,
		location_type, cadastral_district, cadastral_no, coordinate_x, coordinate_y,
		coordinate_origin, property_id, site_id, created_at, updated_at`

	turbineFindQuery = `SELECT ` + turbineColumns + ` FROM turbines`

	turbineCountQuery = `SELECT COUNT(*) FROM turbines`

	// created_at, site_id and property_id are left untouched on conflict.
	turbineUpsertQuery = `
		INSERT INTO turbines (
			id, gsrn, original_connection_date, decommissioning_date, capacity_kw,
			rotor_diameter_m, hub_height_m, manufacturer, type_designation, local_authority,
			location_type, cadastral_district, cadastral_no, coordinate_x, coordinate_y,
			coordinate_origin, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (gsrn) DO UPDATE SET
			original_connection_date = EXCLUDED.original_connection_date,
			decommissioning_date = EXCLUDED.decommissioning_date,
			capacity_kw = EXCLUDED.capacity_kw,
			rotor_diameter_m = EXCLUDED.rotor_diameter_m,
			hub_height_m = EXCLUDED.hub_height_m,
			manufacturer = EXCLUDED.manufacturer,
			type_designation = EXCLUDED.type_designation,
			local_authority = EXCLUDED.local_authority,
			location_type = EXCLUDED.location_type,
			cadastral_district = EXCLUDED.cadastral_district,
			cadastral_no = EXCLUDED.cadastral_no,
			coordinate_x = EXCLUDED.coordinate_x,
			coordinate_y = EXCLUDED.coordinate_y,
			coordinate_origin = EXCLUDED.coordinate_origin,
			updated_at = NOW()`

	turbineStatsQuery = `
		SELECT
			COUNT(*),
			COUNT(DISTINCT manufacturer),
			COUNT(DISTINCT type_designation),
			COUNT(site_id)
		FROM turbines`

	turbineLinkSiteQuery = `UPDATE turbines SET site_id = $2, property_id = NULLIF($3, ''), updated_at = NOW() WHERE gsrn = $1`
)

type TurbineRepository struct{}

func NewTurbineRepository() turbine.Repository {
	return &TurbineRepository{}
}

func (r *TurbineRepository) GetByGSRN(ctx context.Context, gsrn string) (turbine.Turbine, error) {
	turbines, err := r.queryTurbines(ctx, turbineFindQuery+" WHERE gsrn = $1", gsrn)
	if err != nil {
		return turbine.Turbine{}, err
	}
	if len(turbines) == 0 {
		return turbine.Turbine{}, turbine.ErrNotFound
	}
	return turbines[0], nil
}

func (r *TurbineRepository) GetByGSRNs(ctx context.Context, gsrns []string) ([]turbine.Turbine, error) {
	if len(gsrns) == 0 {
		return nil, nil
	}
	return r.queryTurbines(ctx, turbineFindQuery+" WHERE gsrn = ANY($1) ORDER BY gsrn", gsrns)
}

func (r *TurbineRepository) GetPaginated(ctx context.Context, params *turbine.FindParams) ([]turbine.Turbine, int64, error) {
	if params == nil {
		params = &turbine.FindParams{}
	}
	where, args := turbineFilters(params)

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get transaction")
	}
	var total int64
	if err := tx.QueryRow(ctx, turbineCountQuery+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count turbines")
	}

	query := turbineFindQuery + where + " ORDER BY gsrn"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	turbines, err := r.queryTurbines(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return turbines, total, nil
}

func turbineFilters(params *turbine.FindParams) (string, []any) {
	var (
		where []string
		args  []any
	)
	if v := strings.TrimSpace(params.Manufacturer); v != "" {
		args = append(args, v)
		where = append(where, fmt.Sprintf("manufacturer ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if v := strings.TrimSpace(params.Model); v != "" {
		args = append(args, v)
		where = append(where, fmt.Sprintf("type_designation ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if params.SiteID != nil {
		args = append(args, *params.SiteID)
		where = append(where, fmt.Sprintf("site_id = $%d", len(args)))
	}
	if params.Unlinked {
		where = append(where,
			"site_id IS NULL",
			"COALESCE(TRIM(cadastral_district), '') <> ''",
			"COALESCE(TRIM(cadastral_no), '') <> ''",
		)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *TurbineRepository) Stats(ctx context.Context) (turbine.Stats, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return turbine.Stats{}, errors.Wrap(err, "failed to get transaction")
	}
	var s turbine.Stats
	if err := tx.QueryRow(ctx, turbineStatsQuery).Scan(&s.Total, &s.Manufacturers, &s.Models, &s.WithSite); err != nil {
		return turbine.Stats{}, errors.Wrap(err, "failed to query turbine stats")
	}
	return s, nil
}

func (r *TurbineRepository) LinkSite(ctx context.Context, gsrn string, siteID uuid.UUID, propertyID string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, turbineLinkSiteQuery, gsrn, siteID, propertyID)
	if err != nil {
		return errors.Wrapf(err, "failed to link turbine %s", gsrn)
	}
	if tag.RowsAffected() == 0 {
		return turbine.ErrNotFound
	}
	return nil
}

func (r *TurbineRepository) NewSession() turbine.Session {
	return &pgSession{batch: &pgx.Batch{}}
}

func (r *TurbineRepository) queryTurbines(ctx context.Context, query string, args ...any) ([]turbine.Turbine, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var turbines []turbine.Turbine
	for rows.Next() {
		var m models.Turbine
		if err := rows.Scan(
			&m.ID,
			&m.GSRN,
			&m.OriginalConnectionDate,
			&m.DecommissioningDate,
			&m.CapacityKW,
			&m.RotorDiameterM,
			&m.HubHeightM,
			&m.Manufacturer,
			&m.TypeDesignation,
			&m.LocalAuthority,
			&m.LocationType,
			&m.CadastralDistrict,
			&m.CadastralNo,
			&m.CoordinateX,
			&m.CoordinateY,
			&m.CoordinateOrigin,
			&m.PropertyID,
			&m.SiteID,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan turbine row")
		}
		t, err := toDomainTurbine(&m)
		if err != nil {
			return nil, err
		}
		turbines = append(turbines, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return turbines, nil
}

// pgSession queues upserts into a pgx.Batch. Flush sends the batch in a single
// transaction; the queue is reset whether or not the commit succeeds.
type pgSession struct {
	batch *pgx.Batch
}

func (s *pgSession) Upsert(_ context.Context, t turbine.Turbine) error {
	if t.GSRN() == "" {
		return errors.New("turbine without gsrn")
	}
	s.batch.Queue(turbineUpsertQuery, toDBTurbineArgs(t)...)
	return nil
}

func (s *pgSession) Pending() int {
	return s.batch.Len()
}

func (s *pgSession) Flush(ctx context.Context) error {
	batch := s.batch
	s.batch = &pgx.Batch{}
	if batch.Len() == 0 {
		return nil
	}
	return composables.InTx(ctx, func(ctx context.Context) error {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get transaction")
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return errors.Wrapf(err, "failed to upsert turbine %d of %d", i+1, batch.Len())
			}
		}
		if err := br.Close(); err != nil {
			return errors.Wrap(err, "failed to close batch")
		}
		return nil
	})
}
