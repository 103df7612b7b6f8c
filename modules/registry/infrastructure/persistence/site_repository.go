package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence/models"
	"github.com/windregistry/masterdata/pkg/composables"
)

const (
	siteFindQuery = `SELECT id, name, created_at, updated_at FROM sites`

	siteSummaryQuery = `
		SELECT s.id, s.name, s.created_at, s.updated_at, COUNT(t.id)
		FROM sites s
		LEFT JOIN turbines t ON t.site_id = s.id`

	siteInsertQuery = `INSERT INTO sites (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`

	siteCountQuery = `SELECT COUNT(*) FROM sites`
)

type SiteRepository struct{}

func NewSiteRepository() site.Repository {
	return &SiteRepository{}
}

func (r *SiteRepository) GetByID(ctx context.Context, id uuid.UUID) (site.Site, error) {
	sites, err := r.querySites(ctx, siteFindQuery+" WHERE id = $1", id)
	if err != nil {
		return site.Site{}, err
	}
	if len(sites) == 0 {
		return site.Site{}, site.ErrNotFound
	}
	return sites[0], nil
}

func (r *SiteRepository) GetByName(ctx context.Context, name string) (site.Site, error) {
	sites, err := r.querySites(ctx, siteFindQuery+" WHERE name = $1", name)
	if err != nil {
		return site.Site{}, err
	}
	if len(sites) == 0 {
		return site.Site{}, site.ErrNotFound
	}
	return sites[0], nil
}

func (r *SiteRepository) Create(ctx context.Context, s site.Site) (site.Site, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return site.Site{}, errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, siteInsertQuery, s.ID(), s.Name(), s.CreatedAt(), s.UpdatedAt()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return site.Site{}, site.ErrNameTaken
		}
		return site.Site{}, fmt.Errorf("create site: %w", err)
	}
	return s, nil
}

func (r *SiteRepository) GetSummary(ctx context.Context, id uuid.UUID) (site.Summary, error) {
	summaries, err := r.querySummaries(ctx, siteSummaryQuery+" WHERE s.id = $1 GROUP BY s.id", id)
	if err != nil {
		return site.Summary{}, err
	}
	if len(summaries) == 0 {
		return site.Summary{}, site.ErrNotFound
	}
	return summaries[0], nil
}

func (r *SiteRepository) GetPaginated(ctx context.Context, params *site.FindParams) ([]site.Summary, int64, error) {
	if params == nil {
		params = &site.FindParams{}
	}
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	var args []any
	query := siteSummaryQuery + " GROUP BY s.id ORDER BY s.name"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	summaries, err := r.querySummaries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func (r *SiteRepository) Count(ctx context.Context) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	var count int64
	if err := tx.QueryRow(ctx, siteCountQuery).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count sites")
	}
	return count, nil
}

func (r *SiteRepository) querySites(ctx context.Context, query string, args ...any) ([]site.Site, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var sites []site.Site
	for rows.Next() {
		var m models.Site
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan site row")
		}
		s, err := toDomainSite(&m)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return sites, nil
}

func (r *SiteRepository) querySummaries(ctx context.Context, query string, args ...any) ([]site.Summary, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var summaries []site.Summary
	for rows.Next() {
		var m models.SiteSummary
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt, &m.TurbineCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan site summary row")
		}
		s, err := toDomainSiteSummary(&m)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return summaries, nil
}
