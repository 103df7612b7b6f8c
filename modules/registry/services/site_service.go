package services

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
)

type SiteStats struct {
	TotalSites               int64   `json:"totalSites"`
	TotalTurbinesWithSite    int64   `json:"totalTurbinesWithSite"`
	TotalTurbinesWithoutSite int64   `json:"totalTurbinesWithoutSite"`
	AverageTurbinesPerSite   float64 `json:"averageTurbinesPerSite"`
}

// SiteService is the read side over sites and their turbines.
type SiteService struct {
	sites    site.Repository
	turbines turbine.Repository
}

func NewSiteService(sites site.Repository, turbines turbine.Repository) *SiteService {
	return &SiteService{sites: sites, turbines: turbines}
}

func (s *SiteService) GetPaginated(ctx context.Context, params *site.FindParams) ([]site.Summary, int64, error) {
	return s.sites.GetPaginated(ctx, params)
}

func (s *SiteService) GetSummary(ctx context.Context, id uuid.UUID) (site.Summary, error) {
	return s.sites.GetSummary(ctx, id)
}

// Turbines lists the turbines linked to a site. Returns site.ErrNotFound for an
// unknown id.
func (s *SiteService) Turbines(ctx context.Context, id uuid.UUID, limit, offset int) ([]turbine.Turbine, int64, error) {
	if _, err := s.sites.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.turbines.GetPaginated(ctx, &turbine.FindParams{SiteID: &id, Limit: limit, Offset: offset})
}

func (s *SiteService) Stats(ctx context.Context) (SiteStats, error) {
	count, err := s.sites.Count(ctx)
	if err != nil {
		return SiteStats{}, err
	}
	ts, err := s.turbines.Stats(ctx)
	if err != nil {
		return SiteStats{}, err
	}
	stats := SiteStats{
		TotalSites:               count,
		TotalTurbinesWithSite:    ts.WithSite,
		TotalTurbinesWithoutSite: ts.Total - ts.WithSite,
	}
	if count > 0 {
		stats.AverageTurbinesPerSite = math.Round(float64(ts.WithSite)/float64(count)*100) / 100
	}
	return stats, nil
}
