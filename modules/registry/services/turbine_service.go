package services

import (
	"context"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
)

type TurbineStats struct {
	TotalTurbines int64 `json:"totalTurbines"`
	Manufacturers int64 `json:"manufacturers"`
	ModelTypes    int64 `json:"modelTypes"`
}

// TurbineService is the read side over imported turbines.
type TurbineService struct {
	repo turbine.Repository
}

func NewTurbineService(repo turbine.Repository) *TurbineService {
	return &TurbineService{repo: repo}
}

func (s *TurbineService) GetByGSRN(ctx context.Context, gsrn string) (turbine.Turbine, error) {
	return s.repo.GetByGSRN(ctx, gsrn)
}

// GetByGSRNs returns the turbines found among gsrns, ordered by GSRN. Unknown
// GSRNs are left out.
func (s *TurbineService) GetByGSRNs(ctx context.Context, gsrns []string) ([]turbine.Turbine, error) {
	return s.repo.GetByGSRNs(ctx, gsrns)
}

func (s *TurbineService) GetPaginated(ctx context.Context, params *turbine.FindParams) ([]turbine.Turbine, int64, error) {
	return s.repo.GetPaginated(ctx, params)
}

func (s *TurbineService) Stats(ctx context.Context) (TurbineStats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return TurbineStats{}, err
	}
	return TurbineStats{
		TotalTurbines: st.Total,
		Manufacturers: st.Manufacturers,
		ModelTypes:    st.Models,
	}, nil
}
