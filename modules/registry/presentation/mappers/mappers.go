package mappers

import (
	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/modules/registry/presentation/controllers/dtos"
)

func TurbineToResponse(t turbine.Turbine) dtos.TurbineResponse {
	a := t.Attributes()
	resp := dtos.TurbineResponse{
		ID:                     t.ID().String(),
		GSRN:                   t.GSRN(),
		OriginalConnectionDate: a.OriginalConnectionDate,
		DecommissioningDate:    a.DecommissioningDate,
		CapacityKW:             a.CapacityKW,
		RotorDiameterM:         a.RotorDiameterM,
		HubHeightM:             a.HubHeightM,
		Manufacturer:           a.Manufacturer,
		TypeDesignation:        a.TypeDesignation,
		LocalAuthority:         a.LocalAuthority,
		LocationType:           a.LocationType,
		CadastralDistrict:      a.CadastralDistrict,
		CadastralNo:            a.CadastralNo,
		PropertyID:             t.PropertyID(),
		CoordinateX:            a.CoordinateX,
		CoordinateY:            a.CoordinateY,
		CoordinateOrigin:       a.CoordinateOrigin,
		CreatedAt:              t.CreatedAt(),
	}
	if id := t.SiteID(); id != nil {
		s := id.String()
		resp.SiteID = &s
	}
	return resp
}

func TurbinesToResponse(ts []turbine.Turbine) []dtos.TurbineResponse {
	out := make([]dtos.TurbineResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, TurbineToResponse(t))
	}
	return out
}

func SiteSummaryToResponse(s site.Summary) dtos.SiteResponse {
	return dtos.SiteResponse{
		ID:           s.Site.ID().String(),
		Name:         s.Site.Name(),
		CreatedAt:    s.Site.CreatedAt(),
		UpdatedAt:    s.Site.UpdatedAt(),
		TurbineCount: s.TurbineCount,
	}
}

func SiteSummariesToResponse(ss []site.Summary) []dtos.SiteResponse {
	out := make([]dtos.SiteResponse, 0, len(ss))
	for _, s := range ss {
		out = append(out, SiteSummaryToResponse(s))
	}
	return out
}

// SiteDetailToResponse embeds one page of the site's turbines, each carrying
// the site name.
func SiteDetailToResponse(s site.Summary, ts []turbine.Turbine) dtos.SiteDetailResponse {
	turbines := TurbinesToResponse(ts)
	name := s.Site.Name()
	for i := range turbines {
		turbines[i].SiteName = &name
	}
	return dtos.SiteDetailResponse{
		ID:         s.Site.ID().String(),
		Name:       name,
		CreatedAt:  s.Site.CreatedAt(),
		UpdatedAt:  s.Site.UpdatedAt(),
		Turbines:   turbines,
		TotalCount: s.TurbineCount,
	}
}
