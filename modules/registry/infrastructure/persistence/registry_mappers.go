package persistence

import (
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence/models"
)

func toDomainTurbine(m *models.Turbine) (turbine.Turbine, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return turbine.Turbine{}, errors.Wrapf(err, "turbine %s: invalid id", m.GSRN)
	}
	var siteID *uuid.UUID
	if m.SiteID.Valid {
		v := m.SiteID.UUID
		siteID = &v
	}
	attrs := turbine.Attributes{
		OriginalConnectionDate: nullTimeToPointer(m.OriginalConnectionDate),
		DecommissioningDate:    nullTimeToPointer(m.DecommissioningDate),
		CapacityKW:             nullInt32ToPointer(m.CapacityKW),
		RotorDiameterM:         nullDecimalToPointer(m.RotorDiameterM),
		HubHeightM:             nullDecimalToPointer(m.HubHeightM),
		Manufacturer:           nullStringToPointer(m.Manufacturer),
		TypeDesignation:        nullStringToPointer(m.TypeDesignation),
		LocalAuthority:         nullStringToPointer(m.LocalAuthority),
		LocationType:           nullStringToPointer(m.LocationType),
		CadastralDistrict:      nullStringToPointer(m.CadastralDistrict),
		CadastralNo:            nullStringToPointer(m.CadastralNo),
		CoordinateX:            nullDecimalToPointer(m.CoordinateX),
		CoordinateY:            nullDecimalToPointer(m.CoordinateY),
		CoordinateOrigin:       nullStringToPointer(m.CoordinateOrigin),
	}
	return turbine.Hydrate(
		id,
		m.GSRN,
		attrs,
		siteID,
		nullStringToPointer(m.PropertyID),
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

// toDBTurbineArgs returns the positional arguments of turbineUpsertQuery.
func toDBTurbineArgs(t turbine.Turbine) []any {
	a := t.Attributes()
	return []any{
		t.ID().String(),
		t.GSRN(),
		pointerToNullTime(a.OriginalConnectionDate),
		pointerToNullTime(a.DecommissioningDate),
		pointerToNullInt32(a.CapacityKW),
		pointerToNullDecimal(a.RotorDiameterM),
		pointerToNullDecimal(a.HubHeightM),
		pointerToNullString(a.Manufacturer),
		pointerToNullString(a.TypeDesignation),
		pointerToNullString(a.LocalAuthority),
		pointerToNullString(a.LocationType),
		pointerToNullString(a.CadastralDistrict),
		pointerToNullString(a.CadastralNo),
		pointerToNullDecimal(a.CoordinateX),
		pointerToNullDecimal(a.CoordinateY),
		pointerToNullString(a.CoordinateOrigin),
	}
}

func toDomainSite(m *models.Site) (site.Site, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return site.Site{}, errors.Wrapf(err, "site %q: invalid id", m.Name)
	}
	return site.Hydrate(id, m.Name, m.CreatedAt, m.UpdatedAt), nil
}

func toDomainSiteSummary(m *models.SiteSummary) (site.Summary, error) {
	s, err := toDomainSite(&m.Site)
	if err != nil {
		return site.Summary{}, err
	}
	return site.Summary{Site: s, TurbineCount: m.TurbineCount}, nil
}

func nullTimeToPointer(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullInt32ToPointer(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}

func nullDecimalToPointer(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func nullStringToPointer(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func pointerToNullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func pointerToNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func pointerToNullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func pointerToNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
