package turbine

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Attributes holds every mutable field of a turbine. A nil pointer means the
// value is absent, either because the column was missing or the cell could
// not be parsed.
type Attributes struct {
	OriginalConnectionDate *time.Time
	DecommissioningDate    *time.Time
	CapacityKW             *int
	RotorDiameterM         *decimal.Decimal
	HubHeightM             *decimal.Decimal
	Manufacturer           *string
	TypeDesignation        *string
	LocalAuthority         *string
	LocationType           *string
	CadastralDistrict      *string
	CadastralNo            *string
	CoordinateX            *decimal.Decimal
	CoordinateY            *decimal.Decimal
	CoordinateOrigin       *string
}

type Turbine struct {
	id         uuid.UUID
	gsrn       string
	attrs      Attributes
	siteID     *uuid.UUID
	propertyID *string
	createdAt  time.Time
	updatedAt  time.Time
}

func New(gsrn string, attrs Attributes) Turbine {
	return Turbine{
		id:    uuid.New(),
		gsrn:  strings.TrimSpace(gsrn),
		attrs: attrs,
	}
}

func Hydrate(
	id uuid.UUID,
	gsrn string,
	attrs Attributes,
	siteID *uuid.UUID,
	propertyID *string,
	createdAt time.Time,
	updatedAt time.Time,
) Turbine {
	return Turbine{
		id:         id,
		gsrn:       strings.TrimSpace(gsrn),
		attrs:      attrs,
		siteID:     siteID,
		propertyID: propertyID,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// WithAttributes replaces every mutable attribute. Identity, creation time and
// site linkage are kept.
func (t Turbine) WithAttributes(attrs Attributes) Turbine {
	t.attrs = attrs
	return t
}

// LinkedTo attaches the turbine to a site together with the property id the
// site was resolved from.
func (t Turbine) LinkedTo(siteID uuid.UUID, propertyID string) Turbine {
	t.siteID = &siteID
	if propertyID != "" {
		t.propertyID = &propertyID
	}
	return t
}

func (t Turbine) ID() uuid.UUID          { return t.id }
func (t Turbine) GSRN() string           { return t.gsrn }
func (t Turbine) Attributes() Attributes { return t.attrs }
func (t Turbine) SiteID() *uuid.UUID     { return t.siteID }
func (t Turbine) PropertyID() *string    { return t.propertyID }
func (t Turbine) CreatedAt() time.Time   { return t.createdAt }
func (t Turbine) UpdatedAt() time.Time   { return t.updatedAt }
func (t Turbine) IsZero() bool           { return t.id == uuid.Nil && t.gsrn == "" }
func (t Turbine) HasSite() bool          { return t.siteID != nil }

// CadastralRef returns the trimmed (district, parcel number) pair.
func (t Turbine) CadastralRef() (string, string) {
	return deref(t.attrs.CadastralDistrict), deref(t.attrs.CadastralNo)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
