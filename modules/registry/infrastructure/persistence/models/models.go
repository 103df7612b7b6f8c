package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Turbine struct {
	ID                     string
	GSRN                   string
	OriginalConnectionDate sql.NullTime
	DecommissioningDate    sql.NullTime
	CapacityKW             sql.NullInt32
	RotorDiameterM         decimal.NullDecimal
	HubHeightM             decimal.NullDecimal
	Manufacturer           sql.NullString
	TypeDesignation        sql.NullString
	LocalAuthority         sql.NullString
	LocationType           sql.NullString
	CadastralDistrict      sql.NullString
	CadastralNo            sql.NullString
	CoordinateX            decimal.NullDecimal
	CoordinateY            decimal.NullDecimal
	CoordinateOrigin       sql.NullString
	PropertyID             sql.NullString
	SiteID                 uuid.NullUUID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type Site struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SiteSummary struct {
	Site
	TurbineCount int64
}
