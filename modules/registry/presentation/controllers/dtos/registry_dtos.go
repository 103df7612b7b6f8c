package dtos

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/windregistry/masterdata/pkg/constants"
)

const MaxBatchGSRNs = 1000

type TurbineResponse struct {
	ID                     string           `json:"id"`
	GSRN                   string           `json:"gsrn"`
	OriginalConnectionDate *time.Time       `json:"originalConnectionDate"`
	DecommissioningDate    *time.Time       `json:"decommissioningDate"`
	CapacityKW             *int             `json:"capacityKw"`
	RotorDiameterM         *decimal.Decimal `json:"rotorDiameterM"`
	HubHeightM             *decimal.Decimal `json:"hubHeightM"`
	Manufacturer           *string          `json:"manufacturer"`
	TypeDesignation        *string          `json:"typeDesignation"`
	LocalAuthority         *string          `json:"localAuthority"`
	LocationType           *string          `json:"locationType"`
	CadastralDistrict      *string          `json:"cadastralDistrict"`
	CadastralNo            *string          `json:"cadastralNo"`
	PropertyID             *string          `json:"propertyId"`
	CoordinateX            *decimal.Decimal `json:"coordinateX"`
	CoordinateY            *decimal.Decimal `json:"coordinateY"`
	CoordinateOrigin       *string          `json:"coordinateOrigin"`
	CreatedAt              time.Time        `json:"createdAt"`
	SiteID                 *string          `json:"siteId"`
	SiteName               *string          `json:"siteName,omitempty"`
}

type SiteResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	TurbineCount int64     `json:"turbineCount"`
}

type SiteDetailResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Turbines   []TurbineResponse `json:"turbines"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount int64             `json:"totalCount"`
}

type EnrichAcceptedResponse struct {
	Status string `json:"status"`
}

type GSRNBatchDTO struct {
	GSRNs []string `validate:"required,min=1,max=1000,dive,required,number,max=100"`
}

// Ok validates the batch and returns field messages on failure.
func (dto *GSRNBatchDTO) Ok() (map[string]string, bool) {
	errorMessages := map[string]string{}
	err := constants.Validate.Struct(dto)
	if err == nil {
		return errorMessages, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errorMessages["GSRNs"] = err.Error()
		return errorMessages, false
	}
	for _, fe := range verrs {
		switch {
		case fe.Field() == "GSRNs" && (fe.Tag() == "required" || fe.Tag() == "min"):
			errorMessages["GSRNs"] = "GSRN list cannot be empty"
		case fe.Field() == "GSRNs" && fe.Tag() == "max":
			errorMessages["GSRNs"] = fmt.Sprintf("at most %d GSRNs per request", MaxBatchGSRNs)
		default:
			errorMessages[fe.Namespace()] = fmt.Sprintf("invalid GSRN %q", fe.Value())
		}
	}
	return errorMessages, false
}
