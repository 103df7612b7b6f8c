package turbine

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("turbine not found")

type FindParams struct {
	// Manufacturer matches case-insensitively anywhere in the manufacturer name.
	Manufacturer string
	// Model matches case-insensitively anywhere in the type designation.
	Model  string
	SiteID *uuid.UUID
	// Unlinked selects turbines that carry a cadastral reference but no site.
	Unlinked bool
	Limit    int
	Offset   int
}

type Stats struct {
	Total         int64
	Manufacturers int64
	Models        int64
	WithSite      int64
}

type Repository interface {
	GetByGSRN(ctx context.Context, gsrn string) (Turbine, error)
	GetByGSRNs(ctx context.Context, gsrns []string) ([]Turbine, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]Turbine, int64, error)
	Stats(ctx context.Context) (Stats, error)
	// LinkSite sets the site reference and property id of an existing turbine.
	LinkSite(ctx context.Context, gsrn string, siteID uuid.UUID, propertyID string) error
	// NewSession starts a unit of work owned by a single import run.
	NewSession() Session
}

// Session stages inserts and updates until Flush commits them together.
type Session interface {
	Upsert(ctx context.Context, t Turbine) error
	Flush(ctx context.Context) error
	Pending() int
}
