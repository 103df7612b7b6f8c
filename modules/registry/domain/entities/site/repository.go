package site

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("site not found")
	ErrNameTaken = errors.New("site name already exists")
)

// Summary is a site together with the number of turbines linked to it.
type Summary struct {
	Site         Site
	TurbineCount int64
}

type FindParams struct {
	Limit  int
	Offset int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Site, error)
	GetByName(ctx context.Context, name string) (Site, error)
	// Create persists immediately. Returns ErrNameTaken when another writer
	// created a site with the same name first.
	Create(ctx context.Context, s Site) (Site, error)
	GetSummary(ctx context.Context, id uuid.UUID) (Summary, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]Summary, int64, error)
	Count(ctx context.Context) (int64, error)
}
