package site

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Site groups the turbines owned by one legal owner. Name is the resolved
// owner name and is unique.
type Site struct {
	id        uuid.UUID
	name      string
	createdAt time.Time
	updatedAt time.Time
}

func New(name string) Site {
	now := time.Now().UTC()
	return Site{
		id:        uuid.New(),
		name:      strings.TrimSpace(name),
		createdAt: now,
		updatedAt: now,
	}
}

func Hydrate(id uuid.UUID, name string, createdAt, updatedAt time.Time) Site {
	return Site{
		id:        id,
		name:      strings.TrimSpace(name),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (s Site) ID() uuid.UUID        { return s.id }
func (s Site) Name() string         { return s.name }
func (s Site) CreatedAt() time.Time { return s.createdAt }
func (s Site) UpdatedAt() time.Time { return s.updatedAt }
func (s Site) IsZero() bool         { return s.id == uuid.Nil && s.name == "" }
