package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/sirupsen/logrus"
)

var ErrNoSchemas = errors.New("no migration schemas registered")

// MigrationManager applies the SQL schemas modules embed. Every schema keeps
// its own goose version table so modules can number migrations independently.
type MigrationManager interface {
	RegisterSchema(name string, fsys fs.FS)
	Run(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) ([]SchemaStatus, error)
}

type SchemaStatus struct {
	Schema  string `json:"schema" yaml:"schema"`
	Version int64  `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
	Applied bool   `json:"applied" yaml:"applied"`
}

type schema struct {
	name string
	fsys fs.FS
}

type migrationManager struct {
	pool    *pgxpool.Pool
	logger  *logrus.Logger
	schemas []schema
}

func NewMigrationManager(pool *pgxpool.Pool, logger *logrus.Logger) MigrationManager {
	return &migrationManager{pool: pool, logger: logger}
}

func (m *migrationManager) RegisterSchema(name string, fsys fs.FS) {
	m.schemas = append(m.schemas, schema{name: name, fsys: fsys})
}

func (m *migrationManager) Run(ctx context.Context) error {
	return m.each(ctx, func(s schema, p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, r := range results {
			m.logger.WithFields(logrus.Fields{
				"schema":   s.name,
				"version":  r.Source.Version,
				"duration": r.Duration,
			}).Info("migration applied")
		}
		if err != nil {
			return fmt.Errorf("migrate %s up: %w", s.name, err)
		}
		return nil
	})
}

// Rollback reverts the most recent migration of every schema, last registered
// schema first.
func (m *migrationManager) Rollback(ctx context.Context) error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for i := len(m.schemas) - 1; i >= 0; i-- {
		s := m.schemas[i]
		p, err := newProvider(db, s)
		if err != nil {
			return err
		}
		r, err := p.Down(ctx)
		if err != nil {
			return fmt.Errorf("migrate %s down: %w", s.name, err)
		}
		m.logger.WithFields(logrus.Fields{
			"schema":  s.name,
			"version": r.Source.Version,
		}).Info("migration rolled back")
	}
	return nil
}

func (m *migrationManager) Status(ctx context.Context) ([]SchemaStatus, error) {
	var out []SchemaStatus
	err := m.each(ctx, func(s schema, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status of %s: %w", s.name, err)
		}
		for _, st := range statuses {
			out = append(out, SchemaStatus{
				Schema:  s.name,
				Version: st.Source.Version,
				Path:    st.Source.Path,
				Applied: st.State == goose.StateApplied,
			})
		}
		return nil
	})
	return out, err
}

func (m *migrationManager) each(ctx context.Context, fn func(schema, *goose.Provider) error) error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, s := range m.schemas {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := newProvider(db, s)
		if err != nil {
			return err
		}
		if err := fn(s, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *migrationManager) open() (*sql.DB, error) {
	if len(m.schemas) == 0 {
		return nil, ErrNoSchemas
	}
	if m.pool == nil {
		return nil, errors.New("migrations need a database pool")
	}
	return stdlib.OpenDBFromPool(m.pool), nil
}

func newProvider(db *sql.DB, s schema) (*goose.Provider, error) {
	store, err := database.NewStore(database.DialectPostgres, "goose_"+s.name+"_version")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider("", db, s.fsys, goose.WithStore(store))
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", s.name, err)
	}
	return p, nil
}
