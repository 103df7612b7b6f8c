package cli

import (
	"context"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/modules"
	"github.com/windregistry/masterdata/modules/registry"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence"
	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/configuration"
	"github.com/windregistry/masterdata/pkg/eventbus"
)

type OpenOptions struct {
	// DryRun swaps the postgres repositories for in-memory ones.
	DryRun bool
}

// Session is an opened application plus the context its repositories expect.
type Session struct {
	App   application.Application
	Ctx   context.Context
	close func()
}

func (s *Session) Close() {
	if s.close != nil {
		s.close()
	}
}

type Opener func(ctx context.Context, opts OpenOptions) (*Session, error)

type Runtime struct {
	Conf   *configuration.Configuration
	Logger *logrus.Logger
	Open   Opener
	Out    io.Writer
	Err    io.Writer
}

func NewRuntime(conf *configuration.Configuration) *Runtime {
	return &Runtime{
		Conf:   conf,
		Logger: conf.Logger(),
		Open:   DefaultOpener(conf, conf.Logger()),
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
}

// DefaultOpener connects to postgres unless a dry run is requested. Imports
// started from the CLI never enrich through the event bus; the import command
// runs enrichment in the foreground instead.
func DefaultOpener(conf *configuration.Configuration, logger *logrus.Logger) Opener {
	return func(ctx context.Context, opts OpenOptions) (*Session, error) {
		c := *conf
		c.Import.AutoEnrich = false
		moduleOpts := &registry.ModuleOptions{Configuration: &c}

		var pool *pgxpool.Pool
		if opts.DryRun {
			turbines := persistence.NewInmemTurbineRepository()
			moduleOpts.Turbines = turbines
			moduleOpts.Sites = persistence.NewInmemSiteRepository(turbines)
		} else {
			var err error
			pool, err = pgxpool.New(ctx, conf.Database.Opts)
			if err != nil {
				return nil, dbError(err)
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, dbError(err)
			}
			ctx = composables.WithPool(ctx, pool)
		}

		app := application.New(&application.ApplicationOptions{
			Pool:     pool,
			EventBus: eventbus.NewEventPublisher(logger),
			Logger:   logger,
		})
		if err := modules.Load(app, registry.NewModule(moduleOpts)); err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, err
		}
		return NewSession(ctx, app, func() {
			if pool != nil {
				pool.Close()
			}
		}), nil
	}
}

// NewSession wraps app. Closing the session stops background enrichment
// before running release.
func NewSession(ctx context.Context, app application.Application, release func()) *Session {
	return &Session{
		App: app,
		Ctx: ctx,
		close: func() {
			if bg, ok := app.Service(services.BackgroundEnricher{}).(*services.BackgroundEnricher); ok {
				bg.Close()
			}
			if release != nil {
				release()
			}
		},
	}
}
