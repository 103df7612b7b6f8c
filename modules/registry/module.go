package registry

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/windregistry/masterdata/modules/registry/domain/aggregates/turbine"
	"github.com/windregistry/masterdata/modules/registry/domain/entities/site"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/cadastral"
	"github.com/windregistry/masterdata/modules/registry/infrastructure/persistence"
	"github.com/windregistry/masterdata/modules/registry/presentation/controllers"
	"github.com/windregistry/masterdata/modules/registry/services"
	"github.com/windregistry/masterdata/pkg/application"
	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/configuration"
)

type ModuleOptions struct {
	Configuration *configuration.Configuration
	// Turbines and Sites replace the postgres repositories, e.g. with the
	// in-memory ones for dry runs. Both or neither must be set.
	Turbines turbine.Repository
	Sites    site.Repository
	// NewLookup replaces the cadastral HTTP client.
	NewLookup func() services.CadastralLookup
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	conf := m.options.Configuration
	if conf == nil {
		conf = configuration.Use()
	}
	log := logrus.NewEntry(app.Logger()).WithField("module", "registry")

	app.Migrations().RegisterSchema("registry", persistence.Migrations())

	turbineRepo, siteRepo := m.options.Turbines, m.options.Sites
	if turbineRepo == nil || siteRepo == nil {
		turbineRepo = persistence.NewTurbineRepository()
		siteRepo = persistence.NewSiteRepository()
	}

	newLookup := m.options.NewLookup
	if newLookup == nil {
		var err error
		newLookup, err = NewLookupFactory(conf, log)
		if err != nil {
			return err
		}
	}

	importService := services.NewImportService(turbineRepo, services.ImportOptions{
		BatchSize:      conf.Import.BatchSize,
		HeaderScanRows: conf.Import.HeaderScanRows,
		Publisher:      app.EventPublisher(),
		Logger:         log,
	})
	enrichmentService := services.NewEnrichmentService(turbineRepo, siteRepo, services.EnrichmentOptions{
		Workers:   conf.Import.EnrichWorkers,
		NewLookup: newLookup,
		Logger:    log,
	})
	base := context.Background()
	if pool := app.DB(); pool != nil {
		base = composables.WithPool(base, pool)
	}
	backgroundEnricher := services.NewBackgroundEnricher(base, enrichmentService, log)

	app.RegisterServices(
		importService,
		enrichmentService,
		backgroundEnricher,
		services.NewTurbineService(turbineRepo),
		services.NewSiteService(siteRepo, turbineRepo),
	)

	if conf.Import.AutoEnrich {
		app.EventPublisher().Subscribe(func(e services.ImportCompletedEvent) {
			backgroundEnricher.EnrichGSRNs(e.GSRNs)
		})
	}

	listOpts := controllers.ListOptions{PageSize: conf.PageSize, MaxPageSize: conf.MaxPageSize}
	app.RegisterControllers(
		controllers.NewImportController(app, controllers.ImportOptions{
			MaxUploadSize:   conf.MaxUploadSize,
			MaxUploadMemory: conf.MaxUploadMemory,
			AutoEnrich:      conf.Import.AutoEnrich,
		}),
		controllers.NewTurbinesController(app, listOpts),
		controllers.NewSitesController(app, listOpts),
	)
	return nil
}

// NewLookupFactory builds one cadastral client per call. Clients share the
// configured cache but pace their requests independently.
func NewLookupFactory(conf *configuration.Configuration, log *logrus.Entry) (func() services.CadastralLookup, error) {
	var cache cadastral.Cache = cadastral.NoCache{}
	switch conf.Lookup.Cache {
	case "memory":
		cache = cadastral.NewMemoryCache()
	case "redis":
		c, err := cadastral.NewRedisCacheFromURL(conf.RedisURL)
		if err != nil {
			return nil, err
		}
		cache = c
	}
	return func() services.CadastralLookup {
		return cadastral.NewClient(cadastral.Options{
			DawaBaseURL: conf.Lookup.DawaBaseURL,
			OisBaseURL:  conf.Lookup.OisBaseURL,
			Timeout:     conf.Lookup.Timeout,
			Delay:       conf.Lookup.Delay,
			Cache:       cache,
			CacheTTL:    conf.Lookup.CacheTTL,
			Logger:      log,
		})
	}, nil
}
