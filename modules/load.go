package modules

import (
	"github.com/windregistry/masterdata/modules/registry"
	"github.com/windregistry/masterdata/pkg/application"
)

var BuiltInModules = []application.Module{
	registry.NewModule(nil),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
