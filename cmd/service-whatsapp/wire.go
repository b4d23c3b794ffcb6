//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/arithgrey/service-whatsapp/internal/biz"
	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/internal/server"
	"github.com/arithgrey/service-whatsapp/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.WhatsApp, *conf.Breaker, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}

// wireMigrator init the schema and template seeding runner.
func wireMigrator(*conf.Data, log.Logger) (*data.Migrator, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
	))
}
