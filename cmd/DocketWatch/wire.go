//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"DocketWatch/internal/biz"
	"DocketWatch/internal/conf"
	"DocketWatch/internal/data"
	"DocketWatch/internal/server"
	"DocketWatch/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Registry, *conf.Monitor, *conf.Notify, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newRegistryClient,
		newPoller,
		newMonitorConfig,
		newCron,
		newApp,
	))
}
