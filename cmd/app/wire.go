//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/mealplanner/internal/bootstrap"
	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
	"github.com/yanqian/mealplanner/internal/infra/config"
	"github.com/yanqian/mealplanner/internal/infra/mealapi"
	httpiface "github.com/yanqian/mealplanner/internal/interface/http"
	"github.com/yanqian/mealplanner/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideMetrics,
		provideClock,
		provideAPIClient,
		provideMealPlanConfig,
		provideTokenStore,
		providePlanCache,
		providePlanArchive,
		provideEventHub,
		session.NewStore,
		mealplan.NewService,
		mealplan.NewPoller,
		wire.Bind(new(session.API), new(*mealapi.Client)),
		wire.Bind(new(mealplan.API), new(*mealapi.Client)),
		wire.Bind(new(mealplan.Authorizer), new(*session.Store)),
		wire.Bind(new(httpiface.SessionService), new(*session.Store)),
		wire.Bind(new(httpiface.PlanService), new(*mealplan.Service)),
		wire.Bind(new(httpiface.Generator), new(*mealplan.Poller)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
