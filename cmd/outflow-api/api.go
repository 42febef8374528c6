// Package main provides the Outflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/recurrence"
	"github.com/outflowhq/outflow/pkg/registry"
	"github.com/outflowhq/outflow/pkg/scheduler"
	"github.com/outflowhq/outflow/pkg/services"
	"github.com/outflowhq/outflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	dispatcher  *dispatch.Dispatcher
	manager     *scheduler.Manager
	calculator  *recurrence.Calculator
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	manager *scheduler.Manager,
	calculator *recurrence.Calculator,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    reg,
		dispatcher:  dispatcher,
		manager:     manager,
		calculator:  calculator,
		validate:    validator.New(),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewFlow(a.persistence, a.registry, a.logger),
		services.NewAutomation(a.persistence, a.dispatcher),
		services.NewSchedule(a.persistence, a.manager, a.calculator),
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
