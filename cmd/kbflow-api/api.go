package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/kbflow/kbflow/pkg/engine"
	"github.com/kbflow/kbflow/pkg/persistence"
	"github.com/kbflow/kbflow/pkg/registry"
	"github.com/kbflow/kbflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	log *slog.Logger,
	eng *engine.Engine,
	store persistence.Persistence,
	reg *registry.Registry,
) *API {
	return &API{
		logger:      log,
		engine:      eng,
		persistence: store,
		registry:    reg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.persistence, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("kbflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/start", handlers.StartWorkflow)
	w.Get("/:id/instances", handlers.GetInstances)

	i := app.Group("/instances")
	i.Get("/:id", handlers.GetInstanceStatus)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/pause", handlers.PauseInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
