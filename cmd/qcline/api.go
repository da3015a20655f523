// Package main provides the qcline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/qcline/qcline/pkg/decoder"
	"github.com/qcline/qcline/pkg/engine"
	"github.com/qcline/qcline/pkg/imagestore"
	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/registry"
	"github.com/qcline/qcline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	decoder     *decoder.Decoder
	images      *imagestore.Store
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	eng *engine.Engine,
	dec *decoder.Decoder,
	images *imagestore.Store,
	persistence persistence.Persistence,
	registry *registry.Registry,
) *API {
	return &API{
		logger:      logger,
		engine:      eng,
		decoder:     dec,
		images:      images,
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.decoder, a.images, a.persistence, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("qcline API")
	})

	app.Post("/operators", handlers.RegisterOperator)
	app.Get("/processes", handlers.GetProcesses)

	p := app.Group("/processes/:process")
	p.Get("/steps", handlers.GetSteps)
	p.Post("/start", handlers.StartWorkflow)
	p.Post("/capture", handlers.CaptureWorkflow)
	p.Post("/resume", handlers.ResumeWorkflow)
	p.Get("/continuation-offer", handlers.GetContinuationOffer)
	p.Post("/continue", handlers.ContinueWorkflow)
	p.Post("/steps/:step/select", handlers.SelectStep)
	p.Post("/value", handlers.SubmitValue)
	p.Post("/comment", handlers.SubmitComment)
	p.Post("/photo", handlers.SubmitPhoto)
	p.Post("/finish", handlers.FinishWorkflow)
	p.Post("/cancel", handlers.CancelWorkflow)
	p.Post("/unit/complete", handlers.CompleteUnit)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
