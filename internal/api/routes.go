package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/nainovate/Evaluation-UI-sub000/internal/api/handlers"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/runs"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
)

// Deps is everything the routes need.
type Deps struct {
	DB             *sqlite.Client
	Store          *metadata.Store
	Controller     *wizard.Controller
	Executor       *runs.Executor
	MaxUploadBytes int
	PreviewRows    int
	HistoryLimit   int
}

func Register(app *fiber.App, d Deps) {
	metadataHandler := handlers.NewMetadataHandler(d.Store, d.Controller)
	wizardHandler := handlers.NewWizardHandler(d.Controller)
	datasetHandler := handlers.NewDatasetHandler(d.DB, d.MaxUploadBytes, d.PreviewRows)
	deploymentHandler := handlers.NewDeploymentHandler(d.DB)
	runHandler := handlers.NewRunHandler(d.Executor, d.HistoryLimit)
	wsHandler := handlers.NewWebSocketHandler(d.Executor)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/evaluation-metadata", metadataHandler.GetMetadata)
	api.Post("/evaluation-metadata", metadataHandler.UpdateMetadata)
	api.Put("/evaluation-metadata", metadataHandler.UpdateMetadata)
	api.Delete("/evaluation-metadata", metadataHandler.ResetMetadata)

	api.Get("/wizard/steps", wizardHandler.GetSteps)
	api.Get("/wizard/state", wizardHandler.GetState)
	api.Post("/wizard/steps/:key/complete", wizardHandler.CompleteStep)
	api.Get("/wizard/steps/:key/can-proceed", wizardHandler.CanProceed)
	api.Post("/wizard/back", wizardHandler.Back)
	api.Post("/wizard/restart", wizardHandler.Restart)
	api.Post("/wizard/metrics/categories/:id/toggle", wizardHandler.ToggleCategory)
	api.Put("/wizard/metrics/categories/:id/sub-metrics/:subId", wizardHandler.SetSubMetric)
	api.Get("/metrics/catalog", wizardHandler.GetMetricCatalog)

	api.Get("/datasets", datasetHandler.ListDatasets)
	api.Post("/datasets", datasetHandler.CreateDataset)
	api.Post("/datasets/validate", datasetHandler.ValidateColumns)
	api.Get("/datasets/:id", datasetHandler.GetDataset)
	api.Put("/datasets/:id", datasetHandler.UpdateDataset)
	api.Delete("/datasets/:id", datasetHandler.DeleteDataset)
	api.Get("/task-types", datasetHandler.ListTaskTypes)

	api.Get("/deployments", deploymentHandler.ListDeployments)

	api.Get("/runs", runHandler.ListRuns)
	api.Get("/runs/summary", runHandler.GetSummary)
	api.Get("/runs/:id", runHandler.GetRun)

	api.Use("/ws", wsHandler.Upgrade)
	api.Get("/ws/runs/:id", websocket.New(wsHandler.StreamRun))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := d.DB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})
}
