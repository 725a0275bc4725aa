package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/runs"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

type RunHandler struct {
	executor     *runs.Executor
	historyLimit int
}

func NewRunHandler(executor *runs.Executor, historyLimit int) *RunHandler {
	return &RunHandler{executor: executor, historyLimit: historyLimit}
}

func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.historyLimit)
	if limit <= 0 || limit > h.historyLimit {
		limit = h.historyLimit
	}

	list, err := h.executor.List(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list runs")
	}
	return c.JSON(fiber.Map{
		"runs":  list,
		"total": len(list),
	})
}

func (h *RunHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.executor.Summary(c.UserContext())
	if err != nil {
		logger.Error("Failed to summarize runs", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to summarize runs")
	}
	return c.JSON(summary)
}

func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.executor.Get(c.UserContext(), c.Params("id"))
	if isNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, "Run not found")
	}
	if err != nil {
		logger.Error("Failed to get run", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to get run")
	}
	return c.JSON(fiber.Map{
		"run":      run,
		"progress": run.Progress(),
	})
}

type DeploymentHandler struct {
	db *sqlite.Client
}

func NewDeploymentHandler(db *sqlite.Client) *DeploymentHandler {
	return &DeploymentHandler{db: db}
}

func (h *DeploymentHandler) ListDeployments(c *fiber.Ctx) error {
	deployments, err := h.db.ListDeployments(c.UserContext())
	if err != nil {
		logger.Error("Failed to list deployments", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list deployments")
	}
	return c.JSON(fiber.Map{
		"deployments": deployments,
		"total":       len(deployments),
	})
}
