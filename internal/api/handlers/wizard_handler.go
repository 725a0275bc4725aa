package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/nainovate/Evaluation-UI-sub000/internal/evalmetrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
)

type WizardHandler struct {
	controller *wizard.Controller
}

func NewWizardHandler(controller *wizard.Controller) *WizardHandler {
	return &WizardHandler{controller: controller}
}

func (h *WizardHandler) GetSteps(c *fiber.Ctx) error {
	steps := h.controller.Steps()
	return c.JSON(fiber.Map{
		"steps": steps,
		"total": len(steps),
	})
}

func (h *WizardHandler) GetState(c *fiber.Ctx) error {
	return c.JSON(h.controller.State())
}

func (h *WizardHandler) CompleteStep(c *fiber.Ctx) error {
	tr, err := h.controller.OnStepComplete(c.UserContext(), c.Params("key"), json.RawMessage(c.Body()))
	if err != nil {
		return wizardError(c, err)
	}
	return c.JSON(tr)
}

func (h *WizardHandler) CanProceed(c *fiber.Ctx) error {
	key := c.Params("key")
	return c.JSON(fiber.Map{
		"step":       key,
		"canProceed": h.controller.CanProceed(key),
	})
}

func (h *WizardHandler) Back(c *fiber.Ctx) error {
	tr, err := h.controller.OnBack(c.UserContext())
	if err != nil {
		return wizardError(c, err)
	}
	return c.JSON(tr)
}

func (h *WizardHandler) Restart(c *fiber.Ctx) error {
	return c.JSON(h.controller.Restart(c.UserContext()))
}

func (h *WizardHandler) ToggleCategory(c *fiber.Ctx) error {
	res, err := h.controller.ToggleCategory(c.UserContext(), c.Params("id"))
	if err != nil {
		return wizardError(c, err)
	}
	return c.JSON(updateBody(res))
}

func (h *WizardHandler) SetSubMetric(c *fiber.Ctx) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return errorJSON(c, fiber.StatusBadRequest, "enabled is required")
	}

	res, err := h.controller.SetSubMetric(c.UserContext(), c.Params("id"), c.Params("subId"), *req.Enabled)
	if err != nil {
		return wizardError(c, err)
	}
	return c.JSON(updateBody(res))
}

func (h *WizardHandler) GetMetricCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"categories": evalmetrics.Catalog(),
	})
}
