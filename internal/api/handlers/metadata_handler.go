package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/wizard"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

type MetadataHandler struct {
	store      *metadata.Store
	controller *wizard.Controller
}

func NewMetadataHandler(store *metadata.Store, controller *wizard.Controller) *MetadataHandler {
	return &MetadataHandler{store: store, controller: controller}
}

// GetMetadata serves the in-memory record. Source is where it was last read
// from or written to; "none" means the latest changes are in memory only.
func (h *MetadataHandler) GetMetadata(c *fiber.Ctx) error {
	res := h.store.Snapshot()
	return c.JSON(fiber.Map{
		"metadata": res.Metadata,
		"source":   res.Source,
	})
}

// UpdateMetadata merges a partial record. Session status and lastModified
// in the body are ignored; both are computed.
func (h *MetadataHandler) UpdateMetadata(c *fiber.Ctx) error {
	var patch metadata.Patch
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &patch); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", err.Error())
		}
	}

	res := h.store.Update(c.UserContext(), patch)
	return c.JSON(updateBody(res))
}

// ResetMetadata restarts the wizard: a new session at the first step.
func (h *MetadataHandler) ResetMetadata(c *fiber.Ctx) error {
	tr := h.controller.Restart(c.UserContext())
	return c.JSON(fiber.Map{
		"metadata":    tr.Metadata,
		"persistedTo": tr.PersistedTo,
		"currentStep": tr.To,
	})
}

func updateBody(res metadata.UpdateResult) fiber.Map {
	body := fiber.Map{
		"metadata":    res.Metadata,
		"persistedTo": res.PersistedTo,
	}
	if res.Err != nil {
		body["warning"] = "changes are kept in memory only: " + res.Err.Error()
	}
	return body
}
