package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/dataset"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/utils"
)

type DatasetHandler struct {
	db             *sqlite.Client
	maxUploadBytes int
	previewRows    int
}

func NewDatasetHandler(db *sqlite.Client, maxUploadBytes, previewRows int) *DatasetHandler {
	return &DatasetHandler{
		db:             db,
		maxUploadBytes: maxUploadBytes,
		previewRows:    previewRows,
	}
}

func (h *DatasetHandler) ListDatasets(c *fiber.Ctx) error {
	datasets, err := h.db.ListDatasets(c.UserContext())
	if err != nil {
		logger.Error("Failed to list datasets", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list datasets")
	}
	return c.JSON(fiber.Map{
		"datasets": datasets,
		"total":    len(datasets),
	})
}

func (h *DatasetHandler) GetDataset(c *fiber.Ctx) error {
	ds, err := h.db.GetDataset(c.UserContext(), c.Params("id"))
	if isNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, "Dataset not found")
	}
	if err != nil {
		logger.Error("Failed to get dataset", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to get dataset")
	}

	preview, err := h.db.GetDatasetRows(c.UserContext(), ds.ID, h.previewRows)
	if err != nil {
		logger.Warn("Failed to load dataset preview", zap.String("dataset_id", ds.ID), zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"dataset": ds,
		"preview": preview,
	})
}

type createDatasetRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TaskType    string          `json:"taskType"`
	Tags        []string        `json:"tags"`
	Format      string          `json:"format"`
	Columns     []string        `json:"columns"`
	Rows        json.RawMessage `json:"rows"`
}

// CreateDataset accepts a multipart upload with a "file" part, or a JSON
// body with inline rows. Status is computed from column validation.
func (h *DatasetHandler) CreateDataset(c *fiber.Ctx) error {
	var (
		req     createDatasetRequest
		content []byte
		err     error
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req, content, err = h.readUpload(c)
	} else {
		req, content, err = readInline(c)
		if err == nil && h.maxUploadBytes > 0 && len(content) > h.maxUploadBytes {
			err = &uploadTooLargeError{limit: h.maxUploadBytes}
		}
	}
	if err != nil {
		var tooLarge *uploadTooLargeError
		if errors.As(err, &tooLarge) {
			return errorJSON(c, fiber.StatusRequestEntityTooLarge, err.Error())
		}
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	if strings.TrimSpace(req.Name) == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Dataset name is required")
	}

	var parsed *dataset.Parsed
	if len(content) > 0 {
		parsed, err = dataset.Parse(req.Format, bytes.NewReader(content))
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Failed to parse dataset", err.Error())
		}
	} else {
		parsed = &dataset.Parsed{Format: req.Format, Columns: req.Columns}
	}
	if len(parsed.Columns) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "Dataset has no columns")
	}

	uidSource := content
	if len(uidSource) == 0 {
		uidSource = []byte(strings.Join(parsed.Columns, ","))
	}

	ds := &dataset.EvaluationDataset{
		ID:          uuid.New().String(),
		UID:         utils.Fingerprint(uidSource),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Size:        int64(len(content)),
		Columns:     parsed.Columns,
		Rows:        len(parsed.Rows),
		UploadedAt:  time.Now().UTC(),
		TaskType:    req.TaskType,
		Tags:        req.Tags,
		Format:      parsed.Format,
	}
	ds.Revalidate()
	metrics.DatasetValidations.WithLabelValues(string(ds.Status)).Inc()

	if err := h.db.InsertDataset(c.UserContext(), ds, parsed.Rows); err != nil {
		logger.Error("Failed to store dataset", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to store dataset")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"dataset": ds,
	})
}

type uploadTooLargeError struct {
	limit int
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("dataset file exceeds the %d byte upload limit", e.limit)
}

func (h *DatasetHandler) readUpload(c *fiber.Ctx) (createDatasetRequest, []byte, error) {
	req := createDatasetRequest{
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
		TaskType:    c.FormValue("taskType"),
		Format:      c.FormValue("format"),
	}
	if tags := c.FormValue("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tags = append(req.Tags, t)
			}
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		return req, nil, errors.New("a dataset file is required")
	}
	if h.maxUploadBytes > 0 && file.Size > int64(h.maxUploadBytes) {
		return req, nil, &uploadTooLargeError{limit: h.maxUploadBytes}
	}
	if req.Name == "" {
		req.Name = file.Filename
	}
	if req.Format == "" {
		req.Format = dataset.FormatFromFilename(file.Filename)
	}

	f, err := file.Open()
	if err != nil {
		return req, nil, errors.New("failed to read dataset file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return req, nil, errors.New("failed to read dataset file")
	}
	return req, content, nil
}

func readInline(c *fiber.Ctx) (createDatasetRequest, []byte, error) {
	var req createDatasetRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return req, nil, errors.New("invalid request body")
	}

	rows := bytes.TrimSpace(req.Rows)
	if len(rows) == 0 || bytes.Equal(rows, []byte("null")) {
		return req, nil, nil
	}
	req.Format = "json"
	return req, rows, nil
}

// UpdateDataset edits descriptive fields. A task type change re-runs
// column validation.
func (h *DatasetHandler) UpdateDataset(c *fiber.Ctx) error {
	ds, err := h.db.GetDataset(c.UserContext(), c.Params("id"))
	if isNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, "Dataset not found")
	}
	if err != nil {
		logger.Error("Failed to get dataset", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to get dataset")
	}

	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		TaskType    *string  `json:"taskType"`
		Tags        []string `json:"tags"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return errorJSON(c, fiber.StatusBadRequest, "Dataset name must not be empty")
		}
		ds.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		ds.Description = *req.Description
	}
	if req.Tags != nil {
		ds.Tags = req.Tags
	}
	if req.TaskType != nil && *req.TaskType != ds.TaskType {
		ds.TaskType = *req.TaskType
		ds.Revalidate()
		metrics.DatasetValidations.WithLabelValues(string(ds.Status)).Inc()
	}

	if err := h.db.UpdateDataset(c.UserContext(), ds); err != nil {
		logger.Error("Failed to update dataset", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to update dataset")
	}

	return c.JSON(fiber.Map{"dataset": ds})
}

func (h *DatasetHandler) DeleteDataset(c *fiber.Ctx) error {
	err := h.db.DeleteDataset(c.UserContext(), c.Params("id"))
	if isNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, "Dataset not found")
	}
	if err != nil {
		logger.Error("Failed to delete dataset", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to delete dataset")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateColumns runs the column validator without storing anything.
func (h *DatasetHandler) ValidateColumns(c *fiber.Ctx) error {
	var req struct {
		Columns  []string `json:"columns"`
		TaskType string   `json:"taskType"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	errs := dataset.Validate(req.Columns, req.TaskType)
	if errs == nil {
		errs = []string{}
	}
	return c.JSON(fiber.Map{
		"valid":  len(errs) == 0,
		"status": dataset.StatusFor(errs),
		"errors": errs,
	})
}

func (h *DatasetHandler) ListTaskTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"taskTypes": dataset.TaskTypes(),
	})
}
