package wizard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nainovate/Evaluation-UI-sub000/internal/dataset"
	"github.com/nainovate/Evaluation-UI-sub000/internal/evalmetrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
)

var ErrMalformedPayload = errors.New("malformed step payload")

// ShapeError lists everything wrong with a step payload. Nothing is merged
// when shaping fails.
type ShapeError struct {
	Step     string
	Messages []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Step, strings.Join(e.Messages, "; "))
}

func (e *ShapeError) Unwrap() error {
	return ErrMalformedPayload
}

func shapeErr(step string, messages ...string) error {
	return &ShapeError{Step: step, Messages: messages}
}

type datasetPayload struct {
	UID      string   `json:"uid"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TaskType string   `json:"taskType"`
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
}

type deploymentPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

type modelPayload struct {
	Deployments []deploymentPayload `json:"deployments"`
	deploymentPayload
}

type settingsPayload struct {
	Model     *string `json:"model"`
	BatchSize *int    `json:"batchSize"`
	Timeout   *int    `json:"timeout"`
}

type metricsPayload struct {
	SelectedCategory string           `json:"selectedCategory"`
	EnabledMetrics   []string         `json:"enabledMetrics"`
	Settings         *settingsPayload `json:"settings"`
}

type reviewPayload struct {
	EvaluationName        string `json:"evaluationName"`
	EvaluationDescription string `json:"evaluationDescription"`
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

func decode(step string, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return shapeErr(step, "payload is not valid JSON: "+err.Error())
	}
	return nil
}

// shape turns a raw step payload into the patch for that step's slice.
func shape(key string, raw json.RawMessage, current *metadata.EvaluationMetadata, now time.Time) (metadata.Patch, error) {
	switch key {
	case KeyDataset:
		return shapeDataset(raw, now)
	case KeyModel:
		return shapeModel(raw, now)
	case KeyMetrics:
		return shapeMetrics(raw, current, now)
	case KeyReview:
		return shapeReview(raw)
	case KeySuccess:
		return metadata.Patch{}, nil
	default:
		return metadata.Patch{}, fmt.Errorf("%w: %q", ErrUnknownStep, key)
	}
}

func shapeDataset(raw json.RawMessage, now time.Time) (metadata.Patch, error) {
	var p datasetPayload
	if err := decode(KeyDataset, raw, &p); err != nil {
		return metadata.Patch{}, err
	}

	var msgs []string
	if strings.TrimSpace(p.ID) == "" {
		msgs = append(msgs, "dataset id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		msgs = append(msgs, "dataset name is required")
	}
	if p.Rows < 0 {
		msgs = append(msgs, "dataset rows must not be negative")
	}
	if len(p.Columns) > 0 {
		msgs = append(msgs, dataset.Validate(p.Columns, p.TaskType)...)
	}
	if len(msgs) > 0 {
		return metadata.Patch{}, shapeErr(KeyDataset, msgs...)
	}

	uid := p.UID
	if uid == "" {
		uid = p.ID
	}

	return metadata.Patch{Dataset: &metadata.DatasetSelection{
		UID:        uid,
		ID:         p.ID,
		Name:       p.Name,
		SelectedAt: now,
		TaskType:   p.TaskType,
		Rows:       p.Rows,
		Columns:    p.Columns,
	}}, nil
}

func shapeModel(raw json.RawMessage, now time.Time) (metadata.Patch, error) {
	var p modelPayload
	if err := decode(KeyModel, raw, &p); err != nil {
		return metadata.Patch{}, err
	}

	selected := p.Deployments
	if len(selected) == 0 && p.ID != "" {
		selected = []deploymentPayload{p.deploymentPayload}
	}
	if len(selected) == 0 {
		return metadata.Patch{}, shapeErr(KeyModel, "at least one deployment is required")
	}

	var msgs []string
	seen := make(map[string]bool, len(selected))
	out := make([]metadata.Deployment, 0, len(selected))
	for i, d := range selected {
		if strings.TrimSpace(d.ID) == "" {
			msgs = append(msgs, fmt.Sprintf("deployment %d: id is required", i+1))
			continue
		}
		if strings.TrimSpace(d.Name) == "" {
			msgs = append(msgs, fmt.Sprintf("deployment %s: name is required", d.ID))
		}
		if seen[d.ID] {
			msgs = append(msgs, fmt.Sprintf("deployment %s: selected twice", d.ID))
		}
		seen[d.ID] = true

		at := now
		out = append(out, metadata.Deployment{
			ID:         d.ID,
			Name:       d.Name,
			Model:      d.Model,
			Provider:   d.Provider,
			SelectedAt: &at,
		})
	}
	if len(msgs) > 0 {
		return metadata.Patch{}, shapeErr(KeyModel, msgs...)
	}

	return metadata.Patch{Deployments: out}, nil
}

func shapeMetrics(raw json.RawMessage, current *metadata.EvaluationMetadata, now time.Time) (metadata.Patch, error) {
	base := current.Metrics
	if base == nil {
		base = metadata.Default(now).Metrics
	}

	var p metricsPayload
	if !isEmptyPayload(raw) {
		if err := decode(KeyMetrics, raw, &p); err != nil {
			return metadata.Patch{}, err
		}
	}

	categories := base.Categories.Clone()
	if categories == nil {
		categories = evalmetrics.Catalog()
	}

	var msgs []string
	if p.SelectedCategory != "" {
		categories = evalmetrics.Catalog()
		if err := categories.Select(p.SelectedCategory, p.EnabledMetrics); err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	settings := base.Settings
	if p.Settings != nil {
		if p.Settings.Model != nil {
			settings.Model = strings.TrimSpace(*p.Settings.Model)
		}
		if p.Settings.BatchSize != nil {
			settings.BatchSize = *p.Settings.BatchSize
		}
		if p.Settings.Timeout != nil {
			settings.Timeout = *p.Settings.Timeout
		}
	}
	if settings.Model == "" {
		msgs = append(msgs, "judge model is required")
	}
	if settings.BatchSize <= 0 {
		msgs = append(msgs, "batch size must be positive")
	}
	if settings.Timeout <= 0 {
		msgs = append(msgs, "timeout must be positive")
	}

	category, ok := categories.SelectedCategory()
	if !ok {
		msgs = append(msgs, "select exactly one metric category")
	} else if categories.TotalSelected() == 0 {
		msgs = append(msgs, "enable at least one metric")
	}
	if len(msgs) > 0 {
		return metadata.Patch{}, shapeErr(KeyMetrics, msgs...)
	}

	configuredAt := now
	return metadata.Patch{Metrics: &metadata.MetricsConfig{
		Categories: categories,
		Settings:   settings,
		Configuration: &metadata.MetricsConfiguration{
			CategoryID:   category.ID,
			CategoryName: category.Name,
			Metrics:      categories.EnabledMetricIDs(),
			Settings:     settings,
		},
		ConfiguredAt: &configuredAt,
	}}, nil
}

func shapeReview(raw json.RawMessage) (metadata.Patch, error) {
	var p reviewPayload
	if err := decode(KeyReview, raw, &p); err != nil {
		return metadata.Patch{}, err
	}

	name := strings.TrimSpace(p.EvaluationName)
	if name == "" {
		return metadata.Patch{}, shapeErr(KeyReview, "evaluation name is required")
	}

	return metadata.Patch{Execution: &metadata.Execution{
		EvaluationName:        name,
		EvaluationDescription: strings.TrimSpace(p.EvaluationDescription),
	}}, nil
}
