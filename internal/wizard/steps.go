package wizard

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStep   = errors.New("unknown wizard step")
	ErrNoSteps       = errors.New("wizard has no steps")
	ErrDuplicateStep = errors.New("duplicate wizard step")
)

// Step keys. These are stable identifiers independent of the display name.
const (
	KeyDataset = "dataset"
	KeyModel   = "model"
	KeyMetrics = "metrics"
	KeyReview  = "review"
	KeySuccess = "success"
)

type registryEntry struct {
	Key       string
	Component string
	Icon      string
}

// registry maps a display name to the step's key, UI component and icon.
var registry = map[string]registryEntry{
	"Select Dataset":    {Key: KeyDataset, Component: "DatasetSelection", Icon: "database"},
	"Select Model":      {Key: KeyModel, Component: "ModelSelection", Icon: "cpu"},
	"Configure Metrics": {Key: KeyMetrics, Component: "MetricsConfiguration", Icon: "bar-chart"},
	"Review":            {Key: KeyReview, Component: "ReviewAndRun", Icon: "clipboard-check"},
	"Success":           {Key: KeySuccess, Component: "EvaluationSuccess", Icon: "check-circle"},
}

// DefaultStepNames is the standard five step flow.
var DefaultStepNames = []string{"Select Dataset", "Select Model", "Configure Metrics", "Review", "Success"}

type Step struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	Component string `json:"component"`
	Icon      string `json:"icon"`
}

// Navigator answers lookup and ordering questions about a fixed step list.
// It is immutable after construction.
type Navigator struct {
	steps []Step
}

// NewNavigator builds the step list from display names in order. Any name
// without a registry entry fails the whole build.
func NewNavigator(names []string) (*Navigator, error) {
	if len(names) == 0 {
		return nil, ErrNoSteps
	}

	steps := make([]Step, 0, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		entry, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, name)
		}
		if seen[entry.Key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, name)
		}
		seen[entry.Key] = true

		steps = append(steps, Step{
			ID:        i + 1,
			Name:      name,
			Key:       entry.Key,
			Component: entry.Component,
			Icon:      entry.Icon,
		})
	}

	return &Navigator{steps: steps}, nil
}

func (n *Navigator) Steps() []Step {
	out := make([]Step, len(n.steps))
	copy(out, n.steps)
	return out
}

func (n *Navigator) StepByID(id int) (Step, bool) {
	for _, s := range n.steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

func (n *Navigator) StepByKey(key string) (Step, bool) {
	for _, s := range n.steps {
		if s.Key == key {
			return s, true
		}
	}
	return Step{}, false
}

func (n *Navigator) StepByName(name string) (Step, bool) {
	for _, s := range n.steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// NextStepID reports false at the last step or for an id outside the flow.
func (n *Navigator) NextStepID(current int) (int, bool) {
	if current < 1 || current >= len(n.steps) {
		return 0, false
	}
	return current + 1, true
}

// PreviousStepID reports false at the first step or for an id outside the flow.
func (n *Navigator) PreviousStepID(current int) (int, bool) {
	if current <= 1 || current > len(n.steps) {
		return 0, false
	}
	return current - 1, true
}

func (n *Navigator) TotalSteps() int {
	return len(n.steps)
}

// FirstStep returns step 1.
func (n *Navigator) FirstStep() Step {
	return n.steps[0]
}
