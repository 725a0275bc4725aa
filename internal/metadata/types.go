package metadata

import (
	"time"

	"github.com/nainovate/Evaluation-UI-sub000/internal/evalmetrics"
)

type Status string

const (
	StatusNotStarted      Status = "not_started"
	StatusInProgress      Status = "in_progress"
	StatusDatasetSelected Status = "dataset_selected"
	StatusModelSelected   Status = "model_selected"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
)

// Execution statuses written by the run executor.
const (
	ExecutionQueued    = "queued"
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// EvaluationMetadata is the accumulated wizard state for one session.
type EvaluationMetadata struct {
	EvaluationSession Session           `json:"evaluationSession"`
	Dataset           *DatasetSelection `json:"dataset"`
	// Deployment mirrors Deployments[0]; kept for older clients.
	Deployment  *Deployment    `json:"deployment"`
	Deployments []Deployment   `json:"deployments"`
	Metrics     *MetricsConfig `json:"metrics"`
	Execution   *Execution     `json:"execution"`
}

type Session struct {
	ID           string     `json:"id"`
	CreatedAt    *time.Time `json:"createdAt"`
	LastModified time.Time  `json:"lastModified"`
	Status       Status     `json:"status"`
	CurrentStep  int        `json:"currentStep"`
}

type DatasetSelection struct {
	UID        string    `json:"uid"`
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SelectedAt time.Time `json:"selectedAt"`
	TaskType   string    `json:"taskType"`
	Rows       int       `json:"rows"`
	Columns    []string  `json:"columns"`
}

type Deployment struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	SelectedAt *time.Time `json:"selectedAt,omitempty"`
}

// RunSettings are the judge settings applied when an evaluation runs.
type RunSettings struct {
	Model     string `json:"model"`
	BatchSize int    `json:"batchSize"`
	Timeout   int    `json:"timeout"`
}

func DefaultRunSettings() RunSettings {
	return RunSettings{Model: "gpt-4", BatchSize: 50, Timeout: 30}
}

type MetricsConfig struct {
	Categories       evalmetrics.Categories `json:"categories"`
	SelectedCategory string                 `json:"selectedCategory"`
	TotalSelected    int                    `json:"totalSelected"`
	Settings         RunSettings            `json:"settings"`
	Configuration    *MetricsConfiguration  `json:"configuration"`
	ConfiguredAt     *time.Time             `json:"configuredAt"`
}

// MetricsConfiguration is the confirmed output of the metrics step.
type MetricsConfiguration struct {
	CategoryID   string      `json:"categoryId"`
	CategoryName string      `json:"categoryName"`
	Metrics      []string    `json:"metrics"`
	Settings     RunSettings `json:"settings"`
}

type Execution struct {
	StartedAt             *time.Time                    `json:"startedAt"`
	CompletedAt           *time.Time                    `json:"completedAt"`
	Status                string                        `json:"status"`
	Results               map[string]map[string]float64 `json:"results"`
	EvaluationName        string                        `json:"evaluationName"`
	EvaluationDescription string                        `json:"evaluationDescription"`
	RunID                 string                        `json:"runId,omitempty"`
	Error                 string                        `json:"error,omitempty"`
}

func (e *Execution) Finished() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// Default is the record served when nothing has been persisted yet.
func Default(now time.Time) *EvaluationMetadata {
	return &EvaluationMetadata{
		EvaluationSession: Session{
			LastModified: now,
			Status:       StatusNotStarted,
			CurrentStep:  1,
		},
		Metrics: &MetricsConfig{
			Categories: evalmetrics.Catalog(),
			Settings:   DefaultRunSettings(),
		},
	}
}

// Completeness reports which wizard slices are filled in. Step gates and the
// session status are both derived from it.
type Completeness struct {
	Dataset    bool
	Deployment bool
	Metrics    bool
}

func (c Completeness) ReadyForReview() bool {
	return c.Dataset && c.Deployment && c.Metrics
}

func (m *EvaluationMetadata) Completeness() Completeness {
	return Completeness{
		Dataset:    m.Dataset != nil && m.Dataset.ID != "",
		Deployment: (m.Deployment != nil && m.Deployment.ID != "") || len(m.Deployments) > 0,
		Metrics:    m.Metrics != nil && m.Metrics.Configuration != nil,
	}
}

// DeriveStatus computes the session status from execution state and
// completeness.
func (m *EvaluationMetadata) DeriveStatus() Status {
	if m.Execution != nil {
		switch m.Execution.Status {
		case ExecutionCompleted:
			return StatusCompleted
		case ExecutionQueued, ExecutionRunning:
			return StatusRunning
		}
	}
	if m.EvaluationSession.ID == "" {
		return StatusNotStarted
	}

	c := m.Completeness()
	switch {
	case c.Dataset && c.Deployment:
		return StatusModelSelected
	case c.Dataset:
		return StatusDatasetSelected
	default:
		return StatusInProgress
	}
}

// Clone returns a deep copy.
func (m *EvaluationMetadata) Clone() *EvaluationMetadata {
	if m == nil {
		return nil
	}
	out := &EvaluationMetadata{
		EvaluationSession: m.EvaluationSession,
		Dataset:           m.Dataset.clone(),
		Deployment:        m.Deployment.clone(),
		Metrics:           m.Metrics.clone(),
		Execution:         m.Execution.clone(),
	}
	out.EvaluationSession.CreatedAt = cloneTime(m.EvaluationSession.CreatedAt)
	if m.Deployments != nil {
		out.Deployments = make([]Deployment, len(m.Deployments))
		for i := range m.Deployments {
			out.Deployments[i] = *m.Deployments[i].clone()
		}
	}
	return out
}

func (d *DatasetSelection) clone() *DatasetSelection {
	if d == nil {
		return nil
	}
	out := *d
	out.Columns = append([]string(nil), d.Columns...)
	return &out
}

func (d *Deployment) clone() *Deployment {
	if d == nil {
		return nil
	}
	out := *d
	out.SelectedAt = cloneTime(d.SelectedAt)
	return &out
}

func (mc *MetricsConfig) clone() *MetricsConfig {
	if mc == nil {
		return nil
	}
	out := *mc
	out.Categories = mc.Categories.Clone()
	out.ConfiguredAt = cloneTime(mc.ConfiguredAt)
	if mc.Configuration != nil {
		cfg := *mc.Configuration
		cfg.Metrics = append([]string(nil), mc.Configuration.Metrics...)
		out.Configuration = &cfg
	}
	return &out
}

func (e *Execution) clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.StartedAt = cloneTime(e.StartedAt)
	out.CompletedAt = cloneTime(e.CompletedAt)
	if e.Results != nil {
		out.Results = make(map[string]map[string]float64, len(e.Results))
		for dep, scores := range e.Results {
			inner := make(map[string]float64, len(scores))
			for k, v := range scores {
				inner[k] = v
			}
			out.Results[dep] = inner
		}
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
