package models

import (
	"time"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
)

// Deployment is a model endpoint offered by the deployment catalog.
type Deployment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Selection converts a catalog entry into the wizard's deployment slice.
func (d Deployment) Selection(at time.Time) metadata.Deployment {
	return metadata.Deployment{
		ID:         d.ID,
		Name:       d.Name,
		Model:      d.Model,
		Provider:   d.Provider,
		SelectedAt: &at,
	}
}

const (
	RunQueued    = metadata.ExecutionQueued
	RunRunning   = metadata.ExecutionRunning
	RunCompleted = metadata.ExecutionCompleted
	RunFailed    = metadata.ExecutionFailed
)

// EvaluationRun is one execution of a configured evaluation, listed on the
// dashboard. Results map deployment id to metric id to mean score.
type EvaluationRun struct {
	ID          string                        `json:"id"`
	SessionID   string                        `json:"sessionId"`
	Name        string                        `json:"name"`
	Description string                        `json:"description"`
	DatasetID   string                        `json:"datasetId"`
	DatasetName string                        `json:"datasetName"`
	TaskType    string                        `json:"taskType"`
	Deployments []metadata.Deployment         `json:"deployments"`
	CategoryID  string                        `json:"categoryId"`
	Metrics     []string                      `json:"metrics"`
	Settings    metadata.RunSettings          `json:"settings"`
	Status      string                        `json:"status"`
	Processed   int                           `json:"processed"`
	Total       int                           `json:"total"`
	Results     map[string]map[string]float64 `json:"results"`
	Error       string                        `json:"error,omitempty"`
	CreatedAt   time.Time                     `json:"createdAt"`
	StartedAt   *time.Time                    `json:"startedAt"`
	CompletedAt *time.Time                    `json:"completedAt"`
}

// Progress is the completed fraction in [0, 1].
func (r *EvaluationRun) Progress() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Processed) / float64(r.Total)
}

// Finished reports whether the run reached a terminal status.
func (r *EvaluationRun) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// RunSummary counts runs per status for the dashboard header.
type RunSummary struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
