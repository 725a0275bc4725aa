package dataset

import "time"

type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusPending Status = "pending"
)

// EvaluationDataset is a stored dataset as listed by the dataset catalog.
type EvaluationDataset struct {
	ID               string    `json:"id"`
	UID              string    `json:"uid"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Size             int64     `json:"size"`
	Status           Status    `json:"status"`
	Columns          []string  `json:"columns"`
	Rows             int       `json:"rows"`
	UploadedAt       time.Time `json:"uploadedAt"`
	TaskType         string    `json:"taskType,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	Format           string    `json:"format,omitempty"`
	ValidationErrors []string  `json:"validationErrors,omitempty"`
}

// StatusFor maps validation messages onto a dataset status.
func StatusFor(errs []string) Status {
	if len(errs) == 0 {
		return StatusValid
	}
	return StatusInvalid
}

// Revalidate recomputes Status and ValidationErrors from the current columns
// and task type. Called on creation and on edits touching either.
func (d *EvaluationDataset) Revalidate() {
	d.ValidationErrors = Validate(d.Columns, d.TaskType)
	d.Status = StatusFor(d.ValidationErrors)
}
