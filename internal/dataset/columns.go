package dataset

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var schemasYAML []byte

// TaskType is the column contract for one kind of evaluation dataset.
type TaskType struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Mandatory   []string `yaml:"mandatory" json:"mandatory"`
	Optional    []string `yaml:"optional" json:"optional"`
}

var (
	inputHints  = []string{"input", "question", "text", "prompt", "query", "conversation", "instruction"}
	outputHints = []string{"expected", "reference", "target", "ground_truth", "label", "generated", "predicted", "output"}
)

var taskTypes = mustLoadTaskTypes(schemasYAML)

func mustLoadTaskTypes(data []byte) []TaskType {
	types, err := loadTaskTypes(data)
	if err != nil {
		panic(err)
	}
	return types
}

func loadTaskTypes(data []byte) ([]TaskType, error) {
	var doc struct {
		TaskTypes []TaskType `yaml:"taskTypes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse task type schemas: %w", err)
	}
	for _, tt := range doc.TaskTypes {
		if tt.ID == "" || tt.Name == "" || len(tt.Mandatory) == 0 {
			return nil, fmt.Errorf("task type schema %q is incomplete", tt.ID)
		}
	}
	return doc.TaskTypes, nil
}

// TaskTypes returns every recognized task type in declaration order.
func TaskTypes() []TaskType {
	out := make([]TaskType, len(taskTypes))
	copy(out, taskTypes)
	return out
}

// LookupTaskType matches a task type by display name or id, ignoring case.
func LookupTaskType(name string) (TaskType, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TaskType{}, false
	}
	for _, tt := range taskTypes {
		if strings.EqualFold(tt.Name, name) || strings.EqualFold(tt.ID, name) {
			return tt, true
		}
	}
	return TaskType{}, false
}

// Validate checks declared column names against the mandatory contract of
// taskType. An empty result means the columns are acceptable.
//
// Recognized task types require an exact (case-insensitive) match for each
// mandatory column. Anything else falls back to a looser substring heuristic
// that only asks for one input-like and one output-like column.
func Validate(columns []string, taskType string) []string {
	normalized := make(map[string]bool, len(columns))
	for _, c := range columns {
		normalized[strings.ToLower(strings.TrimSpace(c))] = true
	}

	if tt, ok := LookupTaskType(taskType); ok {
		return missingMandatory(normalized, tt)
	}
	return heuristicErrors(normalized)
}

func missingMandatory(columns map[string]bool, tt TaskType) []string {
	var errs []string
	for _, required := range tt.Mandatory {
		if !columns[strings.ToLower(required)] {
			errs = append(errs, fmt.Sprintf("Missing mandatory column: %s", required))
		}
	}
	return errs
}

func heuristicErrors(columns map[string]bool) []string {
	var errs []string
	if !anyContains(columns, inputHints) {
		errs = append(errs, fmt.Sprintf(
			"Missing input column: expected a column name containing one of %s",
			strings.Join(inputHints, ", ")))
	}
	if !anyContains(columns, outputHints) {
		errs = append(errs, fmt.Sprintf(
			"Missing output column: expected a column name containing one of %s",
			strings.Join(outputHints, ", ")))
	}
	return errs
}

func anyContains(columns map[string]bool, hints []string) bool {
	for c := range columns {
		for _, h := range hints {
			if strings.Contains(c, h) {
				return true
			}
		}
	}
	return false
}
