// Package evalmetrics holds the static catalog of evaluation metrics and the
// selection rules the metrics step applies to it.
package evalmetrics

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

var (
	ErrUnknownCategory     = errors.New("unknown metric category")
	ErrUnknownSubMetric    = errors.New("unknown sub-metric")
	ErrCategoryNotSelected = errors.New("metric category is not selected")
)

type SubMetric struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Enabled     bool   `yaml:"-" json:"enabled"`
}

type MetricCategory struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Icon        string      `yaml:"icon" json:"icon"`
	Color       string      `yaml:"color" json:"color"`
	Selected    bool        `yaml:"-" json:"selected"`
	SubMetrics  []SubMetric `yaml:"subMetrics" json:"subMetrics"`
}

// Categories is a working copy of the catalog carrying selection state.
// At most one category is selected and only its sub-metrics may be enabled.
type Categories []MetricCategory

var catalog = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(data []byte) Categories {
	c, err := loadCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

func loadCatalog(data []byte) (Categories, error) {
	var doc struct {
		Categories []MetricCategory `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metric catalog: %w", err)
	}

	seen := make(map[string]bool)
	for _, c := range doc.Categories {
		if c.ID == "" || len(c.SubMetrics) == 0 {
			return nil, fmt.Errorf("metric category %q is incomplete", c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate metric category %q", c.ID)
		}
		seen[c.ID] = true
	}
	return doc.Categories, nil
}

// Catalog returns a fresh, fully deselected copy of the static catalog.
func Catalog() Categories {
	return catalog.Clone()
}

func (cs Categories) Clone() Categories {
	if cs == nil {
		return nil
	}
	out := make(Categories, len(cs))
	for i, c := range cs {
		out[i] = c
		out[i].SubMetrics = append([]SubMetric(nil), c.SubMetrics...)
	}
	return out
}

func (cs Categories) index(id string) int {
	for i := range cs {
		if cs[i].ID == id {
			return i
		}
	}
	return -1
}

// ToggleCategory selects id, deselecting every other category, or deselects
// it if it is already selected. A deselected category loses all enabled
// sub-metrics.
func (cs Categories) ToggleCategory(id string) error {
	target := cs.index(id)
	if target < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, id)
	}

	selecting := !cs[target].Selected
	for i := range cs {
		cs[i].Selected = selecting && i == target
		if !cs[i].Selected {
			cs[i].disableAll()
		}
	}
	return nil
}

// SetSubMetric enables or disables one sub-metric of the selected category.
func (cs Categories) SetSubMetric(categoryID, subMetricID string, enabled bool) error {
	i := cs.index(categoryID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, categoryID)
	}
	if !cs[i].Selected {
		return fmt.Errorf("%w: %q", ErrCategoryNotSelected, categoryID)
	}
	for j := range cs[i].SubMetrics {
		if cs[i].SubMetrics[j].ID == subMetricID {
			cs[i].SubMetrics[j].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("%w: %q in %q", ErrUnknownSubMetric, subMetricID, categoryID)
}

// Select resets the selection to exactly categoryID with the given
// sub-metrics enabled.
func (cs Categories) Select(categoryID string, subMetricIDs []string) error {
	i := cs.index(categoryID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, categoryID)
	}
	for j := range cs {
		cs[j].Selected = j == i
		cs[j].disableAll()
	}
	for _, id := range subMetricIDs {
		if err := cs.SetSubMetric(categoryID, id, true); err != nil {
			return err
		}
	}
	return nil
}

func (cs Categories) SelectedCategory() (*MetricCategory, bool) {
	for i := range cs {
		if cs[i].Selected {
			return &cs[i], true
		}
	}
	return nil, false
}

// TotalSelected counts enabled sub-metrics under the selected category.
func (cs Categories) TotalSelected() int {
	c, ok := cs.SelectedCategory()
	if !ok {
		return 0
	}
	n := 0
	for _, s := range c.SubMetrics {
		if s.Enabled {
			n++
		}
	}
	return n
}

func (cs Categories) EnabledMetricIDs() []string {
	c, ok := cs.SelectedCategory()
	if !ok {
		return nil
	}
	var ids []string
	for _, s := range c.SubMetrics {
		if s.Enabled {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Normalize repairs client-supplied state: only the first selected category
// stays selected and sub-metrics outside it are disabled.
func (cs Categories) Normalize() {
	found := false
	for i := range cs {
		if cs[i].Selected && !found {
			found = true
			continue
		}
		cs[i].Selected = false
		cs[i].disableAll()
	}
}

// SubMetricByID finds a sub-metric anywhere in the catalog.
func SubMetricByID(id string) (SubMetric, bool) {
	for _, c := range catalog {
		for _, s := range c.SubMetrics {
			if s.ID == id {
				return s, true
			}
		}
	}
	return SubMetric{}, false
}

func (c *MetricCategory) disableAll() {
	for j := range c.SubMetrics {
		c.SubMetrics[j].Enabled = false
	}
}
