package evalmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countSelected(cs Categories) int {
	n := 0
	for _, c := range cs {
		if c.Selected {
			n++
		}
	}
	return n
}

func TestCatalogStartsDeselected(t *testing.T) {
	cs := Catalog()
	require.NotEmpty(t, cs)
	assert.Equal(t, 0, countSelected(cs))
	assert.Equal(t, 0, cs.TotalSelected())

	_, ok := cs.SelectedCategory()
	assert.False(t, ok)
}

func TestCatalogReturnsIndependentCopies(t *testing.T) {
	a := Catalog()
	require.NoError(t, a.ToggleCategory("rag-metrics"))
	require.NoError(t, a.SetSubMetric("rag-metrics", "faithfulness", true))

	b := Catalog()
	assert.Equal(t, 0, countSelected(b))
	assert.Equal(t, 0, b.TotalSelected())
}

func TestSelectCategoryThenEnableSubMetric(t *testing.T) {
	cs := Catalog()
	require.NoError(t, cs.ToggleCategory("rag-metrics"))
	require.NoError(t, cs.SetSubMetric("rag-metrics", "faithfulness", true))

	assert.Equal(t, 1, cs.TotalSelected())
	c, ok := cs.SelectedCategory()
	require.True(t, ok)
	assert.Equal(t, "rag-metrics", c.ID)
	assert.Equal(t, []string{"faithfulness"}, cs.EnabledMetricIDs())
}

func TestSelectingAnotherCategoryIsMutuallyExclusive(t *testing.T) {
	cs := Catalog()
	require.NoError(t, cs.ToggleCategory("rag-metrics"))
	require.NoError(t, cs.SetSubMetric("rag-metrics", "faithfulness", true))
	require.NoError(t, cs.SetSubMetric("rag-metrics", "context-recall", true))

	require.NoError(t, cs.ToggleCategory("nlp-metrics"))
	assert.Equal(t, 1, countSelected(cs))
	c, _ := cs.SelectedCategory()
	assert.Equal(t, "nlp-metrics", c.ID)
	assert.Equal(t, 0, cs.TotalSelected())

	for _, cat := range cs {
		if cat.ID == "rag-metrics" {
			for _, s := range cat.SubMetrics {
				assert.False(t, s.Enabled, s.ID)
			}
		}
	}
}

func TestTogglingSelectedCategoryOffDisablesItsSubMetrics(t *testing.T) {
	cs := Catalog()
	require.NoError(t, cs.ToggleCategory("quality-metrics"))
	require.NoError(t, cs.SetSubMetric("quality-metrics", "coherence", true))
	require.NoError(t, cs.SetSubMetric("quality-metrics", "fluency", true))
	require.Equal(t, 2, cs.TotalSelected())

	require.NoError(t, cs.ToggleCategory("quality-metrics"))
	assert.Equal(t, 0, countSelected(cs))
	assert.Equal(t, 0, cs.TotalSelected())

	// re-selecting starts clean
	require.NoError(t, cs.ToggleCategory("quality-metrics"))
	assert.Equal(t, 0, cs.TotalSelected())
}

func TestSetSubMetricRules(t *testing.T) {
	cs := Catalog()

	err := cs.SetSubMetric("rag-metrics", "faithfulness", true)
	assert.ErrorIs(t, err, ErrCategoryNotSelected)

	require.NoError(t, cs.ToggleCategory("rag-metrics"))
	assert.ErrorIs(t, cs.SetSubMetric("rag-metrics", "bleu", true), ErrUnknownSubMetric)
	assert.ErrorIs(t, cs.SetSubMetric("vision", "x", true), ErrUnknownCategory)
	assert.ErrorIs(t, cs.ToggleCategory("vision"), ErrUnknownCategory)

	require.NoError(t, cs.SetSubMetric("rag-metrics", "faithfulness", true))
	require.NoError(t, cs.SetSubMetric("rag-metrics", "faithfulness", false))
	assert.Equal(t, 0, cs.TotalSelected())
}

func TestSelectReplacesSelection(t *testing.T) {
	cs := Catalog()
	require.NoError(t, cs.Select("safety-metrics", []string{"toxicity", "bias"}))
	assert.Equal(t, 2, cs.TotalSelected())

	require.NoError(t, cs.Select("rag-metrics", []string{"faithfulness"}))
	assert.Equal(t, 1, cs.TotalSelected())
	assert.Equal(t, 1, countSelected(cs))

	assert.ErrorIs(t, cs.Select("rag-metrics", []string{"toxicity"}), ErrUnknownSubMetric)
}

func TestNormalizeRepairsInvalidState(t *testing.T) {
	cs := Catalog()
	cs[0].Selected = true
	cs[0].SubMetrics[0].Enabled = true
	cs[1].Selected = true
	cs[1].SubMetrics[0].Enabled = true
	cs[2].SubMetrics[1].Enabled = true

	cs.Normalize()

	assert.Equal(t, 1, countSelected(cs))
	assert.True(t, cs[0].Selected)
	assert.Equal(t, 1, cs.TotalSelected())
	assert.False(t, cs[1].SubMetrics[0].Enabled)
	assert.False(t, cs[2].SubMetrics[1].Enabled)
}

func TestSubMetricByID(t *testing.T) {
	s, ok := SubMetricByID("faithfulness")
	require.True(t, ok)
	assert.Equal(t, "Faithfulness", s.Name)

	_, ok = SubMetricByID("nope")
	assert.False(t, ok)
}

func TestLoadCatalogRejectsDuplicates(t *testing.T) {
	data := []byte(`categories:
  - id: a
    subMetrics: [{id: x}]
  - id: a
    subMetrics: [{id: y}]
`)
	_, err := loadCatalog(data)
	assert.Error(t, err)
}
