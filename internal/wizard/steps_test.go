package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigatorBuildsStepsInOrder(t *testing.T) {
	nav, err := NewNavigator(DefaultStepNames)
	require.NoError(t, err)

	steps := nav.Steps()
	require.Len(t, steps, 5)
	assert.Equal(t, 5, nav.TotalSteps())

	keys := make([]string, 0, len(steps))
	for i, s := range steps {
		assert.Equal(t, i+1, s.ID)
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{KeyDataset, KeyModel, KeyMetrics, KeyReview, KeySuccess}, keys)
	assert.Equal(t, "DatasetSelection", steps[0].Component)
}

func TestNavigatorLookups(t *testing.T) {
	nav, err := NewNavigator(DefaultStepNames)
	require.NoError(t, err)

	s, ok := nav.StepByID(3)
	require.True(t, ok)
	assert.Equal(t, KeyMetrics, s.Key)

	s, ok = nav.StepByKey(KeyReview)
	require.True(t, ok)
	assert.Equal(t, 4, s.ID)

	s, ok = nav.StepByName("Select Model")
	require.True(t, ok)
	assert.Equal(t, KeyModel, s.Key)

	_, ok = nav.StepByID(0)
	assert.False(t, ok)
	_, ok = nav.StepByID(6)
	assert.False(t, ok)
	_, ok = nav.StepByKey("billing")
	assert.False(t, ok)
	_, ok = nav.StepByName("select model")
	assert.False(t, ok)
}

func TestNavigatorHasNoWraparound(t *testing.T) {
	for _, names := range [][]string{
		DefaultStepNames,
		{"Select Dataset"},
		{"Select Dataset", "Select Model", "Success"},
	} {
		nav, err := NewNavigator(names)
		require.NoError(t, err)
		n := nav.TotalSteps()

		_, ok := nav.NextStepID(n)
		assert.False(t, ok, "next of last step in %v", names)
		_, ok = nav.PreviousStepID(1)
		assert.False(t, ok, "previous of first step in %v", names)

		for id := 1; id < n; id++ {
			next, ok := nav.NextStepID(id)
			require.True(t, ok)
			assert.Equal(t, id+1, next)

			prev, ok := nav.PreviousStepID(next)
			require.True(t, ok)
			assert.Equal(t, id, prev)
		}
	}
}

func TestNavigatorOutOfRangeIDs(t *testing.T) {
	nav, err := NewNavigator(DefaultStepNames)
	require.NoError(t, err)

	_, ok := nav.NextStepID(0)
	assert.False(t, ok)
	_, ok = nav.NextStepID(-1)
	assert.False(t, ok)
	_, ok = nav.PreviousStepID(7)
	assert.False(t, ok)
}

func TestNavigatorFailsFastOnUnknownStep(t *testing.T) {
	_, err := NewNavigator([]string{"Select Dataset", "Pick Colour", "Review"})
	assert.ErrorIs(t, err, ErrUnknownStep)
	assert.Contains(t, err.Error(), "Pick Colour")
}

func TestNavigatorRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewNavigator(nil)
	assert.ErrorIs(t, err, ErrNoSteps)

	_, err = NewNavigator([]string{"Review", "Review"})
	assert.ErrorIs(t, err, ErrDuplicateStep)
}
