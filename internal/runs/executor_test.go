package runs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainovate/Evaluation-UI-sub000/internal/dataset"
	"github.com/nainovate/Evaluation-UI-sub000/internal/llm"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/sqlite"
)

type fakeJudge struct {
	mu        sync.Mutex
	scores    map[string]float64
	failJudge bool
	generated []string
	judged    []llm.JudgeRequest
}

func (f *fakeJudge) Generate(_ context.Context, model, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, model+":"+prompt)
	return "answer to " + prompt, nil
}

func (f *fakeJudge) JudgeMetric(_ context.Context, req llm.JudgeRequest) (*llm.JudgeScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.judged = append(f.judged, req)
	if f.failJudge {
		return nil, errors.New("judge unavailable")
	}
	return &llm.JudgeScore{Score: f.scores[req.MetricID]}, nil
}

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	ds := &dataset.EvaluationDataset{
		ID:         "d1",
		UID:        "d1",
		Name:       "QA Set",
		Columns:    []string{"question", "expected_answer"},
		Rows:       3,
		TaskType:   "question_answering",
		UploadedAt: time.Now(),
	}
	ds.Revalidate()
	require.NoError(t, db.InsertDataset(context.Background(), ds, []dataset.Row{
		{"question": "q1", "expected_answer": "a1"},
		{"question": "q2", "expected_answer": "a2"},
		{"question": "q3", "expected_answer": "a3"},
	}))
	return db
}

func readyMetadata(batchSize int) *metadata.EvaluationMetadata {
	now := time.Now()
	md := metadata.Merge(nil, metadata.Patch{
		Dataset: &metadata.DatasetSelection{
			ID: "d1", UID: "d1", Name: "QA Set", TaskType: "question_answering",
			Columns: []string{"question", "expected_answer"}, SelectedAt: now,
		},
		Deployments: []metadata.Deployment{
			{ID: "dep-a", Name: "A", Model: "model-a"},
			{ID: "dep-b", Name: "B", Model: "model-b"},
		},
		Execution: &metadata.Execution{EvaluationName: "nightly"},
	}, now, func() string { return "s1" })

	md.Metrics.Configuration = &metadata.MetricsConfiguration{
		CategoryID: "rag-metrics",
		Metrics:    []string{"faithfulness", "answer-relevancy"},
		Settings:   metadata.RunSettings{Model: "gpt-4", BatchSize: batchSize, Timeout: 5},
	}
	return md
}

func waitFinished(t *testing.T, e *Executor, id string) *models.EvaluationRun {
	t.Helper()
	var run *models.EvaluationRun
	require.Eventually(t, func() bool {
		r, err := e.Get(context.Background(), id)
		if err != nil {
			return false
		}
		run = r
		return r.Finished()
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestLaunchScoresEveryDeploymentAndMetric(t *testing.T) {
	db := newTestDB(t)
	judge := &fakeJudge{scores: map[string]float64{"faithfulness": 0.8, "answer-relevancy": 0.5}}

	var finished []models.EvaluationRun
	var mu sync.Mutex
	e := NewExecutor(db, judge,
		WithIDGenerator(func() string { return "run-1" }),
		WithFinishFunc(func(_ context.Context, run models.EvaluationRun) {
			mu.Lock()
			finished = append(finished, run)
			mu.Unlock()
		}),
	)

	queued, err := e.Launch(context.Background(), readyMetadata(2))
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, queued.Status)
	assert.Equal(t, "nightly", queued.Name)
	assert.Equal(t, "s1", queued.SessionID)

	run := waitFinished(t, e, "run-1")
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 12, run.Total)
	assert.Equal(t, 12, run.Processed)
	assert.InDelta(t, 0.8, run.Results["dep-a"]["faithfulness"], 1e-9)
	assert.InDelta(t, 0.5, run.Results["dep-b"]["answer-relevancy"], 1e-9)

	judge.mu.Lock()
	defer judge.mu.Unlock()
	// no answer column, so every row is generated once per deployment
	assert.Len(t, judge.generated, 6)
	assert.Contains(t, judge.generated, "model-a:q1")
	assert.Equal(t, "a1", judge.judged[0].Reference)
	assert.Equal(t, "Faithfulness", judge.judged[0].MetricName)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	}, time.Second, 10*time.Millisecond)

	summary, err := e.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
}

func TestLaunchFailsWhenJudgeNeverScores(t *testing.T) {
	db := newTestDB(t)
	e := NewExecutor(db, &fakeJudge{failJudge: true}, WithIDGenerator(func() string { return "run-x" }))

	_, err := e.Launch(context.Background(), readyMetadata(50))
	require.NoError(t, err)

	run := waitFinished(t, e, "run-x")
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Error, "every judge call failed")
}

func TestLaunchRejectsIncompleteMetadata(t *testing.T) {
	e := NewExecutor(newTestDB(t), &fakeJudge{})

	md := readyMetadata(10)
	md.Metrics.Configuration = nil

	_, err := e.Launch(context.Background(), md)
	assert.ErrorIs(t, err, ErrIncomplete)

	runs, err := e.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSubscribeToInactiveRunIsClosed(t *testing.T) {
	e := NewExecutor(newTestDB(t), &fakeJudge{})

	ch, cancel := e.Subscribe("nope")
	defer cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestRecordInStoreOnlyTouchesLaunchingSession(t *testing.T) {
	ctx := context.Background()
	store := metadata.NewStore(nil, nil, metadata.WithIDGenerator(func() string { return "s1" }))
	store.Update(ctx, metadata.Patch{Dataset: &metadata.DatasetSelection{ID: "d1", Name: "QA Set"}})

	done := time.Now()
	record := RecordInStore(store)
	record(ctx, models.EvaluationRun{
		ID:          "r1",
		SessionID:   "s1",
		Name:        "nightly",
		Status:      models.RunCompleted,
		CompletedAt: &done,
		Results:     map[string]map[string]float64{"dep-a": {"faithfulness": 0.8}},
	})

	exec := store.Current().Execution
	require.NotNil(t, exec)
	assert.Equal(t, "r1", exec.RunID)
	assert.Equal(t, metadata.StatusCompleted, store.Current().EvaluationSession.Status)

	record(ctx, models.EvaluationRun{ID: "r0", SessionID: "older", Status: models.RunFailed})
	assert.Equal(t, "r1", store.Current().Execution.RunID)
}

func TestRecordInStoreAfterRestartLeavesNewSessionAlone(t *testing.T) {
	ctx := context.Background()
	n := 0
	store := metadata.NewStore(nil, nil, metadata.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}))
	store.Update(ctx, metadata.Patch{Dataset: &metadata.DatasetSelection{ID: "d1", Name: "QA Set"}})
	launched := store.Current().EvaluationSession.ID

	store.Reset(ctx)

	done := time.Now()
	RecordInStore(store)(ctx, models.EvaluationRun{
		ID:          "r1",
		SessionID:   launched,
		Status:      models.RunCompleted,
		CompletedAt: &done,
	})

	current := store.Current()
	assert.NotEqual(t, launched, current.EvaluationSession.ID)
	assert.Nil(t, current.Execution)
	assert.NotEqual(t, metadata.StatusCompleted, current.EvaluationSession.Status)
}

func TestShutdownRejectsNewRuns(t *testing.T) {
	e := NewExecutor(newTestDB(t), &fakeJudge{})
	require.NoError(t, e.Shutdown(context.Background()))

	_, err := e.Launch(context.Background(), readyMetadata(10))
	assert.ErrorIs(t, err, ErrShuttingDown)
}
