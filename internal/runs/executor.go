package runs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/dataset"
	"github.com/nainovate/Evaluation-UI-sub000/internal/evalmetrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/llm"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

var (
	ErrIncomplete   = errors.New("evaluation is not fully configured")
	ErrNoRows       = errors.New("dataset has no rows")
	ErrNoScores     = errors.New("every judge call failed")
	ErrShuttingDown = errors.New("executor is shutting down")
)

// Judge produces deployment answers and scores them.
type Judge interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	JudgeMetric(ctx context.Context, req llm.JudgeRequest) (*llm.JudgeScore, error)
}

// Repository is the run and dataset storage the executor needs.
type Repository interface {
	InsertRun(ctx context.Context, run *models.EvaluationRun) error
	UpdateRun(ctx context.Context, run *models.EvaluationRun) error
	GetRun(ctx context.Context, id string) (*models.EvaluationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.EvaluationRun, error)
	RunSummary(ctx context.Context) (*models.RunSummary, error)
	GetDatasetRows(ctx context.Context, id string, limit int) ([]dataset.Row, error)
}

// FinishFunc is called once a run reaches completed or failed.
type FinishFunc func(ctx context.Context, run models.EvaluationRun)

type Executor struct {
	repo   Repository
	judge  Judge
	finish FinishFunc
	now    func() time.Time
	newID  func() string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	active  map[string]bool
	subs    map[string]map[int]chan models.EvaluationRun
	nextSub int
}

type Option func(*Executor)

func WithFinishFunc(fn FinishFunc) Option {
	return func(e *Executor) { e.finish = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Executor) { e.newID = newID }
}

func NewExecutor(repo Repository, judge Judge, opts ...Option) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		repo:    repo,
		judge:   judge,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		baseCtx: ctx,
		cancel:  cancel,
		active:  make(map[string]bool),
		subs:    make(map[string]map[int]chan models.EvaluationRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launch records a queued run for the configured evaluation in md and
// starts executing it in the background.
func (e *Executor) Launch(ctx context.Context, md *metadata.EvaluationMetadata) (*models.EvaluationRun, error) {
	run, err := e.newRun(md)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrShuttingDown
	}
	e.active[run.ID] = true
	e.wg.Add(1)
	e.mu.Unlock()

	if err := e.repo.InsertRun(ctx, run); err != nil {
		e.mu.Lock()
		delete(e.active, run.ID)
		e.mu.Unlock()
		e.wg.Done()
		return nil, err
	}

	logger.Info("Evaluation run queued",
		zap.String("run_id", run.ID),
		zap.String("session_id", run.SessionID),
		zap.String("dataset_id", run.DatasetID),
		zap.Int("deployments", len(run.Deployments)),
		zap.Strings("metrics", run.Metrics),
	)

	snapshot := *run
	go func() {
		defer e.wg.Done()
		e.execute(e.baseCtx, run)
	}()

	return &snapshot, nil
}

func (e *Executor) newRun(md *metadata.EvaluationMetadata) (*models.EvaluationRun, error) {
	if md == nil || !md.Completeness().ReadyForReview() {
		return nil, ErrIncomplete
	}
	cfg := md.Metrics.Configuration
	if len(cfg.Metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics enabled", ErrIncomplete)
	}

	deployments := md.Deployments
	if len(deployments) == 0 {
		deployments = []metadata.Deployment{*md.Deployment}
	}

	settings := cfg.Settings
	if settings.BatchSize <= 0 || settings.Timeout <= 0 || settings.Model == "" {
		settings = metadata.DefaultRunSettings()
	}

	run := &models.EvaluationRun{
		ID:          e.newID(),
		SessionID:   md.EvaluationSession.ID,
		DatasetID:   md.Dataset.ID,
		DatasetName: md.Dataset.Name,
		TaskType:    md.Dataset.TaskType,
		Deployments: append([]metadata.Deployment(nil), deployments...),
		CategoryID:  cfg.CategoryID,
		Metrics:     append([]string(nil), cfg.Metrics...),
		Settings:    settings,
		Status:      models.RunQueued,
		CreatedAt:   e.now(),
	}
	if md.Execution != nil {
		run.Name = md.Execution.EvaluationName
		run.Description = md.Execution.EvaluationDescription
	}
	if run.Name == "" {
		run.Name = md.Dataset.Name
	}

	return run, nil
}

type tally struct {
	sum   float64
	count int
}

func (e *Executor) execute(ctx context.Context, run *models.EvaluationRun) {
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	started := e.now()
	run.Status = models.RunRunning
	run.StartedAt = &started
	e.save(run)

	err := e.evaluate(ctx, run)

	completed := e.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		logger.Error("Evaluation run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		run.Status = models.RunCompleted
		logger.Info("Evaluation run completed",
			zap.String("run_id", run.ID),
			zap.Int("processed", run.Processed),
			zap.Duration("duration", completed.Sub(started)),
		)
	}

	metrics.RunsTotal.WithLabelValues(run.Status).Inc()
	metrics.RunDuration.Observe(completed.Sub(started).Seconds())

	// the run's own context may be cancelled; bookkeeping still has to land
	e.save(run)
	e.release(run.ID)

	if e.finish != nil {
		e.finish(context.Background(), *run)
	}
}

func (e *Executor) evaluate(ctx context.Context, run *models.EvaluationRun) error {
	rows, err := e.repo.GetDatasetRows(ctx, run.DatasetID, 0)
	if err != nil {
		return fmt.Errorf("failed to load dataset rows: %w", err)
	}
	if len(rows) == 0 {
		return ErrNoRows
	}

	roles := dataset.ResolveRoles(rowColumns(rows))
	if roles.Input == "" && roles.Answer == "" {
		return fmt.Errorf("dataset %s has no input column", run.DatasetID)
	}

	run.Total = len(run.Deployments) * len(rows) * len(run.Metrics)
	run.Processed = 0
	e.save(run)

	timeout := time.Duration(run.Settings.Timeout) * time.Second
	scores := make(map[string]map[string]*tally, len(run.Deployments))
	var lastErr error

	for _, dep := range run.Deployments {
		scores[dep.ID] = make(map[string]*tally, len(run.Metrics))
		for _, m := range run.Metrics {
			scores[dep.ID][m] = &tally{}
		}

		for start := 0; start < len(rows); start += run.Settings.BatchSize {
			end := start + run.Settings.BatchSize
			if end > len(rows) {
				end = len(rows)
			}

			for _, row := range rows[start:end] {
				if err := ctx.Err(); err != nil {
					return err
				}

				answer, err := e.answer(ctx, dep, roles, row, timeout)
				if err != nil {
					lastErr = err
					logger.Warn("Answer generation failed",
						zap.String("run_id", run.ID),
						zap.String("deployment", dep.ID),
						zap.Error(err),
					)
					run.Processed += len(run.Metrics)
					continue
				}

				for _, metricID := range run.Metrics {
					score, err := e.score(ctx, run, metricID, roles, row, answer, timeout)
					run.Processed++
					if err != nil {
						lastErr = err
						logger.Warn("Judge call failed",
							zap.String("run_id", run.ID),
							zap.String("metric", metricID),
							zap.Error(err),
						)
						continue
					}
					t := scores[dep.ID][metricID]
					t.sum += score
					t.count++
				}
			}

			e.save(run)
		}
	}

	results, scored := means(scores)
	run.Results = results
	if !scored {
		if lastErr != nil {
			return fmt.Errorf("%w: %v", ErrNoScores, lastErr)
		}
		return ErrNoScores
	}
	return nil
}

func (e *Executor) answer(ctx context.Context, dep metadata.Deployment, roles dataset.Roles, row dataset.Row, timeout time.Duration) (string, error) {
	if roles.Answer != "" && row[roles.Answer] != "" {
		return row[roles.Answer], nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := row[roles.Input]
	if roles.Context != "" && row[roles.Context] != "" {
		prompt = fmt.Sprintf("Context:\n%s\n\n%s", row[roles.Context], prompt)
	}
	return e.judge.Generate(ctx, dep.Model, prompt)
}

func (e *Executor) score(ctx context.Context, run *models.EvaluationRun, metricID string, roles dataset.Roles, row dataset.Row, answer string, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := llm.JudgeRequest{
		Model:     run.Settings.Model,
		MetricID:  metricID,
		Input:     row[roles.Input],
		Output:    answer,
		Reference: row[roles.Reference],
		Context:   row[roles.Context],
	}
	if sm, ok := evalmetrics.SubMetricByID(metricID); ok {
		req.MetricName = sm.Name
		req.MetricDescription = sm.Description
	} else {
		req.MetricName = metricID
	}

	res, err := e.judge.JudgeMetric(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// means averages scored metrics. Metrics without a single score are left
// out; scored reports whether anything was scored at all.
func means(scores map[string]map[string]*tally) (map[string]map[string]float64, bool) {
	out := make(map[string]map[string]float64, len(scores))
	scored := false
	for dep, byMetric := range scores {
		out[dep] = make(map[string]float64, len(byMetric))
		for m, t := range byMetric {
			if t.count == 0 {
				continue
			}
			out[dep][m] = t.sum / float64(t.count)
			scored = true
		}
	}
	return out, scored
}

func rowColumns(rows []dataset.Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func (e *Executor) save(run *models.EvaluationRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.repo.UpdateRun(ctx, run); err != nil {
		logger.Warn("Failed to persist run progress", zap.String("run_id", run.ID), zap.Error(err))
	}
	e.publish(*run)
}

func (e *Executor) List(ctx context.Context, limit int) ([]models.EvaluationRun, error) {
	return e.repo.ListRuns(ctx, limit)
}

func (e *Executor) Get(ctx context.Context, id string) (*models.EvaluationRun, error) {
	return e.repo.GetRun(ctx, id)
}

func (e *Executor) Summary(ctx context.Context) (*models.RunSummary, error) {
	return e.repo.RunSummary(ctx)
}

// Shutdown stops accepting runs, cancels running ones and waits for them to
// record their final state.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
