package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

var (
	ErrStepMismatch = errors.New("step is not the current step")
	ErrGateClosed   = errors.New("step requirements are not met")
	ErrAtFirstStep  = errors.New("already at the first step")
	ErrLaunchFailed = errors.New("evaluation could not be started")
)

// Launcher starts the evaluation configured in a wizard record.
type Launcher interface {
	Launch(ctx context.Context, md *metadata.EvaluationMetadata) (*models.EvaluationRun, error)
}

// Transition is the outcome of a navigation action.
type Transition struct {
	From        Step                         `json:"from"`
	To          Step                         `json:"to"`
	Advanced    bool                         `json:"advanced"`
	Metadata    *metadata.EvaluationMetadata `json:"metadata"`
	PersistedTo metadata.Source              `json:"persistedTo"`
	Run         *models.EvaluationRun        `json:"run,omitempty"`
}

type State struct {
	CurrentStep Step                         `json:"currentStep"`
	TotalSteps  int                          `json:"totalSteps"`
	CanProceed  map[string]bool              `json:"canProceed"`
	Metadata    *metadata.EvaluationMetadata `json:"metadata"`
}

// Controller drives the wizard: it shapes step payloads into store patches
// and gates forward moves on the record's completeness. The current step
// lives in the record's session, so the store is the only owner of wizard
// progress. Actions are serialized.
type Controller struct {
	nav      *Navigator
	store    *metadata.Store
	launcher Launcher
	now      func() time.Time

	mu sync.Mutex
}

type ControllerOption func(*Controller)

func WithLauncher(l Launcher) ControllerOption {
	return func(c *Controller) { c.launcher = l }
}

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func NewController(nav *Navigator, store *metadata.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		nav:   nav,
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init loads the persisted record and resumes at its stored step.
func (c *Controller) Init(ctx context.Context) metadata.LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.store.Init(ctx)

	logger.Info("Wizard initialized",
		zap.Int("current_step", c.stepOf(res.Metadata).ID),
		zap.String("source", string(res.Source)),
	)
	return res
}

// CurrentStep is the step stored in the wizard record.
func (c *Controller) CurrentStep() Step {
	return c.stepOf(c.store.Current())
}

// stepOf resolves the record's current step, falling back to the first step
// when the stored id is not in the registry.
func (c *Controller) stepOf(md *metadata.EvaluationMetadata) Step {
	if s, ok := c.nav.StepByID(md.EvaluationSession.CurrentStep); ok {
		return s
	}
	return c.nav.FirstStep()
}

func (c *Controller) Steps() []Step {
	return c.nav.Steps()
}

func (c *Controller) State() State {
	md := c.store.Current()
	return State{
		CurrentStep: c.stepOf(md),
		TotalSteps:  c.nav.TotalSteps(),
		CanProceed:  c.gates(md),
		Metadata:    md,
	}
}

// OnStepComplete merges the shaped payload of the current step and moves
// forward when the step's gate is open. On any error the record and the
// current step are left untouched.
func (c *Controller) OnStepComplete(ctx context.Context, key string, payload json.RawMessage) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.store.Current()
	from := c.stepOf(current)
	if from.Key != key {
		if _, ok := c.nav.StepByKey(key); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, key)
		}
		c.record(key, "mismatch")
		return nil, fmt.Errorf("%w: current step is %q, got %q", ErrStepMismatch, from.Key, key)
	}

	patch, err := shape(key, payload, current, c.now())
	if err != nil {
		c.record(key, "malformed")
		return nil, err
	}

	preview := c.store.Preview(patch)
	if !CanProceedOn(key, preview) {
		c.record(key, "gate_closed")
		return nil, fmt.Errorf("%w: %s", ErrGateClosed, key)
	}

	var run *models.EvaluationRun
	if key == KeyReview {
		run, err = c.launch(ctx, preview)
		if err != nil {
			c.record(key, "launch_failed")
			return nil, err
		}
		patch.Execution = executionFor(patch.Execution, run, c.now())
	}

	to := from
	next, advanced := c.nav.NextStepID(from.ID)
	if advanced {
		to, _ = c.nav.StepByID(next)
	}
	patch.Session = &metadata.SessionPatch{CurrentStep: &to.ID}

	res := c.store.Update(ctx, patch)

	if advanced {
		c.record(key, "advanced")
	} else {
		c.record(key, "terminal")
	}

	logger.Info("Wizard step completed",
		zap.String("step", key),
		zap.Int("from", from.ID),
		zap.Int("to", to.ID),
		zap.String("session_id", res.Metadata.EvaluationSession.ID),
		zap.String("persisted_to", string(res.PersistedTo)),
	)

	return &Transition{
		From:        from,
		To:          to,
		Advanced:    advanced,
		Metadata:    res.Metadata,
		PersistedTo: res.PersistedTo,
		Run:         run,
	}, nil
}

func (c *Controller) launch(ctx context.Context, md *metadata.EvaluationMetadata) (*models.EvaluationRun, error) {
	if c.launcher == nil {
		return nil, nil
	}
	run, err := c.launcher.Launch(ctx, md)
	if err != nil {
		logger.Error("Failed to launch evaluation",
			zap.String("session_id", md.EvaluationSession.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	return run, nil
}

func executionFor(review *metadata.Execution, run *models.EvaluationRun, now time.Time) *metadata.Execution {
	exec := &metadata.Execution{Status: metadata.ExecutionQueued}
	if review != nil {
		exec.EvaluationName = review.EvaluationName
		exec.EvaluationDescription = review.EvaluationDescription
	}
	if run == nil {
		exec.StartedAt = &now
		return exec
	}

	started := run.CreatedAt
	exec.StartedAt = &started
	exec.RunID = run.ID
	exec.Status = run.Status
	return exec
}

// CanProceed evaluates the gate of key against the stored record.
func (c *Controller) CanProceed(key string) bool {
	return CanProceedOn(key, c.store.Current())
}

// CanProceedOn is the forward gate for a step. Unknown keys never pass.
func CanProceedOn(key string, md *metadata.EvaluationMetadata) bool {
	done := md.Completeness()
	switch key {
	case KeyDataset:
		return done.Dataset
	case KeyModel:
		return done.Deployment
	case KeyMetrics:
		return done.Metrics
	case KeyReview:
		return done.ReadyForReview()
	case KeySuccess:
		return true
	default:
		return false
	}
}

func (c *Controller) gates(md *metadata.EvaluationMetadata) map[string]bool {
	out := make(map[string]bool, c.nav.TotalSteps())
	for _, s := range c.nav.Steps() {
		out[s.Key] = CanProceedOn(s.Key, md)
	}
	return out
}

// OnBack moves one step back without checking any gate.
func (c *Controller) OnBack(ctx context.Context) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.CurrentStep()
	prev, ok := c.nav.PreviousStepID(from.ID)
	if !ok {
		return nil, ErrAtFirstStep
	}
	to, _ := c.nav.StepByID(prev)

	res := c.store.Update(ctx, metadata.Patch{Session: &metadata.SessionPatch{CurrentStep: &to.ID}})
	c.record(from.Key, "back")

	return &Transition{
		From:        from,
		To:          to,
		Metadata:    res.Metadata,
		PersistedTo: res.PersistedTo,
	}, nil
}

// Restart discards the session and returns to step 1 with a new session id.
func (c *Controller) Restart(ctx context.Context) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.CurrentStep()
	res := c.store.Reset(ctx)
	c.record(from.Key, "restart")

	return &Transition{
		From:        from,
		To:          c.nav.FirstStep(),
		Metadata:    res.Metadata,
		PersistedTo: res.PersistedTo,
	}
}

// ToggleCategory selects or deselects a metric category in the stored
// record. Changing the selection drops a previously confirmed configuration.
func (c *Controller) ToggleCategory(ctx context.Context, categoryID string) (metadata.UpdateResult, error) {
	return c.editMetrics(ctx, func(m *metadata.MetricsConfig) error {
		return m.Categories.ToggleCategory(categoryID)
	})
}

// SetSubMetric enables or disables one sub-metric of the selected category.
func (c *Controller) SetSubMetric(ctx context.Context, categoryID, subMetricID string, enabled bool) (metadata.UpdateResult, error) {
	return c.editMetrics(ctx, func(m *metadata.MetricsConfig) error {
		return m.Categories.SetSubMetric(categoryID, subMetricID, enabled)
	})
}

func (c *Controller) editMetrics(ctx context.Context, edit func(m *metadata.MetricsConfig) error) (metadata.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.store.Current().Metrics
	if m == nil {
		m = metadata.Default(c.now()).Metrics
	}
	if m.Categories == nil {
		m.Categories = metadata.Default(c.now()).Metrics.Categories
	}

	if err := edit(m); err != nil {
		return metadata.UpdateResult{}, err
	}
	m.Configuration = nil
	m.ConfiguredAt = nil

	return c.store.Update(ctx, metadata.Patch{Metrics: m}), nil
}

func (c *Controller) record(step, outcome string) {
	metrics.StepTransitions.WithLabelValues(step, outcome).Inc()
}
