package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyRunning = errors.New("training already running")

var errSaveFailed = errors.New("failed to save training session")

type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseRunning            Phase = "running"
	PhaseStoppedByLimit     Phase = "stopped_by_limit"
	PhaseStoppedByCriterion Phase = "stopped_by_criterion"
	PhaseStoppedByRequest   Phase = "stopped_by_request"
	PhaseStoppedByError     Phase = "stopped_by_error"
	PhaseFinalized          Phase = "finalized"
)

type ControllerConfig struct {
	QuestionsPerCycle     int
	MaxCycles             int
	Policy                StopPolicy
	PersistPartialResults bool
}

// Controller drives cycles until a stop condition holds, then finalizes the
// session with a final evaluation and hands the result to the sink.
type Controller struct {
	executor  *CycleExecutor
	benchmark Benchmark
	sink      ResultSink
	observer  Observer
	logger    *logrus.Logger
	cfg       ControllerConfig

	mu            sync.Mutex
	state         *types.TrainingState
	phase         Phase
	stopRequested bool
}

func NewController(cfg ControllerConfig, executor *CycleExecutor, benchmark Benchmark, sink ResultSink, observer Observer, logger *logrus.Logger) *Controller {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		executor:  executor,
		benchmark: benchmark,
		sink:      sink,
		observer:  observer,
		logger:    logger,
		cfg:       cfg,
		state:     types.NewTrainingState(cfg.Policy.PlateauWindow),
		phase:     PhaseIdle,
	}
}

// Run executes up to maxCycles cycles; maxCycles <= 0 uses the configured
// limit. On failure the returned result still holds every completed cycle.
func (c *Controller) Run(ctx context.Context, maxCycles int) (*types.TrainingResult, error) {
	if maxCycles <= 0 {
		maxCycles = c.cfg.MaxCycles
	}

	if err := c.start(); err != nil {
		return nil, err
	}
	defer c.setActive(false)

	result := &types.TrainingResult{
		SessionID:           uuid.NewString(),
		LearningProgression: make([]types.CycleResult, 0, maxCycles),
		StartedAt:           time.Now(),
	}

	c.logger.Infof("Starting training session %s (max %d cycles)", result.SessionID, maxCycles)

	baseline, err := c.benchmark.RunBaselineEvaluation(ctx)
	if err != nil {
		return c.fail(ctx, result, fmt.Errorf("baseline evaluation failed: %w", err))
	}
	result.Baseline = baseline
	c.logger.Infof("Baseline accuracy: %.2f%%", baseline.Accuracy*100)

	reason := types.StopReasonLimit
	for cycle := 0; cycle < maxCycles; cycle++ {
		if !c.isActive() {
			reason = types.StopReasonRequested
			break
		}
		if ctx.Err() != nil {
			return c.fail(ctx, result, ctx.Err())
		}

		cycleResult, err := c.runCycle(ctx, cycle)
		if err != nil {
			return c.fail(ctx, result, fmt.Errorf("cycle %d failed: %w", cycle, err))
		}

		result.LearningProgression = append(result.LearningProgression, cycleResult)
		result.CyclesCompleted = len(result.LearningProgression)

		c.mu.Lock()
		c.state.Record(cycleResult)
		snapshot := c.state.Clone()
		stop, done := c.cfg.Policy.Check(cycleResult.Metrics, c.state)
		c.mu.Unlock()

		c.observer.ObserveCycle(cycleResult, snapshot.WindowMean())
		c.logger.Infof("Cycle %d: accuracy %.2f%%, improvement rate %.2f%%, efficiency %.2f%%",
			cycle, cycleResult.Metrics.Accuracy*100, cycleResult.Metrics.ImprovementRate*100,
			cycleResult.Metrics.LearningEfficiency*100)

		if done {
			reason = stop
			break
		}
	}

	switch reason {
	case types.StopReasonTargetReached:
		c.logger.Info("Target accuracy reached, stopping training")
		c.setPhase(PhaseStoppedByCriterion)
	case types.StopReasonPlateau:
		c.logger.Info("Learning plateau detected, stopping training")
		c.setPhase(PhaseStoppedByCriterion)
	case types.StopReasonRequested:
		c.logger.Info("Training stopped on request")
		c.setPhase(PhaseStoppedByRequest)
	default:
		c.setPhase(PhaseStoppedByLimit)
	}
	result.StopReason = reason

	return c.finish(ctx, result)
}

// runCycle turns a panic inside the cycle into a run failure.
func (c *Controller) runCycle(ctx context.Context, cycle int) (result types.CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.executor.Execute(ctx, cycle, c.cfg.QuestionsPerCycle)
}

func (c *Controller) finish(ctx context.Context, result *types.TrainingResult) (*types.TrainingResult, error) {
	final, err := c.benchmark.RunFinalEvaluation(ctx, result.Baseline)
	if err != nil {
		return c.fail(ctx, result, fmt.Errorf("final evaluation failed: %w", err))
	}
	result.Final = final
	result.FinishedAt = time.Now()

	if c.sink != nil {
		if err := c.sink.SaveTrainingSession(ctx, result); err != nil {
			return c.fail(ctx, result, fmt.Errorf("%w: %w", errSaveFailed, err))
		}
	}

	c.setPhase(PhaseFinalized)
	c.logger.Infof("Training finished after %d cycles (%s), final accuracy %.2f%%",
		result.CyclesCompleted, result.StopReason, final.Accuracy*100)
	return result, nil
}

func (c *Controller) fail(ctx context.Context, result *types.TrainingResult, cause error) (*types.TrainingResult, error) {
	c.setPhase(PhaseStoppedByError)
	c.setActive(false)

	result.StopReason = types.StopReasonError
	result.Interrupted = true
	result.FinishedAt = time.Now()

	c.logger.Errorf("Training failed after %d cycles: %v", result.CyclesCompleted, cause)

	// a failed save has already been attempted on every sink
	if c.cfg.PersistPartialResults && c.sink != nil && !errors.Is(cause, errSaveFailed) {
		if err := c.sink.SaveTrainingSession(context.WithoutCancel(ctx), result); err != nil {
			c.logger.Warnf("Failed to persist partial results: %v", err)
		}
	}
	return result, cause
}

// Stop asks a running session to end after the current cycle. Called before
// Run, it makes the next Run stop before its first cycle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.stopRequested = true
	}
	c.state.Active = false
	c.mu.Unlock()
	c.observer.SetActive(false)
}

// State returns a copy of the running tally.
func (c *Controller) State() types.TrainingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRunning {
		return ErrAlreadyRunning
	}
	c.state = types.NewTrainingState(c.cfg.Policy.PlateauWindow)
	c.state.Active = !c.stopRequested
	c.stopRequested = false
	c.phase = PhaseRunning
	c.observer.SetActive(c.state.Active)
	return nil
}

func (c *Controller) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active
}

func (c *Controller) setActive(active bool) {
	c.mu.Lock()
	c.state.Active = active
	c.mu.Unlock()
	c.observer.SetActive(active)
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}
