package orchestrator

import (
	"context"

	"github.com/samogod/mentorloop/pkg/types"
)

type QuestionSource interface {
	GenerateQuestions(ctx context.Context, count int, topic string) ([]types.Question, error)
}

type Answerer interface {
	GenerateAnswer(ctx context.Context, q types.Question) (string, error)
}

type Grader interface {
	EvaluateResponse(ctx context.Context, q types.Question, answer string) (types.Evaluation, error)
}

// Corrector reports whether the student actually adjusted after feedback.
type Corrector interface {
	ApplyCorrection(ctx context.Context, q types.Question, wrongAnswer, feedback string) (bool, error)
}

// Benchmark captures the baseline and final snapshots on a fixed question set.
type Benchmark interface {
	RunBaselineEvaluation(ctx context.Context) (*types.Snapshot, error)
	RunFinalEvaluation(ctx context.Context, baseline *types.Snapshot) (*types.Snapshot, error)
}

type ResultSink interface {
	SaveTrainingSession(ctx context.Context, result *types.TrainingResult) error
}

// Observer receives progress events; pkg/metrics provides the Prometheus one.
type Observer interface {
	ObserveQuestion(correct bool)
	ObserveCorrection(applied bool)
	ObserveDegraded(stage string)
	ObserveCycle(cycle types.CycleResult, windowMean float64)
	SetActive(active bool)
}

type nopObserver struct{}

func (nopObserver) ObserveQuestion(bool)                    {}
func (nopObserver) ObserveCorrection(bool)                  {}
func (nopObserver) ObserveDegraded(string)                  {}
func (nopObserver) ObserveCycle(types.CycleResult, float64) {}
func (nopObserver) SetActive(bool)                          {}
