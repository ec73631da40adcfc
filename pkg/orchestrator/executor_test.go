package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteMixedCycle(t *testing.T) {
	obs := newCountingObserver()
	corrector := &scriptedCorrector{succeed: map[string]bool{"q2": true, "q4": true}}
	e := &CycleExecutor{
		Questions: &scriptedSource{batches: [][]types.Question{batch("q", 5)}},
		Answerer:  &scriptedAnswerer{},
		Grader:    &scriptedGrader{correct: map[string]bool{"q1": true, "q3": true}},
		Corrector: corrector,
		Observer:  obs,
		Logger:    quietLogger(),
	}

	result, err := e.Execute(context.Background(), 0, 5)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CycleNumber)
	assert.Equal(t, 5, result.QuestionsProcessed)
	assert.Equal(t, 2, result.CorrectAnswers)
	assert.Equal(t, 2, result.ImprovementsMade)
	assert.Equal(t, 0, result.Degraded)
	assert.InDelta(t, 0.4, result.Metrics.Accuracy, 1e-9)
	assert.InDelta(t, 0.4, result.Metrics.ImprovementRate, 1e-9)
	assert.InDelta(t, 2.0/3.0, result.Metrics.LearningEfficiency, 1e-9)

	assert.Equal(t, "feedback for q5", corrector.feedback["q5"])
	assert.NotContains(t, corrector.feedback, "q1")
	assert.Equal(t, 2, obs.questions[true])
	assert.Equal(t, 3, obs.questions[false])
	assert.Equal(t, 2, obs.corrections[true])
	assert.Equal(t, 1, obs.corrections[false])
}

func TestExecuteZeroQuestions(t *testing.T) {
	tests := []struct {
		name     string
		source   *scriptedSource
		degraded int
	}{
		{"empty batch", &scriptedSource{}, 0},
		{"source failure", &scriptedSource{err: errors.New("quota exceeded")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &CycleExecutor{
				Questions: tt.source,
				Answerer:  &scriptedAnswerer{},
				Grader:    &scriptedGrader{},
				Corrector: &scriptedCorrector{},
				Logger:    quietLogger(),
			}

			result, err := e.Execute(context.Background(), 3, 10)
			require.NoError(t, err)
			assert.Equal(t, 3, result.CycleNumber)
			assert.Zero(t, result.QuestionsProcessed)
			assert.Zero(t, result.CorrectAnswers)
			assert.Zero(t, result.ImprovementsMade)
			assert.Equal(t, tt.degraded, result.Degraded)
			assert.Equal(t, 0.0, result.Metrics.Accuracy)
			assert.Equal(t, 0.0, result.Metrics.ImprovementRate)
			assert.Equal(t, 0.0, result.Metrics.LearningEfficiency)
		})
	}
}

func TestExecuteDegradedQuestions(t *testing.T) {
	obs := newCountingObserver()
	corrector := &scriptedCorrector{all: true, fail: map[string]bool{"q4": true}}
	e := &CycleExecutor{
		Questions: &scriptedSource{batches: [][]types.Question{batch("q", 5)}},
		Answerer:  &scriptedAnswerer{fail: map[string]bool{"q1": true}},
		Grader:    &scriptedGrader{correct: map[string]bool{"q2": true}, fail: map[string]bool{"q3": true}},
		Corrector: corrector,
		Observer:  obs,
		Logger:    quietLogger(),
	}

	result, err := e.Execute(context.Background(), 1, 5)
	require.NoError(t, err)

	// q1 no answer, q2 correct, q3 ungraded, q4 correction failed, q5 corrected
	assert.Equal(t, 5, result.QuestionsProcessed)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 1, result.ImprovementsMade)
	assert.Equal(t, 3, result.Degraded)
	assert.NotContains(t, corrector.feedback, "q1")
	assert.NotContains(t, corrector.feedback, "q3")

	assert.Equal(t, 1, obs.degraded[StageAnswer])
	assert.Equal(t, 1, obs.degraded[StageEvaluation])
	assert.Equal(t, 1, obs.degraded[StageCorrection])
}

func TestExecuteDropsInvalidAndExtraQuestions(t *testing.T) {
	questions := append(batch("q", 3), types.Question{ID: "blank"}, types.Question{Text: "no id"})
	answerer := &scriptedAnswerer{}
	e := &CycleExecutor{
		Questions: &scriptedSource{batches: [][]types.Question{questions}},
		Answerer:  answerer,
		Grader:    &scriptedGrader{all: true},
		Corrector: &scriptedCorrector{},
		Logger:    quietLogger(),
	}

	result, err := e.Execute(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.QuestionsProcessed)
	assert.Equal(t, []string{"q1", "q2", "q3"}, answerer.seen)
}

func TestExecuteStopsBetweenQuestionsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	answerer := &scriptedAnswerer{}
	grader := &cancellingGrader{cancelOn: "q2", cancel: cancel}
	e := &CycleExecutor{
		Questions: &scriptedSource{batches: [][]types.Question{batch("q", 5)}},
		Answerer:  answerer,
		Grader:    grader,
		Corrector: &scriptedCorrector{all: true},
		Logger:    quietLogger(),
	}

	result, err := e.Execute(ctx, 0, 5)
	require.ErrorIs(t, err, context.Canceled)

	// q2 was in flight when cancelled and still completes, including its correction
	assert.Equal(t, []string{"q1", "q2"}, answerer.seen)
	assert.Equal(t, 2, result.QuestionsProcessed)
	assert.Equal(t, 2, result.ImprovementsMade)
	assert.False(t, grader.sawCancelled)
}

type cancellingGrader struct {
	cancelOn     string
	cancel       context.CancelFunc
	sawCancelled bool
}

func (g *cancellingGrader) EvaluateResponse(ctx context.Context, q types.Question, _ string) (types.Evaluation, error) {
	if ctx.Err() != nil {
		g.sawCancelled = true
	}
	if q.ID == g.cancelOn {
		g.cancel()
	}
	return types.Evaluation{QuestionID: q.ID, Feedback: "wrong"}, nil
}

func TestGradeFailureCarriesNoVerdict(t *testing.T) {
	obs := newCountingObserver()
	e := &CycleExecutor{
		Grader:   &scriptedGrader{fail: map[string]bool{"q1": true}},
		Observer: obs,
		Logger:   quietLogger(),
	}

	out := e.grade(context.Background(), types.Question{ID: "q1", Text: "x"}, "answer")
	assert.True(t, out.degraded)
	assert.Equal(t, types.Evaluation{}, out.value)
	assert.Equal(t, 1, obs.degraded[StageEvaluation])
}
