package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetrics(t *testing.T) {
	tests := []struct {
		name         string
		processed    int
		correct      int
		improvements int
		want         PerformanceMetrics
	}{
		{
			name:         "mixed cycle",
			processed:    5,
			correct:      2,
			improvements: 2,
			want:         PerformanceMetrics{Accuracy: 0.4, ImprovementRate: 0.4, LearningEfficiency: 2.0 / 3.0},
		},
		{
			name: "empty cycle",
			want: PerformanceMetrics{},
		},
		{
			name:      "all correct",
			processed: 4,
			correct:   4,
			want:      PerformanceMetrics{Accuracy: 1},
		},
		{
			name:         "all wrong all corrected",
			processed:    3,
			improvements: 3,
			want:         PerformanceMetrics{ImprovementRate: 1, LearningEfficiency: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMetrics(tt.processed, tt.correct, tt.improvements)
			assert.InDelta(t, tt.want.Accuracy, got.Accuracy, 1e-9)
			assert.InDelta(t, tt.want.ImprovementRate, got.ImprovementRate, 1e-9)
			assert.InDelta(t, tt.want.LearningEfficiency, got.LearningEfficiency, 1e-9)
		})
	}
}

func TestComputeMetrics_Bounds(t *testing.T) {
	for processed := 0; processed <= 6; processed++ {
		for correct := 0; correct <= processed; correct++ {
			for improvements := 0; improvements <= processed-correct; improvements++ {
				m := ComputeMetrics(processed, correct, improvements)
				for _, v := range []float64{m.Accuracy, m.ImprovementRate, m.LearningEfficiency} {
					assert.GreaterOrEqual(t, v, 0.0)
					assert.LessOrEqual(t, v, 1.0)
				}
			}
		}
	}
}

func TestCycleResult_RecomputeIsStable(t *testing.T) {
	c := CycleResult{QuestionsProcessed: 7, CorrectAnswers: 3, ImprovementsMade: 2}
	c.Metrics = c.Recompute()

	assert.Equal(t, c.Metrics, c.Recompute())
	assert.Equal(t, 4, c.WrongAnswers())
}

func TestQuestion_Validate(t *testing.T) {
	require.NoError(t, Question{ID: "q1", Text: "What is 2+2?"}.Validate())
	assert.ErrorIs(t, Question{Text: "x"}.Validate(), ErrMissingID)
	assert.ErrorIs(t, Question{ID: "q1", Text: "  "}.Validate(), ErrMissingText)
}

func TestDegradedEvaluation(t *testing.T) {
	e := DegradedEvaluation("q9", errors.New("timeout"))

	assert.Equal(t, "q9", e.QuestionID)
	assert.False(t, e.IsCorrect)
	assert.Zero(t, e.Score)
	assert.Contains(t, e.Feedback, "timeout")
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.5))
	assert.Equal(t, 1.0, ClampScore(4))
	assert.Equal(t, 0.25, ClampScore(0.25))
}
