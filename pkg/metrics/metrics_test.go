package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()

	r.ObserveQuestion(true)
	r.ObserveQuestion(false)
	r.ObserveQuestion(false)
	r.ObserveCorrection(true)
	r.ObserveCorrection(false)
	r.ObserveDegraded("answer")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.questions.WithLabelValues("correct")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.questions.WithLabelValues("wrong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.corrections.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.corrections.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.degraded.WithLabelValues("answer")))
}

func TestRecorderObserveCycle(t *testing.T) {
	r := NewRecorder()
	cycle := types.CycleResult{
		CycleNumber:        2,
		QuestionsProcessed: 5,
		CorrectAnswers:     2,
		ImprovementsMade:   2,
		Duration:           3 * time.Second,
	}
	cycle.Metrics = cycle.Recompute()

	r.ObserveCycle(cycle, 0.25)
	r.SetActive(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.currentCycle))
	assert.InDelta(t, 0.4, testutil.ToFloat64(r.accuracy), 1e-9)
	assert.InDelta(t, 0.4, testutil.ToFloat64(r.improvementRate), 1e-9)
	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(r.learningEfficiency), 1e-9)
	assert.Equal(t, 0.25, testutil.ToFloat64(r.plateauWindowMean))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trainingActive))

	r.SetActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.trainingActive))
}

func TestRecorderServe(t *testing.T) {
	r := NewRecorder()
	r.ObserveQuestion(true)

	addr, err := r.Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Shutdown(context.Background())

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `mentorloop_training_questions_total{result="correct"} 1`)
}
