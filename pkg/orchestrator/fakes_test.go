package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func batch(prefix string, n int) []types.Question {
	out := make([]types.Question, n)
	for i := range out {
		out[i] = types.Question{ID: fmt.Sprintf("%s%d", prefix, i+1), Text: "question " + prefix}
	}
	return out
}

// scriptedSource serves one batch per call; hook runs before returning.
type scriptedSource struct {
	batches [][]types.Question
	err     error
	calls   int
	hook    func(call int)
}

func (s *scriptedSource) GenerateQuestions(_ context.Context, count int, _ string) ([]types.Question, error) {
	call := s.calls
	s.calls++
	if s.hook != nil {
		s.hook(call)
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	b := s.batches[min(call, len(s.batches)-1)]
	if len(b) > count {
		b = b[:count]
	}
	return b, nil
}

type scriptedAnswerer struct {
	fail  map[string]bool
	panic map[string]bool
	seen  []string
}

func (a *scriptedAnswerer) GenerateAnswer(_ context.Context, q types.Question) (string, error) {
	a.seen = append(a.seen, q.ID)
	if a.panic[q.ID] {
		panic("tensor shape mismatch")
	}
	if a.fail[q.ID] {
		return "", errors.New("generation failed")
	}
	return "answer to " + q.ID, nil
}

type scriptedGrader struct {
	correct map[string]bool
	fail    map[string]bool
	all     bool
}

func (g *scriptedGrader) EvaluateResponse(_ context.Context, q types.Question, _ string) (types.Evaluation, error) {
	if g.fail[q.ID] {
		return types.Evaluation{}, errors.New("teacher unavailable")
	}
	if g.all || g.correct[q.ID] {
		return types.Evaluation{QuestionID: q.ID, IsCorrect: true, Score: 1}, nil
	}
	return types.Evaluation{QuestionID: q.ID, Score: 0.2, Feedback: "feedback for " + q.ID}, nil
}

type scriptedCorrector struct {
	succeed  map[string]bool
	fail     map[string]bool
	all      bool
	feedback map[string]string
}

func (c *scriptedCorrector) ApplyCorrection(_ context.Context, q types.Question, _ string, feedback string) (bool, error) {
	if c.feedback == nil {
		c.feedback = map[string]string{}
	}
	c.feedback[q.ID] = feedback
	if c.fail[q.ID] {
		return false, errors.New("training step failed")
	}
	return c.all || c.succeed[q.ID], nil
}

type fakeBenchmark struct {
	baseline    *types.Snapshot
	final       *types.Snapshot
	baselineErr error
	baselines   int
	finals      int
}

func (b *fakeBenchmark) RunBaselineEvaluation(context.Context) (*types.Snapshot, error) {
	b.baselines++
	if b.baselineErr != nil {
		return nil, b.baselineErr
	}
	if b.baseline == nil {
		return &types.Snapshot{Accuracy: 0.2}, nil
	}
	return b.baseline, nil
}

func (b *fakeBenchmark) RunFinalEvaluation(_ context.Context, baseline *types.Snapshot) (*types.Snapshot, error) {
	b.finals++
	final := &types.Snapshot{Accuracy: 0.5}
	if b.final != nil {
		final = b.final
	}
	if baseline != nil {
		final.Improvement = final.Accuracy - baseline.Accuracy
	}
	return final, nil
}

type fakeSink struct {
	mu    sync.Mutex
	saved []*types.TrainingResult
	err   error
}

func (s *fakeSink) SaveTrainingSession(_ context.Context, r *types.TrainingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.LearningProgression = append([]types.CycleResult(nil), r.LearningProgression...)
	s.saved = append(s.saved, &cp)
	return s.err
}

type countingObserver struct {
	questions   map[bool]int
	corrections map[bool]int
	degraded    map[string]int
	cycles      int
	windowMeans []float64
	active      []bool
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		questions:   map[bool]int{},
		corrections: map[bool]int{},
		degraded:    map[string]int{},
	}
}

func (o *countingObserver) ObserveQuestion(correct bool)   { o.questions[correct]++ }
func (o *countingObserver) ObserveCorrection(applied bool) { o.corrections[applied]++ }
func (o *countingObserver) ObserveDegraded(stage string)   { o.degraded[stage]++ }
func (o *countingObserver) ObserveCycle(_ types.CycleResult, mean float64) {
	o.cycles++
	o.windowMeans = append(o.windowMeans, mean)
}
func (o *countingObserver) SetActive(active bool) { o.active = append(o.active, active) }
