package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/sirupsen/logrus"
)

var ErrNoQuestions = errors.New("no evaluation questions available")

type QuestionSource interface {
	GenerateQuestions(ctx context.Context, count int, topic string) ([]types.Question, error)
}

type Answerer interface {
	GenerateAnswer(ctx context.Context, q types.Question) (string, error)
}

type Grader interface {
	EvaluateResponse(ctx context.Context, q types.Question, answer string) (types.Evaluation, error)
}

// Evaluator measures the student on a held-out question set. The set is
// generated on first use and reused so baseline and final numbers compare
// like with like.
type Evaluator struct {
	questions QuestionSource
	answerer  Answerer
	grader    Grader
	count     int
	topic     string
	logger    *logrus.Logger

	mu  sync.Mutex
	set []types.Question
}

func New(questions QuestionSource, answerer Answerer, grader Grader, count int, topic string, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Evaluator{
		questions: questions,
		answerer:  answerer,
		grader:    grader,
		count:     count,
		topic:     topic,
		logger:    logger,
	}
}

func (e *Evaluator) RunBaselineEvaluation(ctx context.Context) (*types.Snapshot, error) {
	e.logger.Info("Running baseline evaluation")
	snap, err := e.evaluate(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Infof("Baseline: accuracy %.2f%%, average score %.2f on %d questions",
		snap.Accuracy*100, snap.AverageScore, snap.QuestionsEvaluated)
	return snap, nil
}

// RunFinalEvaluation scores the student on the same set as the baseline.
// Improvement is the accuracy gained since baseline.
func (e *Evaluator) RunFinalEvaluation(ctx context.Context, baseline *types.Snapshot) (*types.Snapshot, error) {
	e.logger.Info("Running final evaluation")
	snap, err := e.evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if baseline != nil {
		snap.Improvement = snap.Accuracy - baseline.Accuracy
	}
	e.logger.Infof("Final: accuracy %.2f%% (%+.2f%% vs baseline)", snap.Accuracy*100, snap.Improvement*100)
	return snap, nil
}

// Questions returns the held-out set, generating it if needed.
func (e *Evaluator) Questions(ctx context.Context) ([]types.Question, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.set) > 0 {
		return e.set, nil
	}

	questions, err := e.questions.GenerateQuestions(ctx, e.count, e.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to generate evaluation set: %w", err)
	}

	valid := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if q.Validate() == nil {
			valid = append(valid, q)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoQuestions
	}

	e.set = valid
	return e.set, nil
}

func (e *Evaluator) evaluate(ctx context.Context) (*types.Snapshot, error) {
	questions, err := e.Questions(ctx)
	if err != nil {
		return nil, err
	}

	var correct int
	var totalScore float64
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		answer, err := e.answerer.GenerateAnswer(ctx, q)
		if err != nil {
			e.logger.Warnf("Evaluation answer for %s failed: %v", q.ID, err)
			continue
		}

		ev, err := e.grader.EvaluateResponse(ctx, q, answer)
		if err != nil {
			e.logger.Warnf("Evaluation grading for %s failed: %v", q.ID, err)
			ev = types.DegradedEvaluation(q.ID, err)
		}

		if ev.IsCorrect {
			correct++
		}
		totalScore += types.ClampScore(ev.Score)
	}

	n := len(questions)
	return &types.Snapshot{
		Accuracy:           float64(correct) / float64(n),
		AverageScore:       totalScore / float64(n),
		QuestionsEvaluated: n,
		CapturedAt:         time.Now(),
	}, nil
}
