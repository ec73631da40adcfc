package orchestrator

import (
	"context"
	"time"

	"github.com/samogod/mentorloop/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	StageQuestions  = "questions"
	StageAnswer     = "answer"
	StageEvaluation = "evaluation"
	StageCorrection = "correction"
)

// CycleExecutor runs one batch of questions through answer, grade and
// correct, strictly one question at a time.
type CycleExecutor struct {
	Questions QuestionSource
	Answerer  Answerer
	Grader    Grader
	Corrector Corrector
	Observer  Observer
	Logger    *logrus.Logger

	// Topic is passed to the question source; empty lets it choose.
	Topic string
}

// Execute never fails because of a collaborator. The only error it returns is
// ctx's, observed between questions, together with the counts gathered so far.
func (e *CycleExecutor) Execute(ctx context.Context, cycleNumber, batchSize int) (types.CycleResult, error) {
	obs := e.observer()
	result := types.CycleResult{
		CycleNumber: cycleNumber,
		StartedAt:   time.Now(),
	}

	e.logger().Infof("Starting cycle %d", cycleNumber)

	questions := e.fetchQuestions(ctx, batchSize)
	if questions.degraded {
		result.Degraded++
	}

	for _, q := range questions.value {
		if err := ctx.Err(); err != nil {
			result.Metrics = result.Recompute()
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}

		// a started question runs to completion even if ctx is cancelled meanwhile
		qctx := context.WithoutCancel(ctx)
		correct, improved, degraded := e.processQuestion(qctx, q)

		result.QuestionsProcessed++
		if correct {
			result.CorrectAnswers++
		} else if improved {
			result.ImprovementsMade++
		}
		if degraded {
			result.Degraded++
		}
		obs.ObserveQuestion(correct)
	}

	result.Metrics = result.Recompute()
	result.Duration = time.Since(result.StartedAt)

	e.logger().Infof("Cycle %d completed: %d/%d correct, %d corrections applied",
		cycleNumber, result.CorrectAnswers, result.QuestionsProcessed, result.ImprovementsMade)

	return result, nil
}

func (e *CycleExecutor) processQuestion(ctx context.Context, q types.Question) (correct, improved, degraded bool) {
	// any failed step makes the question a wrong, zero-score answer with no correction
	answer := e.answer(ctx, q)
	if answer.degraded {
		return false, false, true
	}

	evaluation := e.grade(ctx, q, answer.value)
	if evaluation.degraded {
		return false, false, true
	}
	if evaluation.value.IsCorrect {
		return true, false, false
	}

	correction := e.correct(ctx, q, answer.value, evaluation.value.Feedback)
	e.observer().ObserveCorrection(correction.value)
	return false, correction.value, correction.degraded
}

func (e *CycleExecutor) observer() Observer {
	if e.Observer == nil {
		return nopObserver{}
	}
	return e.Observer
}

func (e *CycleExecutor) logger() *logrus.Logger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}
