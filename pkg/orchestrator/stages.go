package orchestrator

import (
	"context"

	"github.com/samogod/mentorloop/pkg/types"
)

// outcome carries a stage's value plus whether it fell back after a failure.
type outcome[T any] struct {
	value    T
	degraded bool
}

func (e *CycleExecutor) fetchQuestions(ctx context.Context, count int) outcome[[]types.Question] {
	if e.Questions == nil {
		return outcome[[]types.Question]{}
	}
	questions, err := e.Questions.GenerateQuestions(ctx, count, e.Topic)
	if err != nil {
		e.logger().Warnf("Question generation failed: %v", err)
		e.observer().ObserveDegraded(StageQuestions)
		return outcome[[]types.Question]{degraded: true}
	}

	valid := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			e.logger().Debugf("Dropping invalid question: %v", err)
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) > count {
		valid = valid[:count]
	}
	return outcome[[]types.Question]{value: valid}
}

func (e *CycleExecutor) answer(ctx context.Context, q types.Question) outcome[string] {
	answer, err := e.Answerer.GenerateAnswer(ctx, q)
	if err != nil {
		e.logger().Warnf("Student failed to answer %s: %v", q.ID, err)
		e.observer().ObserveDegraded(StageAnswer)
		return outcome[string]{degraded: true}
	}
	return outcome[string]{value: answer}
}

func (e *CycleExecutor) grade(ctx context.Context, q types.Question, answer string) outcome[types.Evaluation] {
	evaluation, err := e.Grader.EvaluateResponse(ctx, q, answer)
	if err != nil {
		e.logger().Warnf("Evaluation of %s failed: %v", q.ID, err)
		e.observer().ObserveDegraded(StageEvaluation)
		return outcome[types.Evaluation]{degraded: true}
	}
	return outcome[types.Evaluation]{value: evaluation}
}

func (e *CycleExecutor) correct(ctx context.Context, q types.Question, wrongAnswer, feedback string) outcome[bool] {
	applied, err := e.Corrector.ApplyCorrection(ctx, q, wrongAnswer, feedback)
	if err != nil {
		e.logger().Warnf("Correction for %s failed: %v", q.ID, err)
		e.observer().ObserveDegraded(StageCorrection)
		return outcome[bool]{degraded: true}
	}
	return outcome[bool]{value: applied}
}
