package teacher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/google/uuid"
)

var DebugLog func(string, ...interface{})

// Teacher generates questions and grades the student's answers through a
// chat model provider.
type Teacher struct {
	provider   Provider
	topics     []string
	difficulty string
	pick       func(n int) int

	questionsGenerated atomic.Int64
	evaluations        atomic.Int64
	failures           atomic.Int64
}

type Stats struct {
	Provider           string `json:"provider"`
	QuestionsGenerated int64  `json:"questions_generated"`
	Evaluations        int64  `json:"evaluations"`
	Failures           int64  `json:"failures"`
}

func New(provider Provider, cfg *config.Teacher) *Teacher {
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = []string{"general knowledge"}
	}
	difficulty := cfg.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	return &Teacher{
		provider:   provider,
		topics:     topics,
		difficulty: difficulty,
		pick:       rand.IntN,
	}
}

type questionRecord struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
	Topic          string `json:"topic"`
	Difficulty     string `json:"difficulty"`
}

type questionReply struct {
	Questions []questionRecord `json:"questions"`
}

// GenerateQuestions asks for count questions on topic, or on a random
// configured topic when topic is empty. Records without text are dropped
// and the list never exceeds count.
func (t *Teacher) GenerateQuestions(ctx context.Context, count int, topic string) ([]types.Question, error) {
	if count <= 0 {
		return nil, nil
	}
	if topic == "" {
		topic = t.topics[t.pick(len(t.topics))]
	}

	raw, err := t.provider.Complete(ctx, questionSystemPrompt, questionPrompt(count, topic, t.difficulty))
	if err != nil {
		t.failures.Add(1)
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	var reply questionReply
	if err := decodeJSON(raw, &reply); err != nil {
		t.failures.Add(1)
		return nil, fmt.Errorf("failed to parse generated questions: %w", err)
	}

	now := time.Now()
	questions := make([]types.Question, 0, len(reply.Questions))
	for _, rec := range reply.Questions {
		text := strings.TrimSpace(rec.Question)
		if text == "" {
			continue
		}
		q := types.Question{
			ID:             rec.ID,
			Text:           text,
			ExpectedAnswer: strings.TrimSpace(rec.ExpectedAnswer),
			Topic:          rec.Topic,
			Difficulty:     rec.Difficulty,
			CreatedAt:      now,
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Topic == "" {
			q.Topic = topic
		}
		if q.Difficulty == "" {
			q.Difficulty = t.difficulty
		}
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}

	if DebugLog != nil {
		DebugLog("teacher generated %d/%d questions on %s", len(questions), count, topic)
	}

	t.questionsGenerated.Add(int64(len(questions)))
	return questions, nil
}

type evaluationReply struct {
	IsCorrect        bool     `json:"is_correct"`
	Score            float64  `json:"score"`
	Feedback         string   `json:"feedback"`
	CorrectAnswer    string   `json:"correct_answer"`
	ImprovementAreas []string `json:"improvement_areas"`
}

func (t *Teacher) EvaluateResponse(ctx context.Context, q types.Question, answer string) (types.Evaluation, error) {
	raw, err := t.provider.Complete(ctx, evaluationSystemPrompt, evaluationPrompt(q.Text, q.ExpectedAnswer, answer))
	if err != nil {
		t.failures.Add(1)
		return types.Evaluation{}, fmt.Errorf("failed to evaluate answer to %s: %w", q.ID, err)
	}

	var reply evaluationReply
	if err := decodeJSON(raw, &reply); err != nil {
		t.failures.Add(1)
		return types.Evaluation{}, fmt.Errorf("failed to parse evaluation of %s: %w", q.ID, err)
	}

	t.evaluations.Add(1)
	return types.Evaluation{
		QuestionID:       q.ID,
		IsCorrect:        reply.IsCorrect,
		Score:            types.ClampScore(reply.Score),
		Feedback:         strings.TrimSpace(reply.Feedback),
		CorrectAnswer:    strings.TrimSpace(reply.CorrectAnswer),
		ImprovementAreas: reply.ImprovementAreas,
		Timestamp:        time.Now(),
	}, nil
}

func (t *Teacher) VerifyConnection(ctx context.Context) error {
	if err := t.provider.Ping(ctx); err != nil {
		return fmt.Errorf("teacher %s: %w", t.provider.Name(), err)
	}
	return nil
}

func (t *Teacher) Stats() Stats {
	return Stats{
		Provider:           t.provider.Name(),
		QuestionsGenerated: t.questionsGenerated.Load(),
		Evaluations:        t.evaluations.Load(),
		Failures:           t.failures.Load(),
	}
}

func (t *Teacher) Cleanup() error {
	return t.provider.Close()
}
