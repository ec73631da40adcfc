package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrMissingID   = errors.New("missing id")
	ErrMissingText = errors.New("missing text")
)

type Question struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	ExpectedAnswer string    `json:"expected_answer,omitempty"`
	Topic          string    `json:"topic"`
	Difficulty     string    `json:"difficulty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question %s: %w", q.ID, ErrMissingText)
	}
	return nil
}

type Evaluation struct {
	QuestionID       string    `json:"question_id"`
	IsCorrect        bool      `json:"is_correct"`
	Score            float64   `json:"score"`
	Feedback         string    `json:"feedback"`
	CorrectAnswer    string    `json:"correct_answer,omitempty"`
	ImprovementAreas []string  `json:"improvement_areas,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// DegradedEvaluation is the verdict used when grading itself failed.
func DegradedEvaluation(questionID string, err error) Evaluation {
	feedback := "evaluation unavailable"
	if err != nil {
		feedback = fmt.Sprintf("evaluation failed: %v", err)
	}
	return Evaluation{
		QuestionID: questionID,
		IsCorrect:  false,
		Score:      0,
		Feedback:   feedback,
		Timestamp:  time.Now(),
	}
}

func ClampScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

type PerformanceMetrics struct {
	Accuracy           float64 `json:"accuracy"`
	ImprovementRate    float64 `json:"improvement_rate"`
	LearningEfficiency float64 `json:"learning_efficiency"`
}

// ComputeMetrics derives the per-cycle rates from raw counts. A cycle with no
// processed questions yields zeros rather than NaN.
func ComputeMetrics(processed, correct, improvements int) PerformanceMetrics {
	var m PerformanceMetrics
	if processed > 0 {
		m.Accuracy = float64(correct) / float64(processed)
		m.ImprovementRate = float64(improvements) / float64(processed)
	}
	m.LearningEfficiency = float64(improvements) / float64(max(1, processed-correct))
	return m
}

type CycleResult struct {
	CycleNumber        int                `json:"cycle_number"`
	QuestionsProcessed int                `json:"questions_processed"`
	CorrectAnswers     int                `json:"correct_answers"`
	ImprovementsMade   int                `json:"improvements_made"`
	Degraded           int                `json:"degraded"`
	Metrics            PerformanceMetrics `json:"performance_metrics"`
	StartedAt          time.Time          `json:"started_at"`
	Duration           time.Duration      `json:"duration"`
}

func (c CycleResult) WrongAnswers() int {
	return c.QuestionsProcessed - c.CorrectAnswers
}

// Recompute returns metrics derived from the result's counters.
func (c CycleResult) Recompute() PerformanceMetrics {
	return ComputeMetrics(c.QuestionsProcessed, c.CorrectAnswers, c.ImprovementsMade)
}

// Snapshot is a point-in-time measurement on the held-out evaluation set.
type Snapshot struct {
	Accuracy           float64   `json:"accuracy"`
	AverageScore       float64   `json:"average_score"`
	Improvement        float64   `json:"improvement"`
	QuestionsEvaluated int       `json:"questions_evaluated"`
	CapturedAt         time.Time `json:"captured_at"`
}

type StopReason string

const (
	StopReasonNone          StopReason = ""
	StopReasonLimit         StopReason = "max_cycles"
	StopReasonTargetReached StopReason = "target_reached"
	StopReasonPlateau       StopReason = "plateau"
	StopReasonRequested     StopReason = "requested"
	StopReasonError         StopReason = "error"
)

type TrainingResult struct {
	SessionID           string        `json:"session_id"`
	CyclesCompleted     int           `json:"cycles_completed"`
	Baseline            *Snapshot     `json:"baseline_performance,omitempty"`
	LearningProgression []CycleResult `json:"learning_progression"`
	Final               *Snapshot     `json:"final_evaluation,omitempty"`
	StopReason          StopReason    `json:"stop_reason"`
	Interrupted         bool          `json:"interrupted"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          time.Time     `json:"finished_at"`
}

// Correction is a wrong answer paired with the teacher's feedback.
type Correction struct {
	QuestionID    string    `json:"question_id"`
	Topic         string    `json:"topic"`
	Question      string    `json:"question"`
	WrongAnswer   string    `json:"wrong_answer"`
	Feedback      string    `json:"feedback"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
