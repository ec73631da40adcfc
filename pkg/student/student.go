package student

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/memory"
	"github.com/samogod/mentorloop/pkg/types"
)

var DebugLog func(string, ...interface{})

var ErrEmptyAnswer = errors.New("model produced an empty answer")

const maxHistory = 1000

type HistoryEntry struct {
	QuestionID string    `json:"question_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}

type Stats struct {
	Model              string `json:"model"`
	Loaded             bool   `json:"loaded"`
	QuestionsAnswered  int    `json:"questions_answered"`
	CorrectionsApplied int    `json:"corrections_applied"`
	CorrectionsSkipped int    `json:"corrections_skipped"`
}

// Student is the local model being trained. It answers questions with past
// corrections as context and fine-tunes on the teacher's feedback.
type Student struct {
	runner    Runner
	memory    memory.Store
	cfg       *config.Student
	modelPath string

	mu      sync.Mutex
	loaded  bool
	history []HistoryEntry
	stats   Stats
}

func New(runner Runner, store memory.Store, cfg *config.Student) *Student {
	if store == nil {
		store = memory.NewInMemory(0)
	}
	return &Student{
		runner:    runner,
		memory:    store,
		cfg:       cfg,
		modelPath: cfg.ModelName,
		stats:     Stats{Model: cfg.ModelName},
	}
}

// UseLocalFiles points the bridge at a downloaded copy instead of the model
// name.
func (s *Student) UseLocalFiles(dir string) {
	s.modelPath = dir
}

// VerifyModel loads the model in the bridge and fails if it cannot.
func (s *Student) VerifyModel(ctx context.Context) error {
	_, err := s.runner.Run(ctx, Request{
		Op:        OpLoad,
		ModelName: s.cfg.ModelName,
		ModelPath: s.modelPath,
		Device:    s.cfg.Device,
	})
	if err != nil {
		return fmt.Errorf("failed to load student model %s: %w", s.cfg.ModelName, err)
	}

	s.mu.Lock()
	s.loaded = true
	s.stats.Loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Student) GenerateAnswer(ctx context.Context, q types.Question) (string, error) {
	corrections, err := s.memory.Recent(ctx, q.Topic, s.cfg.ContextCorrections)
	if err != nil {
		if DebugLog != nil {
			DebugLog("answering %s without past corrections: %v", q.ID, err)
		}
		corrections = nil
	}

	prompt := buildPrompt(q, corrections)
	resp, err := s.runner.Run(ctx, Request{
		Op:          OpGenerate,
		ModelPath:   s.modelPath,
		Device:      s.cfg.Device,
		Prompt:      prompt,
		MaxTokens:   s.cfg.MaxAnswerTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to answer %s: %w", q.ID, err)
	}

	answer := cleanAnswer(prompt, resp.Text, s.cfg.MaxAnswerChars)
	if answer == "" {
		return "", fmt.Errorf("question %s: %w", q.ID, ErrEmptyAnswer)
	}

	s.mu.Lock()
	s.stats.QuestionsAnswered++
	s.history = append(s.history, HistoryEntry{
		QuestionID: q.ID,
		Question:   q.Text,
		Answer:     answer,
		Timestamp:  time.Now(),
	})
	if over := len(s.history) - maxHistory; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.mu.Unlock()

	return answer, nil
}

// ApplyCorrection remembers the mistake and runs one fine-tuning step toward
// the reference answer, or the feedback when there is none. It reports
// whether the bridge actually updated the weights.
func (s *Student) ApplyCorrection(ctx context.Context, q types.Question, wrongAnswer, feedback string) (bool, error) {
	correction := types.Correction{
		QuestionID:    q.ID,
		Topic:         q.Topic,
		Question:      q.Text,
		WrongAnswer:   wrongAnswer,
		Feedback:      feedback,
		CorrectAnswer: q.ExpectedAnswer,
		Timestamp:     time.Now(),
	}
	if err := s.memory.Add(ctx, correction); err != nil && DebugLog != nil {
		DebugLog("failed to remember correction for %s: %v", q.ID, err)
	}

	target := strings.TrimSpace(q.ExpectedAnswer)
	if target == "" {
		target = strings.TrimSpace(feedback)
	}
	if target == "" {
		s.skipCorrection()
		return false, nil
	}

	resp, err := s.runner.Run(ctx, Request{
		Op:           OpTrain,
		ModelPath:    s.modelPath,
		Device:       s.cfg.Device,
		Prompt:       trainingText(q, target),
		Target:       target,
		LearningRate: s.cfg.LearningRate,
	})
	if err != nil {
		s.skipCorrection()
		return false, fmt.Errorf("failed to apply correction for %s: %w", q.ID, err)
	}

	if DebugLog != nil {
		DebugLog("correction for %s: applied=%t loss=%.4f", q.ID, resp.Applied, resp.Loss)
	}

	if !resp.Applied {
		s.skipCorrection()
		return false, nil
	}

	s.mu.Lock()
	s.stats.CorrectionsApplied++
	s.mu.Unlock()
	return true, nil
}

func (s *Student) skipCorrection() {
	s.mu.Lock()
	s.stats.CorrectionsSkipped++
	s.mu.Unlock()
}

// SaveModel writes a checkpoint and returns where it landed.
func (s *Student) SaveModel(ctx context.Context) (string, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		return "", nil
	}

	resp, err := s.runner.Run(ctx, Request{
		Op:        OpSave,
		ModelPath: s.modelPath,
		OutputDir: s.cfg.CheckpointDir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save student model: %w", err)
	}
	if resp.Path == "" {
		return s.cfg.CheckpointDir, nil
	}
	return resp.Path, nil
}

// Close stops the model bridge. Unsaved weight updates are lost, so call
// SaveModel first.
func (s *Student) Close() error {
	s.mu.Lock()
	s.loaded = false
	s.stats.Loaded = false
	s.mu.Unlock()

	if c, ok := s.runner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Student) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Student) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}
