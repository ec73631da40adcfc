package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samogod/mentorloop/pkg/types"
)

var DebugLog func(string, ...interface{})

const filePrefix = "training_session_"

type Sink interface {
	SaveTrainingSession(ctx context.Context, result *types.TrainingResult) error
}

// JSONSink writes each session to its own file in dir.
type JSONSink struct {
	dir string
	now func() time.Time
}

func NewJSONSink(dir string) *JSONSink {
	return &JSONSink{dir: dir, now: time.Now}
}

func (s *JSONSink) SaveTrainingSession(_ context.Context, result *types.TrainingResult) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal training result: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%s.json", filePrefix, s.now().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if DebugLog != nil {
		DebugLog("training session written to %s", path)
	}
	return nil
}

// LoadSessions reads saved sessions from dir, newest first. Unreadable files
// are skipped.
func LoadSessions(dir string, limit int) ([]types.TrainingResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var sessions []types.TrainingResult
	for _, name := range names {
		if limit > 0 && len(sessions) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var r types.TrainingResult
		if err := json.Unmarshal(data, &r); err != nil {
			if DebugLog != nil {
				DebugLog("skipping %s: %v", name, err)
			}
			continue
		}
		sessions = append(sessions, r)
	}
	return sessions, nil
}

// MultiSink fans a session out to every sink. All sinks run even when one
// fails; the first error is returned.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) SaveTrainingSession(ctx context.Context, result *types.TrainingResult) error {
	var first error
	for _, s := range m.sinks {
		if err := s.SaveTrainingSession(ctx, result); err != nil {
			if DebugLog != nil {
				DebugLog("sink %T failed: %v", s, err)
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
