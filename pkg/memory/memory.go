package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"
)

var DebugLog func(string, ...interface{})

// Store keeps past corrections so the student can be reminded of them.
type Store interface {
	Add(ctx context.Context, c types.Correction) error
	// Recent returns up to n corrections, newest first. Corrections for topic
	// come before the rest.
	Recent(ctx context.Context, topic string, n int) ([]types.Correction, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// New picks the backend named in cfg.
func New(ctx context.Context, cfg *config.Memory) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewInMemory(cfg.Capacity), nil
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown memory backend: %s", cfg.Backend)
	}
}

// InMemory is a bounded store that drops the oldest correction when full.
type InMemory struct {
	mu       sync.RWMutex
	items    []types.Correction
	capacity int
}

func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = 100
	}
	return &InMemory{capacity: capacity}
}

func (m *InMemory) Add(_ context.Context, c types.Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, c)
	if over := len(m.items) - m.capacity; over > 0 {
		m.items = append(m.items[:0], m.items[over:]...)
	}
	return nil
}

func (m *InMemory) Recent(_ context.Context, topic string, n int) ([]types.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	newestFirst := make([]types.Correction, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, m.items[i])
	}
	return pickRecent(newestFirst, topic, n), nil
}

func (m *InMemory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *InMemory) Close() error {
	return nil
}

// pickRecent expects items newest first.
func pickRecent(items []types.Correction, topic string, n int) []types.Correction {
	if n <= 0 || len(items) == 0 {
		return nil
	}

	out := make([]types.Correction, 0, n)
	var rest []types.Correction
	for _, c := range items {
		if topic != "" && c.Topic == topic {
			if len(out) < n {
				out = append(out, c)
			}
			continue
		}
		rest = append(rest, c)
	}
	for _, c := range rest {
		if len(out) >= n {
			break
		}
		out = append(out, c)
	}
	return out
}
