package teacher

import (
	"context"
	"fmt"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/session"
)

// Provider is a chat model that answers with a JSON document.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

func NewProvider(ctx context.Context, cfg *config.Teacher) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		sess := session.New(time.Duration(cfg.Timeout) * time.Second)
		return NewOpenAI(cfg, sess), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown teacher provider: %s", cfg.Provider)
	}
}
