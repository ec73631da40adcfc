package teacher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samogod/mentorloop/pkg/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGemini(ctx context.Context, cfg *config.Teacher) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (g *Gemini) Name() string {
	return config.ProviderGemini
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &g.temperature,
		MaxOutputTokens:  &g.maxTokens,
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return txt, nil
}

func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := g.client.GenerativeModel(g.model).Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s not reachable: %w", g.model, err)
	}
	return nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
