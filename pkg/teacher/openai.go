package teacher

import (
	"context"
	"fmt"
	"strings"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/session"

	"github.com/sashabaranov/go-openai"
)

type OpenAI struct {
	client      *openai.Client
	sess        *session.Session
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAI(cfg *config.Teacher, sess *session.Session) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = sess.Client

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		sess:        sess,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (o *OpenAI) Name() string {
	return config.ProviderOpenAI
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	if DebugLog != nil {
		DebugLog("openai %s: finish_reason=%s, tokens=%d", o.model, resp.Choices[0].FinishReason, resp.Usage.TotalTokens)
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Ping(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	return nil
}

func (o *OpenAI) Close() error {
	o.sess.Close()
	return nil
}
