package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ChatCompletionConfig configures the generic chat-completion backend.
type ChatCompletionConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Fallback   string
	Logger     *zap.Logger
}

// chatAPI is one chat-completion call. An empty string with a nil error
// means the provider answered but produced no usable content.
type chatAPI interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// ChatCompletion summarizes through an OpenAI-compatible chat-completion
// endpoint (OpenRouter). Client-side 4xx responses are treated as
// transient and retried like everything else; after exhausting retries
// the fallback is returned.
type ChatCompletion struct {
	cfg ChatCompletionConfig
	log *zap.Logger
	api chatAPI

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewChatCompletion creates the chat-completion backed summarizer.
func NewChatCompletion(cfg ChatCompletionConfig) *ChatCompletion {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &ChatCompletion{
		cfg:   cfg,
		log:   cfg.Logger,
		api:   &openaiChatAdapter{client: openai.NewClientWithConfig(clientCfg)},
		sleep: sleepContext,
	}
}

func newChatCompletionWithAPI(api chatAPI, cfg ChatCompletionConfig) *ChatCompletion {
	s := NewChatCompletion(cfg)
	s.api = api
	return s
}

// Summarize never fails; all error paths degrade to the fallback text.
func (s *ChatCompletion) Summarize(ctx context.Context, text string) string {
	prompt := buildPrompt(text)
	attempts := s.cfg.MaxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := s.api.Complete(ctx, s.cfg.Model, prompt)
		if err == nil {
			if summary := strings.TrimSpace(content); summary != "" {
				return summary
			}
			s.log.Warn("summary generation returned empty content")
			return s.cfg.Fallback
		}

		if attempt >= attempts {
			s.log.Warn("summary generation failed",
				zap.Int("attempts", attempts),
				zap.Error(err))
			return s.cfg.Fallback
		}

		if status := httpStatus(err); status >= 400 && status < 500 {
			s.log.Warn("summary provider client error",
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		} else {
			s.log.Warn("summary generation error",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		}
		if !s.sleep(ctx, expBackoff(attempt)) {
			return s.cfg.Fallback
		}
	}

	return s.cfg.Fallback
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

type openaiChatAdapter struct {
	client *openai.Client
}

func (a *openaiChatAdapter) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
