package summarizer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenerativeConfig configures the safety-aware Gemini backend.
type GenerativeConfig struct {
	APIKey     string
	Model      string
	MaxRetries int
	Fallback   string
	Logger     *zap.Logger
}

// generativeAPI is one generation call against the provider.
type generativeAPI interface {
	Generate(ctx context.Context, model, prompt string) (generation, error)
}

// Generative summarizes through the Gemini generate-content API. Safety
// blocks and empty candidates are expected outcomes and map straight to
// the fallback; only transient API errors are retried.
type Generative struct {
	cfg GenerativeConfig
	log *zap.Logger

	initOnce sync.Once
	api      generativeAPI
	initErr  error

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewGenerative creates the Gemini-backed summarizer. The provider handle
// is initialized lazily on first use.
func NewGenerative(cfg GenerativeConfig) *Generative {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Generative{
		cfg:   cfg,
		log:   cfg.Logger,
		sleep: sleepContext,
	}
}

func newGenerativeWithAPI(api generativeAPI, cfg GenerativeConfig) *Generative {
	s := NewGenerative(cfg)
	s.initOnce.Do(func() { s.api = api })
	return s
}

func (s *Generative) getAPI(ctx context.Context) (generativeAPI, error) {
	s.initOnce.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			s.initErr = err
			return
		}
		s.api = &genaiGenerateAdapter{client: client}
	})
	if s.initErr != nil {
		return nil, s.initErr
	}
	return s.api, nil
}

// Summarize never fails: blocked, empty, and exhausted-retry outcomes all
// degrade to the configured fallback text.
func (s *Generative) Summarize(ctx context.Context, text string) string {
	api, err := s.getAPI(ctx)
	if err != nil {
		s.log.Warn("summarizer unavailable", zap.Error(err))
		return s.cfg.Fallback
	}

	prompt := buildPrompt(text)
	attempts := s.cfg.MaxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := api.Generate(ctx, s.cfg.Model, prompt)
		if err == nil {
			switch result.outcome {
			case outcomeBlocked:
				s.log.Warn("summary blocked by safety system")
				return s.cfg.Fallback
			case outcomeEmpty:
				s.log.Warn("summary generation returned empty content")
				return s.cfg.Fallback
			default:
				if summary := strings.TrimSpace(result.text); summary != "" {
					return summary
				}
				return s.cfg.Fallback
			}
		}

		if attempt >= attempts {
			s.log.Warn("summary generation failed",
				zap.Int("attempts", attempts),
				zap.Error(err))
			return s.cfg.Fallback
		}

		s.log.Warn("summary generation error",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if !s.sleep(ctx, expBackoff(attempt)) {
			return s.cfg.Fallback
		}
	}

	return s.cfg.Fallback
}

type genaiGenerateAdapter struct {
	client *genai.Client
}

func (a *genaiGenerateAdapter) Generate(ctx context.Context, model, prompt string) (generation, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: maxOutputTokens,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	resp, err := a.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return generation{}, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return generation{outcome: outcomeBlocked}, nil
	}
	if len(resp.Candidates) == 0 {
		return generation{outcome: outcomeBlocked}, nil
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return generation{outcome: outcomeBlocked}, nil
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return generation{outcome: outcomeEmpty}, nil
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return generation{outcome: outcomeEmpty}, nil
	}
	return generation{outcome: outcomeOK, text: text}, nil
}
