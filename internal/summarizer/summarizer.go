// Package summarizer produces a short natural-language synopsis of a
// document. Summarization is best-effort enrichment: every failure path
// degrades to the configured fallback text, never to an error, so an
// unavailable provider cannot block indexing.
package summarizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/config"
)

const (
	// maxInputChars bounds the document text included in the prompt.
	maxInputChars = 30000

	temperature     = 0.1
	maxOutputTokens = 2048

	// skippedPlaceholder is returned when summarization is disabled.
	skippedPlaceholder = "-"
)

// Summarizer turns document text into a short synopsis. Implementations
// never return an error; degraded outcomes yield a fallback string.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

// outcome is the explicit result variant of one generation call. Blocked
// and empty responses are expected terminal outcomes, not errors.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeBlocked
	outcomeEmpty
)

type generation struct {
	outcome outcome
	text    string
}

// FromConfig selects the backend once at startup.
func FromConfig(cfg *config.Config, log *zap.Logger) Summarizer {
	if cfg.SkipSummary {
		return Disabled{}
	}
	if cfg.SummaryProvider == config.SummaryProviderOpenRouter {
		return NewChatCompletion(ChatCompletionConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			Model:      cfg.OpenRouterModel,
			MaxRetries: cfg.SummaryMaxRetries,
			Fallback:   cfg.SummaryFallbackText,
			Logger:     log,
		})
	}
	return NewGenerative(GenerativeConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.SummaryModel,
		MaxRetries: cfg.SummaryMaxRetries,
		Fallback:   cfg.SummaryFallbackText,
		Logger:     log,
	})
}

// Disabled is the kill switch: summarization always returns a fixed
// placeholder, saving provider cost and latency.
type Disabled struct{}

func (Disabled) Summarize(context.Context, string) string {
	return skippedPlaceholder
}

// buildPrompt assembles the two-section structured prompt shared by both
// backends: an overview paragraph followed by a bulleted detail section.
func buildPrompt(text string) string {
	runes := []rune(text)
	if len(runes) > maxInputChars {
		runes = runes[:maxInputChars]
	}
	return fmt.Sprintf(
		"Analisis dokumen berikut dan susun ringkasan berbahasa Indonesia dengan struktur berikut:\n\n"+
			"1. Paragraf Pembuka: Jelaskan secara garis besar apa isi dokumen ini dan tujuannya\n"+
			"2. Detail: Sajikan poin-poin penting seperti jenis dokumen, pihak terkait, tanggal, "+
			"angka penting, dan pokok isi dengan format markdown (bullet points, headings, dll jika relevan)\n\n"+
			"TEKS DOKUMEN:\n%s\n",
		string(runes),
	)
}

func expBackoff(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt)) + rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
