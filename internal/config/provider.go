// Package config resolves process configuration into the components it builds.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// Provider names
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Provider selects and configures the model behind extraction
type Provider struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	GeminiKey string
	Timeout   time.Duration
}

// WithEnvFallbacks fills empty values from the plain ANTHROPIC_* and
// GEMINI_API_KEY variables, read through getenv
func (p Provider) WithEnvFallbacks(getenv func(string) string) Provider {
	if p.Name == "" {
		p.Name = ProviderClaude
	}
	if p.APIKey == "" {
		p.APIKey = getenv("ANTHROPIC_API_KEY")
	}
	if p.BaseURL == "" {
		p.BaseURL = getenv("ANTHROPIC_BASE_URL")
	}
	if p.Model == "" {
		p.Model = getenv("ANTHROPIC_MODEL")
	}
	if p.GeminiKey == "" {
		p.GeminiKey = getenv("GEMINI_API_KEY")
	}
	return p
}

// Extractor is a scanning.Extractor that holds a client to release
type Extractor interface {
	scanning.Extractor
	Close() error
}

// NewExtractor builds the extractor for the configured provider. A missing
// key is logged, not returned: every extraction then fails with MissingCredential.
func NewExtractor(ctx context.Context, p Provider, logger *slog.Logger) (Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch p.Name {
	case ProviderClaude, "":
		if p.APIKey == "" {
			logger.Warn("Anthropic API key is not configured. Set --api-key or ANTHROPIC_API_KEY")
		}
		c := scanning.NewClaude(scanning.Config{
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Model:   p.Model,
			Timeout: p.Timeout,
		}, logger)
		logger.Info("Initializing Claude extractor...", "model", c.Model())
		return c, nil
	case ProviderGemini:
		if p.GeminiKey == "" {
			logger.Warn("Gemini API key is not configured. Set --gemini-key or GEMINI_API_KEY")
		}
		g, err := scanning.NewGemini(ctx, scanning.Config{
			APIKey:  p.GeminiKey,
			Model:   p.geminiModel(),
			Timeout: p.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		logger.Info("Initializing Gemini extractor...", "model", p.geminiModel())
		return g, nil
	default:
		return nil, fmt.Errorf("invalid provider %q: valid providers are claude or gemini", p.Name)
	}
}

// geminiModel ignores Claude model names picked up from ANTHROPIC_MODEL
func (p Provider) geminiModel() string {
	if !strings.HasPrefix(p.Model, "gemini") {
		return scanning.DefaultGeminiModel
	}
	return p.Model
}
