package scanning

import (
	"context"
	"time"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint used when none is configured
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is the Claude model used when none is configured
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultTimeout bounds a single extraction call
	DefaultTimeout = 60 * time.Second
	// DefaultMaxTokens caps the reply length; the JSON reply is short
	DefaultMaxTokens = 1024
	// DefaultTemperature keeps extraction close to deterministic
	DefaultTemperature = 0.2
)

// InvoiceRecord holds the six fields extracted from an invoice image.
// Values are kept exactly as the model returned them.
type InvoiceRecord struct {
	Date         string `json:"date"`
	ABN          string `json:"abn"`
	AmountIncGST string `json:"amount_inc_gst"`
	GST          string `json:"gst"`
	Description  string `json:"description"`
	Category     string `json:"category"`
}

// Extractor turns one invoice image into an Outcome.
// Implementations never return nil and never panic on business failures.
type Extractor interface {
	Extract(ctx context.Context, path string) Outcome
}

// Config is the provider configuration passed to an extractor at construction
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func (c Config) withDefaults(baseURL, model string) Config {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	return c
}

// sendFunc performs the model call for an encoded image. It returns the text
// of the first content segment, or ok=false when the reply carried none.
type sendFunc func(ctx context.Context, media *Media) (text string, ok bool, err error)

// extract runs the provider-independent steps around a single model call
func extract(ctx context.Context, path string, cfg Config, send sendFunc) Outcome {
	if cfg.APIKey == "" {
		return NewFailure(path, MissingCredential, "API key not configured", nil)
	}

	media, err := Encode(path)
	if err != nil {
		return NewFailure(path, UnreadableImage, "failed to read image", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	text, ok, err := send(ctx, media)
	if err != nil {
		return NewFailure(path, TransportError, "API request failed", err)
	}
	if !ok {
		return NewFailure(path, EmptyResponse, "no content in response", nil)
	}

	record, err := Normalize(text)
	if err != nil {
		f := NewFailure(path, MalformedJSON, "failed to parse JSON response", err)
		f.Raw = text
		return f
	}

	return &Success{Path: path, Record: record}
}
