package scanning

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude implements Extractor using the Anthropic Messages API
type Claude struct {
	cfg    Config
	client anthropic.Client
	logger *slog.Logger
}

// NewClaude creates a Claude extractor. An empty API key is accepted; every
// extraction then fails with MissingCredential without touching the network.
func NewClaude(cfg Config, logger *slog.Logger) *Claude {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults(DefaultBaseURL, DefaultModel)

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"),
		// A failed call is reported, never retried
		option.WithMaxRetries(0),
	)

	return &Claude{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Model returns the configured model name
func (c *Claude) Model() string {
	return c.cfg.Model
}

// Extract sends one invoice image to Claude and parses the reply
func (c *Claude) Extract(ctx context.Context, path string) Outcome {
	return extract(ctx, path, c.cfg, c.send)
}

func (c *Claude) send(ctx context.Context, media *Media) (string, bool, error) {
	start := time.Now()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Temperature: anthropic.Float(c.cfg.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(media.MediaType, media.Data),
				anthropic.NewTextBlock(userPrompt),
			),
		},
	})
	if err != nil {
		c.logger.Error("Claude request failed",
			"model", c.cfg.Model,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", false, err
	}

	c.logger.Debug("Claude response received",
		"model", c.cfg.Model,
		"segments", len(message.Content),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if len(message.Content) == 0 {
		return "", false, nil
	}
	return message.Content[0].Text, true, nil
}

// Close releases the client; the HTTP transport needs no cleanup
func (c *Claude) Close() error {
	return nil
}
