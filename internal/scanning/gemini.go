package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is the Gemini model used when none is configured
const DefaultGeminiModel = "gemini-2.5-pro"

// Gemini implements Extractor using Google Gemini
type Gemini struct {
	cfg    Config
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// NewGemini creates a Gemini extractor. Without an API key no client is
// created and every extraction fails with MissingCredential.
func NewGemini(ctx context.Context, cfg Config, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Gemini has no fixed base URL; an empty one keeps the SDK default endpoint
	cfg = cfg.withDefaults("", DefaultGeminiModel)

	g := &Gemini{cfg: cfg, logger: logger}
	if cfg.APIKey == "" {
		return g, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(float32(cfg.Temperature))
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	g.client = client
	g.model = model
	return g, nil
}

// Extract sends one invoice image to Gemini and parses the reply
func (g *Gemini) Extract(ctx context.Context, path string) Outcome {
	return extract(ctx, path, g.cfg, g.send)
}

func (g *Gemini) send(ctx context.Context, media *Media) (string, bool, error) {
	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	format := strings.TrimPrefix(media.MediaType, "image/")

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData(format, media.Bytes()),
		genai.Text(userPrompt),
	)
	if err != nil {
		g.logger.Error("Gemini request failed", "model", g.cfg.Model, "error", err)
		return "", false, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), true, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
