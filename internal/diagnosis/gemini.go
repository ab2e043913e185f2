package diagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/digkill/PlantDoctor/internal/config"
)

// GeminiClient asks a Gemini model through the Google GenAI SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
	log       *slog.Logger
}

func NewGeminiClient(ctx context.Context, cfg config.Config, log *slog.Logger) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	maxTokens := cfg.DiagnosisMaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &GeminiClient{
		client:    client,
		model:     cfg.GeminiModel,
		maxTokens: int32(maxTokens),
		log:       log,
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, image []byte, mediaType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mediaType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens:  c.maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if c.log != nil {
			c.log.Error("gemini request failed", "model", c.model, "err", err)
		}
		return "", fmt.Errorf("%w: generate content: %w", ErrTransport, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no text in response", ErrMalformedResponse)
	}
	return text, nil
}
