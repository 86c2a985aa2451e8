package llm

import (
	"context"
	"errors"
	"net/http"

	genai "google.golang.org/genai"

	inerrors "insight-engine/internal/common/errors"
)

// GeminiProvider calls the Gemini API through the official genai client.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, model, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.JSONOnly {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return "", p.classify(ctx, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", inerrors.NewLLMParseError("gemini: empty candidate set")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (p *GeminiProvider) classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return inerrors.NewLLMTimeoutError(p.Name())
	}
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		if apierr.Code == http.StatusTooManyRequests {
			return inerrors.NewLLMRateLimitedError(p.Name(), err)
		}
	}
	return inerrors.NewLLMUnavailableError(p.Name(), err)
}
