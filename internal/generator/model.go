package generator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kalambet/wpbatch/internal/post"
)

// TextRequest is one text generation call.
type TextRequest struct {
	System string
	Prompt string
}

// Model is the generative API. Each call carries the key to use so the
// caller can rotate keys between attempts.
type Model interface {
	GenerateText(ctx context.Context, apiKey string, req TextRequest) (string, error)
	GenerateImage(ctx context.Context, apiKey, prompt string) (*post.Image, error)
}

// GeminiModel implements Model on the Gemini API.
type GeminiModel struct {
	TextModel       string
	ImageModel      string
	MaxOutputTokens int32
}

var errEmptyResponse = errors.New("model returned an empty response")

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

// GenerateText sends the prompt with thinking disabled and returns the
// concatenated text of the first candidate.
func (m *GeminiModel) GenerateText(ctx context.Context, apiKey string, req TextRequest) (string, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if m.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = m.MaxOutputTokens
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	result, err := client.Models.GenerateContent(ctx, m.TextModel, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", errEmptyResponse
	}
	text := result.Text()
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// GenerateImage asks the image model for a picture and returns the first
// inline image part.
func (m *GeminiModel) GenerateImage(ctx context.Context, apiKey, prompt string) (*post.Image, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	result, err := client.Models.GenerateContent(ctx, m.ImageModel, genai.Text(prompt), cfg)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, errEmptyResponse
	}
	for _, p := range result.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return &post.Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
		}
	}
	return nil, errors.New("model response has no image part")
}
