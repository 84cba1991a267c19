// Package transcode converts between the OpenAI wire format and the upstream
// provider's schema, in both directions.
package transcode

import (
	"context"
	"errors"
	"strings"

	"polaris-api/internal/gemini"
	"polaris-api/internal/openai"
	"polaris-api/internal/shared"
)

// Moderation is the caller's responsibility, the proxy never lets the
// upstream filter on its behalf.
var safetySettings = []gemini.SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

var modelAliases = map[string]string{
	"gpt-3.5-turbo": shared.DefaultModel,
	"gpt-4":         "gemini-1.5-pro",
	"gpt-4-turbo":   "gemini-1.5-pro",
	"gpt-4o":        "gemini-1.5-pro",
	"gpt-4o-mini":   shared.DefaultModel,
}

// ResolveModel maps a caller-facing model name to the upstream resource name,
// e.g. "gpt-4o" -> "models/gemini-1.5-pro". Names already carrying the
// resource prefix pass through untouched.
func ResolveModel(model string) (string, error) {
	if model == "" {
		return "", shared.ErrMissingModel
	}
	if alias, ok := modelAliases[model]; ok {
		model = alias
	}
	if !strings.HasPrefix(model, shared.ModelPrefix) {
		model = shared.ModelPrefix + model
	}
	return model, nil
}

// ResolveEmbeddingsModel returns the upstream resource name and the effective
// model id echoed back to the caller. Unprefixed names fall back to the
// default embeddings model.
func ResolveEmbeddingsModel(model string) (string, string, error) {
	if model == "" {
		return "", "", shared.ErrMissingModel
	}
	if strings.HasPrefix(model, shared.ModelPrefix) {
		return model, model, nil
	}
	return shared.ModelPrefix + shared.DefaultEmbeddingsModel, shared.DefaultEmbeddingsModel, nil
}

// ToGenerateRequest converts a chat completion request into the upstream
// generate-content schema. Image parts are resolved eagerly; failure of any
// single image fails the whole request.
func ToGenerateRequest(ctx context.Context, req *openai.ChatCompletionRequest, images *ImageFetcher) (*gemini.GenerateContentRequest, error) {
	var systemInstruction *gemini.Content
	contents := make([]gemini.Content, 0, len(req.Messages))

	for _, msg := range req.Messages {
		parts, err := toParts(ctx, msg.Content, images)
		if err != nil {
			return nil, err
		}

		if msg.Role == "system" {
			systemInstruction = &gemini.Content{Parts: parts}
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, gemini.Content{Role: role, Parts: parts})
	}

	// The upstream rejects empty contents, so a system-only conversation gets
	// a single-space placeholder turn.
	if systemInstruction != nil && len(contents) == 0 {
		contents = append(contents, gemini.Content{Role: "model", Parts: []gemini.Part{{Text: " "}}})
	}

	return &gemini.GenerateContentRequest{
		SystemInstruction: systemInstruction,
		Contents:          contents,
		SafetySettings:    safetySettings,
		GenerationConfig:  toGenerationConfig(req),
	}, nil
}

func toParts(ctx context.Context, content openai.MessageContent, images *ImageFetcher) ([]gemini.Part, error) {
	if content.IsText {
		return []gemini.Part{{Text: content.Text}}, nil
	}

	parts := make([]gemini.Part, 0, len(content.Parts))
	for _, item := range content.Parts {
		switch item.Type {
		case "text":
			parts = append(parts, gemini.Part{Text: item.Text})
		case "image_url":
			if item.ImageURL == nil {
				return nil, &shared.RequestError{StatusCode: 400, Err: errors.New("image_url part missing image_url")}
			}
			part, err := images.Resolve(ctx, item.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *part)
		}
	}
	return parts, nil
}

func toGenerationConfig(req *openai.ChatCompletionRequest) gemini.GenerationConfig {
	cfg := gemini.GenerationConfig{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}
	return cfg
}
