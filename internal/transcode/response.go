package transcode

import (
	"strings"
	"time"

	"polaris-api/internal/gemini"
	"polaris-api/internal/openai"
	"polaris-api/internal/shared"
)

// PartSeparator joins multi-part candidate content into the single string the
// OpenAI format allows. The value is unusual but wire compatible with the
// deployed consumers, do not change it.
const PartSeparator = "\n\n|>"

var finishReasons = map[string]string{
	"STOP":       "stop",
	"MAX_TOKENS": "length",
	"SAFETY":     "content_filter",
	"RECITATION": "content_filter",
}

// MapFinishReason maps an upstream finish reason to its OpenAI equivalent.
// Unrecognised reasons pass through unchanged.
func MapFinishReason(reason string) string {
	if mapped, ok := finishReasons[reason]; ok {
		return mapped
	}
	return reason
}

// JoinParts flattens candidate content parts into one string.
func JoinParts(content *gemini.Content) string {
	if content == nil {
		return ""
	}
	texts := make([]string, len(content.Parts))
	for i, p := range content.Parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, PartSeparator)
}

// ModelID strips the upstream resource prefix from a model name.
func ModelID(name string) string {
	return strings.TrimPrefix(name, shared.ModelPrefix)
}

func ToChatCompletion(data *gemini.GenerateContentResponse, model, id string) *openai.ChatCompletion {
	choices := make([]openai.Choice, len(data.Candidates))
	for i, cand := range data.Candidates {
		choices[i] = openai.Choice{
			Index: cand.Index,
			Message: openai.AssistantMessage{
				Role:    "assistant",
				Content: JoinParts(cand.Content),
			},
			FinishReason: MapFinishReason(cand.FinishReason),
		}
	}

	return &openai.ChatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
		Usage:   ToUsage(data.UsageMetadata),
	}
}

func ToUsage(meta *gemini.UsageMetadata) openai.Usage {
	if meta == nil {
		return openai.Usage{}
	}
	return openai.Usage{
		PromptTokens:     meta.PromptTokenCount,
		CompletionTokens: meta.CandidatesTokenCount,
		TotalTokens:      meta.TotalTokenCount,
	}
}

func ToModelList(data *gemini.ModelsResponse) openai.ModelList {
	models := make([]openai.Model, len(data.Models))
	for i, m := range data.Models {
		models[i] = openai.Model{
			ID:      ModelID(m.Name),
			Object:  "model",
			Created: 0,
			OwnedBy: "",
		}
	}
	return openai.ModelList{Object: "list", Data: models}
}

func ToBatchEmbedRequest(fullModel string, inputs []string) gemini.BatchEmbedRequest {
	requests := make([]gemini.EmbedRequest, len(inputs))
	for i, input := range inputs {
		requests[i] = gemini.EmbedRequest{
			Model:   fullModel,
			Content: gemini.Content{Parts: []gemini.Part{{Text: input}}},
		}
	}
	return gemini.BatchEmbedRequest{Requests: requests}
}

func ToEmbeddingsResponse(data *gemini.BatchEmbedResponse, model string) openai.EmbeddingsResponse {
	embeddings := make([]openai.Embedding, len(data.Embeddings))
	for i, e := range data.Embeddings {
		embeddings[i] = openai.Embedding{
			Object:    "embedding",
			Embedding: e.Values,
			Index:     i,
		}
	}
	return openai.EmbeddingsResponse{
		Object: "list",
		Data:   embeddings,
		Model:  model,
	}
}
