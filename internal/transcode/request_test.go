package transcode

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"polaris-api/internal/openai"
	"polaris-api/internal/shared"
)

func textMessage(role, text string) openai.Message {
	return openai.Message{
		Role:    role,
		Content: openai.MessageContent{Text: text, IsText: true},
	}
}

func TestToGenerateRequest_RoleMapping(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "gemini-1.5-flash",
		Messages: []openai.Message{
			textMessage("system", "be brief"),
			textMessage("user", "hi"),
			textMessage("assistant", "hello"),
			textMessage("user", "bye"),
		},
	}

	out, err := ToGenerateRequest(context.Background(), req, NewImageFetcher())
	if err != nil {
		t.Fatalf("ToGenerateRequest() error = %v", err)
	}

	if out.SystemInstruction == nil {
		t.Fatal("Expected system_instruction to be set")
	}
	if got := out.SystemInstruction.Parts[0].Text; got != "be brief" {
		t.Errorf("Expected system text 'be brief', got %q", got)
	}
	if out.SystemInstruction.Role != "" {
		t.Errorf("Expected system_instruction without role, got %q", out.SystemInstruction.Role)
	}

	wantRoles := []string{"user", "model", "user"}
	if len(out.Contents) != len(wantRoles) {
		t.Fatalf("Expected %d contents, got %d", len(wantRoles), len(out.Contents))
	}
	for i, want := range wantRoles {
		if out.Contents[i].Role != want {
			t.Errorf("Content[%d] role = %q, want %q", i, out.Contents[i].Role, want)
		}
	}
}

func TestToGenerateRequest_SystemOnlyPlaceholder(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []openai.Message{textMessage("system", "be brief")},
	}

	out, err := ToGenerateRequest(context.Background(), req, NewImageFetcher())
	if err != nil {
		t.Fatalf("ToGenerateRequest() error = %v", err)
	}

	if len(out.Contents) != 1 {
		t.Fatalf("Expected exactly one placeholder content, got %d", len(out.Contents))
	}
	if got := out.Contents[0].Parts[0].Text; got != " " {
		t.Errorf("Expected single-space placeholder, got %q", got)
	}
}

func TestToGenerateRequest_GenerationConfig(t *testing.T) {
	temperature := 0.7
	topP := 0.9
	topK := 40
	req := &openai.ChatCompletionRequest{
		Model:       "gemini-1.5-flash",
		Messages:    []openai.Message{textMessage("user", "hi")},
		MaxTokens:   256,
		Temperature: &temperature,
		TopP:        &topP,
		TopK:        &topK,
		Stop:        openai.StringList{"END"},
	}

	out, err := ToGenerateRequest(context.Background(), req, NewImageFetcher())
	if err != nil {
		t.Fatalf("ToGenerateRequest() error = %v", err)
	}

	cfg := out.GenerationConfig
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("maxOutputTokens = %d, want 256", cfg.MaxOutputTokens)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.9 {
		t.Errorf("topP = %v, want 0.9", cfg.TopP)
	}
	if cfg.TopK == nil || *cfg.TopK != 40 {
		t.Errorf("topK = %v, want 40", cfg.TopK)
	}
	if len(cfg.StopSequences) != 1 || cfg.StopSequences[0] != "END" {
		t.Errorf("stopSequences = %v, want [END]", cfg.StopSequences)
	}
}

func TestToGenerateRequest_SafetySettings(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []openai.Message{textMessage("user", "hi")},
	}

	out, err := ToGenerateRequest(context.Background(), req, NewImageFetcher())
	if err != nil {
		t.Fatalf("ToGenerateRequest() error = %v", err)
	}

	if len(out.SafetySettings) != 4 {
		t.Fatalf("Expected 4 safety settings, got %d", len(out.SafetySettings))
	}
	for _, s := range out.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Errorf("Threshold for %s = %q, want BLOCK_NONE", s.Category, s.Threshold)
		}
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"gpt-4o", "models/gemini-1.5-pro", false},
		{"gpt-3.5-turbo", "models/gemini-1.5-flash", false},
		{"gemini-2.0-flash", "models/gemini-2.0-flash", false},
		{"models/gemini-1.5-pro", "models/gemini-1.5-pro", false},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ResolveModel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveModel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveModel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveEmbeddingsModel(t *testing.T) {
	full, effective, err := ResolveEmbeddingsModel("text-embedding-004")
	if err != nil {
		t.Fatalf("ResolveEmbeddingsModel() error = %v", err)
	}
	if full != "models/text-embedding-004" || effective != "text-embedding-004" {
		t.Errorf("Got (%q, %q), want default embeddings model", full, effective)
	}

	full, effective, err = ResolveEmbeddingsModel("models/custom-embed")
	if err != nil {
		t.Fatalf("ResolveEmbeddingsModel() error = %v", err)
	}
	if full != "models/custom-embed" || effective != "models/custom-embed" {
		t.Errorf("Prefixed model should pass through, got (%q, %q)", full, effective)
	}
}

func TestImageFetcher_DataURI(t *testing.T) {
	part, err := NewImageFetcher().Resolve(context.Background(), "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if part.InlineData == nil {
		t.Fatal("Expected inlineData part")
	}
	if part.InlineData.MimeType != "image/png" {
		t.Errorf("mimeType = %q, want image/png", part.InlineData.MimeType)
	}
	if part.InlineData.Data != "AAAA" {
		t.Errorf("data = %q, want AAAA", part.InlineData.Data)
	}
}

func TestImageFetcher_InvalidData(t *testing.T) {
	_, err := NewImageFetcher().Resolve(context.Background(), "not-an-image")
	var reqErr *shared.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want 400", reqErr.StatusCode)
	}
}

func TestImageFetcher_HTTPFetch(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	part, err := NewImageFetcher().Resolve(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if part.InlineData.MimeType != "image/png" {
		t.Errorf("mimeType = %q, want image/png", part.InlineData.MimeType)
	}
	if part.InlineData.Data != base64.StdEncoding.EncodeToString(raw) {
		t.Errorf("data = %q, want base64 of raw bytes", part.InlineData.Data)
	}
}

func TestImageFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewImageFetcher().Resolve(context.Background(), server.URL)
	var reqErr *shared.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", reqErr.StatusCode)
	}
}

func TestToGenerateRequest_ImageFailureFailsRequest(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "gemini-1.5-flash",
		Messages: []openai.Message{{
			Role: "user",
			Content: openai.MessageContent{Parts: []openai.ContentPart{
				{Type: "text", Text: "what is this"},
				{Type: "image_url", ImageURL: &openai.ImageURL{URL: "bogus"}},
			}},
		}},
	}

	if _, err := ToGenerateRequest(context.Background(), req, NewImageFetcher()); err == nil {
		t.Fatal("Expected request to fail when an image cannot be resolved")
	}
}

func TestMessageContent_Unmarshal(t *testing.T) {
	var msg openai.Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hi"}`), &msg); err != nil {
		t.Fatalf("Unmarshal string content: %v", err)
	}
	if !msg.Content.IsText || msg.Content.Text != "hi" {
		t.Errorf("Expected text content 'hi', got %+v", msg.Content)
	}

	payload := `{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AA"}}]}`
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("Unmarshal parts content: %v", err)
	}
	if msg.Content.IsText || len(msg.Content.Parts) != 2 {
		t.Errorf("Expected two content parts, got %+v", msg.Content)
	}
}
