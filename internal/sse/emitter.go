package sse

import (
	"encoding/json"
	"fmt"
	"time"

	"polaris-api/internal/gemini"
	"polaris-api/internal/openai"
	"polaris-api/internal/transcode"
)

// Done is the control line closing every OpenAI-compatible stream.
const Done = "data: [DONE]\n\n"

// Emitter turns parsed upstream stream events into OpenAI-compatible SSE
// frames. It tracks, per candidate index, whether the opening role chunk has
// been sent and the last event seen, so the terminal chunk can be built at
// stream end. One instance per streaming response.
type Emitter struct {
	ID           string
	Model        string
	IncludeUsage bool

	// last known event per candidate index; a nil slot means the candidate
	// was never observed.
	last []*gemini.GenerateContentResponse
}

func NewEmitter(id, model string, includeUsage bool) *Emitter {
	return &Emitter{ID: id, Model: model, IncludeUsage: includeUsage}
}

// Event consumes one raw payload and returns zero or more wire-ready frames.
// Payloads that fail to parse degrade into a synthetic error event instead of
// being dropped, so the client stream still terminates cleanly.
func (e *Emitter) Event(raw string) []string {
	data := &gemini.GenerateContentResponse{}
	if err := json.Unmarshal([]byte(raw), data); err != nil {
		data = e.syntheticError(err)
	}
	if len(data.Candidates) == 0 {
		return nil
	}

	cand := data.Candidates[0]
	index := cand.Index

	var frames []string
	if index >= len(e.last) || e.last[index] == nil {
		frames = append(frames, e.frame(data, false, true))
	}

	e.record(index, data)

	if cand.Content != nil {
		frames = append(frames, e.frame(data, false, false))
	}
	return frames
}

// Flush emits one terminal chunk per observed candidate followed by the
// [DONE] control line.
func (e *Emitter) Flush() []string {
	var frames []string
	for _, data := range e.last {
		if data == nil {
			continue
		}
		frames = append(frames, e.frame(data, true, false))
	}
	return append(frames, Done)
}

func (e *Emitter) record(index int, data *gemini.GenerateContentResponse) {
	for len(e.last) <= index {
		e.last = append(e.last, nil)
	}
	e.last[index] = data
}

// syntheticError fabricates one error candidate per known index (or a single
// one when nothing has been seen yet) carrying the parse failure as content.
func (e *Emitter) syntheticError(err error) *gemini.GenerateContentResponse {
	count := len(e.last)
	if count == 0 {
		count = 1
	}
	candidates := make([]gemini.Candidate, count)
	for i := range candidates {
		candidates[i] = gemini.Candidate{
			Index:        i,
			FinishReason: "error",
			Content:      &gemini.Content{Parts: []gemini.Part{{Text: err.Error()}}},
		}
	}
	return &gemini.GenerateContentResponse{Candidates: candidates}
}

func (e *Emitter) frame(data *gemini.GenerateContentResponse, stop, first bool) string {
	cand := data.Candidates[0]

	choice := openai.ChunkChoice{Index: cand.Index}
	if stop {
		choice.FinishReason = transcode.MapFinishReason(cand.FinishReason)
	} else {
		content := transcode.JoinParts(cand.Content)
		if first {
			content = ""
			choice.Delta.Role = "assistant"
		}
		choice.Delta.Content = &content
	}

	chunk := openai.ChatCompletionChunk{
		ID:      e.ID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   e.Model,
		Choices: []openai.ChunkChoice{choice},
	}

	if e.IncludeUsage && data.UsageMetadata != nil {
		if stop {
			chunk.Usage = transcode.ToUsage(data.UsageMetadata)
		} else {
			chunk.Usage = json.RawMessage("null")
		}
	}

	// Marshalling these types cannot fail, every field is a plain value.
	encoded, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", encoded)
}
