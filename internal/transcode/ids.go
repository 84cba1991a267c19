package transcode

import "github.com/aidarkhanov/nanoid"

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewCompletionID mints a chat completion id in the OpenAI shape.
func NewCompletionID() string {
	id, err := nanoid.Generate(idAlphabet, 29)
	if err != nil {
		// Generate only fails on bad alphabet/length arguments.
		panic(err)
	}
	return "chatcmpl-" + id
}
