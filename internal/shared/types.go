package shared

// OpenAIError is the error body returned to callers on every non-2xx JSON
// response from the proxy itself. Upstream error bodies are passed through
// verbatim instead.
type OpenAIError struct {
	Message string `json:"message"`
	Object  string `json:"object"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}
