package shared

import "time"

// HTTP Client Configuration
const (
	// Bounds a whole request; only safe on clients that never stream.
	DefaultHTTPTimeout = 180 * time.Second

	DefaultDialTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Upstream API Configuration
const (
	APIVersion  = "v1beta"
	ModelPrefix = "models/"

	// Sent the same way the official JS client sends it, some upstream
	// deployments reject requests without it.
	APIClient = "genai-js/0.21.0"

	DefaultModel           = "gemini-1.5-flash"
	DefaultEmbeddingsModel = "text-embedding-004"
)

// WebSocket Relay Configuration
const (
	WSDialTimeout = 10 * time.Second
)

// Cache Configuration
const (
	ModelListCacheTTL = 30 * time.Minute
)
