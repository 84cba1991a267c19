// Package routers
package routers

import (
	"net/http"

	"polaris-api/internal/handlers/proxy"
	"polaris-api/internal/middleware"
	"polaris-api/internal/upstream"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RegisterProxyRoutes wires the OpenAI-compatible surface onto the given
// group. The realtime relay intercept is installed globally in main so it
// also catches upgrade requests on paths no route matches.
func RegisterProxyRoutes(e *echo.Group, up *upstream.Client, redisClient *redis.Client, log *zap.SugaredLogger) {
	proxyHandler := proxy.NewProxyHandler(up, redisClient, log)

	// Clients disagree about the prefix, so the surface is mounted both bare
	// and under /v1.
	for _, prefix := range []string{"", "/v1"} {
		g := e.Group(prefix, middleware.ExtractCredential)
		requireKey := g.Group("", middleware.RequireCredential)

		requireKey.POST("/chat/completions", proxyHandler.ChatCompletions)
		requireKey.POST("/embeddings", proxyHandler.Embeddings)
		g.GET("/models", proxyHandler.ListModels)

		// Known suffixes hit with any other verb get the fixed 400 instead
		// of echo's default 405.
		g.Match(wrongVerbs(http.MethodPost), "/chat/completions", proxyHandler.MethodNotAllowed)
		g.Match(wrongVerbs(http.MethodPost), "/embeddings", proxyHandler.MethodNotAllowed)
		g.Match(wrongVerbs(http.MethodGet), "/models", proxyHandler.MethodNotAllowed)
	}
}

// wrongVerbs lists every verb except the allowed one. OPTIONS is absent, the
// CORS middleware answers preflights before routing.
func wrongVerbs(allowed string) []string {
	verbs := make([]string, 0, 5)
	for _, m := range []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodHead,
	} {
		if m != allowed {
			verbs = append(verbs, m)
		}
	}
	return verbs
}
