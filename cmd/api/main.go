package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"polaris-api/internal/handlers/realtime"
	"polaris-api/internal/middleware"
	"polaris-api/internal/routers"
	"polaris-api/internal/shared"
	"polaris-api/internal/upstream"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	listenAddr := flag.String("listen-addr", ":8080", "Listen address")
	baseURL := flag.String("gemini-base-url", "https://generativelanguage.googleapis.com", "Primary upstream base URL")
	fallbackURLs := flag.String("gemini-fallback-urls", "https://generativelanguage.googleapis.com", "Comma-separated fallback base URLs")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for the model list cache (optional)")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()

	// Model list cache is optional; the proxy runs fine without redis.
	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warnw("Redis unreachable, model list cache disabled", "error", err.Error())
			redisClient = nil
		}
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	upstreamClient := upstream.NewClient(*baseURL, strings.Split(*fallbackURLs, ","), log)
	relayHandler := realtime.NewRelayHandler(upstreamClient.Candidates, log)

	e := echo.New()
	e.GET(("/ping"), func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey, err := shared.ExtractAPIKey(c)
			if err != nil {
				return c.String(401, "Missing or invalid API key")
			}

			if apiKey != *metricsAPIKey {
				return c.String(401, "Unauthorized API key")
			}
			return next(c)
		}
	})

	e.Use(middleware.NewCORSMiddleware())
	e.Use(middleware.NewRecoverMiddleware(log))
	e.Use(middleware.NewTrackMiddleware(log))
	// After tracking so relay sessions get the request-scoped logger, and
	// global so upgrade requests on unrouted paths are still relayed.
	e.Use(relayHandler.Intercept)

	base := e.Group("")
	routers.RegisterProxyRoutes(base, upstreamClient, redisClient, log)

	log.Infow("Starting server", "addr", *listenAddr, "candidates", upstreamClient.Candidates)

	go func() {
		if err := e.Start(*listenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Wait for interrupt signal to gracefully shut down the server.
	<-ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
