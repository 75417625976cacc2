package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/config"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/domain/records"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/auth"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/metrics"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "atlas-proxy",
		Short: "Atlas clinical data proxy",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("configuration ok (env=%s, host=%s, ontology=%s)\n",
				cfg.Env, cfg.FoundryHost, cfg.FoundryOntologyID)

			if cfg.FoundryClientID != "" {
				tokens := &foundry.ClientCredentialsSource{
					TokenURL:     cfg.TokenURL(),
					ClientID:     cfg.FoundryClientID,
					ClientSecret: cfg.FoundryClientSecret,
					Scopes:       []string{"api:ontologies-read"},
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if _, err := tokens.Token(ctx); err != nil {
					return fmt.Errorf("token endpoint probe failed: %w", err)
				}
				fmt.Println("token endpoint ok")
			}
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Upstream platform clients. Both transports share one outbound
	// limiter so the fallback path cannot double the request rate.
	tokens := &foundry.ClientCredentialsSource{
		TokenURL:     cfg.TokenURL(),
		ClientID:     cfg.FoundryClientID,
		ClientSecret: cfg.FoundryClientSecret,
		Scopes:       []string{"api:ontologies-read"},
	}
	upstreamLimiter := rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), cfg.UpstreamBurst)
	primary := foundry.NewOntologyClient(cfg.FoundryHost, cfg.FoundryOntologyID, tokens, nil, upstreamLimiter, logger)
	secondary := foundry.NewRESTClient(cfg.FoundryHost, cfg.FoundryOntologyID, tokens, nil, upstreamLimiter, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Domain wiring
	serverCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	gateway := records.NewGateway(primary, secondary, cfg.CacheTTL(), collector, logger)
	gateway.StartCacheCleanup(serverCtx, time.Minute)

	lookup := records.NewFoundryProfileLookup(primary)
	resolver := records.NewResolver(lookup, nil, logger)
	handler := records.NewHandler(gateway, resolver, lookup, cfg.AllowPatientOverride)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", records.UsernameHeader},
	}))

	// Health check and metrics sit outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler(registry))

	// API group: JWT, per-subject rate limiting, then domain routes
	apiV1 := e.Group("/api/v1")
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.IsDev() {
		if secret := os.Getenv("DEV_JWT_SECRET"); secret != "" {
			jwtCfg.SigningKey = []byte(secret)
		}
	}
	apiV1.Use(auth.JWTMiddleware(jwtCfg))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	handler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopBackground()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
