// TeamsBridge - Bot Framework / Teams chat adapter
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/adapter"
	"github.com/teamsbridge/teamsbridge/internal/api"
	"github.com/teamsbridge/teamsbridge/internal/auth"
	"github.com/teamsbridge/teamsbridge/internal/config"
	"github.com/teamsbridge/teamsbridge/internal/connector"
	"github.com/teamsbridge/teamsbridge/internal/graph"
	"github.com/teamsbridge/teamsbridge/internal/metrics"
	"github.com/teamsbridge/teamsbridge/internal/models"
	"github.com/teamsbridge/teamsbridge/internal/state"
	"github.com/teamsbridge/teamsbridge/internal/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "teamsbridge.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("TeamsBridge %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := setupLogger()

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Starting TeamsBridge")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
	}

	// Create data directory
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Fatal().Err(err).Str("data_dir", cfg.Storage.DataDir).Msg("Failed to create data directory")
	}

	// Initialize storage
	store, err := storage.NewBadgerStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	st := state.New(store)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Credentials. Without them the adapter runs in emulator mode:
	// inbound traffic is unauthenticated and outbound calls carry no
	// bearer token.
	var (
		tokens *auth.TokenCache
		authn  *auth.RequestAuthenticator
	)
	if cfg.EmulatorMode() {
		logger.Warn().Msg("No Bot Framework credentials, running in emulator mode")
	} else {
		tokenOpts := []auth.TokenCacheOption{}
		keysOpts := []auth.SigningKeyCacheOption{}
		if m != nil {
			tokenOpts = append(tokenOpts, auth.WithTokenRefreshHook(func() { m.RecordTokenRefresh("botframework") }))
			keysOpts = append(keysOpts, auth.WithKeysRefreshHook(m.RecordKeyRefresh))
		}
		tokens = auth.NewTokenCache(auth.BotFrameworkTokenURL, cfg.Bot.AppID, cfg.Bot.AppPassword, auth.BotFrameworkScope, tokenOpts...)
		keys := auth.NewSigningKeyCache(auth.SigningKeysURL, keysOpts...)
		authn = auth.NewRequestAuthenticator(cfg.Bot.AppID, keys, logger)
	}

	connOpts := []connector.Option{}
	if m != nil {
		connOpts = append(connOpts, connector.WithMemberLookupHook(m.RecordMemberLookup))
	}
	conn := connector.New(tokens, st, logger, connOpts...)

	// Graph directory lookups, enabled per tenant
	var graphClient *graph.Client
	if cfg.Graph.TenantID != "" {
		graphTokens := auth.NewTokenCache(
			graph.TokenURL(cfg.Graph.TenantID),
			cfg.Graph.ClientID,
			cfg.Graph.ClientSecret,
			graph.Scope,
		)
		graphClient = graph.New(graphTokens, logger)
	}

	// Assemble the adapter
	opts := []adapter.Option{
		adapter.WithCommandPrefix(cfg.Bot.CommandPrefix),
		adapter.WithTenantID(cfg.Graph.TenantID),
		adapter.WithRateLimit(cfg.Bot.RateLimit, cfg.Bot.RateWindow.Duration()),
	}
	if authn != nil {
		opts = append(opts, adapter.WithAuthenticator(authn))
	}
	if graphClient != nil {
		opts = append(opts, adapter.WithGraph(graphClient))
	}
	if m != nil {
		opts = append(opts, adapter.WithMetrics(m))
	}
	if cfg.Bot.ServiceURL != "" {
		opts = append(opts, adapter.WithServiceURL(cfg.Bot.ServiceURL))
	}

	ad := adapter.New(cfg.Bot.AppID, st, conn, logger, logCallback(logger), opts...)

	router := api.NewRouter(ad.HandleActivity, logger, api.RouterConfig{
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
	})

	// Start HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("TeamsBridge stopped")
}

// logCallback is the built-in message handler: it logs every resolved
// inbound message. Embedders replace this with their own dispatch.
func logCallback(logger zerolog.Logger) adapter.Callback {
	return func(ctx context.Context, msg *models.Message) {
		logger.Info().
			Str("from", msg.From.Key()).
			Str("to", msg.To.Key()).
			Str("body", msg.Body).
			Msg("Message received")
	}
}

func setupLogger() zerolog.Logger {
	// Default to JSON logging
	zerolog.TimeFieldFormat = time.RFC3339

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Caller().Logger()

	// Set log level from environment
	level := os.Getenv("TEAMSBRIDGE_LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
