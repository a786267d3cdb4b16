package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mercatto/wagateway/internal/gateway_service/adapters/agent"
	"github.com/mercatto/wagateway/internal/gateway_service/adapters/whatsapp"
	"github.com/mercatto/wagateway/internal/gateway_service/app"
	"github.com/mercatto/wagateway/internal/gateway_service/repository"
	redisstore "github.com/mercatto/wagateway/internal/gateway_service/repository/redis"
	gwhttp "github.com/mercatto/wagateway/internal/gateway_service/transport/http"
	"github.com/mercatto/wagateway/internal/platform/config"
	"github.com/mercatto/wagateway/internal/platform/database"
	"github.com/mercatto/wagateway/internal/platform/logger"
	"github.com/mercatto/wagateway/internal/platform/messagebroker"

	pgrepo "github.com/mercatto/wagateway/internal/gateway_service/repository/postgres"
)

const (
	serviceName     = "gateway-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger logs every HTTP request through slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Gateway service starting...",
		"http_port", cfg.ServerPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
	)

	// Chat history is optional context for the agent: a missing database
	// degrades answer quality, not availability.
	var chatHistory repository.ChatHistoryRepository
	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Warn("PostgreSQL unavailable, agent will run without chat history", "error", err)
	} else {
		defer dbPool.Close()
		chatHistory = pgrepo.NewPgChatHistoryRepository(dbPool, cfg.HistoryTableName, appLogger)
		appLogger.Info("Successfully connected to PostgreSQL")
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	sessionStore := redisstore.NewSessionStore(redisClient, appLogger)

	// Turn events are telemetry; the service runs fine without a broker.
	var natsClient messagebroker.NATSClient
	if nc, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger); err != nil {
		appLogger.Warn("NATS unavailable, turn events will not be published", "error", err)
	} else {
		natsClient = nc
		defer nc.Close()
		appLogger.Info("Connected to NATS", "url", cfg.NATSUrl)
	}

	waClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppToken, cfg.WhatsAppMethod, appLogger)
	sender := whatsapp.NewSender(waClient, appLogger)
	presenceClient := whatsapp.NewPresenceClient(waClient, appLogger)

	presenceCoordinator := app.NewPresenceCoordinator(
		presenceClient, app.NewSessionRegistry(), appLogger,
		cfg.PresenceTick, cfg.PresenceMaxDuration,
	)
	cooldownGate := app.NewCooldownGate(sessionStore, appLogger, time.Duration(cfg.CooldownSeconds)*time.Second)

	agentRunner := agent.NewOpenAIRunner(
		cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, cfg.AgentSystemPrompt,
		chatHistory, cfg.HistoryWindowSize, appLogger,
	)

	orderTTL := time.Duration(cfg.OrderTTLSeconds) * time.Second
	turnProcessor := app.NewTurnProcessor(agentRunner, sender, presenceCoordinator, sessionStore, orderTTL, natsClient, appLogger)
	aggregator := app.NewMessageAggregator(
		sessionStore, app.NewSessionRegistry(), turnProcessor, appLogger,
		cfg.AggregationTick, cfg.AggregationQuietChecks, cfg.AggregationMaxWindow,
	)

	validate := validator.New()
	bufferTTL := time.Duration(cfg.BufferTTLSeconds) * time.Second

	webhookHandler := gwhttp.NewWebhookHandler(
		presenceCoordinator, aggregator, cooldownGate, sessionStore, chatHistory, turnProcessor,
		cfg.WhatsAppAgentNumber, bufferTTL, cfg.WebhookPresenceDuration, appLogger,
	)
	presenceHandler := gwhttp.NewPresenceHandler(presenceCoordinator, cfg.PresenceMaxDuration, cfg.PresenceTick, appLogger, validate)
	agentHandler := gwhttp.NewAgentHandler(agentRunner, sender, appLogger, validate)

	router := gwhttp.NewRouter(webhookHandler, presenceHandler, agentHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      httpLogger(appLogger)(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		var shutdownErrors error
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		return shutdownErrors
	})

	appLogger.Info("Gateway service is ready and running.")
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
		}
	}

	appLogger.Info("Gateway service shut down successfully.")
}
