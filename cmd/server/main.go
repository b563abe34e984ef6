package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatfold/inbox-server-go/internal/config"
	"github.com/chatfold/inbox-server-go/internal/database"
	"github.com/chatfold/inbox-server-go/internal/graph"
	"github.com/chatfold/inbox-server-go/internal/handler"
	"github.com/chatfold/inbox-server-go/internal/jobs"
	"github.com/chatfold/inbox-server-go/internal/middleware"
	"github.com/chatfold/inbox-server-go/internal/model"
	"github.com/chatfold/inbox-server-go/internal/redis"
	"github.com/chatfold/inbox-server-go/internal/repository"
	"github.com/chatfold/inbox-server-go/internal/service"
	"github.com/chatfold/inbox-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	contactRepo := repository.NewContactRepository(db.DB)
	conversationRepo := repository.NewConversationRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	graphClient := graph.NewClient(cfg.GraphAPIBaseURL, cfg.GraphAPIVersion, config.GraphRequestTimeout)

	accountService := service.NewAccountService(accountRepo, graphClient, cfg.TokenEncryptionKey)
	processor := service.NewProcessor(
		accountRepo, contactRepo, conversationRepo, messageRepo,
		broker, graphClient, accountService,
	)
	inboxService := service.NewInboxService(conversationRepo, messageRepo, contactRepo)
	statsService := service.NewStatsService(accountRepo, conversationRepo, messageRepo)

	authMiddleware := middleware.NewAuthMiddleware(accountRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	signatureMiddleware := middleware.NewSignatureMiddleware(map[model.Channel]middleware.ChannelPolicy{
		model.ChannelWhatsApp:  {Secret: cfg.WhatsAppAppSecret, Strict: cfg.WhatsAppStrictSignature},
		model.ChannelMessenger: {Secret: cfg.MetaAppSecret, Strict: cfg.MessengerStrictSignature},
		model.ChannelInstagram: {Secret: cfg.MetaAppSecret, Strict: cfg.InstagramStrictSignature},
	})

	webhookHandler := handler.NewWebhookHandler(processor, cfg.WebhookVerifyToken)
	inboxHandler := handler.NewInboxHandler(inboxService)
	eventsHandler := handler.NewEventsHandler(broker)
	adminHandler := handler.NewAdminHandler(statsService, accountService, cfg.AdminPasswordHash)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/webhooks/{channel}", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Get("/", webhookHandler.Verify)
		r.With(channelSignature(signatureMiddleware)).Post("/", webhookHandler.Receive)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		timeout := chimiddleware.Timeout(config.ServerRequestTimeout)
		r.With(timeout).Get("/conversations", inboxHandler.ListConversations)
		r.With(timeout).Get("/conversations/{id}/messages", inboxHandler.ListMessages)
		// no timeout: SSE connections stay open until the client leaves
		r.Get("/events", eventsHandler.ServeHTTP)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(adminHandler.RequireAuth)
		r.Get("/stats", adminHandler.Stats)
		r.Get("/accounts", adminHandler.ListAccounts)
		r.Post("/accounts", adminHandler.ConnectAccount)
	})

	retentionJob := jobs.NewRetentionJob(messageRepo, cfg.RawPayloadRetention(), config.RetentionJobInterval)
	retentionJob.Start()
	defer retentionJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// channelSignature resolves the {channel} route param before the signature
// middleware runs, so each channel gets its own verification policy.
func channelSignature(m *middleware.SignatureMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ch := model.Channel(chi.URLParam(r, "channel"))
			if !ch.Valid() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unknown channel"})
				return
			}
			m.Handler(ch)(next).ServeHTTP(w, r)
		})
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
