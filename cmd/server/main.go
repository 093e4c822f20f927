package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/config"
	"github.com/openclaw/companion-server-go/internal/database"
	"github.com/openclaw/companion-server-go/internal/gateway"
	"github.com/openclaw/companion-server-go/internal/handler"
	"github.com/openclaw/companion-server-go/internal/jobs"
	"github.com/openclaw/companion-server-go/internal/middleware"
	"github.com/openclaw/companion-server-go/internal/phase"
	"github.com/openclaw/companion-server-go/internal/redis"
	"github.com/openclaw/companion-server-go/internal/repository"
	"github.com/openclaw/companion-server-go/internal/service"
	"github.com/openclaw/companion-server-go/internal/sse"
	"github.com/openclaw/companion-server-go/internal/voice"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
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
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Str("driver", db.Driver()).Msg("database connected")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-memory rate limits and events")
	}

	var limiter service.RateLimiter
	var memoryLimiter *service.MemoryRateLimiter
	if redisClient != nil {
		limiter = service.NewRedisRateLimiter(redisClient.Client)
	} else {
		memoryLimiter = service.NewMemoryRateLimiter()
		limiter = memoryLimiter
	}

	messageRepo := repository.NewChatMessageRepository(db.DB)
	deviceSessionRepo := repository.NewDeviceSessionRepository(db.DB)
	pendingRepo := repository.NewPendingCompanionRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	gw := newGateway(cfg)

	engine := service.NewConversationEngine(
		service.EngineConfig{
			Locale:              cfg.Locale,
			MaxMessageLength:    cfg.MaxMessageLength,
			GatewayTimeout:      cfg.GatewayTimeout(),
			TherapyHistoryTurns: cfg.TherapyHistoryTurns,
			ContinuationTTL:     cfg.ContinuationTTL(),
		},
		service.NewSessionStore(messageRepo),
		gw,
		phase.NewResolver(cfg.OnboardingThreshold),
		service.NewSendLimiter(limiter, cfg.SendInterval()),
		broker,
	)
	sessionService := service.NewSessionService(deviceSessionRepo)
	pendingService := service.NewPendingService(db, pendingRepo, cfg.PendingTTL())

	var voiceInput voice.Input = voice.Unavailable{}
	if cfg.VoiceEnabled {
		voiceInput = voice.New(cfg.OpenAIAPIKey, cfg.Locale)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	requestLimit := middleware.NewRateLimitMiddleware(limiter, config.DefaultRateLimitPerMin, config.RequestLimitWindow, "api", nil)
	sessionCreateLimit := middleware.NewIPRateLimitMiddleware(limiter, config.SessionCreateLimit, config.SessionCreateWindow, "sessions")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	voiceBodyLimit := middleware.NewBodyLimitMiddleware(middleware.MaxVoiceUploadSize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	chatHandler := handler.NewChatHandler(engine, sessionService, pendingService)
	pendingHandler := handler.NewPendingHandler(pendingService, sessionService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	eventsHandler := handler.NewEventsHandler(broker, sessionService)
	voiceHandler := handler.NewVoiceHandler(voiceInput)

	var redisCheck handler.CheckFunc
	if redisClient != nil {
		redisCheck = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	healthHandler := handler.NewHealthHandler(db.Ping, redisCheck)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		// Streams stay open past any request timeout.
		r.With(requestLimit.Handler).Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(requestLimit.Handler)

			r.Get("/companions", handler.ListCompanions)
			r.Get("/capabilities", voiceHandler.Capabilities)

			r.With(sessionCreateLimit.Handler, bodyLimitMiddleware.Handler).Mount("/sessions", sessionHandler.Routes())
			r.With(bodyLimitMiddleware.Handler).Mount("/chat", chatHandler.Routes())
			r.With(bodyLimitMiddleware.Handler).Mount("/pending", pendingHandler.Routes())

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Strict().Handler)
				r.Use(voiceBodyLimit.Handler)
				r.Mount("/voice", voiceHandler.Routes())
			})
		})
	})

	cleanupJob := jobs.NewCleanupJob(pendingService, config.CleanupJobInterval)
	if memoryLimiter != nil {
		cleanupJob.WithBuckets(config.RequestLimitWindow, memoryLimiter)
	}
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("gateway", cfg.GatewayKind).
			Str("locale", cfg.Locale).
			Bool("voice", voiceInput.Available()).
			Msg("starting server")
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

func newGateway(cfg *config.Config) gateway.Gateway {
	switch cfg.GatewayKind {
	case config.GatewayKindOpenAI:
		return gateway.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Locale, cfg.GatewayTimeout())
	default:
		return gateway.NewEdgeGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout())
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
