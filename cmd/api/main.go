package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/playgive/playgive-api/internal/config"
	"github.com/playgive/playgive-api/internal/domain/audit"
	"github.com/playgive/playgive-api/internal/domain/batch"
	"github.com/playgive/playgive-api/internal/domain/conversion"
	"github.com/playgive/playgive-api/internal/domain/reconciliation"
	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/middleware"
	"github.com/playgive/playgive-api/internal/pkg/database"
	"github.com/playgive/playgive-api/internal/pkg/events"
	"github.com/playgive/playgive-api/internal/pkg/jwt"
	pkgresponse "github.com/playgive/playgive-api/internal/pkg/response"
	"github.com/playgive/playgive-api/internal/pkg/settlement"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting PlayGive API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Event bus ----------
	bus := events.NewBus(256)
	defer bus.Close()
	bus.Subscribe(events.NameCreditApplied, "log", logEvent)
	bus.Subscribe(events.NameDonationCompleted, "log", logEvent)
	bus.Subscribe(events.NameTransactionHeld, "log", logEvent)
	bus.Subscribe(events.NameBatchCompleted, "log", logEvent)

	// ---------- Repositories ----------
	walletRepo := wallet.NewRepository(db)
	recipientRepo := wallet.NewRecipientRepository(db)
	reconRepo := reconciliation.NewRepository(db)
	auditRepo := audit.NewRepository(db)
	batchRepo := batch.NewRepository(db)

	// ---------- Services ----------
	auditService := audit.NewService(auditRepo)

	walletService := wallet.NewService(walletRepo, recipientRepo, bus, auditService, cfg.ApplyMaxRetries)

	engine := conversion.NewEngine(conversion.EngineConfig{
		BaseRatePerMinute: cfg.BaseRatePerMinute,
		Multipliers:       cfg.Multipliers,
		MaxDuration:       time.Duration(cfg.MaxActivityHours) * time.Hour,
		LongSession:       time.Duration(cfg.LongSessionHours) * time.Hour,
		EarningsCeiling:   cfg.EarningsCeiling,
		MaxMultiplier:     cfg.MaxMultiplier,
		OffHoursStart:     cfg.OffHoursStart,
		OffHoursEnd:       cfg.OffHoursEnd,
	})
	conversionService := conversion.NewService(engine, walletService,
		conversion.NewRedisWindow(redis, cfg.RapidSuccessionGap), cfg.RapidSuccessionGap, cfg.FraudHoldThreshold)

	coordinator := batch.NewCoordinator(batchRepo, walletService, recipientRepo, bus, auditService, batch.Config{
		Workers:       cfg.BatchWorkers,
		ProgressEvery: cfg.BatchProgressEvery,
		ItemRetryMax:  cfg.BatchItemRetryMax,
		ErrorLogSize:  cfg.BatchErrorLogSize,
		Budget:        cfg.BatchBudget,
	})

	var feed reconciliation.Feed
	if cfg.SettlementAccessKey != "" {
		client, err := settlement.NewClient(settlement.Config{
			Endpoint:  cfg.SettlementEndpoint,
			Region:    cfg.SettlementRegion,
			AccessKey: cfg.SettlementAccessKey,
			SecretKey: cfg.SettlementSecretKey,
			Bucket:    cfg.SettlementBucket,
			Prefix:    cfg.SettlementPrefix,
			Provider:  cfg.SettlementProvider,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create settlement client")
		}
		feed = client
	} else {
		log.Warn().Msg("Settlement feed disabled, reconciliation uses pre-ingested records only")
	}

	matcher := reconciliation.NewMatcher(cfg.ReconTolerance, cfg.ReconConfidence)
	reconService := reconciliation.NewService(reconRepo, walletRepo, matcher, feed, auditService)

	// ---------- Handlers ----------
	walletHandler := wallet.NewHandler(walletService)
	conversionHandler := conversion.NewHandler(conversionService)
	batchHandler := batch.NewHandler(coordinator)
	reconHandler := reconciliation.NewHandler(reconService)
	auditHandler := audit.NewHandler(auditService)

	authMiddleware := middleware.Auth(jwtService)
	adminOnly := middleware.RequireAdmin()
	serviceOnly := middleware.RequireService()

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			// Inbound events from upstream gameplay and donation systems.
			r.Mount("/activities", conversionHandler.Routes(serviceOnly))
			r.Mount("/donations", walletHandler.DonationRoutes(serviceOnly))

			// Administrative surface.
			r.Mount("/wallets", walletHandler.WalletRoutes(adminOnly))
			r.Mount("/transactions", walletHandler.TransactionRoutes(adminOnly))
			r.Mount("/batches", batchHandler.Routes(adminOnly))
			r.Mount("/reconciliations", reconHandler.Routes(adminOnly))
			r.Mount("/audit", auditHandler.Routes(adminOnly))
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func logEvent(ev events.Event) {
	log.Info().Str("event", ev.EventName()).Interface("payload", ev).Msg("event published")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
