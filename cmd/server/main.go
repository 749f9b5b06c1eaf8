package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bozweather/trader/internal/clients/climate"
	"github.com/bozweather/trader/internal/clients/nws"
	"github.com/bozweather/trader/internal/clients/openmeteo"
	"github.com/bozweather/trader/internal/config"
	"github.com/bozweather/trader/internal/crypto"
	"github.com/bozweather/trader/internal/database"
	"github.com/bozweather/trader/internal/events"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/modules/approval"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/internal/modules/risk"
	"github.com/bozweather/trader/internal/modules/settlement"
	"github.com/bozweather/trader/internal/modules/trading"
	"github.com/bozweather/trader/internal/modules/users"
	"github.com/bozweather/trader/internal/orchestrator"
	"github.com/bozweather/trader/internal/scheduler"
	"github.com/bozweather/trader/internal/server"
	"github.com/bozweather/trader/pkg/logger"
	"github.com/bozweather/trader/pkg/money"
)

func main() {
	// Bootstrap logger; reconfigured once config is loaded
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("Starting Boz Weather Trader")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Environment == "development",
	})
	logger.SetGlobalLogger(log)

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	keystore := crypto.NewKeystore(cfg.EncryptionKey)
	eventBus := events.NewManager(db.Conn(), log)
	m := metrics.New()
	fees := money.DefaultFeeSchedule()

	// Weather and climate providers
	gridRepo := forecast.NewGridRepository(db.Conn(), log)
	nwsClient := nws.NewClient(nws.Config{
		UserAgent: cfg.NWSUserAgent,
		RPS:       cfg.NWSRateLimitPerSec,
		Grids:     gridRepo,
		Log:       log,
	})
	openMeteoClient := openmeteo.NewClient(openmeteo.Config{
		RPS: cfg.OpenMeteoRateLimit,
		Log: log,
	})
	climateClient := climate.NewClient(climate.Config{
		UserAgent: cfg.NWSUserAgent,
		Log:       log,
	})

	// Repositories
	forecastRepo := forecast.NewRepository(db.Conn(), log)
	predictionRepo := prediction.NewRepository(db.Conn(), log)
	tradeRepo := trading.NewTradeRepository(db.Conn(), log)
	settlementRepo := settlement.NewRepository(db.Conn(), log)
	approvalRepo := approval.NewRepository(db.Conn(), log)
	userRepo := users.NewRepository(db.Conn(), log)

	// Services
	forecastSvc := forecast.NewService(forecast.ServiceConfig{
		Repo:      forecastRepo,
		NWS:       nwsClient,
		OpenMeteo: openMeteoClient,
		Events:    eventBus,
		Metrics:   m,
		Log:       log,
	})
	predictionSvc := prediction.NewService(prediction.ServiceConfig{
		Repo:      predictionRepo,
		Forecasts: forecastSvc,
		History:   forecastRepo,
		Events:    eventBus,
		Metrics:   m,
		Log:       log,
	})
	settlementSvc := settlement.NewService(settlement.ServiceConfig{
		Repo:    settlementRepo,
		Trades:  tradeRepo,
		Reports: climateClient,
		Fees:    fees,
		Events:  eventBus,
		Metrics: m,
		Log:     log,
	})
	riskSvc := risk.NewService(risk.ServiceConfig{
		Ledger:    tradeRepo,
		Freshness: forecastSvc,
		Events:    eventBus,
		Metrics:   m,
		Log:       log,
	})
	userSvc := users.NewService(userRepo, keystore, cfg.KalshiBaseURL, log)

	defaults := risk.Limits{
		MaxTradeSizeCents:    money.Cents(cfg.DefaultMaxTradeSizeCents),
		DailyLossLimitCents:  money.Cents(cfg.DefaultDailyLossLimitCents),
		MaxDailyExposure:     money.Cents(cfg.DefaultMaxDailyExposureCents),
		MinEVThreshold:       cfg.DefaultMinEVThreshold,
		Cooldown:             time.Duration(cfg.DefaultCooldownMinutes) * time.Minute,
		ConsecutiveLossLimit: cfg.DefaultConsecutiveLossLimit,
		FreshnessCap:         time.Duration(cfg.FreshnessCapMinutes) * time.Minute,
	}

	// The approval queue and the orchestrator reference each other: the
	// queue executes approved signals through the orchestrator, and the
	// orchestrator enqueues manual-mode signals. The executor binds last.
	approvalSvc := approval.NewService(approval.ServiceConfig{
		Repo:    approvalRepo,
		Window:  time.Duration(cfg.ApprovalWindowMinutes) * time.Minute,
		Events:  eventBus,
		Metrics: m,
		Log:     log,
	})
	orch := orchestrator.New(orchestrator.Config{
		Users: userSvc,
		Clients: func(u users.User) (orchestrator.ExchangeClient, error) {
			return userSvc.ClientFor(u)
		},
		Predictions: predictionSvc,
		Forecasts:   forecastSvc,
		Risk:        riskSvc,
		Trades:      tradeRepo,
		Queue:       approvalSvc,
		Defaults:    defaults,
		Fees:        fees,
		KellyCap:    cfg.KellyCap,
		Events:      eventBus,
		Metrics:     m,
		Log:         log,
	})
	approvalSvc.SetExecutor(orch)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	// Register background jobs
	if err := registerJobs(sched, db, log, forecastSvc, settlementSvc, settlementRepo, approvalSvc, orch); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	// Market streams: ticker movement or a fill pulls the next trade cycle
	// forward. One stream per enabled user, because fills arrive only on
	// the account that placed the order. The scheduled cadence keeps
	// running if a stream stays down.
	go func() {
		enabled, err := userSvc.Enabled()
		if err != nil {
			log.Warn().Err(err).Msg("Market streams unavailable, relying on scheduled cycles")
			return
		}
		for _, u := range enabled {
			u := u
			go func() {
				streamLog := log.With().Str("user_id", u.ID).Logger()
				stream, err := userSvc.StreamFor(u, cfg.KalshiWSURL, func() {
					m.StreamReconnects.Inc()
				})
				if err != nil {
					streamLog.Warn().Err(err).Msg("Market stream unavailable, relying on scheduled cycles")
					return
				}
				if err := stream.Subscribe([]string{"ticker", "fill"}, nil); err != nil {
					streamLog.Warn().Err(err).Msg("Stream subscribe failed")
				}
				if err := orch.WatchStream(context.Background(), stream); err != nil {
					streamLog.Warn().Err(err).Msg("Market stream closed, relying on scheduled cycles")
				}
			}()
		}
	}()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		DB:          db,
		DevMode:     cfg.Environment == "development",
		Trades:      tradeRepo,
		Approvals:   approvalSvc,
		Risk:        riskSvc,
		Predictions: predictionRepo,
		Users:       userSvc,
		Metrics:     m,
		Defaults:    defaults,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	db *database.DB,
	log zerolog.Logger,
	forecastSvc *forecast.Service,
	settlementSvc *settlement.Service,
	settlementRepo *settlement.Repository,
	approvalSvc *approval.Service,
	orch *orchestrator.Orchestrator,
) error {
	forecastJob := scheduler.NewForecastFetchJob(forecastSvc, log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 30m", forecastJob},
		{"@every 30m", scheduler.NewFullRefreshJob(forecastSvc, orch, log)},
		{"@every 15m", scheduler.NewTradeCycleJob(orch, log)},
		{"@every 30m", scheduler.NewSettlementFetchJob(settlementSvc, settlementRepo, log)},
		{"@every 60s", scheduler.NewQueueSweepJob(approvalSvc, log)},
		{"@every 6h", scheduler.NewHealthCheckJob(db, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return err
		}
	}

	// Warm the forecast tables so the first trade cycle has data.
	go func() {
		if err := sched.RunNow(forecastJob); err != nil {
			log.Error().Err(err).Msg("Initial forecast fetch failed")
		}
	}()

	return nil
}
