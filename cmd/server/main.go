package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/api"
	"github.com/kvasirlabs/syntharb/internal/api/handlers"
	"github.com/kvasirlabs/syntharb/internal/cache"
	"github.com/kvasirlabs/syntharb/internal/config"
	"github.com/kvasirlabs/syntharb/internal/database"
	"github.com/kvasirlabs/syntharb/internal/logging"
	"github.com/kvasirlabs/syntharb/internal/models"
	"github.com/kvasirlabs/syntharb/internal/notify"
	"github.com/kvasirlabs/syntharb/internal/services"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		File:        cfg.LogFile,
	})

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	historyRepo := database.NewHistoryRepository(db.Pool)
	opportunityRepo := database.NewOpportunityRepository(db.Pool)
	relCache := cache.NewRedisRelationshipCache(redis.Client, 30*time.Second)

	engine := services.NewCovarianceEngine(services.CovarianceEngineConfig{
		WindowSize:  cfg.Covariance.WindowSize,
		MinSamples:  cfg.Covariance.MinSamples,
		SeedSamples: cfg.Covariance.SeedSamples,
	}, historyRepo, logger)

	detector := services.NewDetector(services.DetectorConfig{
		ZScoreThreshold:     cfg.Detector.ZScoreThreshold,
		MinEdgePercent:      cfg.Detector.MinEdgePercent,
		MaxTailRisk:         cfg.Detector.MaxTailRisk,
		MinConfidence:       cfg.Detector.MinConfidence,
		MinCorrelation:      cfg.Detector.MinCorrelation,
		BaseStake:           cfg.Detector.BaseStake,
		DefaultTimeWeight:   cfg.Detector.DefaultTimeWeight,
		GameDurationSeconds: cfg.Detector.GameDurationSeconds,
	}, logger)

	risk := services.NewRiskManager(services.RiskManagerConfig{
		BaseStake:   cfg.Risk.BaseStake,
		MaxTailRisk: cfg.Risk.MaxTailRisk,
		MaxBankroll: cfg.Risk.MaxBankroll,
	}, logger)

	deps := services.ProcessorDeps{
		Engine:   engine,
		Detector: detector,
		Risk:     risk,
		Executor: services.NewSimulatedExecutor(logger),
		Recorder: opportunityRepo,
		Logger:   logger,
	}

	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.AlertsPerMinute, logger)
		if err != nil {
			logger.WithError(err).Warn("Telegram notifier disabled")
		} else {
			deps.Notifier = notifier
		}
	}

	processor, err := services.NewProcessor(models.ProcessingConfig{
		MaxLatencyDeltaMs: cfg.Processing.MaxLatencyDeltaMs,
		MinConfidence:     cfg.Processing.MinConfidence,
		MinCorrelation:    cfg.Processing.MinCorrelation,
		MaxPositionSize:   cfg.MaxPositionSizeDecimal(),
		EnableExecution:   cfg.Processing.EnableExecution,
		JoinStrategy:      cfg.Processing.JoinStrategy,
		ExecutionTimeout:  cfg.ExecutionTimeout(),
	}, deps)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create processor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go publishRelationships(ctx, engine, relCache, cfg.Processing.MinConfidence, logger)

	if cfg.Replay.GameID != "" {
		go runReplay(ctx, cfg.Replay, historyRepo, processor, logger)
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	statusHandler := handlers.NewStatusHandler(processor, engine, detector, opportunityRepo, relCache, logger)
	healthHandler := handlers.NewHealthHandler(db, redis)
	api.SetupRoutes(router, statusHandler, healthHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// publishRelationships periodically snapshots the high-confidence
// relationship set into Redis, grouped by game.
func publishRelationships(ctx context.Context, engine *services.CovarianceEngine, relCache *cache.RedisRelationshipCache, minConfidence float64, logger *logrus.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			byGame := make(map[string]map[string]models.SyntheticRelationship)
			for key, rel := range engine.HighConfidenceRelationships(minConfidence) {
				if byGame[rel.GameID] == nil {
					byGame[rel.GameID] = make(map[string]models.SyntheticRelationship)
				}
				byGame[rel.GameID][key] = rel
			}
			for gameID, rels := range byGame {
				if err := relCache.Publish(ctx, gameID, rels); err != nil {
					logger.WithError(err).WithField("game_id", gameID).Warn("Failed to publish relationship snapshot")
				}
			}
		}
	}
}

// runReplay streams stored paired history for one market pair through the
// processor. Used to warm relationships and exercise the pipeline without
// a live feed.
func runReplay(ctx context.Context, cfg config.ReplayConfig, history *database.HistoryRepository, processor *services.Processor, logger *logrus.Logger) {
	samples, err := history.PairedSamples(ctx, cfg.GameID, cfg.PrimaryMarket, cfg.HedgeMarket, cfg.SampleLimit)
	if err != nil {
		logger.WithError(err).WithField("game_id", cfg.GameID).Error("Failed to load replay samples")
		return
	}
	if len(samples) == 0 {
		logger.WithField("game_id", cfg.GameID).Warn("No replay samples found")
		return
	}

	primary, hedge := services.BuildReplayStreams(
		cfg.GameID, cfg.PrimaryMarket, cfg.HedgeMarket, cfg.Sport,
		samples, time.Duration(cfg.TickDelayMs)*time.Millisecond,
	)

	stats, err := processor.ProcessCrossMarketStream(ctx, primary, hedge)
	if err != nil {
		logger.WithError(err).Error("Replay processing failed")
		return
	}
	logger.WithFields(logrus.Fields{
		"game_id":                cfg.GameID,
		"pairs_processed":        stats.PairsProcessed,
		"opportunities_detected": stats.OpportunitiesDetected,
	}).Info("Replay finished")
}
