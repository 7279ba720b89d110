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

	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/delivery/consumer"
	delivery "github.com/dhumphrey11/moda-trading/internal/pipeline/delivery/http"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/common"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/postgres"
	"github.com/dhumphrey11/moda-trading/pkg/redis"
	"github.com/dhumphrey11/moda-trading/pkg/symlock"
	"github.com/dhumphrey11/moda-trading/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the trading pipeline service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Trading Pipeline Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Create the consumer group if it doesn't exist
	// MKSTREAM creates the stream if it doesn't exist
	if err := redisClient.XGroupCreateMkStream(context.Background(), common.RedisStreamPipelineTrigger, common.RedisStreamGroup, "0").Err(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	watchlistRepo := repository.NewWatchlistRepository(db.DB)
	marketDataRepo := repository.NewMarketDataRepository(db.DB)
	recommendationRepo := repository.NewRecommendationRepository(db.DB)
	signalRepo := repository.NewTradeSignalRepository(db.DB)
	positionRepo := repository.NewPositionRepository(db.DB)
	transactionRepo := repository.NewTransactionRepository(db.DB)
	riskStateRepo := repository.NewRiskStateRepository(db.DB)
	execRepo := repository.NewTriggerExecutionRepository(db.DB)

	var triggerStore repository.TriggerStore
	if cfg.Scheduler.UseRedisStore {
		triggerStore = repository.NewRedisTriggerStore(redisClient.Client)
	} else {
		triggerStore = repository.NewMemoryTriggerStore(24 * time.Hour)
	}

	// Initialize market data providers
	providers := make([]repository.MarketDataProvider, 0, len(cfg.Ingestion.Providers))
	for _, providerCfg := range cfg.Ingestion.Providers {
		if providerCfg.FeedURL != "" {
			providers = append(providers, repository.NewRSSNewsProvider(providerCfg, appLogger))
			continue
		}
		providers = append(providers, repository.NewHTTPProvider(providerCfg, appLogger))
	}
	if len(providers) == 0 {
		appLogger.Fatal("No market data providers configured")
	}

	// Initialize scoring provider
	var scoringRepo repository.ScoringRepository
	switch cfg.Scoring.Provider {
	case "gemini":
		genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: cfg.Scoring.APIKey,
		})
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini client", logger.ErrorField(err))
		}
		scoringRepo = repository.NewGeminiScoringRepository(cfg, appLogger, genAiClient)
	case "http":
		scoringRepo = repository.NewHTTPScoringRepository(cfg, appLogger)
	default:
		appLogger.Fatal("Invalid scoring provider specified in config",
			logger.StringField("provider", cfg.Scoring.Provider))
	}

	// Initialize Telegram notifier
	var notifier telegram.Notifier = telegram.NopNotifier{}
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize services
	locks := symlock.New()
	ingestionSvc := service.NewIngestionService(cfg, providers, marketDataRepo, watchlistRepo, positionRepo, appLogger)
	recommendationSvc := service.NewRecommendationService(cfg, scoringRepo, recommendationRepo, marketDataRepo, watchlistRepo, appLogger)
	strategySvc := service.NewStrategyService(cfg, recommendationRepo, signalRepo, positionRepo, riskStateRepo, marketDataRepo, locks, notifier, appLogger)
	ledgerSvc := service.NewLedgerService(cfg, positionRepo, transactionRepo, riskStateRepo, signalRepo, marketDataRepo, locks, appLogger)
	watchlistSvc := service.NewWatchlistService(watchlistRepo, appLogger)
	healthSvc := service.NewHealthService(cfg, appLogger)

	stages := service.NewStageRunners(ingestionSvc, recommendationSvc, strategySvc, ledgerSvc, appLogger)
	dispatcherSvc := service.NewDispatcherService(cfg, redisClient.Client, triggerStore, execRepo, stages, appLogger)

	schedulerSvc, err := service.NewSchedulerService(cfg, dispatcherSvc, strategySvc, ingestionSvc, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize scheduler", logger.ErrorField(err))
	}
	if err := schedulerSvc.Start(); err != nil {
		appLogger.Fatal("Failed to start scheduler", logger.ErrorField(err))
	}

	// Start the stream consumer
	redisConsumer := consumer.NewRedisConsumer(cfg, redisClient.Client, dispatcherSvc, appLogger)
	redisConsumer.Start(ctx)

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	// Initialize handlers and routes
	apiV1 := e.Group("/api/v1")

	orchestratorHandler := delivery.NewOrchestratorHandler(dispatcherSvc, ingestionSvc, recommendationSvc, appLogger)
	orchestratorHandler.RegisterRoutes(apiV1)

	signalHandler := delivery.NewSignalHandler(strategySvc, appLogger)
	signalHandler.RegisterRoutes(apiV1)

	watchlistHandler := delivery.NewWatchlistHandler(watchlistSvc, appLogger)
	watchlistHandler.RegisterRoutes(apiV1)

	portfolioHandler := delivery.NewPortfolioHandler(ledgerSvc, appLogger)
	portfolioHandler.RegisterRoutes(apiV1)

	healthHandler := delivery.NewHealthHandler(healthSvc)
	healthHandler.RegisterRoutes(e.Group(""))

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	redisConsumer.Stop()
	<-schedulerSvc.Stop().Done()

	// Gracefully shutdown the server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "pipeline-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-pipeline.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing pipeline-service CLI: %s\n", err)
		os.Exit(1)
	}
}
