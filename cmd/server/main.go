package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/analyzer"
	"github.com/sortdesk/mailpilot/internal/api"
	"github.com/sortdesk/mailpilot/internal/httpserver"
	"github.com/sortdesk/mailpilot/internal/invalidate"
	"github.com/sortdesk/mailpilot/internal/ledger"
	"github.com/sortdesk/mailpilot/internal/normalize"
	"github.com/sortdesk/mailpilot/internal/pipeline"
	"github.com/sortdesk/mailpilot/internal/queue"
	"github.com/sortdesk/mailpilot/internal/repository"
	"github.com/sortdesk/mailpilot/pkg/config"
	"github.com/sortdesk/mailpilot/pkg/db"
	"github.com/sortdesk/mailpilot/pkg/logger"
	redisclient "github.com/sortdesk/mailpilot/pkg/redis"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(config.GetConfigEnv(), "config")
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting mailpilot server...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	store := repository.NewStore(dbConn)
	contexts := repository.NewUserContextRepository(dbConn)

	costs := ledger.New(
		ledger.NewRedisSpendStore(rdb),
		ledger.Budget{DailyUSD: cfg.Budget.DailyUSD, MonthlyUSD: cfg.Budget.MonthlyUSD},
		cfg.OpenAI.PromptPer1K,
		log,
	)

	transport := analyzer.NewOpenAITransport(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		analyzer.Pricing{PromptPer1K: cfg.OpenAI.PromptPer1K, CompletionPer1K: cfg.OpenAI.CompletionPer1K},
		log,
	)
	set := analyzer.NewSet(transport, analyzer.Config{
		Timeout:     secondsOrDefault(cfg.Pipeline.AnalyzerTimeoutSecs),
		MaxParallel: cfg.Pipeline.PerEmailConcurrency,
		Version:     cfg.Pipeline.AnalyzerVersion,
	}, log)

	processor := pipeline.NewProcessor(store, set, costs, cfg.Pipeline.BatchSize, cfg.Pipeline.EstTokensPerEmail, log)
	invalidator := invalidate.NewManager(store, log)
	ranker := queue.NewRanker(store.EmailRepository, log)

	queueHandler := api.NewQueueHandler(ranker, log)
	analysisHandler := api.NewAnalysisHandler(processor, invalidator, contexts, store.AnalysisRepository, normalize.Normalize, log)

	router := httpserver.NewRouter(queueHandler, analysisHandler)
	log.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
}

func secondsOrDefault(secs int) time.Duration {
	if secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}
