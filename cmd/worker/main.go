package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/sortdesk/mailpilot/contracts/mq"
	"github.com/sortdesk/mailpilot/internal/analyzer"
	cronsvc "github.com/sortdesk/mailpilot/internal/cron"
	"github.com/sortdesk/mailpilot/internal/invalidate"
	"github.com/sortdesk/mailpilot/internal/ledger"
	"github.com/sortdesk/mailpilot/internal/mqhandler"
	"github.com/sortdesk/mailpilot/internal/pipeline"
	"github.com/sortdesk/mailpilot/internal/repository"
	"github.com/sortdesk/mailpilot/pkg/config"
	"github.com/sortdesk/mailpilot/pkg/db"
	"github.com/sortdesk/mailpilot/pkg/logger"
	"github.com/sortdesk/mailpilot/pkg/mq"
	redisclient "github.com/sortdesk/mailpilot/pkg/redis"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(config.GetConfigEnv(), "config")
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting mailpilot worker...")

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

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	rescanHandler := mqhandler.NewRescanHandler(processor, invalidator, contexts, publisher, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, "analysis.rescan.q", mqcontracts.RoutingKeyRescanRequested, log)
	if err != nil {
		log.Fatal("Failed to init rescan consumer", zap.Error(err))
	}
	consumer.SetHandler(rescanHandler.HandleRescanRequested)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Rescan consumer failed", zap.Error(err))
		}
	}()
	defer consumer.Close()

	sweep := cronsvc.NewService(cfg.Pipeline.SweepSchedule, cfg.Pipeline.SweepBatchLimit, store.EmailRepository, contexts, processor, log)
	if err := sweep.Start(); err != nil {
		log.Fatal("Failed to schedule sweep", zap.Error(err))
	}
	defer sweep.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down worker")
}

func secondsOrDefault(secs int) time.Duration {
	if secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}
