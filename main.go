package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/ai"
	"github.com/example/phonicsbot/internal/bot"
	"github.com/example/phonicsbot/internal/budget"
	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/database"
	"github.com/example/phonicsbot/internal/gate"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/internal/progress"
	"github.com/example/phonicsbot/internal/scheduler"
	"github.com/example/phonicsbot/internal/session"
)

func main() {
	// A missing .env file is fine, configuration falls back to the environment
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	if err := database.Connect(); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	library, err := curriculum.Load(ctx, database.NewCurriculumRepository())
	if err != nil {
		logger.Fatal("failed to load curriculum", zap.Error(err))
	}
	if library.Len() == 0 {
		logger.Warn("curriculum is empty, import one with /import before practicing")
	}

	// Assemble the learning core
	ledger := budget.NewLedger(cfg.BudgetCapUnits, cfg.BudgetWindow)
	responseCache := cache.New(cfg.CacheMaxBytes, cfg.StaticTTL, cfg.VariableTTL,
		database.NewCacheRepository(), logger)
	if err := responseCache.Warm(ctx); err != nil {
		logger.Warn("cache warm-up failed, starting cold", zap.Error(err))
	}

	if cfg.OpenAIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, serving fallback content only")
	}
	transport := ai.New(cfg.OpenAIKey, library)

	aiGate := gate.New(responseCache, ledger, transport, library,
		cfg.ExampleCostUnits, cfg.AudioCostUnits, logger)

	masteryModel := mastery.New(cfg.Tuning, library, database.NewMasteryRepository(), logger)
	sessions := session.New(masteryModel, library, logger)
	tracker := progress.New(masteryModel, library, database.NewSnapshotRepository(), logger)

	b, err := bot.New(cfg, library, aiGate, ledger, responseCache, masteryModel, sessions, tracker, logger)
	if err != nil {
		logger.Fatal("failed to create bot", zap.Error(err))
	}

	jobs := scheduler.New(b, cfg, masteryModel, responseCache, tracker, logger)
	b.SetScheduler(jobs)
	jobs.Start()

	// Handle termination signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sig := <-sigChan
		logger.Info("received signal", zap.String("signal", sig.String()))
		cancel()

		jobs.Stop()
		b.Stop()

		// Flush anything the tracker could not persist earlier
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		tracker.FlushPending(flushCtx)

		close(done)
	}()

	logger.Info("bot started")
	go func() {
		if err := b.Start(); err != nil {
			logger.Error("bot error", zap.Error(err))
		}
	}()

	<-done
	logger.Info("bot stopped")
}
