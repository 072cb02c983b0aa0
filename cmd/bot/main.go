package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pitlog/internal/analytics"
	"pitlog/internal/config"
	"pitlog/internal/conversation"
	"pitlog/internal/registry"
	"pitlog/internal/scheduler"
	"pitlog/internal/storage"
	"pitlog/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	logger, err := cfg.Logging.Logger()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Store.Options())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func(store storage.Store) {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}(store)
	logger.Info("store opened", zap.String("backend", cfg.Store.Backend))

	users := registry.New(store, cfg.Store.UsersTable)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("create bot api: %w", err)
	}

	gw := telegram.NewGateway(api, telegram.GatewayOptions{
		Attempts:   cfg.SendAttempts,
		RetryDelay: cfg.SendRetryDelay,
		RatePerSec: cfg.SendRatePerSec,
	}, logger.Named("gateway"))

	engine := conversation.New(store, users, gw, conversation.Options{
		SessionsTable: cfg.Store.SessionsTable,
		Location:      loc,
		Logger:        logger.Named("conversation"),
	})
	bot := telegram.New(api, engine, logger.Named("bot"))

	var sched *scheduler.Scheduler
	if cfg.AdminUserID != 0 {
		sched = scheduler.New(cfg.DigestCron, loc, logger.Named("scheduler"))
		collector := analytics.NewCollector(store, users, cfg.Store.SessionsTable)
		sched.SetReportFunction(func(ctx context.Context) error {
			stats, err := collector.Daily(ctx, time.Now().In(loc))
			if err != nil {
				return err
			}
			_, err = gw.Send(ctx, cfg.AdminUserID, stats.Summary(), nil)
			return err
		})
		if err := sched.Start(); err != nil {
			return err
		}
	} else {
		logger.Info("ADMIN_USER not set, daily digest disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Start(ctx) })
	if sched != nil {
		g.Go(func() error {
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}

	return g.Wait()
}
