package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/xaenox/gua-bot/internal/bot"
	"github.com/xaenox/gua-bot/internal/chat"
	"github.com/xaenox/gua-bot/internal/metrics"
	"github.com/xaenox/gua-bot/internal/server"
	"github.com/xaenox/gua-bot/internal/session"
	"github.com/xaenox/gua-bot/internal/storage"
	"github.com/xaenox/gua-bot/pkg/config"
	"go.uber.org/zap"
)

// Set by ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gua-bot",
		Short:         "Telegram divination bot with streamed answers and daily quota",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("gua-bot %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return run(cfgPath)
		},
	}
	cmd.Flags().StringP("config", "c", "config.yaml", "Path to configuration file")
	return cmd
}

func run(cfgPath string) error {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env", zap.Error(err))
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err), zap.String("path", cfgPath))
		return err
	}

	baseTier := storage.BaseTier{
		Name:        cfg.Quota.BaseTierName,
		Description: "免费用户每日限额",
		DailyLimit:  cfg.Quota.BaseTierLimit,
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage(baseTier)
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(dbConfig, baseTier, logger)
		if err != nil {
			logger.Error("Failed to initialize storage", zap.Error(err))
			return err
		}
	}
	defer store.Close()

	var sessions session.Store
	switch cfg.Session.Store {
	case "sqlite":
		logger.Info("Using SQLite session store", zap.String("path", cfg.Session.SQLitePath))
		sessions, err = session.NewSQLiteStore(cfg.Session.SQLitePath)
		if err != nil {
			logger.Error("Failed to open session store", zap.Error(err))
			return err
		}
	default:
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := bot.New(cfg.Telegram.Token, bot.Deps{
		Storage:  store,
		Sessions: sessions,
		Backend:  chat.NewOpenAIBackend(cfg.Chat.Token, cfg.Chat.BaseURL, logger),
		BotID:    cfg.Chat.BotID,
		Metrics:  m,
	}, logger)
	if err != nil {
		logger.Error("Failed to create bot", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(ctx, b, cfg.Telegram.WebhookSecret, reg, logger)

	if cfg.Telegram.Mode == config.ModeWebhook {
		if err := b.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Error("Failed to register webhook", zap.Error(err))
			return err
		}
		return srv.ListenAndServe(ctx, cfg.HTTP.Addr)
	}

	go func() {
		if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	logger.Info("Starting long polling")
	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
		return err
	}
	return nil
}
