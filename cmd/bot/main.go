package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/tazhate/subsbot/config"
	"github.com/tazhate/subsbot/internal/bot"
	"github.com/tazhate/subsbot/internal/clients/caldav"
	"github.com/tazhate/subsbot/internal/scheduler"
	"github.com/tazhate/subsbot/internal/service"
	"github.com/tazhate/subsbot/internal/storage"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Инициализация storage
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Инициализация сервисов
	subSvc := service.NewSubscriptionService(store, cfg.Timezone, cfg.DefaultNotificationDays, logger)
	notifySvc := service.NewNotificationService(store, cfg.Timezone, logger)

	var calClient service.CalendarClient
	if client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword); client.IsConfigured() {
		calClient = client
	}
	calSvc := service.NewCalendarService(calClient, cfg.CalDAVCalendar, logger)
	if calSvc.IsConfigured() {
		logger.Info("caldav sync enabled", "calendar", cfg.CalDAVCalendar)
	}

	// Инициализация бота
	tgBot, err := bot.New(cfg, subSvc, calSvc, logger)
	if err != nil {
		logger.Error("failed to init bot", "error", err)
		os.Exit(1)
	}

	// Инициализация scheduler
	sched := scheduler.New(cfg, subSvc, notifySvc, calSvc, logger)
	sched.SetSender(tgBot)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			logger.Error("bot error", "error", err)
			cancel()
		}
	}()

	logger.Info("SubsBot started", "webhook", cfg.UseWebhook(), "api", cfg.APIEnabled())

	// Ожидание сигнала завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping bot", "error", err)
	}

	logger.Info("SubsBot stopped")
}
