package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nurpe/aquaroute/internal/auth"
	"github.com/nurpe/aquaroute/internal/cache"
	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/db"
	"github.com/nurpe/aquaroute/internal/excel"
	httphandler "github.com/nurpe/aquaroute/internal/http"
	"github.com/nurpe/aquaroute/internal/http/middleware"
	"github.com/nurpe/aquaroute/internal/logger"
	"github.com/nurpe/aquaroute/internal/notify"
	"github.com/nurpe/aquaroute/internal/pdf"
	"github.com/nurpe/aquaroute/internal/repository"
	"github.com/nurpe/aquaroute/internal/scheduler"
	"github.com/nurpe/aquaroute/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	redisClient := cache.New(context.Background(), cfg, log)
	defer redisClient.Close()

	ledgerRepo := repository.NewLedgerRepository(database)
	reportRepo := repository.NewReportRepository(database)

	ledgerService := service.NewLedgerService(ledgerRepo, redisClient, redisClient, cfg, log)
	customerService := service.NewCustomerService(ledgerRepo, reportRepo, redisClient, cfg)
	reportService := service.NewReportService(reportRepo, ledgerRepo, redisClient, excel.NewGenerator(), pdf.NewGenerator(), cfg, log)

	jobs := scheduler.New(cfg.Ledger.Location(), log)
	if cfg.Ledger.ReconcileCron != "" {
		err := jobs.Add("reconcile-balances", cfg.Ledger.ReconcileCron, func(ctx context.Context) error {
			_, err := ledgerService.ReconcileAll(ctx)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to schedule reconciliation")
		}
	}
	if cfg.Reminders.Enabled() {
		reminders := service.NewReminderService(reportRepo, notify.NewTwilioSender(cfg.Reminders, log), cfg, log)
		err := jobs.Add("debt-reminders", cfg.Reminders.Cron, func(ctx context.Context) error {
			_, err := reminders.Run(ctx)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to schedule reminders")
		}
	} else {
		log.Info().Msg("debt reminders disabled")
	}
	jobs.Start()

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(customerService, ledgerService, reportService, cfg.Ledger.Location(), log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Msg("starting aquaroute service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	jobs.Stop(ctx)

	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("service stopped")
}
