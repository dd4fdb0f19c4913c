package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tablelink-backend/internal/config"
	"tablelink-backend/internal/db"
	"tablelink-backend/internal/handler"
	"tablelink-backend/internal/realtime"
	"tablelink-backend/internal/repository"
	"tablelink-backend/internal/server"
	"tablelink-backend/internal/service"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	// repositories
	tableRepo := repository.TableRepository{DB: pg}
	settlementRepo := repository.SettlementRepository{DB: pg}
	ticketRepo := repository.TicketRepository{DB: pg}
	loyaltyRepo := repository.LoyaltyRepository{DB: pg}
	couponRepo := repository.CouponRepository{DB: pg}

	if err := loyaltyRepo.SeedDefaultLevelsForAllStores(ctx); err != nil {
		logger.Warn("level seed failed", "err", err)
	}

	hub := realtime.NewHub(logger)

	// services
	occupancySvc := &service.OccupancyService{
		Tables:            tableRepo,
		Tickets:           ticketRepo,
		Hub:               hub,
		Logger:            logger,
		TLLReleaseTTL:     cfg.TLLReleaseTTL,
		OrderReleaseTTL:   cfg.OrderReleaseTTL,
		ReconcileInterval: cfg.ReconcileInterval,
	}
	loyaltySvc := &service.LoyaltyService{Repo: loyaltyRepo, Logger: logger}
	settlementSvc := &service.SettlementService{
		Tables:      tableRepo,
		Settlements: settlementRepo,
		Tickets:     ticketRepo,
		Loyalty:     loyaltyRepo,
		Coupons:     couponRepo,
		Occupancy:   occupancySvc,
		LoyaltySvc:  loyaltySvc,
		Hub:         hub,
		Logger:      logger,
	}

	// Timers do not survive a restart; sweep overdue occupations from
	// persisted state and keep sweeping.
	go occupancySvc.Run(ctx)

	// handlers
	healthHandler := handler.HealthHandler{DB: pg}
	settlementHandler := handler.SettlementHandler{Service: settlementSvc}
	tableHandler := handler.TableHandler{Tables: tableRepo, Occupancy: occupancySvc}
	ticketHandler := handler.TicketHandler{Repo: ticketRepo, Hub: hub}
	loyaltyHandler := handler.LoyaltyHandler{Service: loyaltySvc, Coupons: couponRepo}
	exportHandler := handler.ExportHandler{Settlements: settlementRepo}
	wsHandler := handler.WSHandler{Hub: hub, Tables: tableRepo, Logger: logger}

	router := server.NewRouter(cfg, logger,
		healthHandler, settlementHandler, tableHandler, ticketHandler, loyaltyHandler, exportHandler, wsHandler)

	if err := server.Start(ctx, cfg, router, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
