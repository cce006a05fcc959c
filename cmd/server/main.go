package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/waspershola/hospitech-nexus-sub005/internal/config"
	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/handler"
	"github.com/waspershola/hospitech-nexus-sub005/internal/repository"
	"github.com/waspershola/hospitech-nexus-sub005/internal/server"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
	"github.com/waspershola/hospitech-nexus-sub005/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.OTLPInsecure, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "err", err)
		}
	}()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	rdb, err := db.NewRedis(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect redis", "err", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, idempotent replay disabled")
	}

	var publisher events.Publisher = events.LogPublisher{Logger: logger}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("failed to connect rabbitmq", "err", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	authSvc := service.AuthService{Config: cfg, Logger: logger}

	// Firebase Auth (optional)
	if cfg.FirebaseProjectID != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, firebaseOptions(cfg)...)
		if err != nil {
			logger.Error("failed to init firebase app", "err", err)
			os.Exit(1)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			logger.Error("failed to init firebase auth", "err", err)
			os.Exit(1)
		}
		authSvc.FirebaseAuth = client
	}

	// repositories
	folioRepo := repository.FolioRepository{DB: pg}
	bookingRepo := repository.BookingRepository{DB: pg}
	staffRepo := repository.StaffRepository{DB: pg}
	approvalRepo := repository.ApprovalRepository{StaffRepository: staffRepo}
	auditRepo := repository.AuditLogRepository{DB: pg}
	feeRepo := repository.PlatformFeeRepository{DB: pg}

	// services
	side := service.SideChannel{Events: publisher, Logger: logger}
	audit := service.AuditRecorder{Store: auditRepo}
	authSvc.Staff = staffRepo

	ledgerSvc := service.LedgerService{Folios: folioRepo, Logger: logger}
	groupSvc := service.GroupService{
		Folios:   folioRepo,
		Groups:   folioRepo,
		Audit:    audit,
		Logger:   logger,
		Currency: cfg.DefaultCurrency,
	}
	approvalSvc := service.ApprovalService{
		Store: approvalRepo,
		Policy: domain.PinPolicy{
			MaxAttempts:  cfg.PinMaxAttempts,
			LockDuration: cfg.PinLockDuration,
			TokenTTL:     cfg.ApprovalTokenTTL,
		},
		Side:   side,
		Logger: logger,
	}
	adjustmentSvc := service.AdjustmentService{
		Ledger:    ledgerSvc,
		Approvals: approvalSvc,
		Audit:     audit,
		Side:      side,
		Logger:    logger,
	}
	bookingSvc := service.BookingService{
		Bookings:  bookingRepo,
		Folios:    folioRepo,
		Fees:      feeRepo,
		Ledger:    ledgerSvc,
		Groups:    groupSvc,
		Approvals: approvalSvc,
		Audit:     audit,
		Side:      side,
		Logger:    logger,
		Currency:  cfg.DefaultCurrency,
	}

	health := handler.HealthHandler{DB: pg}
	if rdb != nil {
		health.Redis = db.RedisHealth{Client: rdb}
	}

	// handlers
	handlers := server.Handlers{
		Health:    health,
		Auth:      handler.AuthHandler{Service: authSvc, Logger: logger},
		Bookings:  handler.BookingHandler{Service: bookingSvc, Logger: logger},
		Approvals: handler.ApprovalHandler{Service: approvalSvc, Logger: logger},
		Folios:    handler.FolioHandler{Ledger: ledgerSvc, Adjustments: adjustmentSvc, Logger: logger},
		Groups:    handler.GroupHandler{Service: groupSvc, Logger: logger},
		Audit:     handler.AuditLogHandler{Audit: audit, Logger: logger},
	}

	router := server.NewRouter(cfg, logger, rdb, handlers)

	if err := server.Start(ctx, cfg, router, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "development" {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", cfg.ServiceName)
}

func firebaseOptions(cfg config.Config) []option.ClientOption {
	if cfg.FirebaseCredFile == "" {
		return nil
	}

	cred := cfg.FirebaseCredFile
	// Inline JSON or base64-encoded JSON is accepted as well as a file path.
	if strings.HasPrefix(strings.TrimSpace(cred), "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cred))}
	}
	if decoded, err := base64.StdEncoding.DecodeString(cred); err == nil && strings.HasPrefix(strings.TrimSpace(string(decoded)), "{") {
		return []option.ClientOption{option.WithCredentialsJSON(decoded)}
	}
	return []option.ClientOption{option.WithCredentialsFile(cred)}
}
