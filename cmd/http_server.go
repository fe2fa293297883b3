package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/core/events"
	"github.com/frahmantamala/pos-billing/internal/gateway"
	"github.com/frahmantamala/pos-billing/internal/notification"
	"github.com/frahmantamala/pos-billing/internal/subscription"
	subscriptionpg "github.com/frahmantamala/pos-billing/internal/subscription/postgres"
	"github.com/frahmantamala/pos-billing/internal/transport/rest"
	"github.com/frahmantamala/pos-billing/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving webhooks and the admin billing API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger

	SubscriptionHandler *subscription.Handler
	WebhookHandler      *subscription.WebhookHandler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Config,
		deps.SubscriptionHandler, deps.WebhookHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	subscriptionRepo := subscriptionpg.NewSubscriptionRepository(gormDB)
	paymentRepo := subscriptionpg.NewPaymentRepository(gormDB)
	planRepo := subscriptionpg.NewPlanRepository(gormDB)
	clientRepo := subscriptionpg.NewClientRepository(gormDB)
	licenseRepo := subscriptionpg.NewLicenseRepository(gormDB)
	merchantRepo := subscriptionpg.NewMerchantRepository(gormDB)

	eventBus := events.NewEventBus(log)

	notifier := buildNotifier(config, log)
	notificationHandler := notification.NewEventHandler(clientRepo, notifier, log)
	notificationHandler.RegisterEventHandlers(eventBus)

	machine := subscription.NewMachine(
		config.Billing.SuspendThreshold,
		config.Billing.WarnThreshold,
		config.Billing.RetryInterval,
	)
	service := subscription.NewService(machine, subscriptionRepo, paymentRepo,
		planRepo, licenseRepo, eventBus, log)

	manager := gateway.NewManager(log)
	webhookHandler := subscription.NewWebhookHandler(paymentRepo, subscriptionRepo,
		merchantRepo, service, manager, config.Gateways)

	return &Dependencies{
		Config:              config,
		Logger:              log,
		DB:                  db,
		GormDB:              gormDB,
		Router:              chi.NewRouter(),
		SubscriptionHandler: subscription.NewHandler(service),
		WebhookHandler:      webhookHandler,
	}, nil
}

func buildNotifier(config *internal.Config, log *slog.Logger) subscription.Notifier {
	if config.Mail.PostmarkServerToken == "" {
		log.Warn("no postmark token configured, billing emails will only be logged")
		return notification.NewLogNotifier(log)
	}
	return notification.NewMailer(config.Mail, log)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM over the already-open pgx connection so the
// repositories and the health check share one pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}
