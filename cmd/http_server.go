package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/events"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	docstorepg "github.com/frahmantamala/crypto-gateway/internal/docstore/postgres"
	"github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/processor"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/transport/rest"
	"github.com/frahmantamala/crypto-gateway/internal/webhook"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
	"github.com/frahmantamala/crypto-gateway/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that accepts processor notifications and serves the payment APIs`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *gorm.DB
	SQLDB  *sqlx.DB
	Store  docstore.Store
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to wire routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if deps.SQLDB != nil {
			if err := deps.SQLDB.Close(); err != nil {
				deps.Logger.Error("database close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) error {
	lg := deps.Logger

	registry, err := tenant.NewRegistry(deps.Config.Tenants)
	if err != nil {
		return fmt.Errorf("build tenant registry: %w", err)
	}

	bus := events.NewEventBus(lg)
	registerSideEffects(bus, lg)

	callbackURL := strings.TrimRight(deps.Config.Server.BaseURL, "/") + "/api/v1/webhook/ipn"

	clients := processor.NewClients(registry, processor.ClientsConfig{
		BaseURL:        deps.Config.Processor.BaseURL,
		SandboxBaseURL: deps.Config.Processor.SandboxBaseURL,
		Timeout:        deps.Config.Processor.Timeout,
	}, lg)

	paymentService := payment.NewService(deps.Store, lg)
	withdrawalService := withdrawal.NewService(deps.Store, lg)

	resolver := webhook.NewResolver(registry, deps.Store, deps.Config.Webhook.ResolveRetryDelay, lg)
	webhookHandler := webhook.NewHandler(resolver, paymentService, withdrawalService, bus, lg)

	paymentHandler := payment.NewHandler(paymentService, registry, clients, callbackURL, lg)
	withdrawalHandler := withdrawal.NewHandler(withdrawalService, registry, clients, callbackURL, lg)

	var origins []string
	for _, o := range strings.Split(deps.Config.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	var sqlDB *sql.DB
	if deps.SQLDB != nil {
		sqlDB = deps.SQLDB.DB
	}

	rest.RegisterAllRoutes(deps.Router, sqlDB, webhookHandler, paymentHandler, withdrawalHandler, origins, lg)
	return nil
}

// registerSideEffects wires the crediting and notification hooks onto
// the bus. The handlers only log for now; the ledger services that
// consume these events live outside this process.
func registerSideEffects(bus *events.EventBus, lg *slog.Logger) {
	bus.Subscribe(events.EventTypePaymentFinished, func(ctx context.Context, event events.Event) error {
		lg.Info("payment finished, crediting balance",
			"event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypePaymentPartiallyPaid, func(ctx context.Context, event events.Event) error {
		lg.Warn("partial payment received, operator follow-up needed",
			"event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypeWithdrawalCompleted, func(ctx context.Context, event events.Event) error {
		lg.Info("withdrawal completed, debiting locked balance",
			"event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypeWithdrawalFailed, func(ctx context.Context, event events.Event) error {
		lg.Info("withdrawal failed, unlocking balance",
			"event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	gormDB, sqlxDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     gormDB,
		SQLDB:  sqlxDB,
		Store:  docstorepg.NewDocumentStore(gormDB),
		Router: chi.NewRouter(),
	}, nil
}

// initDB opens the record store. Postgres goes through sqlx with the
// pgx stdlib driver so pooling knobs apply, then hands the connection
// to gorm; sqlite opens directly through gorm's driver.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	if cfg.Driver == "sqlite" {
		gormDB, err := gorm.Open(gormsqlite.Open(cfg.Source), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return gormDB, nil, nil
	}

	sqlxDB, err := sqlx.Connect("pgx", cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlxDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlxDB.Ping(); err != nil {
		_ = sqlxDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
	if err != nil {
		_ = sqlxDB.Close()
		return nil, nil, fmt.Errorf("failed to bind orm to connection: %w", err)
	}

	return gormDB, sqlxDB, nil
}
