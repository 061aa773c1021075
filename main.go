package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"counterfact/adapters/excel"
	"counterfact/adapters/memory"
	"counterfact/adapters/postgres"
	"counterfact/app"
	"counterfact/internal"
	"counterfact/internal/api"
	"counterfact/internal/config"
	apperrors "counterfact/internal/errors"
	"counterfact/internal/metrics"
	"counterfact/internal/migration"
	"counterfact/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

// initDatabase connects to PostgreSQL and brings the schema up to date
func initDatabase(ctx context.Context, appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeDatabaseError, apperrors.Wrap(err, "failed to connect to database"))
	}
	db.SetMaxOpenConns(appConfig.Database.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.WithCode(apperrors.CodeDatabaseError, apperrors.Wrap(err, "failed to ping database"))
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.WithCode(apperrors.CodeDatabaseError, apperrors.Wrap(err, "database migration failed"))
	}
	return db, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(appConfig.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo ports.EvaluationRepository
		ping func(context.Context) error
	)
	if appConfig.Database.Enabled() {
		db, err := initDatabase(ctx, appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		repo = postgres.NewEvaluationRepository(db)
		ping = db.PingContext
		logger.Info("persisting evaluations to PostgreSQL (schema %s)", migration.NewRunner().Version())
	} else {
		repo = memory.NewEvaluationRepository()
		logger.Warn("DATABASE_URL not set, evaluations are kept in memory only")
	}

	loader, err := excel.NewLoader(excel.LoaderConfig{
		BaseDir:   appConfig.Data.Dir,
		CacheSize: appConfig.Data.CacheSize,
		CacheTTL:  appConfig.Data.CacheTTL,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create dataset loader: %v", err)
	}

	m := metrics.New()
	m.RegisterCacheStats(loader.CacheStats)

	svc, err := app.NewEvaluationService(appConfig.EvaluationConfig(version), repo, m, logger)
	if err != nil {
		log.Fatalf("Failed to create evaluation service: %v", err)
	}

	srv := api.NewServer(":"+appConfig.Server.Port, api.Deps{
		Service: svc,
		Loader:  loader,
		Metrics: m,
		Ping:    ping,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("counterfact %s listening on :%s (datasets under %q)", version, appConfig.Server.Port, appConfig.Data.Dir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed: %v", err)
		}
	}
}
