package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/bankadmin/ledger/internal/auth"
	"github.com/bankadmin/ledger/internal/config"
	"github.com/bankadmin/ledger/internal/database"
	"github.com/bankadmin/ledger/internal/events/kafka"
	ledgerHttp "github.com/bankadmin/ledger/internal/http"
	accountHandler "github.com/bankadmin/ledger/internal/http/account"
	postingHandler "github.com/bankadmin/ledger/internal/http/posting"
	txHandler "github.com/bankadmin/ledger/internal/http/transaction"
	"github.com/bankadmin/ledger/internal/importer"
	"github.com/bankadmin/ledger/internal/importer/postingcsv"
	"github.com/bankadmin/ledger/internal/ledger"
	"github.com/bankadmin/ledger/internal/ledger/memstore"
	"github.com/bankadmin/ledger/internal/ledger/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	numbers, err := ledger.NewSnowflakeNumbers(cfg.Ledger.NodeID)
	if err != nil {
		return fmt.Errorf("creating account number generator: %w", err)
	}

	var publisher ledger.Publisher

	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer closeQuietly("kafka publisher", p)

		publisher = p

		slog.Info("publishing ledger events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var (
		ledgerService = ledger.NewService(repo, numbers, publisher)
		importService = importer.NewService(postingcsv.NewParser())
	)

	var (
		accountH     = accountHandler.NewHandler(ledgerService)
		transactionH = txHandler.NewHandler(ledgerService)
		postingH     = postingHandler.NewHandler(importService, ledgerService)
	)

	router := ledgerHttp.New(
		ledgerHttp.Options{
			Timeout:        cfg.Server.Timeout,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
		auth.NewVerifier(cfg.Auth.JWTSecret),
		ledgerService,
		accountH,
		transactionH,
		postingH,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "name", cfg.App.Name, "addr", server.Addr, "store", cfg.Store.Driver)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}

		return nil
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg *config.Config) (ledger.Repository, func(), error) {
	if cfg.Store.Driver == "memory" {
		slog.Warn("using in-memory ledger store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	db, err := database.New(ctx, cfg.ConnectionString(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	return store.New(db), func() { closeQuietly("database", db) }, nil
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to close "+name, "error", err)
	}
}
