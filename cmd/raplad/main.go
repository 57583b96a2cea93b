package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/config"
	httptransport "github.com/cinemaleshalles/rapla/internal/http"
	"github.com/cinemaleshalles/rapla/internal/mail"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// An administrator can request a restart over the API; the serve loop
	// rebuilds everything from the journal until a real shutdown arrives.
	for {
		restart, err := run(ctx, cfg, logger)
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
		if !restart {
			return
		}
		logger.Info("restarting server")
	}
}

// run builds the full stack, serves until shutdown or restart, and reports
// whether a restart was requested.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (restart bool, err error) {
	store, err := sqlite.Open(ctx, sqlite.Config{DSN: cfg.SQLiteDSN})
	if err != nil {
		return false, fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	op, err := operator.New(ctx, operator.Config{Journal: store, Logger: logger})
	if err != nil {
		return false, fmt.Errorf("loading operator: %w", err)
	}

	admin, created, err := op.EnsureAdminUser(ctx, "admin")
	if err != nil {
		return false, fmt.Errorf("seeding admin account: %w", err)
	}
	if created {
		hash, hashErr := application.CreatePasswordHash(cfg.AdminPassword, application.DefaultArgon2idParams)
		if hashErr != nil {
			return false, fmt.Errorf("hashing admin password: %w", hashErr)
		}
		if err := store.SetPasswordHash(ctx, admin.ID, hash, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("storing admin password: %w", err)
		}
		logger.Info("seeded administrator account", "username", admin.Username)
	}

	authService := application.NewAuthService(application.AuthConfig{
		Users:       op,
		Credentials: store,
		Sessions:    store,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
	})
	syncService := application.NewSyncService(application.SyncConfig{
		Operator:     op,
		QueryTimeout: cfg.QueryTimeout,
		MergeTimeout: cfg.MergeTimeout,
		Logger:       logger,
	})
	accountService := application.NewAccountService(application.AccountConfig{
		Operator:    op,
		Credentials: store,
		Sessions:    store,
		Mailer:      &mail.LogSender{Logger: logger},
		Logger:      logger,
	})

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	requestRestart := func() {
		restart = true
		cancelServe()
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:     httptransport.NewAuthHandler(authService, logger),
		Sync:     httptransport.NewSyncHandler(syncService, logger),
		Bindings: httptransport.NewBindingHandler(syncService, logger),
		Account:  httptransport.NewAccountHandler(accountService, logger),
		Admin:    httptransport.NewAdminHandler(requestRestart, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireSession(authService, logger),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-serveCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("synchronization API listening", "addr", server.Addr)
	if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return false, serveErr
	}
	return restart, nil
}
