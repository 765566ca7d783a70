package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	delivery "github.com/GueYatma/koktek-front/internal/delivery/http"
	"github.com/GueYatma/koktek-front/internal/messaging/webhook"
	"github.com/GueYatma/koktek-front/internal/repository"
	"github.com/GueYatma/koktek-front/internal/repository/directus"
	"github.com/GueYatma/koktek-front/internal/service"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	a, err := newApp(flags)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// --- Session store ---
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	// --- Backend ---
	loader := a.catalogLoader()
	if _, err := loader.Refresh(ctx); err != nil {
		// The shop still starts; pages show an empty catalog until the
		// backend answers.
		slog.Warn("Initial catalog load failed", "err", err)
	}
	notifier := webhook.New(a.cfg.Webhook.URL,
		webhook.WithHTTPClient(&http.Client{Timeout: a.cfg.Webhook.Timeout}),
		webhook.WithMetrics(a.metrics),
		webhook.WithLogger(a.logger.With("component", "webhook")),
	)
	if a.cfg.Webhook.URL == "" {
		slog.Warn("No webhook URL configured, cash payments will fail")
	}

	// --- Order journal ---
	journalDone := make(chan struct{})
	if events, ok := store.(repository.EventStore); ok && a.broker != nil {
		journal := service.NewOrderJournal(events, a.logger.With("component", "journal"))
		go func() {
			defer close(journalDone)
			journal.Run(ctx, a.broker, orderTopics, "koktek-journal")
		}()
	} else {
		close(journalDone)
	}

	// --- Sessions ---
	sessions := delivery.NewSessions(delivery.NewSessionFactory(delivery.SessionDeps{
		Store:     store,
		Carts:     directus.NewCartRepository(a.backend),
		Customers: directus.NewCustomerRepository(a.backend),
		Orders:    directus.NewOrderRepository(a.backend),
		Catalog:   loader,
		Notifier:  notifier,
		Publisher: a.publisher(),
		Metrics:   a.metrics,
		Logger:    a.logger,
	}), a.cfg.HTTP.SessionTTL, a.metrics)
	go sessions.Run(ctx, time.Minute)

	// --- HTTP API ---
	handler := delivery.NewHandler(loader, sessions, a.vendor(), a.logger.With("component", "http"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           delivery.EnableCORS(a.cfg.HTTP.AllowedOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", a.cfg.HTTP.Addr, "store", a.cfg.Store.Driver, "events", a.cfg.Events.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		slog.Error("HTTP server error", "err", serveErr)
	}
	stop()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "err", err)
	}
	// Let pending cart syncs reach the backend before the store closes.
	sessions.Wait()
	<-journalDone
	return serveErr
}
