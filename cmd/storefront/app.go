package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GueYatma/koktek-front/internal/catalog"
	"github.com/GueYatma/koktek-front/internal/config"
	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/localstore/redisstore"
	"github.com/GueYatma/koktek-front/internal/localstore/sqlstore"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/messaging/kafka"
	"github.com/GueYatma/koktek-front/internal/messaging/memory"
	"github.com/GueYatma/koktek-front/internal/messaging/nats"
	"github.com/GueYatma/koktek-front/internal/metrics"
	"github.com/GueYatma/koktek-front/internal/repository/directus"
	"github.com/GueYatma/koktek-front/internal/service"
)

// broker is what every event driver provides.
type broker interface {
	messaging.Publisher
	messaging.Subscriber
	io.Closer
}

// app holds the dependencies shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	backend  *directus.Client
	broker   broker

	closers []io.Closer
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	client, err := directus.NewClient(cfg.Backend.URL, cfg.Backend.Token,
		directus.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		directus.WithMetrics(m),
		directus.WithLogger(logger.With("component", "backend")),
	)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		backend:  client,
	}
	a.broker, err = openBroker(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	if a.broker != nil {
		a.closers = append(a.closers, a.broker)
	}
	return a, nil
}

// publisher never returns nil.
func (a *app) publisher() messaging.Publisher {
	if a.broker == nil {
		return messaging.Discard
	}
	return a.broker
}

func (a *app) assetBase() string {
	return a.backend.BaseURL() + "/assets"
}

func (a *app) catalogLoader() *catalog.Loader {
	images := catalog.ImageResolver{
		AssetBase: a.assetBase(),
		Fallback:  catalog.FallbackImageURL,
	}
	return catalog.NewLoader(directus.NewCatalogSource(a.backend), images, a.logger.With("component", "catalog"))
}

func (a *app) vendor() *service.Vendor {
	orders := directus.NewOrderRepository(a.backend)
	return service.NewVendor(orders, directus.NewCatalogSource(a.backend),
		service.WithImageResolver(catalog.ImageResolver{AssetBase: a.assetBase()}),
		service.WithImageFetcher(service.HTTPImageFetcher{Client: &http.Client{Timeout: a.cfg.Backend.Timeout}}),
		service.WithVendorPublisher(a.publisher()),
		service.WithVendorLogger(a.logger.With("component", "vendor")),
		service.WithVendorMetrics(a.metrics),
	)
}

// openStore opens the session store and registers it for Close.
func (a *app) openStore(ctx context.Context) (localstore.Store, error) {
	c := a.cfg.Store
	switch c.Driver {
	case config.StoreMemory:
		return localstore.NewMemory(), nil
	case config.StoreSQLite, config.StorePostgres:
		driver := sqlstore.DriverSQLite
		if c.Driver == config.StorePostgres {
			driver = sqlstore.DriverPostgres
		}
		s, err := sqlstore.Open(driver, c.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", c.Driver, err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.StoreRedis:
		s, err := redisstore.Dial(ctx, c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.TTL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Driver)
}

func openBroker(c config.EventsConfig, logger *slog.Logger) (broker, error) {
	logger = logger.With("component", "events")
	switch c.Driver {
	case config.EventsNone:
		return nil, nil
	case config.EventsMemory:
		return memory.NewBus(logger, false), nil
	case config.EventsKafka:
		return kafka.NewBroker(c.Brokers, logger), nil
	case config.EventsNATS:
		b, err := nats.Connect(c.NATSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", c.Driver)
}

// Close releases everything opened by the app, last opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
