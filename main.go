package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/board"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/events"
	"taskboard/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	}

	gw, err := newGateway(ctx, cfg, rc, logger)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	bus := events.NewBus()
	store := board.NewStore()
	controller := board.NewController(store, gw, bus, logger, board.ControllerConfig{MoveTimeout: cfg.MoveTimeout})
	board.WatchCompletion(bus)
	events.On(bus, func(events.BoardCompleted) {
		logger.Info("all tasks completed")
	})

	if rc != nil {
		pub := events.NewRedisPublisher(rc, events.PublisherConfig{
			Channel:        cfg.Events.Channel,
			Workers:        cfg.Events.Workers,
			Buffer:         cfg.Events.Buffer,
			HandoffTimeout: cfg.Events.HandoffTimeout,
		}, logger)
		defer pub.Close()
		bus.Subscribe(pub.Handle)
	}

	// Edits ask for canonical state; refetch off the publishing goroutine.
	events.On(bus, func(events.TasksChanged) {
		go func() {
			if err := controller.Refresh(context.WithoutCancel(ctx)); err != nil {
				logger.WithError(err).Warn("refresh after edit failed")
			}
		}()
	})

	if err := controller.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("initial task load failed")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Use(api.DecompressRequest(api.MaxRequestSize))

	var deduper api.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, cfg.Redis.IdempotencyTTL)
	}
	api.Register(e, store, controller, bus, deduper, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithField("addr", cfg.ListenAddr).Info("board api listening")
	if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
}

func newGateway(ctx context.Context, cfg config.Config, rc *redis.Client, logger *log.Logger) (gateway.Gateway, error) {
	var (
		base      gateway.Gateway
		namespace string
	)
	switch cfg.Gateway.Backend {
	case config.BackendTable:
		tg, err := gateway.NewTableGateway(ctx, cfg.Gateway.StorageConnectionString, cfg.Gateway.TasksTable, cfg.Gateway.Partition, logger)
		if err != nil {
			return nil, err
		}
		base, namespace = tg, cfg.Gateway.TasksTable+":"+cfg.Gateway.Partition
	default:
		labels, err := domain.ParseStatusLabels(cfg.Gateway.StatusLabels)
		if err != nil {
			return nil, err
		}
		base = gateway.NewHTTPClient(cfg.Gateway.TaskAPIURL, logger, gateway.WithStatusLabels(labels))
		namespace = cfg.Gateway.TaskAPIURL
	}
	if rc == nil {
		return base, nil
	}
	return gateway.NewCache(base, rc, cfg.Redis.TasksCacheTTL, namespace), nil
}
