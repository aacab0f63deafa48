package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maitred/internal/api"
	"maitred/internal/auth"
	"maitred/internal/config"
	"maitred/internal/database"
	"maitred/internal/eventlog"
	"maitred/internal/logging"
	"maitred/internal/monitoring"
	"maitred/internal/realtime"
	"maitred/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	readHeaderTimeout = 10 * time.Second
	// relayDrainDelay lets the last published events round-trip through
	// redis before the subscriber stops.
	relayDrainDelay = 500 * time.Millisecond
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Metrics.Port = *metricsPort
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, "maitred")
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return err
	}
	if cfg.Database.Seed {
		if err := database.Seed(db); err != nil {
			return err
		}
	}

	monitor := monitoring.NewMonitor()

	var sinks []realtime.Sink
	if cfg.Kafka.Enabled {
		exporter := eventlog.NewKafkaExporter(eventlog.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer exporter.Close()
		sinks = append(sinks, exporter)
		logger.Info("exporting events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	dispatcher := realtime.NewDispatcher(cfg.Realtime.QueueSize, nil, monitor, logger, sinks...)
	svc := service.New(service.Deps{
		DB:                 db,
		Events:             dispatcher,
		Logger:             logger,
		Metrics:            monitor,
		DefaultSlotMinutes: cfg.Booking.DefaultSlotMinutes,
		DefaultPageLimit:   cfg.Booking.DefaultPageLimit,
		MaxPageLimit:       cfg.Booking.MaxPageLimit,
	})

	hub := realtime.NewHub(realtime.HubOptions{
		Authorizer:   svc.Staff,
		Recorder:     monitor,
		Logger:       logger,
		ClientBuffer: cfg.Realtime.ClientBuffer,
		CheckOrigin:  originChecker(cfg.Server.AllowedOrigins),
	})
	defer hub.Close()

	// The subscriber outlives the dispatcher so events drained at shutdown
	// still come back to this instance's hub.
	subCtx, stopSubscriber := context.WithCancel(context.Background())
	defer stopSubscriber()

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		relay := realtime.NewRedisRelay(client, cfg.Redis.Channel, hub, logger)
		if err := relay.Subscribe(subCtx); err != nil {
			return fmt.Errorf("subscribe to redis channel %s: %w", cfg.Redis.Channel, err)
		}
		dispatcher.SetDeliverer(relay)
		logger.Info("relaying events through redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	} else {
		dispatcher.SetDeliverer(hub)
	}
	dispatcher.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.NewServer(api.Options{
		Service:        svc,
		Auth:           auth.New(cfg.Auth.JWTSecret, svc.Staff),
		Hub:            hub,
		Monitor:        monitor,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start metrics server
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics, monitor, logger)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down servers", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Deliver what is still queued before the hub disconnects everyone.
	cancel()
	dispatcher.Wait()
	if cfg.Redis.Enabled {
		time.Sleep(relayDrainDelay)
	}
	stopSubscriber()
	return nil
}

func startMetricsServer(cfg config.MetricsConfig, monitor *monitoring.Monitor, logger *slog.Logger) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.GET(cfg.Path, gin.WrapH(monitor.Handler()))

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           metricsRouter,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return metricsServer
}

// originChecker admits websocket upgrades from the configured origins, or
// from anywhere when the list contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
