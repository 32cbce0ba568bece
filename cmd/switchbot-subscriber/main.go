package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkaazzuukkii4/switchbot-controller/config"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/broker"
	mqttbroker "github.com/kkaazzuukkii4/switchbot-controller/internal/broker/mqtt"
	natsbroker "github.com/kkaazzuukkii4/switchbot-controller/internal/broker/nats"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/dispatch"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/metrics"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/recovery"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/service"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/state"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	endpoint := flag.String("endpoint", "", "override broker endpoint (empty = use config)")
	topic := flag.String("topic", "", "override topic to subscribe to (empty = use config)")
	count := flag.Int("count", -1, "override number of messages to receive before exiting (-1 = use config, 0 = run forever)")
	clientID := flag.String("client-id", "", "override client ID for the broker connection (empty = use config)")
	certFile := flag.String("cert", "", "override path to the client certificate, in PEM format (empty = use config)")
	keyFile := flag.String("key", "", "override path to the private key, in PEM format (empty = use config)")
	caFile := flag.String("root-ca", "", "override path to the root certificate authority, in PEM format (empty = use config)")
	stateFile := flag.String("state-file", "", "override path to the device state file (empty = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyOverrides(*endpoint, *topic, *count, *clientID, *certFile, *keyFile, *caFile, *stateFile)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	store := state.NewFileStore(cfg.State.File)
	if err := store.Init(); err != nil {
		logger.Fatal("failed to initialize state store", "error", err)
	}

	statsCollector := stats.NewStatsCollector()

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsCollector *metrics.MetricsCollector
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector = metrics.NewMetricsCollector(metricsService, statsCollector, updateInterval)
		metricsCollector.Start()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	conn, err := buildConnection(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create broker connection", "error", err)
	}

	target := uint64(cfg.MessageCount())
	gate := dispatch.NewGate()
	dispatcher := dispatch.NewDispatcher(
		service.NewSwitchBot(logger),
		store,
		gate,
		target,
		logger,
		metricsService,
		statsCollector,
	)

	coordinator := recovery.NewCoordinator(conn, dispatcher, logger, metricsService, statsCollector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- coordinator.Run(ctx)
	}()

	logger.Info("connecting to broker",
		"endpoint", cfg.Broker.Endpoint,
		"clientId", cfg.Broker.ClientID)

	if err := conn.Connect(ctx); err != nil {
		logger.Fatal("failed to connect to broker", "error", err)
	}
	logger.Info("connected")
	if metricsService != nil {
		metricsService.SetConnectionStatus(true)
	}

	logger.Info("subscribing to topic", "topic", cfg.Subscriber.Topic, "qos", cfg.Subscriber.QoS)
	grants, err := conn.Subscribe([]broker.Subscription{
		{Topic: cfg.Subscriber.Topic, QoS: cfg.Subscriber.QoS},
	})
	if err != nil {
		logger.Fatal("failed to subscribe to topic", "topic", cfg.Subscriber.Topic, "error", err)
	}
	logger.Info("subscribed", "topic", grants[0].Topic, "grantedQos", grants[0].QoS)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-gate.Done():
		logger.Info("all messages received", "count", dispatcher.Received())
	case err := <-loopErr:
		if err != nil {
			logger.Error("fatal error", "error", err)
			exitCode = 1
		}
	case sig := <-sigChan:
		logger.Info("shutting down on signal", "signal", sig.String())
	}

	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
		shutdownCancel()
	}
	if metricsCollector != nil {
		metricsCollector.Stop()
	}

	logger.Info("disconnecting")
	if err := conn.Disconnect(context.Background()); err != nil {
		logger.Error("failed to disconnect", "error", err)
	}
	logger.Info("disconnected", "received", dispatcher.Received())

	os.Exit(exitCode)
}

func buildConnection(cfg *config.Config, log *logger.Logger) (broker.Connection, error) {
	switch cfg.Broker.Type {
	case config.BrokerTypeNATS:
		return natsbroker.NewConnection(cfg, log)
	default:
		return mqttbroker.NewConnection(cfg, log)
	}
}
