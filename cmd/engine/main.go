// Command engine runs the OPC UA monitored-item subscription engine
// against a demo, file-seeded address space, publishing drained
// notifications over MQTT. It registers no monitored items on the driver
// itself, so the tick loop has nothing to sample or drain until items are
// created on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
	"github.com/nexus-edge/opcua-subscription-engine/internal/config"
	"github.com/nexus-edge/opcua-subscription-engine/internal/engine"
	"github.com/nexus-edge/opcua-subscription-engine/internal/health"
	"github.com/nexus-edge/opcua-subscription-engine/internal/metrics"
	"github.com/nexus-edge/opcua-subscription-engine/internal/mqttsink"
	"github.com/nexus-edge/opcua-subscription-engine/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to engine configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger = logging.WithComponent(logger, "engine")
	logger.Info().Str("environment", cfg.Service.Environment).Msg("starting opcua subscription engine")

	registry := metrics.NewRegistry()

	space := addrspace.NewMemorySpace()
	if seed, err := config.LoadSeed(cfg.AddrSpace.SeedFile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.AddrSpace.SeedFile).Msg("no seed file loaded, starting with an empty address space")
	} else if err := config.ApplySeed(space, seed); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply seed file")
	} else {
		logger.Info().Int("nodes", len(seed.Nodes)).Msg("address space seeded")
	}

	var seedWatcher *config.SeedWatcher
	if cfg.AddrSpace.Watch {
		seedWatcher, err = config.NewSeedWatcher(cfg.AddrSpace.SeedFile, space, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create seed file watcher, live edits will not be picked up")
		} else if err := seedWatcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("failed to start seed file watcher")
		}
	}

	driver := engine.NewDriver(space, engine.DriverConfig{
		PublishInterval: cfg.Engine.PublishInterval,
		BreakerName:     cfg.Engine.BreakerName,
		Recorder:        registry,
	}, logger)

	publisher := mqttsink.NewPublisher(mqttsink.Config{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		QoS:            cfg.MQTT.QoS,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
	}, logger)

	if err := publisher.Connect(); err != nil {
		logger.Warn().Err(err).Msg("failed to connect to mqtt broker, the connection is not retried and notifications will not be published")
	}
	defer publisher.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runTickLoop(ctx, driver, publisher, registry, cfg.Engine.TickInterval, cfg.Engine.DrainBudget, logger)

	healthChecker := health.NewChecker(driver, 3*cfg.Engine.TickInterval, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LiveHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")
	cancel()

	if seedWatcher != nil {
		if err := seedWatcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("error stopping seed file watcher")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down http server")
	}

	logger.Info().Msg("opcua subscription engine shutdown complete")
}

func runTickLoop(ctx context.Context, driver *engine.Driver, publisher *mqttsink.Publisher, registry *metrics.Registry, tickInterval time.Duration, drainBudget int, logger zerolog.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			enqueued := driver.Tick(now)
			registry.ObserveTickDuration(time.Since(start).Seconds())
			registry.SetMonitoredItems(driver.ItemCount())
			if enqueued > 0 {
				registry.AddNotificationsEnqueued(enqueued)
			}

			drained := driver.DrainNotifications(ctx, drainBudget)
			if len(drained) == 0 {
				continue
			}
			registry.AddNotificationsDrained(len(drained))

			for _, n := range drained {
				if err := publisher.Publish(n); err != nil {
					logger.Debug().Err(err).Uint32("monitored_item_id", n.MonitoredItemID).Msg("failed to publish notification")
				}
			}
		}
	}
}
