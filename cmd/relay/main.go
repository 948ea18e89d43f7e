// Relay server - a gallery of messaging patterns on a Redis log store,
// exposed over an HTTP control plane and a WebSocket event channel.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamworks/relay/pkg/api"
	"github.com/streamworks/relay/pkg/backoff"
	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/contentrouter"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/fanout"
	"github.com/streamworks/relay/pkg/metrics"
	"github.com/streamworks/relay/pkg/monitor"
	"github.com/streamworks/relay/pkg/pubsub"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/reqreply"
	"github.com/streamworks/relay/pkg/routing"
	"github.com/streamworks/relay/pkg/scheduler"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
	"github.com/streamworks/relay/pkg/version"
	"github.com/streamworks/relay/pkg/workqueue"
)

// storeConnectAttempts bounds the startup connection retry loop.
const storeConnectAttempts = 10

func main() {
	configPath := flag.String("config", getEnv("RELAY_CONFIG", "relay.yaml"),
		"Path to the relay.yaml configuration file")
	envPath := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Info("No .env file loaded, using process environment", "path", *envPath)
	}

	slog.Info("Starting relay", "version", version.Full(), "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Connect the store, retrying transient failures.
	storeCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load store configuration", "error", err)
		os.Exit(1)
	}
	st, err := connectStore(ctx, storeCfg)
	if err != nil {
		slog.Error("Failed to connect to store", "addr", storeCfg.Addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Error closing store client", "error", err)
		}
	}()
	slog.Info("Connected to store", "addr", storeCfg.Addr)

	// 2. Register scripts (idempotent replace).
	if err := scripts.LoadAll(ctx, st); err != nil {
		slog.Error("Failed to register scripts", "error", err)
		os.Exit(1)
	}
	slog.Info("Scripts registered", "count", len(scripts.All()))

	// 3. Ensure key-expired notifications for the request/reply timeouts.
	// Best effort: a managed store may refuse CONFIG SET; timeouts then
	// depend on the operator having configured notify-keyspace-events.
	if err := st.EnableExpiryNotifications(ctx); err != nil {
		slog.Warn("Expiry notifications unavailable, request/reply timeouts degraded", "error", err)
	}

	// 4. Build the shared infrastructure and engines.
	m := metrics.New()
	bus := events.NewBus(cfg.Server.SinkBuffer, m)
	connManager := events.NewConnectionManager(bus, cfg.Server.WSWriteTimeout, m)
	dlqRegistry := config.NewDLQRegistry(cfg.DLQ)

	dlqEngine := dlq.New(st, bus, m)
	workQueue := workqueue.New(cfg.WorkQueue, st, dlqEngine, bus, nil)
	fanOut := fanout.New(cfg.FanOut, st, dlqEngine, bus, nil)
	routingEngine := routing.New(st, bus, cfg.Routing)
	contentRouter := contentrouter.New(st, bus, cfg.ContentRules)
	requestReply := reqreply.New(st, bus, cfg.RequestReply)
	schedulerEngine := scheduler.New(st, cfg.Scheduler)
	pubsubEngine := pubsub.New(st, bus)
	streamMonitor := monitor.New(st, bus, cfg.Monitor)

	// 5. Start the long-lived workers.
	if err := dlqEngine.EnsureGroup(ctx, cfg.DLQ.Stream, cfg.DLQ.Group); err != nil {
		slog.Error("Failed to create dead-letter demo group", "error", err)
		os.Exit(1)
	}
	if err := workQueue.Start(ctx); err != nil {
		slog.Error("Failed to start work-queue engine", "error", err)
		os.Exit(1)
	}
	if err := fanOut.Start(ctx); err != nil {
		slog.Error("Failed to start fan-out engine", "error", err)
		os.Exit(1)
	}
	if err := streamMonitor.Start(ctx); err != nil {
		slog.Error("Failed to start stream monitor", "error", err)
		os.Exit(1)
	}
	poller := scheduler.NewPoller(st, schedulerEngine, bus, m)
	poller.Start(ctx)
	timeoutListener := reqreply.NewTimeoutListener(st, bus)
	timeoutListener.Start(ctx)
	patternBridge := pubsub.NewPatternBridge(st, bus, cfg.PubSub)
	patternBridge.Start(ctx)

	// 6. Wire and start the HTTP server.
	server := api.NewServer(api.Deps{
		Config:        cfg,
		Store:         st,
		Metrics:       m,
		ConnManager:   connManager,
		DLQRegistry:   dlqRegistry,
		DLQ:           dlqEngine,
		WorkQueue:     workQueue,
		FanOut:        fanOut,
		Routing:       routingEngine,
		ContentRouter: contentRouter,
		RequestReply:  requestReply,
		Scheduler:     schedulerEngine,
		PubSub:        pubsubEngine,
		Monitor:       streamMonitor,
	})
	if err := server.ValidateWiring(); err != nil {
		slog.Error("Server wiring incomplete", "error", err)
		os.Exit(1)
	}
	server.SetReady()

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		serverErr <- server.Start(addr)
	}()

	// 7. Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	// 8. Shut down in dependency order: HTTP drain, engines, observers,
	// event bus, store (deferred).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	workQueue.Stop()
	fanOut.Stop()
	poller.Stop()
	timeoutListener.Stop()
	patternBridge.Stop()
	streamMonitor.Stop()
	connManager.CloseAll()
	bus.Close()
	cancel()

	slog.Info("Relay stopped")
}

// connectStore dials the store with capped exponential backoff on
// connectivity failures.
func connectStore(ctx context.Context, cfg store.Config) (*store.Client, error) {
	retry := backoff.Default()
	var lastErr error
	for attempt := 1; attempt <= storeConnectAttempts; attempt++ {
		st, err := store.NewClient(ctx, cfg)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if !relayerr.IsRetryable(err) && relayerr.KindOf(err) != relayerr.KindTimeout {
			return nil, err
		}
		d := retry.Next()
		slog.Warn("Store not reachable, retrying",
			"attempt", attempt, "delay", d, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
	return nil, lastErr
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
