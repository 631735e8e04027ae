package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradewind/cmd/server/config"
	"tradewind/internal/adapters/rest"
	"tradewind/internal/events"
	"tradewind/internal/observability"
	"tradewind/internal/purchase"
	"tradewind/internal/purchase/gateway"
	"tradewind/internal/realtime"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	svcCfg, err := config.LoadServices()
	if err != nil {
		return err
	}

	var gw purchase.Gateway = gateway.New(gateway.Config{
		CatalogURL:   svcCfg.CatalogURL,
		PaymentsURL:  svcCfg.PaymentsURL,
		InventoryURL: svcCfg.InventoryURL,
		PurchasesURL: svcCfg.PurchasesURL,
		CallTimeout:  svcCfg.CallTimeout,
	}, logger)

	relCfg, err := purchase.LoadReliabilityFromEnv()
	if err != nil {
		return err
	}
	if relCfg.Enabled() {
		logger.Info("gateway reliability wrapper enabled",
			zap.Int("retry_max_attempts", relCfg.RetryMaxAttempts),
			zap.Int("breaker_max_failures", relCfg.BreakerMaxFailures),
		)
		gw = relCfg.WrapGateway(gw)
	}

	recorder, cleanupRecorder := purchase.BuildRecorder(ctx, os.Getenv("DATABASE_URL"), logger)
	defer cleanupRecorder()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	hub := realtime.NewHub()
	go hub.Run(ctx)

	notifier, cleanupEvents, err := buildNotifier(hub, logger)
	if err != nil {
		return err
	}
	defer cleanupEvents()

	orchestrator := purchase.NewOrchestrator(gw, logger, recorder, metrics, notifier)

	mux := http.NewServeMux()
	rest.NewHandler(orchestrator, hub, logger).Register(mux)

	serverCfg := config.LoadServer()
	srv := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: mux,
	}

	obsSrv := startObservabilityServer(registry, logger)

	logger.Info("purchase orchestrator listening", zap.String("addr", serverCfg.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if obsSrv != nil {
			_ = obsSrv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// buildNotifier wires the outcome event fanout: the websocket hub always,
// Redis and Kafka only when configured.
func buildNotifier(hub *realtime.Hub, logger *zap.Logger) (*events.Notifier, func(), error) {
	cleanup := func() {}
	sinks := []events.Publisher{events.NewHubPublisher(hub)}

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return nil, cleanup, err
	}
	if redisCfg.Enabled() {
		opts, err := redis.ParseURL(redisCfg.URL)
		if err != nil {
			return nil, cleanup, err
		}
		client := redis.NewClient(opts)
		sinks = append(sinks, events.NewRedisPublisher(client, redisCfg.Stream, redisCfg.StreamMaxLen))
		logger.Info("redis outcome stream enabled", zap.String("stream", redisCfg.Stream))
		prev := cleanup
		cleanup = func() {
			prev()
			if err := client.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}
	}

	kafkaCfg := config.LoadKafka()
	if kafkaCfg.Enabled() {
		writer := events.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.Topic)
		if writer != nil {
			sinks = append(sinks, events.NewKafkaPublisher(writer))
			logger.Info("kafka outcome topic enabled", zap.String("topic", writer.Topic))
			prev := cleanup
			cleanup = func() {
				prev()
				if err := writer.Close(); err != nil {
					logger.Warn("close kafka writer", zap.Error(err))
				}
			}
		}
	}

	return events.NewNotifier(events.NewFanoutPublisher(sinks...), logger), cleanup, nil
}

func startObservabilityServer(registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	cfg := config.LoadObservability()
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(registry))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("observability server error", zap.Error(err))
		}
	}()

	return srv
}
