// Command stubs runs local stand-ins for the four downstream services so the
// orchestrator can be exercised end to end without real collaborators.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tradewind/internal/stubs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
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
		logger.Fatal("stub server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	latency, err := loadLatency()
	if err != nil {
		return err
	}

	services := []struct {
		name    string
		addr    string
		rate    float64
		rateEnv string
		build   func(stubs.Options) http.Handler
	}{
		{"catalog", envAddr("STUB_CATALOG_ADDR", ":3001"), 1.0, "STUB_CATALOG_SUCCESS_RATE", stubs.NewCatalogHandler},
		{"payments", envAddr("STUB_PAYMENTS_ADDR", ":3002"), 0.7, "STUB_PAYMENTS_SUCCESS_RATE", stubs.NewPaymentsHandler},
		{"inventory", envAddr("STUB_INVENTORY_ADDR", ":3003"), 0.6, "STUB_INVENTORY_SUCCESS_RATE", stubs.NewInventoryHandler},
		{"purchases", envAddr("STUB_PURCHASES_ADDR", ":3004"), 0.8, "STUB_PURCHASES_SUCCESS_RATE", stubs.NewPurchasesHandler},
	}

	errCh := make(chan error, len(services))
	servers := make([]*http.Server, 0, len(services))

	for _, svc := range services {
		rate, err := envRate(svc.rateEnv, svc.rate)
		if err != nil {
			return err
		}
		handler := svc.build(stubs.Options{
			Decide:  stubs.RateDecider(rate),
			Latency: latency,
			Log:     logger.With(zap.String("service", svc.name)),
		})
		srv := &http.Server{Addr: svc.addr, Handler: handler}
		servers = append(servers, srv)
		logger.Info("stub listening", zap.String("service", svc.name), zap.String("addr", svc.addr))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func envAddr(name, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func envRate(name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 || val > 1 {
		return 0, fmt.Errorf("%s must be between 0 and 1", name)
	}
	return val, nil
}

// loadLatency enables simulated latency when STUB_LATENCY is set, matching
// the jittered delays the real collaborators exhibit.
func loadLatency() (func() time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv("STUB_LATENCY"))
	if raw == "" {
		return nil, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("STUB_LATENCY: %w", err)
	}
	if !enabled {
		return nil, nil
	}
	return stubs.JitterLatency(500*time.Millisecond, time.Second), nil
}
