package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/stockflow/internal/config"
	"github.com/joao-fontenele/stockflow/internal/domain"
	"github.com/joao-fontenele/stockflow/internal/inventory"
	"github.com/joao-fontenele/stockflow/internal/messaging"
	"github.com/joao-fontenele/stockflow/internal/stock"
	"github.com/joao-fontenele/stockflow/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "inventory-service", "1.0.0")
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	stockRepo := stock.NewRepository(db)
	stockHandler := stock.NewHandler(stockRepo, logger)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := messaging.NewConsumer(cfg.KafkaBrokers, domain.TopicProductEvents, cfg.ConsumerGroup)
		defer func() { _ = consumer.Close() }()

		productHandler := inventory.NewProductEventHandler(stockRepo, cfg.LowStockThreshold, logger)

		go func() {
			logger.Info("consuming product events", "topic", domain.TopicProductEvents, "group", cfg.ConsumerGroup)
			if err := consumer.Consume(ctx, productHandler.Handle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stock", telemetry.WithHTTPRoute(stockHandler.HandleList))
	mux.HandleFunc("GET /stock/low", telemetry.WithHTTPRoute(stockHandler.HandleListLow))
	mux.HandleFunc("GET /stock/{variantId}", telemetry.WithHTTPRoute(stockHandler.HandleGet))
	mux.HandleFunc("GET /stock/{variantId}/movements", telemetry.WithHTTPRoute(stockHandler.HandleListMovements))
	mux.HandleFunc("POST /stock/{variantId}/adjust", telemetry.WithHTTPRoute(stockHandler.HandleAdjust))
	mux.HandleFunc("POST /stock/{variantId}/reserve", telemetry.WithHTTPRoute(stockHandler.HandleReserve))
	mux.HandleFunc("POST /stock/{variantId}/release", telemetry.WithHTTPRoute(stockHandler.HandleRelease))

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "inventory",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting inventory service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
