package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-orderflow/internal/config"
	"github.com/joao-fontenele/storefront-orderflow/internal/gateway"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	config.Load()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := config.Getenv("PORT", "8080")

	shopServiceURL, err := config.Require("SHOP_SERVICE_URL")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	handler := gateway.NewHandler(gateway.NewServiceProxy(shopServiceURL, httpClient), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc("POST /custom-orders", telemetry.WithHTTPRoute(handler.HandleStorefront))
	mux.HandleFunc("POST /webhooks/stripe", telemetry.WithHTTPRoute(handler.HandleWebhook))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      otelhttp.NewHandler(mux, "gateway", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
