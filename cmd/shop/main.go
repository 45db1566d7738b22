package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-orderflow/internal/catalog"
	"github.com/joao-fontenele/storefront-orderflow/internal/config"
	"github.com/joao-fontenele/storefront-orderflow/internal/customorders"
	"github.com/joao-fontenele/storefront-orderflow/internal/messaging"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
	"github.com/joao-fontenele/storefront-orderflow/internal/webhooks"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	config.Load()
	cfg, err := config.LoadShop()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	providers, err := telemetry.Setup(ctx, "shop", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = providers.Shutdown(ctx) }()

	db, err := telemetry.OpenDB(ctx, "postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var dedup webhooks.Deduper
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, webhook dedup degraded", "error", err)
		}
		dedup = webhooks.NewRedisDeduper(rdb)
	}

	var engineOpts []orders.Option
	var workflowOpts []customorders.Option
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		defer func() { _ = producer.Close() }()
		engineOpts = append(engineOpts, orders.WithPublisher(producer))
		workflowOpts = append(workflowOpts, customorders.WithPublisher(producer))
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events will not be published")
	}

	httpClient := &http.Client{
		Timeout:   cfg.GatewayTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	var stripeOpts []payments.StripeOption
	if cfg.StripeAPIURL != "" {
		stripeOpts = append(stripeOpts, payments.WithBaseURL(cfg.StripeAPIURL))
	}
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, httpClient, logger, stripeOpts...)

	productRepo := catalog.NewProductRepository(db)
	catalogService := catalog.NewService(productRepo, gateway, logger, cfg.GatewayTimeout)

	engineOpts = append(engineOpts,
		orders.WithGatewayTimeout(cfg.GatewayTimeout),
		orders.WithCheckoutURLs(cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
	)
	engine := orders.NewEngine(orders.NewOrderRepository(db), productRepo, gateway, logger, engineOpts...)

	workflowOpts = append(workflowOpts, customorders.WithGatewayTimeout(cfg.GatewayTimeout))
	workflow := customorders.NewWorkflow(customorders.NewRequestRepository(db), engine, gateway, logger, workflowOpts...)

	dispatcher := webhooks.NewDispatcher(gateway, cfg.StripeWebhookKey, engine, workflow, dedup, logger)

	catalogHandler := catalog.NewHandler(catalogService, logger)
	ordersHandler := orders.NewHandler(engine, logger)
	customHandler := customorders.NewHandler(workflow, logger)
	webhookHandler := webhooks.NewHandler(dispatcher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleListPublic))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGetPublic))
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(ordersHandler.HandleCheckout))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("POST /custom-orders", telemetry.WithHTTPRoute(customHandler.HandleSubmit))
	mux.HandleFunc("POST /webhooks/stripe", telemetry.WithHTTPRoute(webhookHandler.HandleStripe))

	mux.HandleFunc("GET /admin/products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("POST /admin/products", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	mux.HandleFunc("PATCH /admin/products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleUpdate))
	mux.HandleFunc("POST /admin/products/{id}/sync", telemetry.WithHTTPRoute(catalogHandler.HandleSync))
	mux.HandleFunc("POST /admin/products/{id}/archive", telemetry.WithHTTPRoute(catalogHandler.HandleArchive))
	mux.HandleFunc("DELETE /admin/products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleDelete))

	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("POST /admin/orders", telemetry.WithHTTPRoute(ordersHandler.HandleCreate))
	mux.HandleFunc("GET /admin/orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("PATCH /admin/orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /admin/orders/{id}/fulfill", telemetry.WithHTTPRoute(ordersHandler.HandleFulfill))

	mux.HandleFunc("GET /admin/custom-orders", telemetry.WithHTTPRoute(customHandler.HandleList))
	mux.HandleFunc("GET /admin/custom-orders/{id}", telemetry.WithHTTPRoute(customHandler.HandleGet))
	mux.HandleFunc("POST /admin/custom-orders/{id}/quote", telemetry.WithHTTPRoute(customHandler.HandleQuote))
	mux.HandleFunc("POST /admin/custom-orders/{id}/approve", telemetry.WithHTTPRoute(customHandler.HandleApprove))
	mux.HandleFunc("POST /admin/custom-orders/{id}/payment-link", telemetry.WithHTTPRoute(customHandler.HandlePaymentLink))
	mux.HandleFunc("POST /admin/custom-orders/{id}/reject", telemetry.WithHTTPRoute(customHandler.HandleReject))
	mux.HandleFunc("POST /admin/custom-orders/{id}/cancel", telemetry.WithHTTPRoute(customHandler.HandleCancel))
	mux.HandleFunc("POST /admin/custom-orders/{id}/notes", telemetry.WithHTTPRoute(customHandler.HandleAddNote))
	mux.HandleFunc("POST /admin/custom-orders/{id}/confirm-payment", telemetry.WithHTTPRoute(customHandler.HandleConfirmPayment))

	mux.Handle("GET /metrics", providers.MetricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "shop", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.GatewayTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting shop service", "port", cfg.Port)
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
