package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
	"github.com/imrishuroy/go-orderdesk/internal/config"
	orderevents "github.com/imrishuroy/go-orderdesk/internal/events"
	"github.com/imrishuroy/go-orderdesk/internal/handlers"
	"github.com/imrishuroy/go-orderdesk/internal/idempotency"
	"github.com/imrishuroy/go-orderdesk/internal/invoice"
	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/notify"
	"github.com/imrishuroy/go-orderdesk/internal/orders"
	"github.com/imrishuroy/go-orderdesk/internal/service"
	"github.com/imrishuroy/go-orderdesk/internal/validation"
)

func setupRouter(cfg handlers.HandlerConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestContext(logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

// backend bundles the storage chosen by STORAGE_BACKEND.
type backend struct {
	orders      service.Repository
	items       service.Catalog
	idempotency idempotency.Keeper
	events      *orderevents.Publisher
}

func newBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return &backend{
			orders:      orders.NewMemStore(),
			items:       orders.NewMemItems(),
			idempotency: idempotency.NewMemStore(cfg.Storage.IdempotencyTTL),
			events:      orderevents.NewPublisher(nil, ""),
		}, nil
	}

	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		return nil, err
	}
	return &backend{
		orders:      orders.NewStore(clients.DynamoDB, cfg.Storage.OrdersTable),
		items:       orders.NewItemStore(clients.DynamoDB, cfg.Storage.ItemsTable),
		idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Storage.IdempotencyTable, cfg.Storage.IdempotencyTTL),
		events:      orderevents.NewPublisher(clients.SQS, cfg.Orders.QueueURL),
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		zap.NewExample().Fatal("init logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	b, err := newBackend(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to init storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if !dispatcher.Enabled() {
		logger.Warn("SMTP_HOST not set, invoice emails are disabled")
	}
	if !b.events.Enabled() {
		logger.Info("ORDERS_QUEUE_URL not set, order events are disabled")
	}

	v := validation.New()
	svc := service.New(service.Deps{
		Orders:        b.orders,
		Items:         b.items,
		Renderer:      invoice.NewRenderer(cfg.Invoice.Dir),
		Notifier:      dispatcher,
		Events:        b.events,
		Validate:      v,
		MaxIDAttempts: cfg.Orders.MaxIDAttempts,
	})

	r := setupRouter(handlers.HandlerConfig{
		Service:       svc,
		Idempotency:   b.idempotency,
		Validate:      v,
		MaxUploadSize: cfg.Upload.MaxFileSize,
	}, logger)

	// if RUN_LOCAL is set, serve HTTP directly for development.
	if cfg.Server.RunLocal {
		serve(r, cfg.Server, logger)
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight requests.
func serve(h http.Handler, cfg config.ServerConfig, logger *zap.Logger) {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("running local server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
