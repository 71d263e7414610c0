package main

import (
	"context"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
	"github.com/imrishuroy/go-orderdesk/internal/config"
	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/metrics"
)

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

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}
	p := NewProcessor(metrics.NewRecorder(clients.CloudWatch, cfg.Metrics.Namespace), logger)

	// RUN_LOCAL simulates a single SQS delivery, body from LOCAL_SQS_BODY.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = sampleEvent
		}
		ev := lambdaevents.SQSEvent{Records: []lambdaevents.SQSMessage{{MessageId: "local", Body: body}}}
		resp, err := p.Handle(context.Background(), ev)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler error", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
