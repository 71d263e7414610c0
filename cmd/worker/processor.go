package main

import (
	"context"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/events"
	"github.com/imrishuroy/go-orderdesk/internal/metrics"
)

// Processor turns order events from SQS into CloudWatch counts.
type Processor struct {
	sink MetricsSink
	log  *zap.Logger
}

// NewProcessor creates a Processor writing to sink.
func NewProcessor(sink MetricsSink, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{sink: sink, log: log}
}

// Handle processes an SQS batch. Messages whose metrics could not be written
// are reported back as batch item failures so only they are redelivered.
// Undecodable messages are logged and dropped: redelivery would not fix them.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	p.log.Debug("received sqs batch", zap.Int("records", len(ev.Records)))

	for _, rec := range ev.Records {
		log := p.log.With(zap.String("message_id", rec.MessageId))

		msg, err := events.Decode(rec.Body)
		if err != nil {
			log.Error("dropping undecodable event", zap.Error(err))
			continue
		}
		log = log.With(zap.String("event_id", msg.ID), zap.String("event_type", msg.Type))

		data := metrics.FromEvent(msg)
		if len(data) == 0 {
			log.Warn("ignoring unknown event type")
			continue
		}
		if err := p.sink.Put(ctx, data); err != nil {
			log.Error("record metrics failed", zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			continue
		}
		log.Info("event recorded", zap.String("order_id", msg.OrderID))
	}
	return resp, nil
}
