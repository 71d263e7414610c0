// Package metrics writes order counters to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
	"github.com/imrishuroy/go-orderdesk/internal/events"
)

// Metric names.
const (
	OrdersCreated   = "OrdersCreated"
	InvoiceWarnings = "InvoiceWarnings"
	OrdersImported  = "OrdersImported"
	OrdersRejected  = "OrdersRejected"
)

// Recorder batches counts into PutMetricData calls under one namespace.
type Recorder struct {
	cw        aws.CloudWatchAPI
	namespace string
	now       func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(cw aws.CloudWatchAPI, namespace string) *Recorder {
	return &Recorder{cw: cw, namespace: namespace, now: time.Now}
}

// Datum is one named count.
type Datum struct {
	Name  string
	Value float64
}

// FromEvent maps an order event to the counts it contributes.
func FromEvent(ev events.Event) []Datum {
	switch ev.Type {
	case events.TypeOrderCreated:
		out := []Datum{{Name: OrdersCreated, Value: 1}}
		if len(ev.Warnings) > 0 {
			out = append(out, Datum{Name: InvoiceWarnings, Value: float64(len(ev.Warnings))})
		}
		return out
	case events.TypeOrdersImported:
		return []Datum{
			{Name: OrdersImported, Value: float64(ev.Valid)},
			{Name: OrdersRejected, Value: float64(ev.Invalid)},
		}
	default:
		return nil
	}
}

// Put sends data as Count metrics. Empty input is a no-op.
func (r *Recorder) Put(ctx context.Context, data []Datum) error {
	if len(data) == 0 {
		return nil
	}
	ts := r.now()
	md := make([]cwtypes.MetricDatum, 0, len(data))
	for _, d := range data {
		md = append(md, cwtypes.MetricDatum{
			MetricName: awsString(d.Name),
			Value:      awsFloat(d.Value),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &ts,
		})
	}
	_, err := r.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &r.namespace,
		MetricData: md,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func awsString(s string) *string  { return &s }
func awsFloat(f float64) *float64 { return &f }
