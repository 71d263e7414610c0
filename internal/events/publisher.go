// Package events publishes order lifecycle events to SQS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
)

// Event types.
const (
	TypeOrderCreated   = "order.created"
	TypeOrdersImported = "orders.imported"
)

// Event is the message body sent to the queue.
type Event struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	// order.created
	OrderID  string   `json:"order_id,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// orders.imported
	Valid   int `json:"valid,omitempty"`
	Invalid int `json:"invalid,omitempty"`
}

// Publisher wraps an SQS client and a queue URL. With no queue URL it drops events.
type Publisher struct {
	sqs      aws.SQSAPI
	queueURL string
	now      func() time.Time
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient aws.SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      sqsClient,
		queueURL: queueURL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether events are sent anywhere.
func (p *Publisher) Enabled() bool { return p != nil && p.sqs != nil && p.queueURL != "" }

// OrderCreated announces a newly created order and the side effects that failed for it.
func (p *Publisher) OrderCreated(ctx context.Context, orderID string, warnings []string) error {
	return p.Publish(ctx, Event{Type: TypeOrderCreated, OrderID: orderID, Warnings: warnings})
}

// OrdersImported announces the outcome of a bulk import.
func (p *Publisher) OrdersImported(ctx context.Context, valid, invalid int) error {
	return p.Publish(ctx, Event{Type: TypeOrdersImported, Valid: valid, Invalid: invalid})
}

// Publish sends ev as JSON, filling in its id and timestamp. The event type is
// also sent as a message attribute so consumers can filter without decoding.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if !p.Enabled() {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := string(body)

	_, err = p.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &msg,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {
				DataType:    awsString("String"),
				StringValue: awsString(ev.Type),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send %s event: %w", ev.Type, err)
	}
	return nil
}

// Decode parses a message body produced by Publish.
func Decode(body string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}

func awsString(s string) *string { return &s }
