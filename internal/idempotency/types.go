package idempotency

import (
	"context"
	"errors"
	"time"
)

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// ErrKeyReused is returned when a key is presented again with a different request body.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	RequestHash    string    `dynamodbav:"request_hash"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Keeper guards order creation against duplicate submissions.
//
// Claim takes ownership of key for a request whose body hashes to requestHash.
// claimed is true when the caller should go ahead; otherwise rec holds the
// existing entry (IN_PROGRESS or DONE). A key whose previous attempt FAILED, or
// whose entry has expired, can be claimed again.
type Keeper interface {
	Claim(ctx context.Context, key, requestHash string) (claimed bool, rec *Record, err error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}
