// Package events publishes ledger changes for downstream consumers
// (accounting exports, seller notifications).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TransactionVerified = "transaction.verified"
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalProcessed = "withdrawal.processed"
)

const producerName = "kantin"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a version 1 envelope. correlationID groups the events
// of one order or withdrawal and doubles as the partition key.
func New(eventType, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
