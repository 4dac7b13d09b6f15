package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
)

// Notification event types published for downstream consumers.
const (
	TypeClientActivated      = "client.activated"
	TypePaymentRecorded      = "payment.recorded"
	TypeInvoicePaymentFailed = "invoice.payment_failed"
	TypePaymentDisputed      = "payment.disputed"
)

// EnvelopeVersion is bumped when Data changes shape incompatibly.
const EnvelopeVersion = "1"

// Envelope wraps an outbound event with routing metadata.
type Envelope struct {
	EventID       uuid.UUID      `json:"event_id"`
	EventType     string         `json:"event_type"`
	Version       string         `json:"version"`
	Timestamp     time.Time      `json:"timestamp"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	Data          map[string]any `json:"data"`
}

// NewEnvelope stamps an event id and the current version.
func NewEnvelope(eventType, aggregateType, aggregateID string, at time.Time, data map[string]any) *Envelope {
	return &Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		Version:       EnvelopeVersion,
		Timestamp:     at.UTC(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Data:          data,
	}
}

// Serialize encodes the envelope as JSON.
func (e *Envelope) Serialize() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.NewInternalError("failed to serialize event").WithCause(err)
	}
	return data, nil
}

// DecodeEnvelope is the inverse of Serialize.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.NewValidationError("INVALID_EVENT_ENVELOPE", "failed to unmarshal event envelope").WithCause(err)
	}
	return &e, nil
}
