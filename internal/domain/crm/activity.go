package crm

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// ActivityType classifies an activity-log row.
type ActivityType string

const (
	ActivityLeadCreated ActivityType = "lead_created"
	ActivityConversion  ActivityType = "conversion"
	ActivityPayment     ActivityType = "payment"
	ActivityRefund      ActivityType = "refund"
	ActivityDispute     ActivityType = "dispute"
)

// ActivityLog is a timeline entry attached to a lead, a client or both.
type ActivityLog struct {
	ID          uuid.UUID    `json:"id"`
	ClientID    *uuid.UUID   `json:"client_id,omitempty"`
	LeadID      *uuid.UUID   `json:"lead_id,omitempty"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	// DedupeKey makes a write idempotent when set; a second write with the
	// same key is dropped.
	DedupeKey  string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewClientActivity builds an activity row for a client.
func NewClientActivity(clientID uuid.UUID, t ActivityType, description string, occurredAt time.Time) *ActivityLog {
	if occurredAt.IsZero() {
		occurredAt = clock.Now()
	}
	id := clientID
	return &ActivityLog{
		ID:          uuid.New(),
		ClientID:    &id,
		Type:        t,
		Description: description,
		OccurredAt:  occurredAt,
		CreatedAt:   clock.Now(),
	}
}

// WithDedupeKey sets the idempotency key and returns the log for chaining.
func (a *ActivityLog) WithDedupeKey(key string) *ActivityLog {
	a.DedupeKey = key
	return a
}

// LeadNotePrefix marks client notes copied from a lead description.
const LeadNotePrefix = "[Lead Note]"

// ClientNote is a free-text note on a client.
type ClientNote struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	Body      string    `json:"body"`
	SourceKey string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLeadNote copies a lead's description into a client note. The source key
// ties the note to the lead so it is written once.
func NewLeadNote(clientID uuid.UUID, lead *Lead) *ClientNote {
	return &ClientNote{
		ID:        uuid.New(),
		ClientID:  clientID,
		Body:      fmt.Sprintf("%s %s", LeadNotePrefix, lead.Description),
		SourceKey: "lead:" + lead.ID.String(),
		CreatedAt: clock.Now(),
	}
}
