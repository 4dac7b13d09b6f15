package crm

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// Lead is a prospective client tracked before a sale closes.
type Lead struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email,omitempty"`
	Phone               string     `json:"phone,omitempty"`
	Status              LeadStatus `json:"status"`
	Description         string     `json:"description,omitempty"`
	CustomerID          string     `json:"customer_id,omitempty"`
	ClientType          string     `json:"client_type,omitempty"`
	AssignedCoachID     *uuid.UUID `json:"assigned_coach_id,omitempty"`
	SoldByUserID        *uuid.UUID `json:"sold_by_user_id,omitempty"`
	AppointmentSetterID *uuid.UUID `json:"appointment_setter_id,omitempty"`
	ConvertedAt         *time.Time `json:"converted_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type LeadStatus string

const (
	LeadStatusNew        LeadStatus = "new"
	LeadStatusContacted  LeadStatus = "contacted"
	LeadStatusApptSet    LeadStatus = "appt_set"
	LeadStatusClosedWon  LeadStatus = "closed_won"
	LeadStatusClosedLost LeadStatus = "closed_lost"
	LeadStatusConverted  LeadStatus = "converted"
)

func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusApptSet,
		LeadStatusClosedWon, LeadStatusClosedLost, LeadStatusConverted:
		return true
	}
	return false
}

// IsConverted reports whether the lead has already become a client.
func (l *Lead) IsConverted() bool {
	return l.Status == LeadStatusConverted
}

// MarkConverted sets the terminal converted status. Converting twice is a no-op.
func (l *Lead) MarkConverted() error {
	if l.IsConverted() {
		return nil
	}
	if l.Status == LeadStatusClosedLost {
		return fmt.Errorf("lead %s is closed_lost and cannot be converted", l.ID)
	}
	now := clock.Now()
	l.Status = LeadStatusConverted
	l.ConvertedAt = &now
	l.UpdatedAt = now
	return nil
}
