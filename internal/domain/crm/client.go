package crm

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// Client is a paying customer of the coaching business.
type Client struct {
	ID                  uuid.UUID    `json:"id"`
	Name                string       `json:"name"`
	Email               string       `json:"email"`
	Phone               string       `json:"phone,omitempty"`
	CustomerID          string       `json:"customer_id,omitempty"`
	Status              ClientStatus `json:"status"`
	ClientType          string       `json:"client_type,omitempty"`
	AssignedCoachID     *uuid.UUID   `json:"assigned_coach_id,omitempty"`
	LeadSource          LeadSource   `json:"lead_source"`
	IsResign            bool         `json:"is_resign"`
	SoldByUserID        *uuid.UUID   `json:"sold_by_user_id,omitempty"`
	AppointmentSetterID *uuid.UUID   `json:"appointment_setter_id,omitempty"`
	// LeadID is set when the client was created by converting a lead. At most
	// one client exists per lead.
	LeadID       *uuid.UUID          `json:"lead_id,omitempty"`
	CoachHistory []CoachHistoryEntry `json:"coach_history,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type ClientStatus string

const (
	ClientStatusOnboarding ClientStatus = "onboarding"
	ClientStatusActive     ClientStatus = "active"
	ClientStatusInactive   ClientStatus = "inactive"
	ClientStatusLost       ClientStatus = "lost"
)

func (s ClientStatus) IsValid() bool {
	switch s {
	case ClientStatusOnboarding, ClientStatusActive, ClientStatusInactive, ClientStatusLost:
		return true
	}
	return false
}

// LeadSource drives the coach commission rate.
type LeadSource string

const (
	LeadSourceCoachDriven   LeadSource = "coach_driven"
	LeadSourceCompanyDriven LeadSource = "company_driven"
)

func (s LeadSource) IsValid() bool {
	return s == LeadSourceCoachDriven || s == LeadSourceCompanyDriven
}

// CoachHistoryEntry records a coach assignment period. EndedAt is nil for the
// current assignment.
type CoachHistoryEntry struct {
	CoachID   uuid.UUID  `json:"coach_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewClientFromLead builds the client a converted lead becomes. Lead source is
// always company_driven and the coach history starts with one open entry when
// the lead had a coach assigned.
func NewClientFromLead(lead *Lead, customerID string) (*Client, error) {
	if lead == nil {
		return nil, fmt.Errorf("lead is required")
	}
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		return nil, fmt.Errorf("lead %s has no name", lead.ID)
	}

	now := clock.Now()
	leadID := lead.ID
	c := &Client{
		ID:                  uuid.New(),
		Name:                name,
		Email:               strings.TrimSpace(lead.Email),
		Phone:               lead.Phone,
		CustomerID:          customerID,
		Status:              ClientStatusOnboarding,
		ClientType:          lead.ClientType,
		AssignedCoachID:     lead.AssignedCoachID,
		LeadSource:          LeadSourceCompanyDriven,
		SoldByUserID:        lead.SoldByUserID,
		AppointmentSetterID: lead.AppointmentSetterID,
		LeadID:              &leadID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if lead.AssignedCoachID != nil {
		c.CoachHistory = []CoachHistoryEntry{{CoachID: *lead.AssignedCoachID, StartedAt: now}}
	}
	return c, nil
}

// OpenCoachEntry returns the current coach assignment, if any.
func (c *Client) OpenCoachEntry() *CoachHistoryEntry {
	for i := range c.CoachHistory {
		if c.CoachHistory[i].EndedAt == nil {
			return &c.CoachHistory[i]
		}
	}
	return nil
}

// Reactivate moves an inactive or lost client back to active. Onboarding and
// active clients are left alone. It reports whether the status changed.
func (c *Client) Reactivate() bool {
	switch c.Status {
	case ClientStatusInactive, ClientStatusLost:
		c.Status = ClientStatusActive
		c.UpdatedAt = clock.Now()
		return true
	}
	return false
}
