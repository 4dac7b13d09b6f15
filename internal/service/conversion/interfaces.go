package conversion

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
)

// ClientRepository creates and reads clients.
type ClientRepository interface {
	GetClient(ctx context.Context, id uuid.UUID) (*crm.Client, error)
	GetClientByLeadID(ctx context.Context, leadID uuid.UUID) (*crm.Client, error)
	// CreateClient inserts the client and its coach history. When a client for
	// the same lead already exists it returns that one and false.
	CreateClient(ctx context.Context, c *crm.Client) (*crm.Client, bool, error)
	UpdateClientStatus(ctx context.Context, id uuid.UUID, status crm.ClientStatus) error
}

// LeadRepository reads and updates leads.
type LeadRepository interface {
	GetLead(ctx context.Context, id uuid.UUID) (*crm.Lead, error)
	BackfillLeadCustomerID(ctx context.Context, leadID uuid.UUID, customerID string) error
	MarkLeadConverted(ctx context.Context, lead *crm.Lead) error
}

// ActivityRepository writes the client timeline and notes.
type ActivityRepository interface {
	// CreateActivity drops the row when its dedupe key was already used and
	// reports whether it was inserted.
	CreateActivity(ctx context.Context, a *crm.ActivityLog) (bool, error)
	HasClientActivity(ctx context.Context, clientID uuid.UUID, t crm.ActivityType) (bool, error)
	ReparentLeadActivity(ctx context.Context, leadID, clientID uuid.UUID) (int64, error)
	CreateNote(ctx context.Context, n *crm.ClientNote) (bool, error)
}

// ScheduleLinker attaches a client to a payment schedule.
type ScheduleLinker interface {
	LinkClient(ctx context.Context, scheduleID string, clientID uuid.UUID) error
}

// TaskSeeder seeds onboarding tasks for a client.
type TaskSeeder interface {
	Seed(ctx context.Context, client *crm.Client) (int, error)
}
