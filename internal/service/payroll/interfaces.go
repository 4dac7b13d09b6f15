package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
)

// Service batches pending commission into payroll runs and drives their
// approval lifecycle.
type Service interface {
	// CreateRun batches every pending entry not already in a live run and
	// created before periodEnd. The returned job records the batch outcome.
	CreateRun(ctx context.Context, periodEnd time.Time, createdBy string) (*payroll.Run, *jobs.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
	Approve(ctx context.Context, id uuid.UUID, by string) (*payroll.Run, error)
	// MarkPaid closes the run and flags its entries paid.
	MarkPaid(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
	// Void closes the run and releases its entries for a later run.
	Void(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
}

// Repository persists runs and their entry membership. CreatePayrollRun must
// fail with a conflict when an entry already belongs to a live run.
type Repository interface {
	ListUnbatchedPendingEntries(ctx context.Context, before time.Time) ([]*commission.LedgerEntry, error)
	CreatePayrollRun(ctx context.Context, run *payroll.Run) error
	GetPayrollRun(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
	UpdatePayrollRun(ctx context.Context, run *payroll.Run) error
	ReleasePayrollEntries(ctx context.Context, runID uuid.UUID) error
	MarkEntriesPaid(ctx context.Context, entryIDs []uuid.UUID, at time.Time) error
}

// JobTracker records the batch job.
type JobTracker interface {
	Create(ctx context.Context, kind string) (*jobs.Job, error)
	Start(ctx context.Context, id string) (*jobs.Job, error)
	Complete(ctx context.Context, id string, result map[string]any) (*jobs.Job, error)
	Fail(ctx context.Context, id string, cause error) (*jobs.Job, error)
}

// MetricsCollector records payroll transitions.
type MetricsCollector interface {
	RecordPayrollTransition(status string)
	RecordApprovalLatency(d time.Duration)
}
