package payroll

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
)

// Run batches pending ledger entries for payout. It references entries; it
// does not own them.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	Status      Status          `json:"status"`
	PeriodEnd   time.Time       `json:"period_end"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	EntryIDs    []uuid.UUID     `json:"entry_ids"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy  string          `json:"approved_by,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusVoid     Status = "void"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusPaid, StatusVoid:
		return true
	}
	return false
}

// NewRun snapshots the given pending entries into a draft run.
func NewRun(entries []*commission.LedgerEntry, periodEnd time.Time, createdBy string) (*Run, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no pending commission entries to batch")
	}
	total := decimal.Zero
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if e.Status != commission.EntryStatusPending {
			return nil, fmt.Errorf("entry %s is %s, only pending entries can be batched", e.ID, e.Status)
		}
		total = total.Add(e.CommissionAmount)
		ids = append(ids, e.ID)
	}
	return &Run{
		ID:          uuid.New(),
		Status:      StatusDraft,
		PeriodEnd:   periodEnd,
		TotalPayout: total,
		EntryIDs:    ids,
		CreatedBy:   createdBy,
		CreatedAt:   clock.Now(),
	}, nil
}

// Approve moves a draft run to approved.
func (r *Run) Approve(by string) error {
	if r.Status != StatusDraft {
		return fmt.Errorf("cannot approve payroll run in %s status", r.Status)
	}
	now := clock.Now()
	r.Status = StatusApproved
	r.ApprovedAt = &now
	r.ApprovedBy = by
	return nil
}

// MarkPaid moves an approved run to the terminal paid status.
func (r *Run) MarkPaid() error {
	if r.Status != StatusApproved {
		return fmt.Errorf("cannot pay payroll run in %s status", r.Status)
	}
	now := clock.Now()
	r.Status = StatusPaid
	r.PaidAt = &now
	return nil
}

// Void releases a draft or approved run's entries for a later run.
func (r *Run) Void() error {
	if r.Status != StatusDraft && r.Status != StatusApproved {
		return fmt.Errorf("cannot void payroll run in %s status", r.Status)
	}
	now := clock.Now()
	r.Status = StatusVoid
	r.VoidedAt = &now
	return nil
}

// ApprovalLatency is the time between creation and approval.
func (r *Run) ApprovalLatency() (time.Duration, bool) {
	if r.ApprovedAt == nil {
		return 0, false
	}
	return r.ApprovedAt.Sub(r.CreatedAt), true
}
