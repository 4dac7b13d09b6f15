package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// Adjustment is a signed correction to a user's commission total. Refunds and
// lost disputes produce negative adjustments; ledger entries are never edited
// or deleted.
type Adjustment struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	LedgerEntryID *uuid.UUID      `json:"ledger_entry_id,omitempty"`
	PaymentID     *uuid.UUID      `json:"payment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	// SourceKey is unique per adjustment; re-processing the same event
	// produces the same key and is dropped.
	SourceKey string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewReversal builds the negative adjustment that claws back amount of an entry.
func NewReversal(entry *LedgerEntry, amount decimal.Decimal, reason, sourceKey string) (*Adjustment, error) {
	if entry == nil {
		return nil, fmt.Errorf("ledger entry is required")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("reversal amount must be positive")
	}
	if sourceKey == "" {
		return nil, fmt.Errorf("source key is required")
	}
	entryID, paymentID := entry.ID, entry.PaymentID
	return &Adjustment{
		ID:            uuid.New(),
		UserID:        entry.UserID,
		LedgerEntryID: &entryID,
		PaymentID:     &paymentID,
		Amount:        amount.Neg(),
		Reason:        reason,
		SourceKey:     sourceKey,
		CreatedAt:     clock.Now(),
	}, nil
}

// Statement nets a user's entries and adjustments at reporting time.
type Statement struct {
	UserID          uuid.UUID       `json:"user_id"`
	EntryCount      int             `json:"entry_count"`
	GrossCommission decimal.Decimal `json:"gross_commission"`
	Adjustments     decimal.Decimal `json:"adjustments"`
	NetCommission   decimal.Decimal `json:"net_commission"`
	PaidOut         decimal.Decimal `json:"paid_out"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}

// BuildStatement sums entries and adjustments for one user.
func BuildStatement(userID uuid.UUID, entries []*LedgerEntry, adjustments []*Adjustment) *Statement {
	st := &Statement{
		UserID:          userID,
		GrossCommission: decimal.Zero,
		Adjustments:     decimal.Zero,
		PaidOut:         decimal.Zero,
	}
	for _, e := range entries {
		st.EntryCount++
		st.GrossCommission = st.GrossCommission.Add(e.CommissionAmount)
		if e.Status == EntryStatusPaid {
			st.PaidOut = st.PaidOut.Add(e.CommissionAmount)
		}
	}
	for _, a := range adjustments {
		st.Adjustments = st.Adjustments.Add(a.Amount)
	}
	st.NetCommission = st.GrossCommission.Add(st.Adjustments)
	st.Outstanding = st.NetCommission.Sub(st.PaidOut)
	return st
}
