// Package memstore is an in-memory implementation of every repository
// interface the services declare. It enforces the same uniqueness keys as the
// PostgreSQL schema so tests can assert idempotence end to end.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// referralKey mirrors the one-referrer-bonus-per-schedule unique index.
type referralKey struct {
	scheduleID string
	userID     uuid.UUID
}

type entryKey struct {
	paymentID uuid.UUID
	userID    uuid.UUID
	role      schedule.Role
}

type taskKey struct {
	clientID       uuid.UUID
	templateTaskID uuid.UUID
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	clients    map[uuid.UUID]*crm.Client
	leads      map[uuid.UUID]*crm.Lead
	activities []*crm.ActivityLog
	dedupeKeys map[string]bool
	notes      map[string]*crm.ClientNote
	templates  []*crm.TaskTemplate
	tasks      map[taskKey]*crm.OnboardingTask

	schedules map[string]*schedule.PaymentSchedule
	charges   map[uuid.UUID]*schedule.ScheduledCharge

	payments   map[string]*payment.Payment
	paymentIDs map[uuid.UUID]string

	profiles    map[uuid.UUID]*commission.Profile
	entries     []*commission.LedgerEntry
	entryKeys   map[entryKey]bool
	referrals   map[referralKey]bool
	adjustments []*commission.Adjustment
	sourceKeys  map[string]bool
	subConfigs  map[string]*commission.SubscriptionConfig

	runs       map[uuid.UUID]*payroll.Run
	runEntries map[uuid.UUID]uuid.UUID
}

func New() *Store {
	return &Store{
		clients:    make(map[uuid.UUID]*crm.Client),
		leads:      make(map[uuid.UUID]*crm.Lead),
		dedupeKeys: make(map[string]bool),
		notes:      make(map[string]*crm.ClientNote),
		tasks:      make(map[taskKey]*crm.OnboardingTask),
		schedules:  make(map[string]*schedule.PaymentSchedule),
		charges:    make(map[uuid.UUID]*schedule.ScheduledCharge),
		payments:   make(map[string]*payment.Payment),
		paymentIDs: make(map[uuid.UUID]string),
		profiles:   make(map[uuid.UUID]*commission.Profile),
		entryKeys:  make(map[entryKey]bool),
		referrals:  make(map[referralKey]bool),
		sourceKeys: make(map[string]bool),
		subConfigs: make(map[string]*commission.SubscriptionConfig),
		runs:       make(map[uuid.UUID]*payroll.Run),
		runEntries: make(map[uuid.UUID]uuid.UUID),
	}
}

// Seed helpers

func (s *Store) PutClient(c *crm.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = copyClient(c)
}

func (s *Store) PutLead(l *crm.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.leads[l.ID] = &cp
}

func (s *Store) PutSchedule(sc *schedule.PaymentSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ID] = copySchedule(sc)
}

func (s *Store) PutCharge(c *schedule.ScheduledCharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.charges[c.ID] = &cp
}

func (s *Store) PutTemplate(t *crm.TaskTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.Tasks = append([]crm.TemplateTask(nil), t.Tasks...)
	s.templates = append(s.templates, &cp)
}

func (s *Store) PutProfile(p *commission.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

func (s *Store) PutSubscriptionConfig(c *commission.SubscriptionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.CommissionSplits = append([]schedule.CommissionSplit(nil), c.CommissionSplits...)
	s.subConfigs[c.SubscriptionID] = &cp
}

// Inspection helpers

func (s *Store) Clients() []*crm.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*crm.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, copyClient(c))
	}
	return out
}

func (s *Store) Entries() []*commission.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*commission.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

func (s *Store) Adjustments() []*commission.Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*commission.Adjustment, 0, len(s.adjustments))
	for _, a := range s.adjustments {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (s *Store) Activities() []*crm.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*crm.ActivityLog, 0, len(s.activities))
	for _, a := range s.activities {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (s *Store) Notes() []*crm.ClientNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*crm.ClientNote, 0, len(s.notes))
	for _, n := range s.notes {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

func (s *Store) OnboardingTasks(clientID uuid.UUID) []*crm.OnboardingTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*crm.OnboardingTask
	for k, t := range s.tasks {
		if k.clientID == clientID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// Clients

func (s *Store) GetClient(_ context.Context, id uuid.UUID) (*crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, errors.NewNotFoundError("client")
	}
	return copyClient(c), nil
}

func (s *Store) GetClientByLeadID(_ context.Context, leadID uuid.UUID) (*crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.clientByLead(leadID); c != nil {
		return copyClient(c), nil
	}
	return nil, errors.NewNotFoundError("client")
}

func (s *Store) clientByLead(leadID uuid.UUID) *crm.Client {
	for _, c := range s.clients {
		if c.LeadID != nil && *c.LeadID == leadID {
			return c
		}
	}
	return nil
}

func (s *Store) CreateClient(_ context.Context, c *crm.Client) (*crm.Client, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.LeadID != nil {
		if existing := s.clientByLead(*c.LeadID); existing != nil {
			return copyClient(existing), false, nil
		}
	}
	s.clients[c.ID] = copyClient(c)
	return copyClient(c), true, nil
}

func (s *Store) UpdateClientStatus(_ context.Context, id uuid.UUID, status crm.ClientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return errors.NewNotFoundError("client")
	}
	c.Status = status
	c.UpdatedAt = clock.Now()
	return nil
}

func (s *Store) FindByCustomerID(_ context.Context, customerID string) (*crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedClients() {
		if c.CustomerID != "" && c.CustomerID == customerID {
			return copyClient(c), nil
		}
	}
	return nil, errors.NewNotFoundError("client")
}

func (s *Store) FindByEmail(_ context.Context, email string) (*crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sortedClients() {
		if c.Email != "" && strings.EqualFold(c.Email, email) {
			return copyClient(c), nil
		}
	}
	return nil, errors.NewNotFoundError("client")
}

func (s *Store) BackfillCustomerID(_ context.Context, clientID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return errors.NewNotFoundError("client")
	}
	if c.CustomerID == "" {
		c.CustomerID = customerID
	}
	return nil
}

// sortedClients orders by creation time so lookups pick the oldest match.
func (s *Store) sortedClients() []*crm.Client {
	out := make([]*crm.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Leads

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, errors.NewNotFoundError("lead")
	}
	cp := *l
	return &cp, nil
}

func (s *Store) BackfillLeadCustomerID(_ context.Context, leadID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return errors.NewNotFoundError("lead")
	}
	if l.CustomerID == "" {
		l.CustomerID = customerID
	}
	return nil
}

func (s *Store) MarkLeadConverted(_ context.Context, lead *crm.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[lead.ID]
	if !ok {
		return errors.NewNotFoundError("lead")
	}
	l.Status = lead.Status
	l.ConvertedAt = lead.ConvertedAt
	l.UpdatedAt = lead.UpdatedAt
	return nil
}

// Activity and notes

func (s *Store) CreateActivity(_ context.Context, a *crm.ActivityLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.DedupeKey != "" {
		if s.dedupeKeys[a.DedupeKey] {
			return false, nil
		}
		s.dedupeKeys[a.DedupeKey] = true
	}
	cp := *a
	s.activities = append(s.activities, &cp)
	return true, nil
}

func (s *Store) HasClientActivity(_ context.Context, clientID uuid.UUID, t crm.ActivityType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activities {
		if a.ClientID != nil && *a.ClientID == clientID && a.Type == t {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ReparentLeadActivity(_ context.Context, leadID, clientID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.activities {
		if a.LeadID != nil && *a.LeadID == leadID && a.ClientID == nil {
			id := clientID
			a.ClientID = &id
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateNote(_ context.Context, n *crm.ClientNote) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := n.SourceKey
	if key == "" {
		key = n.ID.String()
	}
	if _, ok := s.notes[key]; ok {
		return false, nil
	}
	cp := *n
	s.notes[key] = &cp
	return true, nil
}

// Onboarding

func (s *Store) DefaultTemplate(_ context.Context, clientType string) (*crm.TaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.IsDefault && t.ClientType == clientType {
			cp := *t
			cp.Tasks = append([]crm.TemplateTask(nil), t.Tasks...)
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("task template")
}

func (s *Store) HasTemplateTasks(_ context.Context, clientID, templateID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.tasks {
		if k.clientID == clientID && t.TemplateID == templateID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateOnboardingTasks(_ context.Context, tasks []*crm.OnboardingTask) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range tasks {
		k := taskKey{clientID: t.ClientID, templateTaskID: t.TemplateTaskID}
		if _, ok := s.tasks[k]; ok {
			continue
		}
		cp := *t
		s.tasks[k] = &cp
		n++
	}
	return n, nil
}

// Schedules

func (s *Store) GetSchedule(_ context.Context, id string) (*schedule.PaymentSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, errors.NewNotFoundError("payment schedule")
	}
	return copySchedule(sc), nil
}

func (s *Store) SaveSchedule(_ context.Context, sc *schedule.PaymentSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ID] = copySchedule(sc)
	return nil
}

func (s *Store) LinkClient(_ context.Context, scheduleID string, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[scheduleID]
	if !ok {
		return errors.NewNotFoundError("payment schedule")
	}
	sc.LinkClient(clientID)
	return nil
}

func (s *Store) ListCharges(_ context.Context, scheduleID string) ([]*schedule.ScheduledCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schedule.ScheduledCharge
	for _, c := range s.charges {
		if c.ScheduleID == scheduleID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *Store) GetCharge(_ context.Context, chargeID uuid.UUID) (*schedule.ScheduledCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[chargeID]
	if !ok {
		return nil, errors.NewNotFoundError("scheduled charge")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) SaveCharge(_ context.Context, c *schedule.ScheduledCharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.charges[c.ID] = &cp
	return nil
}

// Payments

// UpsertPayment inserts on first sight of the provider id. Later writes fill
// fields the record carries, never clear stored links, and never move a
// refunded or disputed payment back to a settlement status.
func (s *Store) UpsertPayment(_ context.Context, rec *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := clock.Now()
	p, ok := s.payments[rec.ProviderPaymentID]
	if !ok {
		p = &payment.Payment{
			ID:                uuid.New(),
			ProviderPaymentID: rec.ProviderPaymentID,
			Amount:            rec.Amount,
			Fee:               rec.Fee,
			NetAmount:         rec.NetAmount,
			RefundedAmount:    decimal.Zero,
			Currency:          rec.Currency,
			Status:            rec.Status,
			ClientID:          rec.ClientID,
			ClientEmail:       rec.ClientEmail,
			CustomerID:        rec.CustomerID,
			ProductName:       rec.ProductName,
			ScheduleID:        rec.ScheduleID,
			SubscriptionID:    rec.SubscriptionID,
			PaymentDate:       rec.PaymentDate,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		s.payments[rec.ProviderPaymentID] = p
		s.paymentIDs[p.ID] = rec.ProviderPaymentID
		return nil
	}

	p.Amount = rec.Amount
	if rec.Fee != nil {
		p.Fee = rec.Fee
		p.NetAmount = rec.NetAmount
	}
	if rec.Currency != "" {
		p.Currency = rec.Currency
	}
	if !p.Status.IsPostSettlement() {
		p.Status = rec.Status
	}
	if rec.ClientID != nil {
		p.ClientID = rec.ClientID
	}
	if rec.ScheduleID != nil {
		p.ScheduleID = rec.ScheduleID
	}
	p.ClientEmail = coalesce(rec.ClientEmail, p.ClientEmail)
	p.CustomerID = coalesce(rec.CustomerID, p.CustomerID)
	p.ProductName = coalesce(rec.ProductName, p.ProductName)
	p.SubscriptionID = coalesce(rec.SubscriptionID, p.SubscriptionID)
	p.UpdatedAt = now
	return nil
}

func (s *Store) GetPaymentByProviderID(_ context.Context, providerPaymentID string) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[providerPaymentID]
	if !ok {
		return nil, errors.NewNotFoundError("payment")
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paymentByID(id)
	if p == nil {
		return nil, errors.NewNotFoundError("payment")
	}
	cp := *p
	return &cp, nil
}

func (s *Store) paymentByID(id uuid.UUID) *payment.Payment {
	key, ok := s.paymentIDs[id]
	if !ok {
		return nil
	}
	return s.payments[key]
}

func (s *Store) LinkPayment(_ context.Context, id, clientID uuid.UUID, scheduleID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paymentByID(id)
	if p == nil {
		return errors.NewNotFoundError("payment")
	}
	cid := clientID
	p.ClientID = &cid
	if scheduleID != nil {
		p.ScheduleID = scheduleID
	}
	p.UpdatedAt = clock.Now()
	return nil
}

func (s *Store) MarkCommissionCalculated(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paymentByID(id)
	if p == nil {
		return errors.NewNotFoundError("payment")
	}
	p.CommissionCalculated = true
	return nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status payment.Status, refunded decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paymentByID(id)
	if p == nil {
		return errors.NewNotFoundError("payment")
	}
	p.Status = status
	p.RefundedAmount = refunded
	p.UpdatedAt = clock.Now()
	return nil
}

// Commission

func (s *Store) CreateLedgerEntries(_ context.Context, entries []*commission.LedgerEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range entries {
		k := entryKey{paymentID: e.PaymentID, userID: e.UserID, role: e.Role}
		if s.entryKeys[k] {
			continue
		}
		var rk referralKey
		if e.Role == schedule.RoleReferrer && e.ScheduleID != "" {
			rk = referralKey{scheduleID: e.ScheduleID, userID: e.UserID}
			if s.referrals[rk] {
				continue
			}
			s.referrals[rk] = true
		}
		s.entryKeys[k] = true
		cp := *e
		s.entries = append(s.entries, &cp)
		n++
	}
	return n, nil
}

func (s *Store) CreditedReferrers(_ context.Context, scheduleID string) (map[uuid.UUID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, e := range s.entries {
		if e.ScheduleID == scheduleID && e.Role == schedule.RoleReferrer {
			out[e.UserID] = true
		}
	}
	return out, nil
}

func (s *Store) GetProfiles(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*commission.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*commission.Profile)
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) ListEntriesByUser(_ context.Context, userID uuid.UUID) ([]*commission.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*commission.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListEntriesByPayment(_ context.Context, paymentID uuid.UUID) ([]*commission.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*commission.LedgerEntry
	for _, e := range s.entries {
		if e.PaymentID == paymentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListAdjustmentsByUser(_ context.Context, userID uuid.UUID) ([]*commission.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*commission.Adjustment
	for _, a := range s.adjustments {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListAdjustmentsByEntry(_ context.Context, entryID uuid.UUID) ([]*commission.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*commission.Adjustment
	for _, a := range s.adjustments {
		if a.LedgerEntryID != nil && *a.LedgerEntryID == entryID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) CreateAdjustment(_ context.Context, a *commission.Adjustment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.SourceKey != "" {
		if s.sourceKeys[a.SourceKey] {
			return false, nil
		}
		s.sourceKeys[a.SourceKey] = true
	}
	cp := *a
	s.adjustments = append(s.adjustments, &cp)
	return true, nil
}

func (s *Store) GetSubscriptionConfig(_ context.Context, subscriptionID string) (*commission.SubscriptionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.subConfigs[subscriptionID]
	if !ok {
		return nil, errors.NewNotFoundError("subscription commission config")
	}
	cp := *c
	cp.CommissionSplits = append([]schedule.CommissionSplit(nil), c.CommissionSplits...)
	return &cp, nil
}

func (s *Store) SetSubscriptionConfigActive(_ context.Context, subscriptionID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.subConfigs[subscriptionID]
	if !ok {
		return errors.NewNotFoundError("subscription commission config")
	}
	c.IsActive = active
	c.UpdatedAt = clock.Now()
	return nil
}

// Payroll

func (s *Store) ListUnbatchedPendingEntries(_ context.Context, before time.Time) ([]*commission.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*commission.LedgerEntry
	for _, e := range s.entries {
		if e.Status != commission.EntryStatusPending || e.CreatedAt.After(before) {
			continue
		}
		if _, batched := s.runEntries[e.ID]; batched {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreatePayrollRun(_ context.Context, run *payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range run.EntryIDs {
		if _, batched := s.runEntries[id]; batched {
			return errors.NewConflictError("ledger entry already belongs to a payroll run")
		}
	}
	for _, id := range run.EntryIDs {
		s.runEntries[id] = run.ID
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *Store) GetPayrollRun(_ context.Context, id uuid.UUID) (*payroll.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.NewNotFoundError("payroll run")
	}
	return copyRun(r), nil
}

func (s *Store) UpdatePayrollRun(_ context.Context, run *payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.NewNotFoundError("payroll run")
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *Store) ReleasePayrollEntries(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for entryID, rid := range s.runEntries {
		if rid == runID {
			delete(s.runEntries, entryID)
		}
	}
	return nil
}

func (s *Store) MarkEntriesPaid(_ context.Context, entryIDs []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[uuid.UUID]bool, len(entryIDs))
	for _, id := range entryIDs {
		ids[id] = true
	}
	for _, e := range s.entries {
		if ids[e.ID] {
			paidAt := at
			e.Status = commission.EntryStatusPaid
			e.PaidAt = &paidAt
		}
	}
	return nil
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func copyClient(c *crm.Client) *crm.Client {
	cp := *c
	cp.CoachHistory = append([]crm.CoachHistoryEntry(nil), c.CoachHistory...)
	return &cp
}

func copySchedule(sc *schedule.PaymentSchedule) *schedule.PaymentSchedule {
	cp := *sc
	cp.CommissionSplits = append([]schedule.CommissionSplit(nil), sc.CommissionSplits...)
	return &cp
}

func copyRun(r *payroll.Run) *payroll.Run {
	cp := *r
	cp.EntryIDs = append([]uuid.UUID(nil), r.EntryIDs...)
	return &cp
}
