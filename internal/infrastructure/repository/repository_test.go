package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/repository"
	"github.com/davidleathers/coaching-backoffice/internal/testutil"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRepositories(t *testing.T) {
	db := testutil.NewTestDB(t)
	repos := repository.NewRepositories(db.DB)
	ctx := context.Background()

	newClient := func(t *testing.T, email string, createdAt time.Time) *crm.Client {
		c := &crm.Client{
			ID:         uuid.New(),
			Name:       "Client " + email,
			Email:      email,
			Status:     crm.ClientStatusActive,
			LeadSource: crm.LeadSourceCoachDriven,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		}
		_, created, err := repos.CRM.CreateClient(ctx, c)
		require.NoError(t, err)
		require.True(t, created)
		return c
	}

	t.Run("client lookups pick the oldest match", func(t *testing.T) {
		db.Truncate(t)
		older := newClient(t, "Jane@Example.com", time.Now().Add(-time.Hour))
		newClient(t, "jane@example.com", time.Now())

		found, err := repos.CRM.FindByEmail(ctx, "JANE@example.COM")
		require.NoError(t, err)
		assert.Equal(t, older.ID, found.ID)

		require.NoError(t, repos.CRM.BackfillCustomerID(ctx, older.ID, "cus_1"))
		require.NoError(t, repos.CRM.BackfillCustomerID(ctx, older.ID, "cus_2"))
		found, err = repos.CRM.FindByCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, older.ID, found.ID)

		_, err = repos.CRM.FindByCustomerID(ctx, "cus_2")
		assert.True(t, errors.IsNotFound(err))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("one client per lead", func(t *testing.T) {
		db.Truncate(t)
		coach := uuid.New()
		lead := &crm.Lead{
			ID: uuid.New(), Name: "Sam", Email: "sam@example.com", Status: crm.LeadStatusClosedWon,
			AssignedCoachID: &coach, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		require.NoError(t, repos.CRM.CreateLead(ctx, lead))

		first, err := crm.NewClientFromLead(lead, "cus_sam")
		require.NoError(t, err)
		got, created, err := repos.CRM.CreateClient(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)
		require.Len(t, got.CoachHistory, 1)
		assert.Equal(t, coach, got.CoachHistory[0].CoachID)

		second, err := crm.NewClientFromLead(lead, "cus_sam")
		require.NoError(t, err)
		got, created, err = repos.CRM.CreateClient(ctx, second)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, got.ID)

		require.NoError(t, lead.MarkConverted())
		require.NoError(t, repos.CRM.MarkLeadConverted(ctx, lead))
		stored, err := repos.CRM.GetLead(ctx, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, crm.LeadStatusConverted, stored.Status)
		assert.NotNil(t, stored.ConvertedAt)
	})

	t.Run("activity dedupe and reparenting", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "act@example.com", time.Now())
		lead := &crm.Lead{ID: uuid.New(), Name: "Lead", Status: crm.LeadStatusNew, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		require.NoError(t, repos.CRM.CreateLead(ctx, lead))

		leadID := lead.ID
		orphan := &crm.ActivityLog{ID: uuid.New(), LeadID: &leadID, Type: crm.ActivityLeadCreated, Description: "created", OccurredAt: time.Now(), CreatedAt: time.Now()}
		ok, err := repos.CRM.CreateActivity(ctx, orphan)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := repos.CRM.ReparentLeadActivity(ctx, lead.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = repos.CRM.ReparentLeadActivity(ctx, lead.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		conv := crm.NewClientActivity(c.ID, crm.ActivityConversion, "converted", time.Now()).WithDedupeKey("conversion:" + lead.ID.String())
		ok, err = repos.CRM.CreateActivity(ctx, conv)
		require.NoError(t, err)
		assert.True(t, ok)
		dup := crm.NewClientActivity(c.ID, crm.ActivityConversion, "converted", time.Now()).WithDedupeKey("conversion:" + lead.ID.String())
		ok, err = repos.CRM.CreateActivity(ctx, dup)
		require.NoError(t, err)
		assert.False(t, ok)

		has, err := repos.CRM.HasClientActivity(ctx, c.ID, crm.ActivityLeadCreated)
		require.NoError(t, err)
		assert.True(t, has)

		note := crm.NewLeadNote(c.ID, &crm.Lead{ID: lead.ID, Description: "likes running"})
		ok, err = repos.CRM.CreateNote(ctx, note)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repos.CRM.CreateNote(ctx, crm.NewLeadNote(c.ID, &crm.Lead{ID: lead.ID, Description: "likes running"}))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("onboarding tasks are cloned once", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "onb@example.com", time.Now())
		tmplID := uuid.New()
		tmpl := &crm.TaskTemplate{
			ID: tmplID, Name: "Elite", ClientType: "elite", IsDefault: true,
			Tasks: []crm.TemplateTask{
				{ID: uuid.New(), TemplateID: tmplID, Title: "Intake form", DueOffsetDays: 1, Position: 2},
				{ID: uuid.New(), TemplateID: tmplID, Title: "Kickoff call", DueOffsetDays: 3, Position: 1},
			},
		}
		require.NoError(t, repos.Onboarding.CreateTemplate(ctx, tmpl))

		got, err := repos.Onboarding.DefaultTemplate(ctx, "elite")
		require.NoError(t, err)
		require.Len(t, got.Tasks, 2)
		assert.Equal(t, "Kickoff call", got.Tasks[0].Title)

		var tasks []*crm.OnboardingTask
		for _, task := range got.Tasks {
			tasks = append(tasks, task.Clone(c.ID))
		}
		n, err := repos.Onboarding.CreateOnboardingTasks(ctx, tasks)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		again := []*crm.OnboardingTask{got.Tasks[0].Clone(c.ID)}
		n, err = repos.Onboarding.CreateOnboardingTasks(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		has, err := repos.Onboarding.HasTemplateTasks(ctx, c.ID, tmplID)
		require.NoError(t, err)
		assert.True(t, has)

		_, err = repos.Onboarding.DefaultTemplate(ctx, "basic")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("schedules and charges", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "sched@example.com", time.Now())
		coach := uuid.New()
		sched := &schedule.PaymentSchedule{
			ID:              "sched_1",
			Status:          schedule.StatusPendingInitial,
			PaymentType:     schedule.PaymentTypeSplit,
			Amount:          dec("1000.00"),
			TotalAmount:     dec("3000.00"),
			RemainingAmount: dec("2000.00"),
			CommissionSplits: []schedule.CommissionSplit{
				{UserID: coach, Role: schedule.RoleCoach, Percentage: dec("100")},
			},
			ProgramTermMonths: 6,
			CreatedAt:         time.Now(),
			UpdatedAt:         time.Now(),
		}
		require.NoError(t, repos.Schedules.SaveSchedule(ctx, sched))
		require.NoError(t, repos.Schedules.LinkClient(ctx, "sched_1", c.ID))

		later := &schedule.ScheduledCharge{ID: uuid.New(), ScheduleID: "sched_1", Amount: dec("1000.00"), DueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Status: schedule.ChargeStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		sooner := &schedule.ScheduledCharge{ID: uuid.New(), ScheduleID: "sched_1", Amount: dec("1000.00"), DueDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Status: schedule.ChargeStatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		require.NoError(t, repos.Schedules.SaveCharge(ctx, later))
		require.NoError(t, repos.Schedules.SaveCharge(ctx, sooner))

		require.NoError(t, sooner.Cancel())
		require.NoError(t, repos.Schedules.SaveCharge(ctx, sooner))

		charges, err := repos.Schedules.ListCharges(ctx, "sched_1")
		require.NoError(t, err)
		require.Len(t, charges, 2)
		assert.Equal(t, sooner.ID, charges[0].ID)
		assert.Equal(t, schedule.ChargeStatusCancelled, charges[0].Status)
		assert.True(t, schedule.RemainingAmount(charges).Equal(dec("1000")))

		got, err := repos.Schedules.GetSchedule(ctx, "sched_1")
		require.NoError(t, err)
		require.NotNil(t, got.ClientID)
		assert.Equal(t, c.ID, *got.ClientID)
		require.Len(t, got.CommissionSplits, 1)
		assert.Equal(t, coach, got.CommissionSplits[0].UserID)

		_, err = repos.Schedules.GetCharge(ctx, uuid.New())
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("payment upsert keeps links and post-settlement status", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "pay@example.com", time.Now())
		fee, net := dec("29.30"), dec("970.70")
		clientID := c.ID

		rec := &payment.Record{
			ProviderPaymentID: "pi_1",
			Amount:            dec("1000.00"),
			Fee:               &fee,
			NetAmount:         &net,
			Currency:          "usd",
			Status:            payment.StatusSucceeded,
			ClientID:          &clientID,
			ClientEmail:       "pay@example.com",
			PaymentDate:       time.Now(),
		}
		require.NoError(t, repos.Payments.UpsertPayment(ctx, rec))

		p, err := repos.Payments.GetPaymentByProviderID(ctx, "pi_1")
		require.NoError(t, err)
		require.NoError(t, repos.Payments.UpdatePaymentStatus(ctx, p.ID, payment.StatusPartiallyRefunded, dec("250.00")))

		// A late success without links or fee must not clear anything.
		late := &payment.Record{ProviderPaymentID: "pi_1", Amount: dec("1000.00"), Status: payment.StatusSucceeded, PaymentDate: time.Now()}
		require.NoError(t, repos.Payments.UpsertPayment(ctx, late))

		p, err = repos.Payments.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPartiallyRefunded, p.Status)
		require.NotNil(t, p.ClientID)
		assert.Equal(t, c.ID, *p.ClientID)
		require.NotNil(t, p.Fee)
		assert.True(t, p.Fee.Equal(fee))
		assert.True(t, p.NetAmount.Equal(net))
		assert.True(t, p.RefundedAmount.Equal(dec("250")))
		assert.Equal(t, "pay@example.com", p.ClientEmail)
		assert.Equal(t, "usd", p.Currency)

		require.NoError(t, repos.Payments.MarkCommissionCalculated(ctx, p.ID))
		p, err = repos.Payments.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, p.CommissionCalculated)

		err = repos.Payments.LinkPayment(ctx, uuid.New(), c.ID, nil)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("ledger entries, adjustments and payroll", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "ledger@example.com", time.Now())
		clientID := c.ID
		require.NoError(t, repos.Payments.UpsertPayment(ctx, &payment.Record{
			ProviderPaymentID: "pi_ledger", Amount: dec("500.00"), Status: payment.StatusSucceeded,
			ClientID: &clientID, PaymentDate: time.Now(),
		}))
		p, err := repos.Payments.GetPaymentByProviderID(ctx, "pi_ledger")
		require.NoError(t, err)

		coach, referrer := uuid.New(), uuid.New()
		newEntry := func(user uuid.UUID, role schedule.Role, amount string) *commission.LedgerEntry {
			e, err := commission.NewLedgerEntry(user, p.ID, role, dec("500.00"), dec(amount), commission.CalculationBasis{
				Rule: string(role), Rate: dec("0.7"), BaseAmount: dec("500.00"), Share: dec("1"), ScheduleID: "sched_l",
			})
			require.NoError(t, err)
			e.ClientID = &clientID
			e.CreatedAt = time.Now().Add(-time.Minute)
			return e
		}
		coachEntry := newEntry(coach, schedule.RoleCoach, "350.00")
		n, err := repos.Commission.CreateLedgerEntries(ctx, []*commission.LedgerEntry{coachEntry, newEntry(referrer, schedule.RoleReferrer, "100.00")})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repos.Commission.CreateLedgerEntries(ctx, []*commission.LedgerEntry{newEntry(coach, schedule.RoleCoach, "350.00")})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		credited, err := repos.Commission.CreditedReferrers(ctx, "sched_l")
		require.NoError(t, err)
		assert.True(t, credited[referrer])
		assert.False(t, credited[coach])

		// a second installment on the same schedule cannot credit the referrer again
		require.NoError(t, repos.Payments.UpsertPayment(ctx, &payment.Record{
			ProviderPaymentID: "pi_ledger_2", Amount: dec("500.00"), Status: payment.StatusSucceeded,
			ClientID: &clientID, PaymentDate: time.Now(),
		}))
		second, err := repos.Payments.GetPaymentByProviderID(ctx, "pi_ledger_2")
		require.NoError(t, err)
		again := newEntry(referrer, schedule.RoleReferrer, "100.00")
		again.PaymentID = second.ID
		n, err = repos.Commission.CreateLedgerEntries(ctx, []*commission.LedgerEntry{again})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		entries, err := repos.Commission.ListEntriesByPayment(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, string(e.Role), e.Basis.Rule)
			assert.True(t, e.Basis.BaseAmount.Equal(dec("500")))
		}

		adj, err := commission.NewReversal(coachEntry, dec("87.50"), "refund", "refund:"+coachEntry.ID.String()+":12500")
		require.NoError(t, err)
		ok, err := repos.Commission.CreateAdjustment(ctx, adj)
		require.NoError(t, err)
		assert.True(t, ok)
		adj2, err := commission.NewReversal(coachEntry, dec("87.50"), "refund", "refund:"+coachEntry.ID.String()+":12500")
		require.NoError(t, err)
		ok, err = repos.Commission.CreateAdjustment(ctx, adj2)
		require.NoError(t, err)
		assert.False(t, ok)

		byEntry, err := repos.Commission.ListAdjustmentsByEntry(ctx, coachEntry.ID)
		require.NoError(t, err)
		require.Len(t, byEntry, 1)
		assert.True(t, byEntry[0].Amount.Equal(dec("-87.50")))

		pending, err := repos.Payroll.ListUnbatchedPendingEntries(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, pending, 2)

		run, err := payroll.NewRun(pending, time.Now(), "ops")
		require.NoError(t, err)
		require.NoError(t, repos.Payroll.CreatePayrollRun(ctx, run))

		pending, err = repos.Payroll.ListUnbatchedPendingEntries(ctx, time.Now())
		require.NoError(t, err)
		assert.Empty(t, pending)

		rival := &payroll.Run{ID: uuid.New(), Status: payroll.StatusDraft, PeriodEnd: time.Now(), TotalPayout: dec("350"), EntryIDs: []uuid.UUID{coachEntry.ID}, CreatedAt: time.Now()}
		err = repos.Payroll.CreatePayrollRun(ctx, rival)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
		_, err = repos.Payroll.GetPayrollRun(ctx, rival.ID)
		assert.True(t, errors.IsNotFound(err))

		require.NoError(t, run.Void())
		require.NoError(t, repos.Payroll.UpdatePayrollRun(ctx, run))
		require.NoError(t, repos.Payroll.ReleasePayrollEntries(ctx, run.ID))
		pending, err = repos.Payroll.ListUnbatchedPendingEntries(ctx, time.Now())
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		stored, err := repos.Payroll.GetPayrollRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, payroll.StatusVoid, stored.Status)
		assert.ElementsMatch(t, run.EntryIDs, stored.EntryIDs)
		assert.True(t, stored.TotalPayout.Equal(dec("450")))

		paidAt := time.Now()
		require.NoError(t, repos.Payroll.MarkEntriesPaid(ctx, []uuid.UUID{coachEntry.ID}, paidAt))
		byUser, err := repos.Commission.ListEntriesByUser(ctx, coach)
		require.NoError(t, err)
		require.Len(t, byUser, 1)
		assert.Equal(t, commission.EntryStatusPaid, byUser[0].Status)
	})

	t.Run("profiles and subscription configs", func(t *testing.T) {
		db.Truncate(t)
		c := newClient(t, "sub@example.com", time.Now())
		coach := uuid.New()
		rate := dec("0.55")
		require.NoError(t, repos.Commission.SaveProfile(ctx, &commission.Profile{UserID: coach, CompanyDrivenRate: &rate}))

		profiles, err := repos.Commission.GetProfiles(ctx, []uuid.UUID{coach, uuid.New()})
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.True(t, profiles[coach].CompanyDrivenRate.Equal(rate))

		cfg := &commission.SubscriptionConfig{
			SubscriptionID: "sub_1", ClientID: c.ID, AssignedCoachID: &coach, IsActive: true,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		require.NoError(t, repos.Commission.SaveSubscriptionConfig(ctx, cfg))
		require.NoError(t, repos.Commission.SetSubscriptionConfigActive(ctx, "sub_1", false))

		got, err := repos.Commission.GetSubscriptionConfig(ctx, "sub_1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Empty(t, got.CommissionSplits)

		err = repos.Commission.SetSubscriptionConfigActive(ctx, "sub_missing", true)
		assert.True(t, errors.IsNotFound(err))
	})
}
