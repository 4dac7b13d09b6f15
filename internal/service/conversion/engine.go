package conversion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// Outcome describes what Process did for a completed checkout.
type Outcome struct {
	Client    *crm.Client
	Converted bool
	// Reactivated is set when an existing inactive or lost client came back.
	Reactivated bool
	TasksSeeded int
}

// Engine turns a lead into a client when its first checkout completes. Each
// step checks for its own prior effect so a re-delivered event can resume a
// partially applied conversion.
type Engine struct {
	clients    ClientRepository
	leads      LeadRepository
	activities ActivityRepository
	schedules  ScheduleLinker
	seeder     TaskSeeder
	logger     *zap.Logger
}

func NewEngine(
	clients ClientRepository,
	leads LeadRepository,
	activities ActivityRepository,
	schedules ScheduleLinker,
	seeder TaskSeeder,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		clients:    clients,
		leads:      leads,
		activities: activities,
		schedules:  schedules,
		seeder:     seeder,
		logger:     logger.With(zap.String("component", "lead_conversion")),
	}
}

// Process handles an activated schedule. A schedule whose lead is not yet
// converted runs the conversion, even when an earlier partial attempt already
// linked the client. Otherwise a schedule with a client gets a payment
// activity.
func (e *Engine) Process(ctx context.Context, sched *schedule.PaymentSchedule, customerID string) (*Outcome, error) {
	if sched.LeadID != nil {
		pending, err := e.conversionPending(ctx, sched)
		if err != nil {
			return nil, err
		}
		if pending {
			return e.Convert(ctx, sched, customerID)
		}
	}
	if sched.ClientID != nil {
		return e.recordPayment(ctx, sched)
	}
	e.logger.Warn("activated schedule has neither client nor lead", zap.String("schedule_id", sched.ID))
	return &Outcome{}, nil
}

// conversionPending reports whether the schedule's lead still has to go
// through Convert. A closed_lost lead on a schedule that already has a client
// is not converted.
func (e *Engine) conversionPending(ctx context.Context, sched *schedule.PaymentSchedule) (bool, error) {
	if sched.ClientID == nil {
		return true, nil
	}
	lead, err := e.leads.GetLead(ctx, *sched.LeadID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, errors.NewPersistenceError("get lead").WithCause(err)
	}
	return !lead.IsConverted() && lead.Status != crm.LeadStatusClosedLost, nil
}

// Convert runs the conversion steps in order.
func (e *Engine) Convert(ctx context.Context, sched *schedule.PaymentSchedule, customerID string) (*Outcome, error) {
	if sched.LeadID == nil {
		return nil, errors.NewValidationError("NO_LEAD", "schedule has no lead to convert")
	}
	log := e.logger.With(zap.String("schedule_id", sched.ID), zap.String("lead_id", sched.LeadID.String()))

	lead, err := e.leads.GetLead(ctx, *sched.LeadID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("lead")
		}
		return nil, errors.NewPersistenceError("get lead").WithCause(err)
	}
	if lead.Status == crm.LeadStatusClosedLost {
		return nil, errors.NewBusinessError("LEAD_NOT_CONVERTIBLE",
			fmt.Sprintf("lead %s is closed_lost", lead.ID))
	}

	// 1. customer id onto the lead
	if customerID != "" && lead.CustomerID == "" {
		if err := e.leads.BackfillLeadCustomerID(ctx, lead.ID, customerID); err != nil {
			return nil, errors.NewPersistenceError("backfill lead customer id").WithCause(err)
		}
		lead.CustomerID = customerID
	}

	// 2. exactly one client per lead
	client, created, err := e.ensureClient(ctx, lead, customerID)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("client_id", client.ID.String()))

	// 3. schedule points at the client
	if err := e.schedules.LinkClient(ctx, sched.ID, client.ID); err != nil {
		return nil, err
	}
	sched.LinkClient(client.ID)

	// 4. lead description becomes a client note
	if strings.TrimSpace(lead.Description) != "" {
		if _, err := e.activities.CreateNote(ctx, crm.NewLeadNote(client.ID, lead)); err != nil {
			return nil, errors.NewPersistenceError("create lead note").WithCause(err)
		}
	}

	// 5. conversion activity
	conversion := crm.NewClientActivity(client.ID, crm.ActivityConversion,
		fmt.Sprintf("Converted from lead %s on checkout completion", lead.Name), time.Time{}).
		WithDedupeKey("conversion:" + lead.ID.String())
	leadID := lead.ID
	conversion.LeadID = &leadID
	if _, err := e.activities.CreateActivity(ctx, conversion); err != nil {
		return nil, errors.NewPersistenceError("create conversion activity").WithCause(err)
	}

	// 6. lead history moves to the client
	moved, err := e.activities.ReparentLeadActivity(ctx, lead.ID, client.ID)
	if err != nil {
		return nil, errors.NewPersistenceError("reparent lead activity").WithCause(err)
	}

	// 7. lead_created entry with the lead's original timestamp
	hasCreated, err := e.activities.HasClientActivity(ctx, client.ID, crm.ActivityLeadCreated)
	if err != nil {
		return nil, errors.NewPersistenceError("check lead_created activity").WithCause(err)
	}
	if !hasCreated {
		entry := crm.NewClientActivity(client.ID, crm.ActivityLeadCreated,
			fmt.Sprintf("Lead created: %s", lead.Name), lead.CreatedAt).
			WithDedupeKey("lead_created:" + lead.ID.String())
		entry.LeadID = &leadID
		if _, err := e.activities.CreateActivity(ctx, entry); err != nil {
			return nil, errors.NewPersistenceError("create lead_created activity").WithCause(err)
		}
	}

	// 8. lead is converted
	if !lead.IsConverted() {
		if err := lead.MarkConverted(); err != nil {
			return nil, errors.NewBusinessError("LEAD_NOT_CONVERTIBLE", err.Error())
		}
		if err := e.leads.MarkLeadConverted(ctx, lead); err != nil {
			return nil, errors.NewPersistenceError("mark lead converted").WithCause(err)
		}
	}

	out := &Outcome{Client: client, Converted: created}
	if e.seeder != nil {
		n, err := e.seeder.Seed(ctx, client)
		if err != nil {
			return nil, err
		}
		out.TasksSeeded = n
	}

	log.Info("lead converted",
		zap.Bool("client_created", created),
		zap.Int64("activities_moved", moved),
		zap.Int("tasks_seeded", out.TasksSeeded))
	return out, nil
}

func (e *Engine) ensureClient(ctx context.Context, lead *crm.Lead, customerID string) (*crm.Client, bool, error) {
	existing, err := e.clients.GetClientByLeadID(ctx, lead.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, errors.NewPersistenceError("get client by lead").WithCause(err)
	}

	candidate, err := crm.NewClientFromLead(lead, customerID)
	if err != nil {
		return nil, false, errors.NewValidationError("INVALID_LEAD", err.Error())
	}
	client, created, err := e.clients.CreateClient(ctx, candidate)
	if err != nil {
		return nil, false, errors.NewPersistenceError("create client").WithCause(err)
	}
	return client, created, nil
}

func (e *Engine) recordPayment(ctx context.Context, sched *schedule.PaymentSchedule) (*Outcome, error) {
	client, err := e.clients.GetClient(ctx, *sched.ClientID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("client")
		}
		return nil, errors.NewPersistenceError("get client").WithCause(err)
	}

	out := &Outcome{Client: client}
	if client.Reactivate() {
		if err := e.clients.UpdateClientStatus(ctx, client.ID, client.Status); err != nil {
			return nil, errors.NewPersistenceError("reactivate client").WithCause(err)
		}
		out.Reactivated = true
		if e.seeder != nil {
			n, err := e.seeder.Seed(ctx, client)
			if err != nil {
				return nil, err
			}
			out.TasksSeeded = n
		}
	}

	description := "Checkout completed"
	if sched.ProductName != "" {
		description = fmt.Sprintf("Checkout completed for %s", sched.ProductName)
	}
	key := "payment:" + sched.ID
	if sched.CheckoutSessionID != "" {
		key = "payment:" + sched.CheckoutSessionID
	}
	activity := crm.NewClientActivity(client.ID, crm.ActivityPayment, description, time.Time{}).WithDedupeKey(key)
	if _, err := e.activities.CreateActivity(ctx, activity); err != nil {
		return nil, errors.NewPersistenceError("create payment activity").WithCause(err)
	}

	e.logger.Info("checkout recorded for existing client",
		zap.String("schedule_id", sched.ID),
		zap.String("client_id", client.ID.String()),
		zap.Bool("reactivated", out.Reactivated))
	return out, nil
}
