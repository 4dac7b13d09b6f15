package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// Consumed provider event types.
const (
	TypePaymentIntentSucceeded   = "payment_intent.succeeded"
	TypeCheckoutSessionCompleted = "checkout.session.completed"
	TypeChargeRefunded           = "charge.refunded"
	TypeDisputeCreated           = "charge.dispute.created"
	TypeDisputeClosed            = "charge.dispute.closed"
	TypeInvoicePaid              = "invoice.paid"
	TypeInvoicePaymentFailed     = "invoice.payment_failed"
	TypeSubscriptionUpdated      = "customer.subscription.updated"
	TypeSubscriptionDeleted      = "customer.subscription.deleted"
)

// Event is the closed set of decoded provider events.
type Event interface {
	Type() string
	isEvent()
}

type PaymentIntentSucceeded struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	Currency        string
	CustomerID      string
	Email           string
	Description     string
	InvoiceID       string
	ScheduleID      string
	ChargeID        string
	Created         time.Time
}

type CheckoutSessionCompleted struct {
	SessionID       string
	ScheduleID      string
	CustomerID      string
	CustomerEmail   string
	PaymentIntentID string
	SubscriptionID  string
	Mode            string
	PaymentStatus   string
	AmountTotal     decimal.Decimal
	Currency        string
	Created         time.Time
}

// Paid reports whether the session collected money now, as opposed to
// setting up a future charge.
func (c *CheckoutSessionCompleted) Paid() bool {
	return c.PaymentStatus == "paid" && c.PaymentIntentID != ""
}

type ChargeRefunded struct {
	ChargeID        string
	PaymentIntentID string
	AmountRefunded  decimal.Decimal
}

type DisputeCreated struct {
	DisputeID       string
	ChargeID        string
	PaymentIntentID string
	Amount          decimal.Decimal
	Reason          string
}

type DisputeClosed struct {
	DisputeID       string
	PaymentIntentID string
	Status          string
}

type InvoicePaid struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	Amount          decimal.Decimal
	Currency        string
	ProductName     string
	PaidAt          time.Time
}

type InvoicePaymentFailed struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	AmountDue       decimal.Decimal
	Currency        string
	AttemptCount    int64
	Created         time.Time
}

type SubscriptionUpdated struct {
	SubscriptionID string
	Status         string
}

// Active reports whether the subscription still bills.
func (s *SubscriptionUpdated) Active() bool {
	switch s.Status {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}

type SubscriptionDeleted struct {
	SubscriptionID string
}

// Ignored is any event type the pipeline does not consume.
type Ignored struct {
	EventType string
}

func (*PaymentIntentSucceeded) Type() string   { return TypePaymentIntentSucceeded }
func (*CheckoutSessionCompleted) Type() string { return TypeCheckoutSessionCompleted }
func (*ChargeRefunded) Type() string           { return TypeChargeRefunded }
func (*DisputeCreated) Type() string           { return TypeDisputeCreated }
func (*DisputeClosed) Type() string            { return TypeDisputeClosed }
func (*InvoicePaid) Type() string              { return TypeInvoicePaid }
func (*InvoicePaymentFailed) Type() string     { return TypeInvoicePaymentFailed }
func (*SubscriptionUpdated) Type() string      { return TypeSubscriptionUpdated }
func (*SubscriptionDeleted) Type() string      { return TypeSubscriptionDeleted }
func (i *Ignored) Type() string                { return i.EventType }

func (*PaymentIntentSucceeded) isEvent()   {}
func (*CheckoutSessionCompleted) isEvent() {}
func (*ChargeRefunded) isEvent()           {}
func (*DisputeCreated) isEvent()           {}
func (*DisputeClosed) isEvent()            {}
func (*InvoicePaid) isEvent()              {}
func (*InvoicePaymentFailed) isEvent()     {}
func (*SubscriptionUpdated) isEvent()      {}
func (*SubscriptionDeleted) isEvent()      {}
func (*Ignored) isEvent()                  {}

// legacyRefs carries the top-level invoice, subscription and payment_intent
// references that API versions before 2025-03-31 put on payment intents and
// invoices. The typed objects no longer declare them.
type legacyRefs struct {
	Invoice       ref `json:"invoice"`
	Subscription  ref `json:"subscription"`
	PaymentIntent ref `json:"payment_intent"`
}

// ref is an object reference that arrives either as a bare id or expanded.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	if id, ok := stripe.ParseID(b); ok {
		*r = ref(id)
		return nil
	}
	if string(b) == "null" {
		*r = ""
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = ref(obj.ID)
	return nil
}

// Decode maps an event type and its data object to a typed Event. Unknown
// types decode to Ignored; a known type with a malformed object is an error.
func Decode(eventType string, object json.RawMessage) (Event, error) {
	switch eventType {
	case TypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		var legacy legacyRefs
		if err := unmarshal(eventType, object, &pi, &legacy); err != nil {
			return nil, err
		}
		if pi.ID == "" {
			return nil, missing(eventType, "id")
		}
		return &PaymentIntentSucceeded{
			PaymentIntentID: pi.ID,
			Amount:          values.FromMinorUnits(pi.Amount),
			Currency:        strings.ToLower(string(pi.Currency)),
			CustomerID:      customerID(pi.Customer),
			Email:           pi.ReceiptEmail,
			Description:     pi.Description,
			InvoiceID:       string(legacy.Invoice),
			ScheduleID:      pi.Metadata["schedule_id"],
			ChargeID:        pi.Metadata["scheduled_charge_id"],
			Created:         unix(pi.Created),
		}, nil

	case TypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := unmarshal(eventType, object, &cs); err != nil {
			return nil, err
		}
		if cs.ID == "" {
			return nil, missing(eventType, "id")
		}
		scheduleID := cs.Metadata["schedule_id"]
		if scheduleID == "" {
			scheduleID = cs.ClientReferenceID
		}
		email := cs.CustomerEmail
		if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
			email = cs.CustomerDetails.Email
		}
		return &CheckoutSessionCompleted{
			SessionID:       cs.ID,
			ScheduleID:      scheduleID,
			CustomerID:      customerID(cs.Customer),
			CustomerEmail:   email,
			PaymentIntentID: paymentIntentID(cs.PaymentIntent),
			SubscriptionID:  subscriptionID(cs.Subscription),
			Mode:            string(cs.Mode),
			PaymentStatus:   string(cs.PaymentStatus),
			AmountTotal:     values.FromMinorUnits(cs.AmountTotal),
			Currency:        strings.ToLower(string(cs.Currency)),
			Created:         unix(cs.Created),
		}, nil

	case TypeChargeRefunded:
		var ch stripe.Charge
		if err := unmarshal(eventType, object, &ch); err != nil {
			return nil, err
		}
		piID := paymentIntentID(ch.PaymentIntent)
		if piID == "" {
			return nil, missing(eventType, "payment_intent")
		}
		return &ChargeRefunded{
			ChargeID:        ch.ID,
			PaymentIntentID: piID,
			AmountRefunded:  values.FromMinorUnits(ch.AmountRefunded),
		}, nil

	case TypeDisputeCreated, TypeDisputeClosed:
		var d stripe.Dispute
		if err := unmarshal(eventType, object, &d); err != nil {
			return nil, err
		}
		piID := paymentIntentID(d.PaymentIntent)
		if piID == "" {
			return nil, missing(eventType, "payment_intent")
		}
		if eventType == TypeDisputeCreated {
			var chargeID string
			if d.Charge != nil {
				chargeID = d.Charge.ID
			}
			return &DisputeCreated{
				DisputeID:       d.ID,
				ChargeID:        chargeID,
				PaymentIntentID: piID,
				Amount:          values.FromMinorUnits(d.Amount),
				Reason:          string(d.Reason),
			}, nil
		}
		return &DisputeClosed{DisputeID: d.ID, PaymentIntentID: piID, Status: string(d.Status)}, nil

	case TypeInvoicePaid, TypeInvoicePaymentFailed:
		var inv stripe.Invoice
		var legacy legacyRefs
		if err := unmarshal(eventType, object, &inv, &legacy); err != nil {
			return nil, err
		}
		if inv.ID == "" {
			return nil, missing(eventType, "id")
		}
		subID, piID := invoiceSubscription(&inv, legacy), invoicePaymentIntent(&inv, legacy)
		if eventType == TypeInvoicePaid {
			var paidAt time.Time
			if inv.StatusTransitions != nil {
				paidAt = unix(inv.StatusTransitions.PaidAt)
			}
			if paidAt.IsZero() {
				paidAt = unix(inv.Created)
			}
			return &InvoicePaid{
				InvoiceID:       inv.ID,
				SubscriptionID:  subID,
				PaymentIntentID: piID,
				CustomerID:      customerID(inv.Customer),
				CustomerEmail:   inv.CustomerEmail,
				Amount:          values.FromMinorUnits(inv.AmountPaid),
				Currency:        strings.ToLower(string(inv.Currency)),
				ProductName:     invoiceProductName(&inv),
				PaidAt:          paidAt,
			}, nil
		}
		return &InvoicePaymentFailed{
			InvoiceID:       inv.ID,
			SubscriptionID:  subID,
			PaymentIntentID: piID,
			CustomerID:      customerID(inv.Customer),
			CustomerEmail:   inv.CustomerEmail,
			AmountDue:       values.FromMinorUnits(inv.AmountDue),
			Currency:        strings.ToLower(string(inv.Currency)),
			AttemptCount:    inv.AttemptCount,
			Created:         unix(inv.Created),
		}, nil

	case TypeSubscriptionUpdated, TypeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshal(eventType, object, &sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, missing(eventType, "id")
		}
		if eventType == TypeSubscriptionUpdated {
			return &SubscriptionUpdated{SubscriptionID: sub.ID, Status: string(sub.Status)}, nil
		}
		return &SubscriptionDeleted{SubscriptionID: sub.ID}, nil
	}

	return &Ignored{EventType: eventType}, nil
}

// invoiceSubscription prefers parent.subscription_details over the legacy
// top-level field.
func invoiceSubscription(inv *stripe.Invoice, legacy legacyRefs) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := subscriptionID(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	return string(legacy.Subscription)
}

func invoicePaymentIntent(inv *stripe.Invoice, legacy legacyRefs) string {
	if inv.Payments != nil {
		for _, p := range inv.Payments.Data {
			if p != nil && p.Payment != nil {
				if id := paymentIntentID(p.Payment.PaymentIntent); id != "" {
					return id
				}
			}
		}
	}
	return string(legacy.PaymentIntent)
}

func invoiceProductName(inv *stripe.Invoice) string {
	if inv.Lines == nil {
		return ""
	}
	for _, l := range inv.Lines.Data {
		if l != nil && l.Description != "" {
			return l.Description
		}
	}
	return ""
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func paymentIntentID(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func subscriptionID(sub *stripe.Subscription) string {
	if sub == nil {
		return ""
	}
	return sub.ID
}

// unmarshal decodes the same object into every destination.
func unmarshal(eventType string, object json.RawMessage, dests ...interface{}) error {
	if len(object) == 0 {
		return missing(eventType, "data.object")
	}
	for _, dest := range dests {
		if err := json.Unmarshal(object, dest); err != nil {
			return fmt.Errorf("decoding %s: %w", eventType, err)
		}
	}
	return nil
}

func missing(eventType, field string) error {
	return fmt.Errorf("decoding %s: missing %s", eventType, field)
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
