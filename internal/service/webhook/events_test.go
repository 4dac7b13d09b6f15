package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		object    string
		check     func(t *testing.T, evt Event)
	}{
		{
			name:      "payment intent with expanded customer",
			eventType: TypePaymentIntentSucceeded,
			object: `{"id":"pi_1","amount":100000,"currency":"USD","customer":{"id":"cus_9","object":"customer"},
				"receipt_email":"a@b.co","description":"Elite","invoice":null,
				"metadata":{"schedule_id":"sched_1","scheduled_charge_id":"c-1"},"created":1740841200}`,
			check: func(t *testing.T, evt Event) {
				pi := evt.(*PaymentIntentSucceeded)
				assert.Equal(t, "pi_1", pi.PaymentIntentID)
				assert.Equal(t, "1000.00", pi.Amount.StringFixed(2))
				assert.Equal(t, "usd", pi.Currency)
				assert.Equal(t, "cus_9", pi.CustomerID)
				assert.Empty(t, pi.InvoiceID)
				assert.Equal(t, "sched_1", pi.ScheduleID)
				assert.Equal(t, "c-1", pi.ChargeID)
				assert.Equal(t, time.Unix(1740841200, 0).UTC(), pi.Created)
			},
		},
		{
			name:      "checkout falls back to client reference",
			eventType: TypeCheckoutSessionCompleted,
			object: `{"id":"cs_1","client_reference_id":"sched_ref","customer":"cus_1",
				"customer_details":{"email":"buyer@example.com"},"payment_intent":"pi_7",
				"mode":"payment","payment_status":"paid","amount_total":250000,"currency":"usd"}`,
			check: func(t *testing.T, evt Event) {
				cs := evt.(*CheckoutSessionCompleted)
				assert.Equal(t, "sched_ref", cs.ScheduleID)
				assert.Equal(t, "buyer@example.com", cs.CustomerEmail)
				assert.Equal(t, "2500.00", cs.AmountTotal.StringFixed(2))
				assert.True(t, cs.Paid())
			},
		},
		{
			name:      "subscription checkout is not paid now",
			eventType: TypeCheckoutSessionCompleted,
			object:    `{"id":"cs_2","metadata":{"schedule_id":"sched_2"},"mode":"subscription","payment_status":"no_payment_required","subscription":"sub_1"}`,
			check: func(t *testing.T, evt Event) {
				cs := evt.(*CheckoutSessionCompleted)
				assert.Equal(t, "sched_2", cs.ScheduleID)
				assert.Equal(t, "sub_1", cs.SubscriptionID)
				assert.False(t, cs.Paid())
			},
		},
		{
			name:      "refund",
			eventType: TypeChargeRefunded,
			object:    `{"id":"ch_1","payment_intent":"pi_1","amount_refunded":25000}`,
			check: func(t *testing.T, evt Event) {
				r := evt.(*ChargeRefunded)
				assert.Equal(t, "pi_1", r.PaymentIntentID)
				assert.Equal(t, "250.00", r.AmountRefunded.StringFixed(2))
			},
		},
		{
			name:      "dispute closed",
			eventType: TypeDisputeClosed,
			object:    `{"id":"dp_1","charge":"ch_1","payment_intent":"pi_1","amount":100000,"status":"lost"}`,
			check: func(t *testing.T, evt Event) {
				d := evt.(*DisputeClosed)
				assert.Equal(t, "lost", d.Status)
				assert.Equal(t, "pi_1", d.PaymentIntentID)
			},
		},
		{
			name:      "invoice with parent subscription details",
			eventType: TypeInvoicePaid,
			object: `{"id":"in_1","customer":"cus_1","amount_paid":19900,"currency":"usd","created":1740000000,
				"parent":{"subscription_details":{"subscription":"sub_new"}},
				"status_transitions":{"paid_at":1740841200},
				"lines":{"data":[{"description":""},{"description":"Monthly Coaching"}]}}`,
			check: func(t *testing.T, evt Event) {
				inv := evt.(*InvoicePaid)
				assert.Equal(t, "sub_new", inv.SubscriptionID)
				assert.Equal(t, "199.00", inv.Amount.StringFixed(2))
				assert.Equal(t, "Monthly Coaching", inv.ProductName)
				assert.Equal(t, time.Unix(1740841200, 0).UTC(), inv.PaidAt)
			},
		},
		{
			name:      "legacy invoice fields",
			eventType: TypeInvoicePaymentFailed,
			object:    `{"id":"in_2","subscription":"sub_old","payment_intent":"pi_9","amount_due":19900,"attempt_count":2}`,
			check: func(t *testing.T, evt Event) {
				inv := evt.(*InvoicePaymentFailed)
				assert.Equal(t, "sub_old", inv.SubscriptionID)
				assert.Equal(t, "pi_9", inv.PaymentIntentID)
				assert.Equal(t, int64(2), inv.AttemptCount)
			},
		},
		{
			name:      "invoice payment intent from payments list",
			eventType: TypeInvoicePaid,
			object: `{"id":"in_3","customer":{"id":"cus_3","object":"customer"},"amount_paid":4900,"currency":"usd",
				"parent":{"type":"subscription_details","subscription_details":{"subscription":{"id":"sub_3","object":"subscription"}}},
				"payments":{"data":[{"id":"inpay_1","payment":{"type":"payment_intent","payment_intent":"pi_3"}}]}}`,
			check: func(t *testing.T, evt Event) {
				inv := evt.(*InvoicePaid)
				assert.Equal(t, "sub_3", inv.SubscriptionID)
				assert.Equal(t, "pi_3", inv.PaymentIntentID)
				assert.Equal(t, "cus_3", inv.CustomerID)
			},
		},
		{
			name:      "dispute created with expanded charge",
			eventType: TypeDisputeCreated,
			object:    `{"id":"dp_2","charge":{"id":"ch_2","object":"charge"},"payment_intent":{"id":"pi_2","object":"payment_intent"},"amount":5000,"reason":"fraudulent"}`,
			check: func(t *testing.T, evt Event) {
				d := evt.(*DisputeCreated)
				assert.Equal(t, "ch_2", d.ChargeID)
				assert.Equal(t, "pi_2", d.PaymentIntentID)
				assert.Equal(t, "fraudulent", d.Reason)
				assert.Equal(t, "50.00", d.Amount.StringFixed(2))
			},
		},
		{
			name:      "payment intent with legacy invoice reference",
			eventType: TypePaymentIntentSucceeded,
			object:    `{"id":"pi_4","amount":4900,"currency":"usd","customer":"cus_4","invoice":"in_4"}`,
			check: func(t *testing.T, evt Event) {
				pi := evt.(*PaymentIntentSucceeded)
				assert.Equal(t, "in_4", pi.InvoiceID)
				assert.Equal(t, "cus_4", pi.CustomerID)
			},
		},
		{
			name:      "subscription update",
			eventType: TypeSubscriptionUpdated,
			object:    `{"id":"sub_1","status":"past_due"}`,
			check: func(t *testing.T, evt Event) {
				assert.True(t, evt.(*SubscriptionUpdated).Active())
			},
		},
		{
			name:      "unconsumed type",
			eventType: "customer.created",
			object:    `{"id":"cus_1"}`,
			check: func(t *testing.T, evt Event) {
				ig, ok := evt.(*Ignored)
				require.True(t, ok)
				assert.Equal(t, "customer.created", ig.Type())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := Decode(tt.eventType, []byte(tt.object))
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, evt.Type())
			tt.check(t, evt)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		object    string
	}{
		{name: "empty object", eventType: TypePaymentIntentSucceeded, object: ``},
		{name: "invalid json", eventType: TypeCheckoutSessionCompleted, object: `{"id":`},
		{name: "missing payment intent id", eventType: TypePaymentIntentSucceeded, object: `{"amount":100}`},
		{name: "refund without payment intent", eventType: TypeChargeRefunded, object: `{"id":"ch_1"}`},
		{name: "amount as string", eventType: TypeInvoicePaid, object: `{"id":"in_1","amount_paid":"12"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.eventType, []byte(tt.object))
			assert.Error(t, err)
		})
	}
}
