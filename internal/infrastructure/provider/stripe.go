// Package provider adapts the Stripe API to the lookups the payment pipeline
// needs: settlement fees, checkout line items and payment methods.
package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// Stripe reads payment details from the Stripe API. Every method returns an
// UpstreamFetchError on failure; callers fall back rather than fail.
type Stripe struct {
	intents  *paymentintent.Client
	sessions *session.Client
	logger   *zap.Logger
}

// NewStripe builds clients on the default API backend.
func NewStripe(secretKey string, logger *zap.Logger) *Stripe {
	return NewStripeWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend), logger)
}

// NewStripeWithBackend uses an explicit backend, e.g. one pointed at a test server.
func NewStripeWithBackend(secretKey string, backend stripe.Backend, logger *zap.Logger) *Stripe {
	return &Stripe{
		intents:  &paymentintent.Client{B: backend, Key: secretKey},
		sessions: &session.Client{B: backend, Key: secretKey},
		logger:   logger.With(zap.String("component", "stripe")),
	}
}

// SettlementFee returns the fee on the intent's latest charge balance
// transaction, or nil when the charge has not settled yet.
func (s *Stripe) SettlementFee(ctx context.Context, paymentIntentID string) (*decimal.Decimal, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge.balance_transaction")

	pi, err := s.intents.Get(paymentIntentID, params)
	if err != nil {
		return nil, errors.NewUpstreamFetchError("payment intent", describe(err)).WithCause(err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.BalanceTransaction == nil {
		return nil, nil
	}

	fee := values.FromMinorUnits(pi.LatestCharge.BalanceTransaction.Fee)
	return &fee, nil
}

// PaymentMethodID returns the payment method attached to an intent.
func (s *Stripe) PaymentMethodID(ctx context.Context, paymentIntentID string) (string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(paymentIntentID, params)
	if err != nil {
		return "", errors.NewUpstreamFetchError("payment intent", describe(err)).WithCause(err)
	}
	if pi.PaymentMethod == nil {
		return "", nil
	}
	return pi.PaymentMethod.ID, nil
}

// ProductName returns the description of the first line item of a checkout
// session, falling back to the product name on its price.
func (s *Stripe) ProductName(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.price.product")

	iter := s.sessions.ListLineItems(params)
	for iter.Next() {
		item := iter.LineItem()
		if item.Description != "" {
			return item.Description, nil
		}
		if item.Price != nil && item.Price.Product != nil {
			return item.Price.Product.Name, nil
		}
		return "", nil
	}
	if err := iter.Err(); err != nil {
		return "", errors.NewUpstreamFetchError("checkout line items", describe(err)).WithCause(err)
	}
	return "", nil
}

func describe(err error) string {
	if stripeErr, ok := err.(*stripe.Error); ok {
		return fmt.Sprintf("%s (%d)", stripeErr.Msg, stripeErr.HTTPStatusCode)
	}
	return err.Error()
}
