package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
)

// FeeResolver derives the gross/fee/net triple for a payment. It prefers the
// settlement fee the provider actually charged and falls back to the card
// formula when that cannot be read.
type FeeResolver struct {
	fetcher SettlementFetcher
	metrics MetricsCollector
	logger  *zap.Logger
	timeout time.Duration
}

// NewFeeResolver creates a resolver. A nil fetcher always estimates.
func NewFeeResolver(fetcher SettlementFetcher, metrics MetricsCollector, logger *zap.Logger, timeout time.Duration) *FeeResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FeeResolver{
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "fee_resolver")),
		timeout: timeout,
	}
}

// Resolve never fails: provider errors are logged and recovered by estimation.
// A zero amount has no fee and leaves net unknown.
func (r *FeeResolver) Resolve(ctx context.Context, amount decimal.Decimal, paymentIntentID string) payment.Breakdown {
	if !amount.IsPositive() {
		return r.record(payment.NewBreakdown(amount, nil, payment.FeeSourceUnknown))
	}

	if r.fetcher != nil && paymentIntentID != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		fee, err := r.fetcher.SettlementFee(fetchCtx, paymentIntentID)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("settlement fee unavailable, estimating",
				zap.String("payment_intent_id", paymentIntentID),
				zap.Error(err))
		case fee != nil:
			return r.record(payment.NewBreakdown(amount, fee, payment.FeeSourceSettlement))
		default:
			r.logger.Debug("settlement not posted yet, estimating",
				zap.String("payment_intent_id", paymentIntentID))
		}
	}

	fee := payment.EstimateFee(amount)
	return r.record(payment.NewBreakdown(amount, &fee, payment.FeeSourceEstimate))
}

func (r *FeeResolver) record(b payment.Breakdown) payment.Breakdown {
	if r.metrics != nil {
		r.metrics.RecordFeeSource(string(b.Source))
	}
	return b
}
