package payment

import (
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

var (
	estimatedFeeRate  = decimal.RequireFromString("0.029")
	estimatedFeeFixed = decimal.RequireFromString("0.30")
)

// FeeSource says where a Breakdown's fee came from.
type FeeSource string

const (
	FeeSourceSettlement FeeSource = "settlement"
	FeeSourceEstimate   FeeSource = "estimate"
	FeeSourceUnknown    FeeSource = "unknown"
)

// Breakdown is the gross/fee/net triple stored on a Payment.
type Breakdown struct {
	Amount decimal.Decimal
	Fee    *decimal.Decimal
	Net    *decimal.Decimal
	Source FeeSource
}

// EstimateFee applies the card-processing formula round(amount*0.029 + 0.30, 2).
func EstimateFee(amount decimal.Decimal) decimal.Decimal {
	return values.RoundCents(amount.Mul(estimatedFeeRate).Add(estimatedFeeFixed))
}

// NewBreakdown builds a breakdown from a known fee. A nil fee leaves net unknown.
func NewBreakdown(amount decimal.Decimal, fee *decimal.Decimal, source FeeSource) Breakdown {
	b := Breakdown{Amount: amount, Source: source}
	if fee == nil {
		b.Source = FeeSourceUnknown
		return b
	}
	f := *fee
	net := amount.Sub(f)
	b.Fee = &f
	b.Net = &net
	return b
}
