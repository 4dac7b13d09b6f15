package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeWithBackend("sk_test_123", backend, zaptest.NewLogger(t))
}

func TestStripe_SettlementFee(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantFee string
	}{
		{
			name: "settled charge",
			body: `{"id":"pi_1","object":"payment_intent","latest_charge":{"id":"ch_1","object":"charge",
				"balance_transaction":{"id":"txn_1","object":"balance_transaction","fee":2930}}}`,
			wantFee: "29.3",
		},
		{
			name: "balance transaction not expanded yet",
			body: `{"id":"pi_1","object":"payment_intent","latest_charge":{"id":"ch_1","object":"charge","balance_transaction":null}}`,
		},
		{
			name: "no charge",
			body: `{"id":"pi_1","object":"payment_intent","latest_charge":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
				assert.Contains(t, r.URL.RawQuery, "latest_charge.balance_transaction")
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})

			fee, err := s.SettlementFee(context.Background(), "pi_1")
			require.NoError(t, err)
			if tt.wantFee == "" {
				assert.Nil(t, fee)
				return
			}
			require.NotNil(t, fee)
			assert.Equal(t, tt.wantFee, fee.String())
		})
	}
}

func TestStripe_SettlementFee_UpstreamError(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`))
	})

	_, err := s.SettlementFee(context.Background(), "pi_missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUpstream))
	assert.Contains(t, err.Error(), "No such payment_intent")
}

func TestStripe_ProductName(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/checkout/sessions/cs_1/line_items"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","has_more":false,"url":"/v1/checkout/sessions/cs_1/line_items",
			"data":[{"id":"li_1","object":"item","description":"12-Week Coaching Program"}]}`))
	})

	name, err := s.ProductName(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "12-Week Coaching Program", name)
}

func TestStripe_PaymentMethodID(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","object":"payment_intent","payment_method":"pm_123"}`))
	})

	id, err := s.PaymentMethodID(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pm_123", id)
}
