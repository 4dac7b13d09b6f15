package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/events"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e *events.Envelope) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (r *recordingMetrics) RecordNotification(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]string{}
	}
	r.outcomes[eventType] = outcome
}

func TestDispatcher_Notify(t *testing.T) {
	pub := new(MockPublisher)
	metrics := &recordingMetrics{}
	d := NewDispatcher(pub, metrics, time.Second, zaptest.NewLogger(t))

	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Envelope) bool {
		return e.EventType == events.TypeClientActivated && e.AggregateID == "client-1"
	})).Return("1-0", nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, events.TypeClientActivated, "client", "client-1", map[string]any{"lead_id": "lead-1"})
	// Request cancellation must not abort the publish.
	cancel()

	require.NoError(t, d.Wait(context.Background()))
	pub.AssertExpectations(t)
	assert.Equal(t, "published", metrics.outcomes[events.TypeClientActivated])
}

func TestDispatcher_PublishErrorIsSwallowed(t *testing.T) {
	pub := new(MockPublisher)
	metrics := &recordingMetrics{}
	d := NewDispatcher(pub, metrics, time.Second, zaptest.NewLogger(t))

	pub.On("Publish", mock.Anything, mock.Anything).Return("", assert.AnError)

	d.Notify(context.Background(), events.TypePaymentDisputed, "payment", "pi_1", nil)
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, "error", metrics.outcomes[events.TypePaymentDisputed])
}

func TestDispatcher_NilPublisher(t *testing.T) {
	d := NewDispatcher(nil, &recordingMetrics{}, 0, zaptest.NewLogger(t))
	d.Notify(context.Background(), events.TypePaymentRecorded, "payment", "pi_1", nil)
	assert.NoError(t, d.Wait(context.Background()))

	var nilDispatcher *Dispatcher
	assert.NotPanics(t, func() {
		nilDispatcher.Notify(context.Background(), events.TypePaymentRecorded, "payment", "pi_1", nil)
	})
}
