package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	commissionsvc "github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
	"github.com/davidleathers/coaching-backoffice/internal/service/schedules"
	"github.com/davidleathers/coaching-backoffice/internal/service/webhook"
)

type MockWebhookRouter struct{ mock.Mock }

func (m *MockWebhookRouter) Handle(ctx context.Context, payload []byte, signature string) (*webhook.Result, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Result), args.Error(1)
}

type MockScheduleService struct{ mock.Mock }

func (m *MockScheduleService) Get(ctx context.Context, scheduleID string) (*schedules.View, error) {
	args := m.Called(ctx, scheduleID)
	return viewOrNil(args.Get(0)), args.Error(1)
}

func (m *MockScheduleService) CancelScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID) (*schedules.View, error) {
	args := m.Called(ctx, scheduleID, chargeID)
	return viewOrNil(args.Get(0)), args.Error(1)
}

func (m *MockScheduleService) UpdateScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, u schedule.ChargeUpdate) (*schedules.View, error) {
	args := m.Called(ctx, scheduleID, chargeID, u)
	return viewOrNil(args.Get(0)), args.Error(1)
}

func (m *MockScheduleService) CancelSchedule(ctx context.Context, scheduleID string) (*schedules.View, error) {
	args := m.Called(ctx, scheduleID)
	return viewOrNil(args.Get(0)), args.Error(1)
}

func viewOrNil(v interface{}) *schedules.View {
	if v == nil {
		return nil
	}
	return v.(*schedules.View)
}

type MockPaymentLinker struct{ mock.Mock }

func (m *MockPaymentLinker) Link(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) (*payment.Payment, error) {
	args := m.Called(ctx, id, clientID, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

type MockCommissionService struct{ mock.Mock }

func (m *MockCommissionService) Calculate(ctx context.Context, paymentID uuid.UUID) (*commissionsvc.Result, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commissionsvc.Result), args.Error(1)
}

func (m *MockCommissionService) Statement(ctx context.Context, userID uuid.UUID) (*commission.Statement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Statement), args.Error(1)
}

type MockPayrollService struct{ mock.Mock }

func (m *MockPayrollService) CreateRun(ctx context.Context, periodEnd time.Time, createdBy string) (*payroll.Run, *jobs.Job, error) {
	args := m.Called(ctx, periodEnd, createdBy)
	var run *payroll.Run
	if v := args.Get(0); v != nil {
		run = v.(*payroll.Run)
	}
	var job *jobs.Job
	if v := args.Get(1); v != nil {
		job = v.(*jobs.Job)
	}
	return run, job, args.Error(2)
}

func (m *MockPayrollService) Get(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	return m.run(m.Called(ctx, id))
}

func (m *MockPayrollService) Approve(ctx context.Context, id uuid.UUID, by string) (*payroll.Run, error) {
	return m.run(m.Called(ctx, id, by))
}

func (m *MockPayrollService) MarkPaid(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	return m.run(m.Called(ctx, id))
}

func (m *MockPayrollService) Void(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	return m.run(m.Called(ctx, id))
}

func (m *MockPayrollService) run(args mock.Arguments) (*payroll.Run, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payroll.Run), args.Error(1)
}

type MockJobReader struct{ mock.Mock }

func (m *MockJobReader) Get(ctx context.Context, id string) (*jobs.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

type stubMetrics struct {
	requests []string
}

func (s *stubMetrics) RecordHTTPRequest(method, handler string, status int, d time.Duration) {
	s.requests = append(s.requests, method+" "+handler)
}

func (s *stubMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
}
