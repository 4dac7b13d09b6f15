package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	apperrors "github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	commissionsvc "github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
	"github.com/davidleathers/coaching-backoffice/internal/service/schedules"
	"github.com/davidleathers/coaching-backoffice/internal/service/webhook"
)

// WebhookRouter verifies and dispatches a provider delivery.
type WebhookRouter interface {
	Handle(ctx context.Context, payload []byte, signature string) (*webhook.Result, error)
}

// ScheduleService is the admin surface of the schedule service.
type ScheduleService interface {
	Get(ctx context.Context, scheduleID string) (*schedules.View, error)
	CancelScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID) (*schedules.View, error)
	UpdateScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, u schedule.ChargeUpdate) (*schedules.View, error)
	CancelSchedule(ctx context.Context, scheduleID string) (*schedules.View, error)
}

// PaymentLinker attaches a client to a payment left for manual review.
type PaymentLinker interface {
	Link(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) (*payment.Payment, error)
}

// CommissionService computes and reports commission.
type CommissionService interface {
	Calculate(ctx context.Context, paymentID uuid.UUID) (*commissionsvc.Result, error)
	Statement(ctx context.Context, userID uuid.UUID) (*commission.Statement, error)
}

// PayrollService drives payroll runs.
type PayrollService interface {
	CreateRun(ctx context.Context, periodEnd time.Time, createdBy string) (*payroll.Run, *jobs.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
	Approve(ctx context.Context, id uuid.UUID, by string) (*payroll.Run, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
	Void(ctx context.Context, id uuid.UUID) (*payroll.Run, error)
}

// JobReader reads job status records.
type JobReader interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Handler holds the service dependencies of every route.
type Handler struct {
	webhooks    WebhookRouter
	schedules   ScheduleService
	payments    PaymentLinker
	commissions CommissionService
	payroll     PayrollService
	jobs        JobReader
	validator   *validator.Validate
}

type updateChargeRequest struct {
	Amount  *decimal.Decimal `json:"amount"`
	DueDate *time.Time       `json:"due_date"`
}

type linkPaymentRequest struct {
	ClientID   uuid.UUID `json:"client_id" validate:"required"`
	ScheduleID *string   `json:"schedule_id" validate:"omitempty,min=1"`
}

type linkPaymentResponse struct {
	Payment    *payment.Payment      `json:"payment"`
	Commission *commissionResultView `json:"commission"`
}

type commissionResultView struct {
	Inserted   int                       `json:"inserted"`
	Skipped    bool                      `json:"skipped"`
	SkipReason string                    `json:"skip_reason,omitempty"`
	Entries    []*commission.LedgerEntry `json:"entries,omitempty"`
}

type createRunRequest struct {
	PeriodEnd time.Time `json:"period_end" validate:"required"`
}

type createRunResponse struct {
	Run *payroll.Run `json:"run"`
	Job *jobs.Job    `json:"job"`
}

// handleWebhook answers 200 for processed, ignored and duplicate deliveries
// and the error's status otherwise, so the provider retries only 5xx.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperrors.NewValidationError("PAYLOAD_TOO_LARGE", "webhook payload exceeds size limit"))
			return
		}
		writeError(w, r, apperrors.NewValidationError("UNREADABLE_BODY", "could not read webhook payload"))
		return
	}

	res, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := h.schedules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, view)
}

func (h *Handler) handleUpdateCharge(w http.ResponseWriter, r *http.Request) {
	chargeID, err := pathUUID(r, "chargeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateChargeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil && req.DueDate == nil {
		writeError(w, r, apperrors.NewValidationError("EMPTY_UPDATE", "amount or due_date is required"))
		return
	}

	view, err := h.schedules.UpdateScheduledCharge(r.Context(), r.PathValue("id"), chargeID,
		schedule.ChargeUpdate{Amount: req.Amount, DueDate: req.DueDate})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, view)
}

func (h *Handler) handleCancelCharge(w http.ResponseWriter, r *http.Request) {
	chargeID, err := pathUUID(r, "chargeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.schedules.CancelScheduledCharge(r.Context(), r.PathValue("id"), chargeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, view)
}

func (h *Handler) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := h.schedules.CancelSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, view)
}

// handleLinkPayment resolves a manual-review payment and commissions it.
func (h *Handler) handleLinkPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req linkPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.payments.Link(r.Context(), paymentID, req.ClientID, req.ScheduleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.commissions.Calculate(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, linkPaymentResponse{
		Payment: p,
		Commission: &commissionResultView{
			Inserted:   res.Inserted,
			Skipped:    res.Skipped,
			SkipReason: res.SkipReason,
			Entries:    res.Entries,
		},
	})
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	run, job, err := h.payroll.CreateRun(r.Context(), req.PeriodEnd, actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, createRunResponse{Run: run, Job: job})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.payroll.Get)
}

func (h *Handler) handleApproveRun(w http.ResponseWriter, r *http.Request) {
	by := actor(r.Context())
	h.runAction(w, r, func(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
		return h.payroll.Approve(ctx, id, by)
	})
}

func (h *Handler) handlePayRun(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.payroll.MarkPaid)
}

func (h *Handler) handleVoidRun(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.payroll.Void)
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*payroll.Run, error)) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, run)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.commissions.Statement(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, st)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, job)
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("PAYLOAD_TOO_LARGE", "request body exceeds size limit")
		}
		return apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err)
	}
	return h.validator.Struct(dst)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("INVALID_ID", name+" must be a UUID")
	}
	return id, nil
}
