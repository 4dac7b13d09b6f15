package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
)

// JobKind names the batch job in the tracker.
const JobKind = "payroll_batch"

type service struct {
	repo    Repository
	jobs    JobTracker
	metrics MetricsCollector
	logger  *zap.Logger
}

func NewService(repo Repository, tracker JobTracker, metrics MetricsCollector, logger *zap.Logger) Service {
	return &service{
		repo:    repo,
		jobs:    tracker,
		metrics: metrics,
		logger:  logger.With(zap.String("service", "payroll")),
	}
}

func (s *service) CreateRun(ctx context.Context, periodEnd time.Time, createdBy string) (*payroll.Run, *jobs.Job, error) {
	if periodEnd.IsZero() {
		periodEnd = clock.Now()
	}

	job, err := s.jobs.Create(ctx, JobKind)
	if err != nil {
		return nil, nil, err
	}
	if job, err = s.jobs.Start(ctx, job.ID); err != nil {
		return nil, nil, err
	}

	run, err := s.batch(ctx, periodEnd, createdBy)
	if err != nil {
		if failed, ferr := s.jobs.Fail(ctx, job.ID, err); ferr == nil {
			job = failed
		} else {
			s.logger.Warn("failed to record job failure", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return nil, job, err
	}

	done, err := s.jobs.Complete(ctx, job.ID, map[string]any{
		"run_id":       run.ID.String(),
		"entry_count":  len(run.EntryIDs),
		"total_payout": run.TotalPayout.StringFixed(2),
	})
	if err != nil {
		s.logger.Warn("failed to record job completion", zap.String("job_id", job.ID), zap.Error(err))
	} else {
		job = done
	}
	return run, job, nil
}

func (s *service) batch(ctx context.Context, periodEnd time.Time, createdBy string) (*payroll.Run, error) {
	entries, err := s.repo.ListUnbatchedPendingEntries(ctx, periodEnd)
	if err != nil {
		return nil, errors.NewPersistenceError("list pending entries").WithCause(err)
	}

	run, err := payroll.NewRun(entries, periodEnd, createdBy)
	if err != nil {
		return nil, errors.NewBusinessError("NOTHING_TO_BATCH", err.Error())
	}

	if err := s.repo.CreatePayrollRun(ctx, run); err != nil {
		if errors.IsType(err, errors.ErrorTypeConflict) {
			return nil, err
		}
		return nil, errors.NewPersistenceError("create payroll run").WithCause(err)
	}

	s.metrics.RecordPayrollTransition(string(run.Status))
	s.logger.Info("payroll run created",
		zap.String("run_id", run.ID.String()),
		zap.Int("entries", len(run.EntryIDs)),
		zap.String("total_payout", run.TotalPayout.StringFixed(2)))
	return run, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	run, err := s.repo.GetPayrollRun(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrPayrollNotFound
		}
		return nil, errors.NewPersistenceError("get payroll run").WithCause(err)
	}
	return run, nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID, by string) (*payroll.Run, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := run.Approve(by); err != nil {
		return nil, errors.NewBusinessError("INVALID_TRANSITION", err.Error())
	}
	if err := s.save(ctx, run); err != nil {
		return nil, err
	}
	if latency, ok := run.ApprovalLatency(); ok {
		s.metrics.RecordApprovalLatency(latency)
	}
	return run, nil
}

func (s *service) MarkPaid(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := run.MarkPaid(); err != nil {
		return nil, errors.NewBusinessError("INVALID_TRANSITION", err.Error())
	}
	// Entries first: a failure leaves the run approved and the call retryable.
	if err := s.repo.MarkEntriesPaid(ctx, run.EntryIDs, *run.PaidAt); err != nil {
		return nil, errors.NewPersistenceError("mark entries paid").WithCause(err)
	}
	if err := s.save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *service) Void(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := run.Void(); err != nil {
		return nil, errors.NewBusinessError("INVALID_TRANSITION", err.Error())
	}
	if err := s.save(ctx, run); err != nil {
		return nil, err
	}
	if err := s.repo.ReleasePayrollEntries(ctx, run.ID); err != nil {
		return nil, errors.NewPersistenceError("release payroll entries").WithCause(err)
	}
	return run, nil
}

func (s *service) save(ctx context.Context, run *payroll.Run) error {
	if err := s.repo.UpdatePayrollRun(ctx, run); err != nil {
		return errors.NewPersistenceError("update payroll run").WithCause(err)
	}
	s.metrics.RecordPayrollTransition(string(run.Status))
	s.logger.Info("payroll run transitioned",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)))
	return nil
}
