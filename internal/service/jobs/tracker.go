// Package jobs records the status of long-running back-office jobs such as
// payroll batching so operators can poll them.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/cache"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Job is the persisted status record.
type Job struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	State      State          `json:"state"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Store is the subset of cache.Cache the tracker needs.
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Tracker moves jobs through idle → running → {completed, error}.
type Tracker struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewTracker(store Store, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = cache.JobTTL
	}
	return &Tracker{store: store, ttl: ttl, logger: logger.With(zap.String("component", "jobs"))}
}

// Create registers an idle job.
func (t *Tracker) Create(ctx context.Context, kind string) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateIdle,
		CreatedAt: clock.Now(),
	}
	if err := t.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start moves an idle job to running.
func (t *Tracker) Start(ctx context.Context, id string) (*Job, error) {
	return t.transition(ctx, id, StateIdle, func(j *Job) {
		now := clock.Now()
		j.State = StateRunning
		j.StartedAt = &now
	})
}

// Complete moves a running job to completed with an optional result.
func (t *Tracker) Complete(ctx context.Context, id string, result map[string]any) (*Job, error) {
	return t.transition(ctx, id, StateRunning, func(j *Job) {
		now := clock.Now()
		j.State = StateCompleted
		j.Result = result
		j.FinishedAt = &now
	})
}

// Fail moves a running job to error.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) (*Job, error) {
	return t.transition(ctx, id, StateRunning, func(j *Job) {
		now := clock.Now()
		j.State = StateError
		j.Error = cause.Error()
		j.FinishedAt = &now
	})
}

// Get returns the job or a not-found error.
func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := t.store.GetJSON(ctx, cache.JobPrefix+id, &job); err != nil {
		var missing cache.ErrCacheKeyNotFound
		if errors.As(err, &missing) {
			return nil, errors.NewNotFoundError("job")
		}
		return nil, errors.NewPersistenceError("read job").WithCause(err)
	}
	return &job, nil
}

func (t *Tracker) transition(ctx context.Context, id string, from State, apply func(*Job)) (*Job, error) {
	job, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != from {
		return nil, errors.NewConflictError(fmt.Sprintf("job %s is %s, expected %s", id, job.State, from))
	}
	apply(job)
	if err := t.save(ctx, job); err != nil {
		return nil, err
	}
	t.logger.Debug("job transitioned",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.String("state", string(job.State)))
	return job, nil
}

func (t *Tracker) save(ctx context.Context, job *Job) error {
	if err := t.store.SetJSON(ctx, cache.JobPrefix+job.ID, job, t.ttl); err != nil {
		return errors.NewPersistenceError("write job").WithCause(err)
	}
	return nil
}
