package onboarding

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
)

// Repository reads templates and writes cloned tasks.
type Repository interface {
	DefaultTemplate(ctx context.Context, clientType string) (*crm.TaskTemplate, error)
	HasTemplateTasks(ctx context.Context, clientID, templateID uuid.UUID) (bool, error)
	// CreateOnboardingTasks skips tasks already cloned for the same
	// (client, template task) pair and returns how many were inserted.
	CreateOnboardingTasks(ctx context.Context, tasks []*crm.OnboardingTask) (int, error)
}

// Seeder clones the default onboarding checklist onto a newly active client.
type Seeder struct {
	repo   Repository
	logger *zap.Logger
}

func NewSeeder(repo Repository, logger *zap.Logger) *Seeder {
	return &Seeder{repo: repo, logger: logger.With(zap.String("component", "onboarding_seeder"))}
}

// Seed clones every task of the client type's default template. A client that
// already has tasks from that template is left alone. It returns the number
// of tasks created.
func (s *Seeder) Seed(ctx context.Context, client *crm.Client) (int, error) {
	tmpl, err := s.repo.DefaultTemplate(ctx, client.ClientType)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Debug("no default onboarding template",
				zap.String("client_id", client.ID.String()),
				zap.String("client_type", client.ClientType))
			return 0, nil
		}
		return 0, errors.NewPersistenceError("load onboarding template").WithCause(err)
	}

	seeded, err := s.repo.HasTemplateTasks(ctx, client.ID, tmpl.ID)
	if err != nil {
		return 0, errors.NewPersistenceError("check onboarding tasks").WithCause(err)
	}
	if seeded || len(tmpl.Tasks) == 0 {
		return 0, nil
	}

	tasks := make([]*crm.OnboardingTask, 0, len(tmpl.Tasks))
	for _, t := range tmpl.Tasks {
		tasks = append(tasks, t.Clone(client.ID))
	}

	created, err := s.repo.CreateOnboardingTasks(ctx, tasks)
	if err != nil {
		return 0, errors.NewPersistenceError("create onboarding tasks").WithCause(err)
	}

	s.logger.Info("onboarding tasks seeded",
		zap.String("client_id", client.ID.String()),
		zap.String("template_id", tmpl.ID.String()),
		zap.Int("tasks", created))
	return created, nil
}
