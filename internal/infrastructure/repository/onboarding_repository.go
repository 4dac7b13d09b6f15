package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// OnboardingRepository stores task templates and the tasks cloned from them.
type OnboardingRepository struct {
	db *database.DB
}

func NewOnboardingRepository(db *database.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

// DefaultTemplate returns the default template for a client type with its
// tasks in position order.
func (r *OnboardingRepository) DefaultTemplate(ctx context.Context, clientType string) (*crm.TaskTemplate, error) {
	var t crm.TaskTemplate
	err := r.db.QueryRow(ctx, `
		SELECT id, name, client_type, is_default
		FROM task_templates
		WHERE client_type = $1 AND is_default`, clientType).Scan(&t.ID, &t.Name, &t.ClientType, &t.IsDefault)
	if err != nil {
		return nil, WrapRepositoryError(err, "task template", "get default template")
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, template_id, title, description, due_offset_days, position
		FROM template_tasks
		WHERE template_id = $1
		ORDER BY position`, t.ID)
	if err != nil {
		return nil, WrapRepositoryError(err, "task template", "list template tasks")
	}
	defer rows.Close()

	for rows.Next() {
		var task crm.TemplateTask
		if err := rows.Scan(&task.ID, &task.TemplateID, &task.Title, &task.Description, &task.DueOffsetDays, &task.Position); err != nil {
			return nil, WrapRepositoryError(err, "task template", "scan template task")
		}
		t.Tasks = append(t.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapRepositoryError(err, "task template", "list template tasks")
	}
	return &t, nil
}

// CreateTemplate stores a template with its tasks.
func (r *OnboardingRepository) CreateTemplate(ctx context.Context, t *crm.TaskTemplate) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_templates (id, name, client_type, is_default)
			VALUES ($1, $2, $3, $4)`, t.ID, t.Name, t.ClientType, t.IsDefault); err != nil {
			return err
		}
		b := &pgx.Batch{}
		for _, task := range t.Tasks {
			b.Queue(`
				INSERT INTO template_tasks (id, template_id, title, description, due_offset_days, position)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				task.ID, t.ID, task.Title, task.Description, task.DueOffsetDays, task.Position)
		}
		_, err := execBatch(ctx, tx, b)
		return err
	})
	return WrapRepositoryError(err, "task template", "create template")
}

func (r *OnboardingRepository) HasTemplateTasks(ctx context.Context, clientID, templateID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM onboarding_tasks WHERE client_id = $1 AND template_id = $2)`,
		clientID, templateID).Scan(&exists)
	if err != nil {
		return false, WrapRepositoryError(err, "onboarding task", "check template tasks")
	}
	return exists, nil
}

// CreateOnboardingTasks skips (client, template task) pairs that already exist.
func (r *OnboardingRepository) CreateOnboardingTasks(ctx context.Context, tasks []*crm.OnboardingTask) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, t := range tasks {
		b.Queue(`
			INSERT INTO onboarding_tasks (id, client_id, template_id, template_task_id, title, description, due_date, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (client_id, template_task_id) DO NOTHING`,
			t.ID, t.ClientID, t.TemplateID, t.TemplateTaskID, t.Title, t.Description, t.DueDate, t.Status, t.CreatedAt)
	}
	n, err := execBatch(ctx, r.db, b)
	if err != nil {
		return n, WrapRepositoryError(err, "onboarding task", "create onboarding tasks")
	}
	return n, nil
}
