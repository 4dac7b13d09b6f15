package crm

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// TaskTemplate is a named checklist cloned into every new client of a type.
type TaskTemplate struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"name"`
	ClientType string         `json:"client_type"`
	IsDefault  bool           `json:"is_default"`
	Tasks      []TemplateTask `json:"tasks"`
}

// TemplateTask is one checklist item with a due date relative to cloning.
type TemplateTask struct {
	ID            uuid.UUID `json:"id"`
	TemplateID    uuid.UUID `json:"template_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	DueOffsetDays int       `json:"due_offset_days"`
	Position      int       `json:"position"`
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// OnboardingTask is a template task cloned onto a client.
type OnboardingTask struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	TemplateID     uuid.UUID  `json:"template_id"`
	TemplateTaskID uuid.UUID  `json:"template_task_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DueDate        time.Time  `json:"due_date"`
	Status         TaskStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Clone instantiates the template task for a client, due offset days from today.
func (t TemplateTask) Clone(clientID uuid.UUID) *OnboardingTask {
	return &OnboardingTask{
		ID:             uuid.New(),
		ClientID:       clientID,
		TemplateID:     t.TemplateID,
		TemplateTaskID: t.ID,
		Title:          t.Title,
		Description:    t.Description,
		DueDate:        clock.Today().AddDate(0, 0, t.DueOffsetDays),
		Status:         TaskStatusPending,
		CreatedAt:      clock.Now(),
	}
}
