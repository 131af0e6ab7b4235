package broker

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
)

// CreateTemplateRequest is the "create_template" operation's input DTO.
type CreateTemplateRequest struct {
	OrganizationID          int64    `json:"organization_id" validate:"required"`
	Name                    string   `json:"name" validate:"required,max=200"`
	TaskType                string   `json:"task_type" validate:"required,oneof=concrete abstract epic"`
	TitleTemplate           string   `json:"title_template" validate:"required"`
	TaskInstruction         string   `json:"task_instruction" validate:"required"`
	VerificationInstruction string   `json:"verification_instruction" validate:"required"`
	Priority                string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	EstimatedHours          *float64 `json:"estimated_hours,omitempty" validate:"omitempty,gte=0"`
}

// CreateTemplate implements the "create_template" operation.
func (b *Broker) CreateTemplate(ctx context.Context, req CreateTemplateRequest) Result[*model.Template] {
	if r, ok := validated[*model.Template](b, req); !ok {
		return r
	}
	priority := model.PriorityMedium
	if req.Priority != "" {
		priority = model.Priority(req.Priority)
	}
	created, err := b.store.CreateTemplate(ctx, &model.Template{
		OrganizationID:          req.OrganizationID,
		Name:                    req.Name,
		TaskType:                model.TaskType(req.TaskType),
		TitleTemplate:           req.TitleTemplate,
		TaskInstruction:         req.TaskInstruction,
		VerificationInstruction: req.VerificationInstruction,
		Priority:                priority,
		EstimatedHours:          req.EstimatedHours,
	})
	if err != nil {
		return fail[*model.Template](fmt.Errorf("broker: create template: %w", err))
	}
	return ok(created)
}

// ListTemplates implements the "list_templates" operation.
func (b *Broker) ListTemplates(ctx context.Context, organizationID int64) Result[[]*model.Template] {
	templates, err := b.store.ListTemplates(ctx, organizationID)
	if err != nil {
		return fail[[]*model.Template](fmt.Errorf("broker: list templates: %w", err))
	}
	return ok(templates)
}

// GetTemplate implements the "get_template" operation.
func (b *Broker) GetTemplate(ctx context.Context, organizationID, templateID int64) Result[*model.Template] {
	t, err := b.store.GetTemplate(ctx, organizationID, templateID)
	if err != nil {
		return fail[*model.Template](fmt.Errorf("broker: get template: %w", err))
	}
	return ok(t)
}

// CreateTaskFromTemplateRequest is the "create_task_from_template"
// operation's input DTO.
type CreateTaskFromTemplateRequest struct {
	OrganizationID int64   `json:"organization_id" validate:"required"`
	TemplateID     int64   `json:"template_id" validate:"required"`
	ProjectID      *int64  `json:"project_id,omitempty"`
	TitleOverride  *string `json:"title_override,omitempty"`
}

// CreateTaskFromTemplate implements the "create_task_from_template"
// operation.
func (b *Broker) CreateTaskFromTemplate(ctx context.Context, req CreateTaskFromTemplateRequest) Result[*model.Task] {
	if r, ok := validated[*model.Task](b, req); !ok {
		return r
	}
	tpl, err := b.store.GetTemplate(ctx, req.OrganizationID, req.TemplateID)
	if err != nil {
		return fail[*model.Task](fmt.Errorf("broker: create task from template: %w", err))
	}
	title := tpl.TitleTemplate
	if req.TitleOverride != nil {
		title = *req.TitleOverride
	}
	created, err := b.store.CreateTask(ctx, &model.Task{
		OrganizationID:          req.OrganizationID,
		ProjectID:               req.ProjectID,
		Title:                   title,
		TaskType:                tpl.TaskType,
		TaskInstruction:         tpl.TaskInstruction,
		VerificationInstruction: tpl.VerificationInstruction,
		TaskStatus:              model.TaskStatusAvailable,
		VerificationStatus:      model.VerificationUnverified,
		Priority:                tpl.Priority,
		EstimatedHours:          tpl.EstimatedHours,
	})
	if err != nil {
		return fail[*model.Task](fmt.Errorf("broker: create task from template: %w", err))
	}
	return ok(created)
}
