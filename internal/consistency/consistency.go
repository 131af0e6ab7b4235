// Package consistency implements a read-only integrity sweep over
// Store: it flags tasks that somehow violate the task lifecycle's data
// invariants (a data import, a direct DB edit), relationship edges pointing at tasks that
// no longer exist, and recurrences whose schedule has drifted into the
// past. It never mutates state; findings are reported, and optionally
// recorded as `finding`-type TaskUpdates for the audit trail.
package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/store"
)

// Issue is a single detected violation.
type Issue struct {
	Severity    string `json:"severity"` // critical, warning
	Type        string `json:"type"`     // invariant_violation, orphaned_edge, drifted_recurrence
	TaskID      int64  `json:"task_id,omitempty"`
	Description string `json:"description"`
}

// Report summarizes an Auditor.Run call.
type Report struct {
	TasksScanned        int     `json:"tasks_scanned"`
	RelationshipsScanned int    `json:"relationships_scanned"`
	RecurrencesScanned  int     `json:"recurrences_scanned"`
	Issues              []Issue `json:"issues"`
}

// Auditor runs the consistency sweep.
type Auditor struct {
	store store.Store
	graph *relationship.Graph
	audit *audit.Log
}

func New(s store.Store, g *relationship.Graph, a *audit.Log) *Auditor {
	return &Auditor{store: s, graph: g, audit: a}
}

// Run sweeps every task, relationship, and recurrence belonging to
// organizationID. When recordFindings is true, each issue is also
// appended as a finding-type TaskUpdate on its associated task (skipped
// for issues with no task, e.g. an orphaned edge whose target is gone).
func (a *Auditor) Run(ctx context.Context, organizationID int64, recordFindings bool) (*Report, error) {
	report := &Report{}

	tasks, err := a.store.QueryTasks(ctx, model.TaskFilter{OrganizationID: organizationID, Limit: model.MaxQueryLimit})
	if err != nil {
		return nil, fmt.Errorf("consistency: query tasks: %w", err)
	}
	report.TasksScanned = len(tasks)

	taskByID := make(map[int64]*model.Task, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
		report.Issues = append(report.Issues, checkInvariants(t)...)
	}

	for _, t := range tasks {
		rels, err := a.graph.ListRelated(ctx, organizationID, t.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("consistency: list related for task %d: %w", t.ID, err)
		}
		for _, rel := range rels {
			report.RelationshipsScanned++
			if _, ok := taskByID[rel.ParentTaskID]; !ok {
				if _, err := a.store.GetTask(ctx, organizationID, rel.ParentTaskID); store.IsNotFound(err) {
					report.Issues = append(report.Issues, Issue{
						Severity:    "warning",
						Type:        "orphaned_edge",
						Description: fmt.Sprintf("relationship %d: parent task %d no longer exists", rel.ID, rel.ParentTaskID),
					})
				}
			}
			if _, ok := taskByID[rel.ChildTaskID]; !ok {
				if _, err := a.store.GetTask(ctx, organizationID, rel.ChildTaskID); store.IsNotFound(err) {
					report.Issues = append(report.Issues, Issue{
						Severity:    "warning",
						Type:        "orphaned_edge",
						Description: fmt.Sprintf("relationship %d: child task %d no longer exists", rel.ID, rel.ChildTaskID),
					})
				}
			}
		}
	}

	recurrences, err := a.store.ListActiveRecurrences(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("consistency: list active recurrences: %w", err)
	}
	report.RecurrencesScanned = len(recurrences)
	now := time.Now()
	for _, r := range recurrences {
		if drifted(r, now) {
			report.Issues = append(report.Issues, Issue{
				Severity:    "warning",
				Type:        "drifted_recurrence",
				TaskID:      r.BaseTaskID,
				Description: fmt.Sprintf("recurrence %d: next_occurrence %s is more than one period in the past", r.ID, r.NextOccurrence.Format(time.RFC3339)),
			})
		}
	}

	if recordFindings {
		if err := a.recordFindings(ctx, report.Issues); err != nil {
			return nil, fmt.Errorf("consistency: record findings: %w", err)
		}
	}

	return report, nil
}

func (a *Auditor) recordFindings(ctx context.Context, issues []Issue) error {
	for _, issue := range issues {
		if issue.TaskID == 0 {
			continue
		}
		_, err := a.audit.AddUpdate(ctx, &model.TaskUpdate{
			TaskID:     issue.TaskID,
			UpdateType: model.UpdateTypeFinding,
			Content:    fmt.Sprintf("consistency check: %s", issue.Description),
			AuthorID:   "system",
			Metadata:   map[string]any{"consistency_issue_type": issue.Type, "severity": issue.Severity},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// checkInvariants checks a single task against the lifecycle's core
// data invariants: agent assignment implies in_progress, a completion
// timestamp implies complete, and verification implies completion.
func checkInvariants(t *model.Task) []Issue {
	var issues []Issue
	assigned := t.AssignedAgent != nil && *t.AssignedAgent != ""
	if assigned != (t.TaskStatus == model.TaskStatusInProgress) {
		issues = append(issues, Issue{
			Severity: "critical", Type: "invariant_violation", TaskID: t.ID,
			Description: fmt.Sprintf("assigned_agent=%v but task_status=%s", assigned, t.TaskStatus),
		})
	}
	if (t.CompletedAt != nil) != (t.TaskStatus == model.TaskStatusComplete) {
		issues = append(issues, Issue{
			Severity: "critical", Type: "invariant_violation", TaskID: t.ID,
			Description: fmt.Sprintf("completed_at set=%v but task_status=%s", t.CompletedAt != nil, t.TaskStatus),
		})
	}
	if t.VerificationStatus == model.VerificationVerified && t.CompletedAt == nil {
		issues = append(issues, Issue{
			Severity: "critical", Type: "invariant_violation", TaskID: t.ID,
			Description: "verification_status=verified but completed_at is nil",
		})
	}
	return issues
}

// drifted reports whether a recurrence's schedule fell more than one
// period of its own cadence (a day, a week, or a month) behind now.
func drifted(r *model.Recurrence, now time.Time) bool {
	var periodEnd time.Time
	switch r.RecurrenceType {
	case model.RecurrenceWeekly:
		periodEnd = r.NextOccurrence.AddDate(0, 0, 7)
	case model.RecurrenceMonthly:
		periodEnd = r.NextOccurrence.AddDate(0, 1, 0)
	default:
		periodEnd = r.NextOccurrence.AddDate(0, 0, 1)
	}
	return now.After(periodEnd)
}
