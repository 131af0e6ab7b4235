package content

import "github.com/agentbroker/taskbroker/internal/mcp"

// --- taskbroker://entity-model resource ---

// EntityModelResource exposes the task broker's entity model as a
// reference resource.
type EntityModelResource struct{}

func (r *EntityModelResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "taskbroker://entity-model",
		Name:        "Task Broker Entity Model",
		Description: "Reference of every entity type, its fields, and the invariants that bind them together",
		MimeType:    "text/markdown",
	}
}

func (r *EntityModelResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "taskbroker://entity-model",
				MimeType: "text/markdown",
				Text:     entityModelContent,
			},
		},
	}, nil
}

// --- taskbroker://error-taxonomy resource ---

// ErrorTaxonomyResource exposes the closed set of error kinds every
// BrokerAPI operation can return.
type ErrorTaxonomyResource struct{}

func (r *ErrorTaxonomyResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "taskbroker://error-taxonomy",
		Name:        "Task Broker Error Taxonomy",
		Description: "Every error_kind a BrokerAPI operation can return, what triggers it, and how it surfaces over MCP",
		MimeType:    "text/markdown",
	}
}

func (r *ErrorTaxonomyResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "taskbroker://error-taxonomy",
				MimeType: "text/markdown",
				Text:     errorTaxonomyContent,
			},
		},
	}, nil
}

// --- taskbroker://tool-reference resource ---

// ToolReferenceResource exposes a quick-reference card for every tool.
type ToolReferenceResource struct{}

func (r *ToolReferenceResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "taskbroker://tool-reference",
		Name:        "Task Broker Tool Reference",
		Description: "Quick-reference card for every task broker tool with parameters and usage notes",
		MimeType:    "text/markdown",
	}
}

func (r *ToolReferenceResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "taskbroker://tool-reference",
				MimeType: "text/markdown",
				Text:     toolReferenceContent,
			},
		},
	}, nil
}

// --- Static content ---

const entityModelContent = `# Task Broker Entity Model

## Organization / Project / Membership

An **Organization** is the top-level tenancy boundary — every other
entity traces back to exactly one. A **Project** belongs to one
Organization; API credentials are issued per project, and a task may
optionally be filed under one. Tags and templates belong to the
organization. **Team**, **Role**, and **Membership** bind an identity to
a set of permission strings within an organization; TenantGuard can check
these via wildcard matching (` + "`read:*`" + ` grants ` + "`read:tasks`" + `), but no
tool operation calls that check.

## APICredential

A bearer key scoped to one Organization and Project.
- **Fields**: key_hash (bcrypt, stored), key_prefix (first chars,
  stored in the clear for display/lookup), name, enabled (bool)
- The raw key is returned exactly once, at creation or rotation, and
  never stored or retrievable again.

## Task

The central entity.
- **Fields**: organization_id, project_id, task_type (concrete /
  abstract / epic), task_status (available / in_progress / complete /
  blocked / cancelled), priority (low / medium / high / critical),
  assigned_agent, started_at, completed_at, estimated_hours,
  actual_hours, time_delta_hours (derived), verification_status
  (unverified / verified), due_date, title, task_instruction,
  verification_instruction, notes
- **Invariants**:
  - assigned_agent is set if and only if task_status is in_progress
  - completed_at is set if and only if task_status is complete
  - verification_status can only be verified once completed_at is set
  - blocked as a persisted value is legal, but the effective status
    a reader sees is recomputed from descendant relationships and
    overrides the stored value
  - the lifecycle is available → in_progress (reserve) → complete;
    unlocking, or the reclaimer timing out a lease, returns an
    in_progress task to available, and reserving a complete but
    unverified task moves it back to in_progress for verification. A
    recurrence materializes new instances rather than reopening the
    original task

## Relationship

A typed edge between two tasks.
- **Fields**: type (subtask / blocking / blocked_by / followup /
  related), parent_task_id, child_task_id
- No inverse edge is created automatically; the cycle check reads a
  blocked_by edge as the reverse of a blocking edge. subtask edges drive auto-completion: a parent completes once every
  subtask beneath it has completed.
- Cycle detection runs at insertion time via bounded BFS; a blocking
  edge that would create a cycle is rejected.

## TaskUpdate / ChangeHistory / TaskVersion

The audit trail.
- **TaskUpdate**: a timestamped note on a task — update_type progress,
  note, blocker, question, or finding (the update_type a background
  sweep uses to report a detected issue without mutating the task
  itself).
- **ChangeHistory**: field-level before/after record of every mutation.
- **TaskVersion**: a full snapshot of a task's state, taken whenever one
  of its versioned fields changes, diffable against one another.
- ActivityFeed merges TaskUpdate and ChangeHistory into one
  chronological stream per organization, dropping an entry that repeats
  another's task, source, and content (change type or update text)
  within the same second.

## Recurrence

A schedule that materializes a fresh Task instance on a cadence
(recurrence_type: daily / weekly / monthly), tracking
next_occurrence. RecurrenceMaterializer creates the next instance once
next_occurrence has passed; a recurrence whose next_occurrence has
drifted more than one period into the past is flagged by the
consistency sweep.

## Tag / Template / Comment

- **Tag**: a named label scoped to an organization, assignable to any
  number of tasks.
- **Template**: a reusable task shape (name, task_type, title_template,
  task_instruction, verification_instruction, priority,
  estimated_hours) that template_create_task instantiates as a new Task.
- **Comment**: free-text discussion on a task, threadable via a parent
  comment id.
`

const errorTaxonomyContent = `# Task Broker Error Taxonomy

Every BrokerAPI operation returns a typed result envelope rather than a
bare value: ` + "`{success, data, error, error_kind, error_details}`" + `. Over
MCP this becomes a ToolsCallResult with isError set — the JSON-RPC call
itself always completes; only the payload signals failure. Over a
hypothetical REST surface the same error_kind would map to an HTTP
status, but that mapping is not part of this system.

| error_kind | Meaning | Typical trigger |
|---|---|---|
| not_found | Referenced entity does not exist in this organization | task_get on a deleted or wrong-tenant id |
| not_reservable | Task is not in a state that can be claimed | lease_reserve on a task already in_progress, or complete and verified |
| not_assigned | Caller does not hold the task's current lease | lease_unlock/lease_complete by the wrong agent |
| already_verified | Task has already been through verification | lease_verify called twice |
| invalid_input | Request failed struct-tag validation before any store call | missing a required field, a string exceeding its max length |
| circular_dependency | A blocking edge would create a cycle | relationship_create forming task A blocks B blocks A |
| database_constraint_error | The store rejected the write for a reason validation could not catch | a unique constraint violation |
| unauthenticated | The bearer token did not resolve to a valid, enabled credential | missing, malformed, unknown, or disabled API key |
| forbidden | Reserved for a permission refusal | none: no operation returns it, since operations are not gated by role permissions |
| invalid_transition | The requested task_status change is not allowed from the current state | lease_verify on a task that is not complete |

Validation happens once, at the BrokerAPI boundary, via struct tags on
every request DTO — a request with invalid_input never reaches the
Store layer. Task get and query calls run through a read-retry helper
that retries only errors the store marks as retryable, and the store
marks none, so each read is attempted once; write calls never retry,
since a retried write on a connection
that actually succeeded but dropped its response could double-apply a
lease transition.
`

const toolReferenceContent = `# Task Broker Tool Quick Reference

## Task Tools

- ` + "`task_create`" + ` — create a task. Required: organization_id, title, task_type, task_instruction, verification_instruction.
- ` + "`task_get`" + ` — fetch a single task by id.
- ` + "`task_query`" + ` — filter tasks by status, type, priority, assigned_agent, tag, due window.
- ` + "`task_search`" + ` — free-text search across task title, task_instruction, and notes.
- ` + "`task_summary`" + ` / ` + "`task_statistics`" + ` — trimmed task listings and aggregate counts for an organization.
- ` + "`task_recent_completions`" + ` — tasks completed within a lookback window.
- ` + "`task_approaching_deadline`" + ` / ` + "`task_overdue`" + ` / ` + "`task_stale`" + ` — deadline and staleness triage.
- ` + "`task_available_for_implementation`" + ` / ` + "`task_available_for_breakdown`" + ` — work queues by task type; tasks whose effective status is blocked are left out.

## Lease Tools

- ` + "`lease_reserve`" + ` — conditionally claim an available task for an agent.
- ` + "`lease_unlock`" + ` — release a held lease without completing.
- ` + "`lease_complete`" + ` — mark a held task complete, recording optional notes and actual_hours.
- ` + "`lease_verify`" + ` — mark a completed task verified, with optional notes.
- ` + "`lease_bulk_unlock`" + ` — release many leases in one call.

## Relationship Tools

- ` + "`relationship_create`" + ` — link two tasks (subtask / blocking / blocked_by / followup / related), rejected on cycle.
- ` + "`relationship_list_related`" + ` — list a task's related tasks, optionally filtered by type.

## Update & History Tools

- ` + "`update_add`" + ` — append a progress, note, blocker, question, or finding update to a task.
- ` + "`update_list`" + ` — list updates for a task.
- ` + "`activity_feed`" + ` — merged chronological stream of updates and field changes for an organization.
- ` + "`version_list`" + ` / ` + "`version_get`" + ` / ` + "`version_latest`" + ` / ` + "`version_diff`" + ` — task state snapshots and their diffs.

## Recurrence Tools

- ` + "`recurring_create`" + ` / ` + "`recurring_update`" + ` / ` + "`recurring_deactivate`" + ` — manage a recurrence schedule.
- ` + "`recurring_list`" + ` — list recurrences for an organization.
- ` + "`recurring_create_instance_now`" + ` — materialize the next occurrence immediately instead of waiting for the scheduler.

## Tag Tools

- ` + "`tag_create`" + ` / ` + "`tag_list`" + ` — manage an organization's tags.
- ` + "`tag_assign`" + ` / ` + "`tag_remove`" + ` — attach or detach a tag from a task.
- ` + "`tag_list_for_task`" + ` — list a task's tags.

## Template Tools

- ` + "`template_create`" + ` / ` + "`template_list`" + ` / ` + "`template_get`" + ` — manage reusable task shapes.
- ` + "`template_create_task`" + ` — instantiate a concrete task from a template.

## Comment Tools

- ` + "`comment_create`" + ` / ` + "`comment_list_for_task`" + ` / ` + "`comment_get_thread`" + ` / ` + "`comment_update`" + ` / ` + "`comment_delete`" + ` — threaded discussion on a task.

## Tenancy Tools

- ` + "`project_create`" + ` / ` + "`project_list`" + ` — manage projects within an organization.
- ` + "`api_key_create`" + ` / ` + "`api_key_list`" + ` / ` + "`api_key_rotate`" + ` / ` + "`api_key_revoke`" + ` — manage API credentials. raw_key is only ever shown on create and rotate.

## Operational Tools

- ` + "`consistency_check`" + ` — read-only invariant sweep over an organization's tasks, relationships, and recurrences; optionally records findings.
`
