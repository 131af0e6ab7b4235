// Package content provides MCP prompts and resources for the task
// broker server.
package content

import "github.com/agentbroker/taskbroker/internal/mcp"

// --- claim-and-work prompt ---

// ClaimAndWorkPrompt walks an agent through the reserve/work/complete
// lease lifecycle.
type ClaimAndWorkPrompt struct{}

func (p *ClaimAndWorkPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "claim-and-work",
		Description: "Interactive guide for claiming an available task, working it, and completing it through the lease lifecycle.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *ClaimAndWorkPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for claiming and completing a task",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(claimAndWorkGuide),
			},
		},
	}, nil
}

const claimAndWorkGuide = `# Claim and Work a Task

You are an agent looking for work in a task broker. Tasks move through a
lease lifecycle: available → in_progress → complete, with an optional
verification step afterward.

## Step 1: Find available work

Call ` + "`task_available_for_implementation`" + ` with your organization_id to get
concrete tasks ready for a worker: completed tasks still awaiting
verification come first, then available tasks. If you specialize in
breaking down abstract work instead of implementing it, call
` + "`task_available_for_breakdown`" + ` for epic/abstract tasks that still need
decomposition into subtasks.

Both lists leave out any task whose effective_status is blocked — a task
with a subtask beneath it, at any depth, whose task_status is blocked.
Blocking and blocked_by edges are not consulted: a task that depends on
unfinished work through such an edge still appears.

## Step 2: Reserve the task

Call ` + "`lease_reserve`" + ` with task_id and your agent identifier. This is a
conditional claim: it only succeeds if the task is still available and
unassigned, or complete and not yet verified (a verification pass).
If another agent claimed it first, the call fails with
error_kind not_reservable — go back to Step 1 and pick a different task.

A successful reservation sets task_status to in_progress and records
assigned_agent and started_at. The task now belongs to you until you
complete it, unlock it, or its lease times out.

## Step 3: Do the work

Work the task. If you get stuck or need to hand it back before
finishing, call ` + "`lease_unlock`" + ` with task_id — this clears
assigned_agent and returns the task to available without marking it
complete, so another agent (or you, later) can reserve it again.

If you are coordinating many agents and need to recover tasks left
in_progress by an agent that stopped responding, ` + "`lease_bulk_unlock`" + `
accepts a list of task ids and unlocks all of them in one call. In
practice a stale lease is usually reclaimed automatically after its
configured timeout; bulk_unlock is for deliberate, supervisor-driven
recovery.

## Step 4: Complete the task

Call ` + "`lease_complete`" + ` with task_id, optional notes, and
actual_hours if you tracked time. This sets task_status to complete and
completed_at. If the task has a parent task linked by a subtask edge and
every sibling subtask is now complete, the parent auto-completes too —
you do not need to complete parents manually.

## Step 5: Verification (optional)

Some workflows require a second agent (or a human) to verify completed
work before it is trusted. Call ` + "`lease_verify`" + ` with task_id and
optional notes. A task can only be verified after it has
completed at least once; verifying before completion is rejected.

## Things to check if something goes wrong

- "not_reservable": the task moved out of available between your query
  and your reserve call. Query again.
- "not_assigned": you tried to unlock, complete, or otherwise act on a
  task your agent identifier does not currently hold the lease for.
- "already_verified": a second verify call on an already-verified task.
- Use ` + "`task_get`" + ` at any point to check a task's current status,
  assigned_agent, and verification_status before acting on it.
`

// --- triage-stale-work prompt ---

// TriageStaleWorkPrompt guides an operator through finding and recovering
// tasks stuck in a bad state.
type TriageStaleWorkPrompt struct{}

func (p *TriageStaleWorkPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "triage-stale-work",
		Description: "Guide for finding tasks that are overdue, stale, or failing invariants, and deciding what to do about each.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *TriageStaleWorkPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for triaging stale or problematic tasks",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(triageStaleWorkGuide),
			},
		},
	}, nil
}

const triageStaleWorkGuide = `# Triage Stale Work

You are helping an operator find tasks that need attention: work that is
overdue, stuck, or has drifted into an inconsistent state.

## Step 1: Find overdue and stale tasks

` + "`task_overdue`" + ` returns tasks past their due date that are still not
complete. ` + "`task_approaching_deadline`" + ` takes a within_hours window and
returns tasks due soon, so you can flag risk before it becomes overdue.

` + "`task_stale`" + ` returns tasks that have sat in_progress far longer than
expected without activity. These are usually tasks whose lease was never
explicitly released — the background reclaimer will eventually unlock
them automatically once their lease exceeds the configured timeout, but
this tool lets you see them before that happens.

## Step 2: Check the activity trail

For any task that looks suspicious, call ` + "`update_list`" + ` or
` + "`activity_feed`" + ` to see what has actually happened to it — status
changes, comments, and any findings recorded by a background sweep.
` + "`version_list`" + ` and ` + "`version_diff`" + ` let you see exactly what changed
between two points in its history if the update stream alone is not
enough context.

## Step 3: Run a consistency sweep

` + "`consistency_check`" + ` runs a read-only scan over every task,
relationship, and recurrence in an organization and reports anything
that looks wrong: a task whose assigned_agent and task_status disagree,
a completed task with no completed_at, a relationship pointing at a task
that no longer exists, or a recurrence whose schedule has drifted into
the past. It never changes anything on its own — pass record_findings to
also leave a finding-type update on each affected task so the issue is
visible in that task's own history, not just in the report.

## Step 4: Act

Depending on what you find:
- A stuck in_progress task with no recent activity: ` + "`lease_unlock`" + `
  it, or wait for the reclaimer.
- A task blocked on a dependency that will never complete: reconsider
  the relationship with ` + "`relationship_create`" + `, or cancel it through
  whatever cancellation path your workflow uses.
- A drifted recurrence: ` + "`recurring_create_instance_now`" + ` materializes
  the next occurrence immediately instead of waiting for the scheduler.
`

// --- provision-project prompt ---

// ProvisionProjectPrompt walks through setting up a new project and its
// first API credential.
type ProvisionProjectPrompt struct{}

func (p *ProvisionProjectPrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "provision-project",
		Description: "Guide for creating a project within an organization and issuing its first API credential.",
		Arguments: []mcp.PromptArgument{
			{
				Name:        "project_name",
				Description: "Name of the project to create",
				Required:    false,
			},
		},
	}
}

func (p *ProvisionProjectPrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	name := arguments["project_name"]
	return &mcp.PromptsGetResult{
		Description: "Guide for provisioning a project and API credential",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(buildProvisionProjectGuide(name)),
			},
		},
	}, nil
}

func buildProvisionProjectGuide(name string) string {
	projectLine := "a new project"
	if name != "" {
		projectLine = "the project \"" + name + "\""
	}
	return `# Provision ` + projectLine + `

## Step 1: Create the project

Call ` + "`project_create`" + ` with organization_id and a name. Projects
belong to an organization; API credentials are issued per project, and a
task may optionally be filed under one. Tags and templates belong to the
organization as a whole.

## Step 2: Issue an API key

Call ` + "`api_key_create`" + ` with organization_id, project_id, and a
descriptive name (e.g. the service or agent that will use it). The
response's raw_key field is the only time the full key is ever shown —
it is bcrypt-hashed before storage, so save it now. Clients authenticate
by sending this key as a bearer token.

## Step 3: Rotate or revoke when needed

` + "`api_key_rotate`" + ` issues a new key and disables the old one in a
single call, for planned rotation. ` + "`api_key_revoke`" + ` disables a key
immediately without issuing a replacement, for compromised or
decommissioned credentials. ` + "`api_key_list`" + ` shows every credential for
a project along with its key_prefix (not the raw key) so you can
identify which one to rotate or revoke.
`
}
