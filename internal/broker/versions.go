package broker

import (
	"context"
	"fmt"

	"github.com/agentbroker/taskbroker/internal/model"
)

// ListVersions implements the "list_versions" operation.
func (b *Broker) ListVersions(ctx context.Context, organizationID, taskID int64) Result[[]*model.TaskVersion] {
	versions, err := b.store.ListVersions(ctx, organizationID, taskID)
	if err != nil {
		return fail[[]*model.TaskVersion](fmt.Errorf("broker: list versions: %w", err))
	}
	return ok(versions)
}

// GetVersion implements the "get_version" operation.
func (b *Broker) GetVersion(ctx context.Context, organizationID, taskID int64, versionNumber int) Result[*model.TaskVersion] {
	v, err := b.store.GetVersion(ctx, organizationID, taskID, versionNumber)
	if err != nil {
		return fail[*model.TaskVersion](translateNotFound(err, taskID))
	}
	return ok(v)
}

// LatestVersion implements the "latest_version" operation.
func (b *Broker) LatestVersion(ctx context.Context, organizationID, taskID int64) Result[*model.TaskVersion] {
	v, err := b.store.LatestVersion(ctx, organizationID, taskID)
	if err != nil {
		return fail[*model.TaskVersion](translateNotFound(err, taskID))
	}
	return ok(v)
}

// DiffVersions implements the "diff_versions" operation, reusing
// model.DiffVersions for the field comparison.
func (b *Broker) DiffVersions(ctx context.Context, organizationID, taskID int64, fromVersion, toVersion int) Result[[]model.VersionDiff] {
	from, err := b.store.GetVersion(ctx, organizationID, taskID, fromVersion)
	if err != nil {
		return fail[[]model.VersionDiff](translateNotFound(err, taskID))
	}
	to, err := b.store.GetVersion(ctx, organizationID, taskID, toVersion)
	if err != nil {
		return fail[[]model.VersionDiff](translateNotFound(err, taskID))
	}
	return ok(model.DiffVersions(from, to))
}
