package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) LockIfAvailable(ctx context.Context, taskID int64, agentID string, allowNeedsVerification bool) (bool, error) {
	statusClause := `task_status = 'available'`
	if allowNeedsVerification {
		statusClause = `(task_status = 'available' OR (task_status = 'complete' AND verification_status = 'unverified'))`
	}
	tag, err := s.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE tasks SET assigned_agent = $1, task_status = 'in_progress',
			started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE id = $2 AND %s AND assigned_agent IS NULL`, statusClause), agentID, taskID)
	if err != nil {
		return false, fmt.Errorf("postgres: lock if available: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UnlockIfOwner(ctx context.Context, taskID int64, agentID string) (bool, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tasks SET assigned_agent = NULL, task_status = 'available', updated_at = now()
		WHERE id = $1 AND task_status = 'in_progress' AND assigned_agent = $2`, taskID, agentID)
	if err != nil {
		return false, fmt.Errorf("postgres: unlock if owner: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteIfOwner(ctx context.Context, taskID int64, agentID string, actualHours *float64, fromVerificationLease bool) (bool, error) {
	if fromVerificationLease {
		tag, err := s.conn(ctx).Exec(ctx, `
			UPDATE tasks SET verification_status = 'verified', updated_at = now()
			WHERE id = $1 AND task_status = 'in_progress' AND assigned_agent = $2 AND completed_at IS NOT NULL`,
			taskID, agentID)
		if err != nil {
			return false, fmt.Errorf("postgres: complete if owner (verify lease): %w", err)
		}
		if tag.RowsAffected() != 1 {
			return false, nil
		}
		// task_status stays 'complete' logically; the in_progress row was
		// only a transient lease state for the verification pass.
		_, err = s.conn(ctx).Exec(ctx, `
			UPDATE tasks SET task_status = 'complete', assigned_agent = NULL, updated_at = now()
			WHERE id = $1 AND assigned_agent = $2`, taskID, agentID)
		if err != nil {
			return false, fmt.Errorf("postgres: complete if owner (verify lease) finalize: %w", err)
		}
		return true, nil
	}

	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tasks SET task_status = 'complete', verification_status = 'unverified',
			assigned_agent = NULL, completed_at = now(), updated_at = now(),
			actual_hours = COALESCE($1, actual_hours, EXTRACT(EPOCH FROM (now() - started_at)) / 3600.0)
		WHERE id = $2 AND task_status = 'in_progress' AND assigned_agent = $3`,
		actualHours, taskID, agentID)
	if err != nil {
		return false, fmt.Errorf("postgres: complete if owner: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Verify(ctx context.Context, taskID int64) (bool, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tasks SET verification_status = 'verified', updated_at = now()
		WHERE id = $1 AND task_status = 'complete' AND verification_status = 'unverified'`, taskID)
	if err != nil {
		return false, fmt.Errorf("postgres: verify: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) BulkUnlock(ctx context.Context, taskIDs []int64, agentID string, strict bool) (map[int64]bool, error) {
	results := make(map[int64]bool, len(taskIDs))
	err := s.Tx(ctx, func(ctx context.Context) error {
		for _, id := range taskIDs {
			ok, err := s.UnlockIfOwner(ctx, id, agentID)
			if err != nil {
				return fmt.Errorf("postgres: bulk unlock task %d: %w", id, err)
			}
			results[id] = ok
			if strict && !ok {
				return fmt.Errorf("postgres: bulk unlock: task %d could not be unlocked by %s", id, agentID)
			}
		}
		return nil
	})
	if err != nil && strict {
		return nil, err
	}
	return results, nil
}

func (s *Store) AutoComplete(ctx context.Context, organizationID, taskID int64, notes string) (bool, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tasks SET task_status = 'complete', verification_status = 'unverified',
			assigned_agent = NULL, completed_at = now(), notes = $1, updated_at = now()
		WHERE id = $2 AND organization_id = $3 AND task_status != 'complete'`,
		notes, taskID, organizationID)
	if err != nil {
		return false, fmt.Errorf("postgres: auto complete: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReclaimStale(ctx context.Context, threshold time.Duration) ([]store.ReclaimedLease, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, assigned_agent, updated_at FROM tasks
		WHERE task_status = 'in_progress' AND updated_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: reclaim stale: select candidates: %w", err)
	}
	var candidates []store.ReclaimedLease
	for rows.Next() {
		var c store.ReclaimedLease
		var agent *string
		if err := rows.Scan(&c.TaskID, &agent, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: reclaim stale: scan: %w", err)
		}
		if agent != nil {
			c.PreviousAgent = *agent
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var reclaimed []store.ReclaimedLease
	for _, c := range candidates {
		tag, err := s.conn(ctx).Exec(ctx, `
			UPDATE tasks SET task_status = 'available', assigned_agent = NULL, updated_at = now()
			WHERE id = $1 AND task_status = 'in_progress'`, c.TaskID)
		if err != nil {
			return nil, fmt.Errorf("postgres: reclaim stale: update task %d: %w", c.TaskID, err)
		}
		if tag.RowsAffected() == 1 {
			reclaimed = append(reclaimed, c)
		}
	}
	return reclaimed, nil
}
