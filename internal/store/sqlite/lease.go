package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/store"
)

func (s *Store) LockIfAvailable(ctx context.Context, taskID int64, agentID string, allowNeedsVerification bool) (bool, error) {
	now := time.Now().UTC()
	statusClause := `task_status = 'available'`
	if allowNeedsVerification {
		statusClause = `(task_status = 'available' OR (task_status = 'complete' AND verification_status = 'unverified'))`
	}
	res, err := s.conn(ctx).ExecContext(ctx, fmt.Sprintf(`
		UPDATE tasks SET assigned_agent = ?, task_status = 'in_progress',
			started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ? AND %s AND assigned_agent IS NULL`, statusClause),
		agentID, now, now, taskID)
	if err != nil {
		return false, fmt.Errorf("sqlite: lock if available: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: lock if available: rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) UnlockIfOwner(ctx context.Context, taskID int64, agentID string) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET assigned_agent = NULL, task_status = 'available', updated_at = ?
		WHERE id = ? AND task_status = 'in_progress' AND assigned_agent = ?`,
		time.Now().UTC(), taskID, agentID)
	if err != nil {
		return false, fmt.Errorf("sqlite: unlock if owner: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) CompleteIfOwner(ctx context.Context, taskID int64, agentID string, actualHours *float64, fromVerificationLease bool) (bool, error) {
	now := time.Now().UTC()
	if fromVerificationLease {
		res, err := s.conn(ctx).ExecContext(ctx, `
			UPDATE tasks SET verification_status = 'verified', updated_at = ?
			WHERE id = ? AND task_status = 'in_progress' AND assigned_agent = ?
				AND completed_at IS NOT NULL`,
			now, taskID, agentID)
		if err != nil {
			return false, fmt.Errorf("sqlite: complete if owner (verify lease): %w", err)
		}
		n, _ := res.RowsAffected()
		if n != 1 {
			return false, nil
		}
		// task_status stays 'complete' logically; the in_progress row was
		// only a transient lease state for the verification pass.
		_, err = s.conn(ctx).ExecContext(ctx, `
			UPDATE tasks SET task_status = 'complete', assigned_agent = NULL, updated_at = ?
			WHERE id = ? AND assigned_agent = ?`, now, taskID, agentID)
		if err != nil {
			return false, fmt.Errorf("sqlite: complete if owner (verify lease) finalize: %w", err)
		}
		return true, nil
	}

	var actualHoursExpr any = actualHours
	if actualHours == nil {
		// compute from started_at if unset
		actualHoursExpr = nil
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET task_status = 'complete', verification_status = 'unverified',
			assigned_agent = NULL, completed_at = ?, updated_at = ?,
			actual_hours = COALESCE(?, actual_hours, (julianday(?) - julianday(started_at)) * 24.0)
		WHERE id = ? AND task_status = 'in_progress' AND assigned_agent = ?`,
		now, now, actualHoursExpr, now, taskID, agentID)
	if err != nil {
		return false, fmt.Errorf("sqlite: complete if owner: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) Verify(ctx context.Context, taskID int64) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET verification_status = 'verified', updated_at = ?
		WHERE id = ? AND task_status = 'complete' AND verification_status = 'unverified'`,
		time.Now().UTC(), taskID)
	if err != nil {
		return false, fmt.Errorf("sqlite: verify: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) BulkUnlock(ctx context.Context, taskIDs []int64, agentID string, strict bool) (map[int64]bool, error) {
	results := make(map[int64]bool, len(taskIDs))
	err := s.Tx(ctx, func(ctx context.Context) error {
		for _, id := range taskIDs {
			ok, err := s.UnlockIfOwner(ctx, id, agentID)
			if err != nil {
				return fmt.Errorf("sqlite: bulk unlock task %d: %w", id, err)
			}
			results[id] = ok
			if strict && !ok {
				return fmt.Errorf("sqlite: bulk unlock: task %d could not be unlocked by %s", id, agentID)
			}
		}
		return nil
	})
	if err != nil {
		if strict {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) AutoComplete(ctx context.Context, organizationID, taskID int64, notes string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE tasks SET task_status = 'complete', verification_status = 'unverified',
			assigned_agent = NULL, completed_at = ?, notes = ?, updated_at = ?
		WHERE id = ? AND organization_id = ? AND task_status != 'complete'`,
		now, notes, now, taskID, organizationID)
	if err != nil {
		return false, fmt.Errorf("sqlite: auto complete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) ReclaimStale(ctx context.Context, threshold time.Duration) ([]store.ReclaimedLease, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.conn(ctx).QueryxContext(ctx, `
		SELECT id, assigned_agent, updated_at FROM tasks
		WHERE task_status = 'in_progress' AND updated_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reclaim stale: select candidates: %w", err)
	}
	var candidates []store.ReclaimedLease
	for rows.Next() {
		var c store.ReclaimedLease
		var agent *string
		if err := rows.Scan(&c.TaskID, &agent, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: reclaim stale: scan: %w", err)
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
		res, err := s.conn(ctx).ExecContext(ctx, `
			UPDATE tasks SET task_status = 'available', assigned_agent = NULL, updated_at = ?
			WHERE id = ? AND task_status = 'in_progress'`, time.Now().UTC(), c.TaskID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: reclaim stale: update task %d: %w", c.TaskID, err)
		}
		n, _ := res.RowsAffected()
		if n == 1 {
			reclaimed = append(reclaimed, c)
		}
	}
	return reclaimed, nil
}
