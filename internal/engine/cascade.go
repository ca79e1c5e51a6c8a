package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

// cascadeUnlock re-evaluates the direct dependents of a completed
// precedent. The cascade is one hop deep: a dependent unlocked here does
// not trigger further unlocks, its own completion will. Failures on one
// dependent never stop the others.
func (e *Engine) cascadeUnlock(ctx context.Context, precedentID int64) {
	seen := make(map[int64]bool)

	dependents, err := e.tasks.ListDependents(ctx, precedentID)
	if err != nil {
		e.logger.Error("Failed to list dependents for cascade",
			zap.Int64("precedent_id", precedentID),
			zap.Error(err))
		return
	}
	for _, dep := range dependents {
		seen[dep.ID] = true
		if _, err := e.checkAndUnlock(ctx, dep.ID); err != nil {
			e.logger.Error("Failed to unlock dependent",
				zap.Int64("task_id", dep.ID),
				zap.Int64("precedent_id", precedentID),
				zap.Error(err))
		}
	}

	edges, err := e.deps.ListByPrecedent(ctx, precedentID)
	if err != nil {
		e.logger.Error("Failed to list dependent edges for cascade",
			zap.Int64("precedent_id", precedentID),
			zap.Error(err))
		return
	}
	for _, edge := range edges {
		if seen[edge.TaskID] {
			continue
		}
		seen[edge.TaskID] = true
		if _, err := e.checkAndUnlock(ctx, edge.TaskID); err != nil {
			e.logger.Error("Failed to unlock dependent",
				zap.Int64("task_id", edge.TaskID),
				zap.Int64("precedent_id", precedentID),
				zap.Error(err))
		}
	}
}

// checkAndUnlock re-reads one task and clears its blocked flag if every
// precedent allows it. A pending subtask that unlocks also starts.
// Calling it on an already-unblocked task is a no-op.
func (e *Engine) checkAndUnlock(ctx context.Context, taskID int64) (bool, error) {
	var task *models.Task
	var unlocked bool

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		t, err := e.tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if t == nil || !t.IsBlocked {
			return nil
		}

		blocked, _, err := e.resolveBlocking(ctx, t)
		if err != nil {
			return err
		}
		if blocked {
			return nil
		}

		t.IsBlocked = false
		t.BlockedReason = ""
		if t.IsSubtask() && t.Status == models.TaskStatusPending {
			t.Status = models.TaskStatusInProgress
			applyStatusProgress(t)
		}
		t.UpdatedAt = e.now()
		if err := e.tasks.Update(ctx, t); err != nil {
			return err
		}

		task = t
		unlocked = true
		return nil
	})
	if err != nil || !unlocked {
		return false, err
	}

	if err := e.dispatcher.TaskUnblocked(ctx, task); err != nil {
		e.logger.Error("Failed to notify unblock",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
	}

	e.rollupFrom(ctx, task)
	return true, nil
}
