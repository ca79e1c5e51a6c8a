package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

// edgeBlocks decides whether one precedence edge currently blocks the
// dependent. The single-column precedent references behave exactly like
// finish-to-start edges.
func edgeBlocks(typ models.DependencyType, precedent, dependent models.TaskStatus) bool {
	switch typ {
	case models.DependencyFinishToStart:
		return precedent != models.TaskStatusCompleted
	case models.DependencyStartToStart:
		return precedent == models.TaskStatusPending
	case models.DependencyFinishToFinish:
		// Finish-to-finish only constrains finishing: it matters once the
		// dependent is actually in progress
		return dependent == models.TaskStatusInProgress && precedent != models.TaskStatusCompleted
	}
	return false
}

// resolveBlocking evaluates every precedent of the task and returns
// whether it is blocked, plus human-readable reasons. A precedent that
// cannot be loaded never blocks: a dangling reference must not wedge the
// task forever.
func (e *Engine) resolveBlocking(ctx context.Context, task *models.Task) (bool, []string, error) {
	if task.Status == models.TaskStatusCompleted {
		return false, nil, nil
	}

	var reasons []string

	check := func(precedentID int64, typ models.DependencyType, kind string) error {
		precedent, err := e.tasks.GetByID(ctx, precedentID)
		if err != nil {
			return err
		}
		if precedent == nil {
			e.logger.Warn("Precedent missing, treating as non-blocking",
				zap.Int64("task_id", task.ID),
				zap.Int64("precedent_id", precedentID),
				zap.String("kind", kind))
			return nil
		}
		if edgeBlocks(typ, precedent.Status, task.Status) {
			reasons = append(reasons, fmt.Sprintf("waiting on %s %q", kind, precedent.Title))
		}
		return nil
	}

	if task.DependsOnTaskID != nil {
		if err := check(*task.DependsOnTaskID, models.DependencyFinishToStart, "task"); err != nil {
			return false, nil, err
		}
	}
	if task.DependsOnMilestoneID != nil {
		if err := check(*task.DependsOnMilestoneID, models.DependencyFinishToStart, "milestone"); err != nil {
			return false, nil, err
		}
	}

	edges, err := e.deps.ListByTask(ctx, task.ID)
	if err != nil {
		return false, nil, err
	}
	for _, edge := range edges {
		if err := check(edge.DependsOnTaskID, edge.Type, "task"); err != nil {
			return false, nil, err
		}
	}

	return len(reasons) > 0, reasons, nil
}
