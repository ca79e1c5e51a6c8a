package engine

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

// rollupFrom refreshes the aggregates above a task: its milestone first,
// then its flow. Both writes bypass the mutation pipeline.
func (e *Engine) rollupFrom(ctx context.Context, task *models.Task) {
	if task.ParentTaskID != nil {
		if err := e.refreshMilestone(ctx, *task.ParentTaskID); err != nil {
			e.logger.Error("Failed to refresh milestone",
				zap.Int64("milestone_id", *task.ParentTaskID),
				zap.Error(err))
		}
	}
	if err := e.refreshFlow(ctx, task.FlowID); err != nil {
		e.logger.Error("Failed to refresh flow",
			zap.Int64("flow_id", task.FlowID),
			zap.Error(err))
	}
}

// refreshMilestone recomputes a milestone's progress as the mean of its
// live subtasks and derives its status from the result. A milestone with
// no subtasks left reverts to pending at zero progress.
func (e *Engine) refreshMilestone(ctx context.Context, milestoneID int64) error {
	var completedNow *models.Task

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		milestone, err := e.tasks.GetByID(ctx, milestoneID)
		if err != nil {
			return err
		}
		if milestone == nil || !milestone.IsMilestone {
			return nil
		}

		subtasks, err := e.tasks.ListSubtasks(ctx, milestoneID)
		if err != nil {
			return err
		}

		progress := meanProgress(subtasks)
		status := deriveStatus(milestone.Status, progress)

		if progress == milestone.Progress && status == milestone.Status {
			return nil
		}

		wasCompleted := milestone.Status == models.TaskStatusCompleted
		milestone.Progress = progress
		milestone.Status = status
		milestone.UpdatedAt = e.now()
		if err := e.tasks.Update(ctx, milestone); err != nil {
			return err
		}

		if !wasCompleted && status == models.TaskStatusCompleted {
			completedNow = milestone
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A milestone completed by its subtasks unlocks its dependents the
	// same way an explicitly completed task would
	if completedNow != nil {
		if err := e.dispatcher.MilestoneCompleted(ctx, completedNow); err != nil {
			e.logger.Error("Failed to notify milestone completion",
				zap.Int64("milestone_id", completedNow.ID),
				zap.Error(err))
		}
		e.cascadeUnlock(ctx, completedNow.ID)
	}

	return nil
}

// refreshFlow recomputes a flow's progress as the mean of its root
// tasks, keeping status and the started/completed stamps in lockstep
func (e *Engine) refreshFlow(ctx context.Context, flowID int64) error {
	var completedNow *models.Flow

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		flow, err := e.flows.GetByID(ctx, flowID)
		if err != nil {
			return err
		}
		if flow == nil {
			return nil
		}

		roots, err := e.tasks.ListRootByFlow(ctx, flowID)
		if err != nil {
			return err
		}

		progress := meanProgress(roots)
		status := flow.Status
		startedAt := flow.StartedAt
		completedAt := flow.CompletedAt
		now := e.now()

		if progress == 100 {
			status = models.FlowStatusCompleted
			if completedAt == nil {
				completedAt = &now
			}
		} else if flow.Status == models.FlowStatusCompleted {
			status = models.FlowStatusActive
			completedAt = nil
		}
		if progress > 0 && startedAt == nil {
			startedAt = &now
		}

		if progress == flow.Progress && status == flow.Status &&
			eqTimePtr(startedAt, flow.StartedAt) && eqTimePtr(completedAt, flow.CompletedAt) {
			return nil
		}

		wasCompleted := flow.Status == models.FlowStatusCompleted
		flow.Progress = progress
		flow.Status = status
		flow.StartedAt = startedAt
		flow.CompletedAt = completedAt
		flow.UpdatedAt = now
		if err := e.flows.Update(ctx, flow); err != nil {
			return err
		}

		if !wasCompleted && status == models.FlowStatusCompleted {
			completedNow = flow
		}
		return nil
	})
	if err != nil {
		return err
	}

	if completedNow != nil {
		if err := e.dispatcher.FlowCompleted(ctx, completedNow); err != nil {
			e.logger.Error("Failed to notify flow completion",
				zap.Int64("flow_id", completedNow.ID),
				zap.Error(err))
		}
	}

	return nil
}

// meanProgress returns the rounded mean progress of the tasks, zero when
// there are none
func meanProgress(tasks []*models.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	sum := 0
	for _, t := range tasks {
		sum += t.Progress
	}
	return int(math.Round(float64(sum) / float64(len(tasks))))
}

// deriveStatus maps a milestone's recomputed progress onto its status
func deriveStatus(current models.TaskStatus, progress int) models.TaskStatus {
	switch {
	case progress == 100:
		return models.TaskStatusCompleted
	case progress < 100 && current == models.TaskStatusCompleted:
		return models.TaskStatusInProgress
	case progress > 0 && current == models.TaskStatusPending:
		return models.TaskStatusInProgress
	case progress == 0 && (current == models.TaskStatusInProgress || current == models.TaskStatusCompleted):
		return models.TaskStatusPending
	default:
		return current
	}
}
