package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/notify"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/internal/sla"
	"github.com/taskflow/taskflow/pkg/database"
)

// Engine is the task lifecycle core. Every task mutation flows through
// it: blocking resolution, the unlock cascade, progress rollups, SLA
// bookkeeping and the resulting notifications. Rollup and cascade writes
// go straight to the repositories and never re-enter the pipeline.
type Engine struct {
	db         *database.DB
	tasks      port.TaskRepository
	flows      port.FlowRepository
	deps       port.DependencyRepository
	dispatcher *notify.Dispatcher
	evaluator  *sla.Evaluator
	alerts     *sla.Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a lifecycle engine
func New(
	db *database.DB,
	tasks port.TaskRepository,
	flows port.FlowRepository,
	deps port.DependencyRepository,
	dispatcher *notify.Dispatcher,
	evaluator *sla.Evaluator,
	alerts *sla.Notifier,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:         db,
		tasks:      tasks,
		flows:      flows,
		deps:       deps,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		alerts:     alerts,
		logger:     logger,
		now:        time.Now,
	}
}

// mutation is the before/after snapshot pair of one task write
type mutation struct {
	original *models.Task
	incoming *models.Task
}

func (m *mutation) statusChanged() bool {
	return m.original.Status != m.incoming.Status
}

func (m *mutation) completed() bool {
	return m.statusChanged() && m.incoming.Status == models.TaskStatusCompleted
}

func (m *mutation) reopened() bool {
	return m.statusChanged() && m.original.Status == models.TaskStatusCompleted
}

// CreateTask validates and persists a new task, wiring it into its
// milestone chain and the blocking graph
func (e *Engine) CreateTask(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if !task.Status.IsValid() {
		return ErrInvalidStatus
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		flow, err := e.flows.GetByID(ctx, task.FlowID)
		if err != nil {
			return err
		}
		if flow == nil {
			return ErrFlowNotFound
		}

		if task.ParentTaskID != nil {
			parent, err := e.tasks.GetByID(ctx, *task.ParentTaskID)
			if err != nil {
				return err
			}
			if parent == nil {
				return ErrTaskNotFound
			}

			siblings, err := e.tasks.ListSubtasks(ctx, *task.ParentTaskID)
			if err != nil {
				return err
			}
			if len(siblings) == 0 {
				// The first subtask of a milestone starts immediately
				if task.Status == models.TaskStatusPending {
					task.Status = models.TaskStatusInProgress
				}
			} else if task.DependsOnTaskID == nil {
				// Later siblings chain behind the newest one unless an
				// explicit precedent was supplied
				last := siblings[len(siblings)-1].ID
				task.DependsOnTaskID = &last
			}
		}

		if task.SLADueDate == nil && task.EstimatedEndAt != nil {
			due := *task.EstimatedEndAt
			task.SLADueDate = &due
		}

		blocked, reasons, err := e.resolveBlocking(ctx, task)
		if err != nil {
			return err
		}
		task.IsBlocked = blocked
		task.BlockedReason = strings.Join(reasons, "; ")

		applyStatusProgress(task)

		now := e.now()
		e.evaluator.Refresh(task, now)
		task.CreatedAt = now
		task.UpdatedAt = now

		return e.tasks.Create(ctx, task)
	})
	if err != nil {
		return err
	}

	if err := e.dispatcher.TaskAssigned(ctx, task); err != nil {
		e.logger.Error("Failed to notify assignment",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
	}
	if task.IsBlocked {
		if err := e.dispatcher.TaskBlocked(ctx, task, task.BlockedReason); err != nil {
			e.logger.Error("Failed to notify block",
				zap.Int64("task_id", task.ID),
				zap.Error(err))
		}
	}

	e.rollupFrom(ctx, task)
	return nil
}

// UpdateTask applies a full desired task state. The current persisted row
// is re-read inside the transaction and kept as the pre-mutation snapshot
// that drives every downstream effect.
func (e *Engine) UpdateTask(ctx context.Context, incoming *models.Task) (*models.Task, error) {
	if !incoming.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var m *mutation
	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		original, err := e.tasks.GetByID(ctx, incoming.ID)
		if err != nil {
			return err
		}
		if original == nil {
			return ErrTaskNotFound
		}
		m = &mutation{original: original, incoming: incoming}

		// Moving forward while blocked is rejected outright. The guard
		// re-resolves blocking at the current persisted state rather than
		// trusting the stored flag.
		if m.statusChanged() &&
			(incoming.Status == models.TaskStatusInProgress || incoming.Status == models.TaskStatusCompleted) {
			blocked, reasons, err := e.resolveBlocking(ctx, original)
			if err != nil {
				return err
			}
			if blocked {
				return &BlockedError{TaskID: incoming.ID, Reasons: reasons}
			}
		}

		blocked, reasons, err := e.resolveBlocking(ctx, incoming)
		if err != nil {
			return err
		}
		incoming.IsBlocked = blocked
		incoming.BlockedReason = strings.Join(reasons, "; ")

		if m.statusChanged() {
			applyStatusProgress(incoming)
		}

		// The SLA due date mirrors the estimated end whenever it moves
		if !eqTimePtr(original.EstimatedEndAt, incoming.EstimatedEndAt) {
			incoming.SLADueDate = cloneTimePtr(incoming.EstimatedEndAt)
		} else if incoming.SLADueDate == nil && incoming.EstimatedEndAt != nil {
			incoming.SLADueDate = cloneTimePtr(incoming.EstimatedEndAt)
		}

		e.evaluator.Refresh(incoming, e.now())
		incoming.CreatedAt = original.CreatedAt
		incoming.UpdatedAt = e.now()

		return e.tasks.Update(ctx, incoming)
	})
	if err != nil {
		return nil, err
	}

	e.afterUpdate(ctx, m)
	return incoming, nil
}

// DeleteTask soft-deletes a task and its subtasks, then re-rolls the
// surrounding aggregates
func (e *Engine) DeleteTask(ctx context.Context, id int64) error {
	var task *models.Task
	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		t, err := e.tasks.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTaskNotFound
		}
		task = t

		now := e.now()
		if err := e.tasks.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		_, err = e.tasks.SoftDeleteSubtasks(ctx, id, now)
		return err
	})
	if err != nil {
		return err
	}

	e.rollupFrom(ctx, task)
	return nil
}

// afterUpdate fires the side effects of a committed task write, driven by
// the before/after snapshot pair
func (e *Engine) afterUpdate(ctx context.Context, m *mutation) {
	original, updated := m.original, m.incoming

	changes := diffChanges(original, updated)
	if len(changes) > 0 {
		e.dispatcher.Broadcast(
			[]string{notify.FlowChannel(updated.FlowID), notify.TaskChannel(updated.ID)},
			notify.EventTaskUpdated,
			notify.TaskUpdatedPayload(updated, changes),
		)
	}
	if !eqTimePtr(original.EstimatedStartAt, updated.EstimatedStartAt) {
		e.dispatcher.Broadcast(
			[]string{notify.FlowChannel(updated.FlowID), notify.TaskChannel(updated.ID)},
			notify.EventTaskDateChanged,
			notify.TaskDateChangedPayload(updated, "estimated_start_at", original.EstimatedStartAt, updated.EstimatedStartAt),
		)
	}
	if !eqTimePtr(original.EstimatedEndAt, updated.EstimatedEndAt) {
		e.dispatcher.Broadcast(
			[]string{notify.FlowChannel(updated.FlowID), notify.TaskChannel(updated.ID)},
			notify.EventTaskDateChanged,
			notify.TaskDateChangedPayload(updated, "estimated_end_at", original.EstimatedEndAt, updated.EstimatedEndAt),
		)
	}

	if !eqInt64Ptr(original.AssigneeID, updated.AssigneeID) {
		if err := e.dispatcher.TaskAssigneeChanged(ctx, updated, original.AssigneeID); err != nil {
			e.logger.Error("Failed to notify assignee change",
				zap.Int64("task_id", updated.ID),
				zap.Error(err))
		}
	}

	if original.IsBlocked != updated.IsBlocked {
		var err error
		if updated.IsBlocked {
			err = e.dispatcher.TaskBlocked(ctx, updated, updated.BlockedReason)
		} else {
			err = e.dispatcher.TaskUnblocked(ctx, updated)
		}
		if err != nil {
			e.logger.Error("Failed to notify block change",
				zap.Int64("task_id", updated.ID),
				zap.Error(err))
		}
	}

	if m.completed() {
		e.onCompleted(ctx, updated)
	}
	if m.reopened() {
		e.onReopened(ctx, updated)
	}

	e.notifySLAChange(ctx, m)
	e.rollupFrom(ctx, updated)
	if !eqInt64Ptr(original.ParentTaskID, updated.ParentTaskID) && original.ParentTaskID != nil {
		if err := e.refreshMilestone(ctx, *original.ParentTaskID); err != nil {
			e.logger.Error("Failed to refresh former milestone",
				zap.Int64("milestone_id", *original.ParentTaskID),
				zap.Error(err))
		}
	}
}

// onCompleted handles a task that just finished: completion
// notifications, alert auto-resolve and the one-hop unlock cascade
func (e *Engine) onCompleted(ctx context.Context, task *models.Task) {
	var err error
	if task.IsMilestone {
		err = e.dispatcher.MilestoneCompleted(ctx, task)
	} else {
		err = e.dispatcher.TaskCompleted(ctx, task)
	}
	if err != nil {
		e.logger.Error("Failed to notify completion",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
	}

	if err := e.alerts.ResolveOnCompletion(ctx, task); err != nil {
		e.logger.Error("Failed to auto-resolve SLA alerts",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
	}

	e.cascadeUnlock(ctx, task.ID)
}

// onReopened forcibly re-blocks the direct dependents of a task that left
// the completed state
func (e *Engine) onReopened(ctx context.Context, task *models.Task) {
	count, err := e.tasks.ForceBlockDependents(ctx, task.ID)
	if err != nil {
		e.logger.Error("Failed to re-block dependents",
			zap.Int64("task_id", task.ID),
			zap.Error(err))
		return
	}
	if count > 0 {
		e.logger.Info("Re-blocked dependents of reopened task",
			zap.Int64("task_id", task.ID),
			zap.Int64("count", count))
	}
}

// notifySLAChange compares the alert state before and after the write and
// pushes the transition downstream
func (e *Engine) notifySLAChange(ctx context.Context, m *mutation) {
	now := e.now()
	oldState := e.evaluator.Evaluate(m.original, now)
	newState := e.evaluator.Evaluate(m.incoming, now)
	if oldState == newState {
		return
	}

	channels := []string{notify.FlowChannel(m.incoming.FlowID)}
	if m.incoming.AssigneeID != nil {
		channels = append(channels, notify.UserChannel(*m.incoming.AssigneeID))
	}
	e.dispatcher.Broadcast(channels, notify.EventSLAStatusChanged,
		notify.SLAStatusChangedPayload(m.incoming, string(oldState), string(newState)))

	if newState == sla.StateNone {
		if err := e.alerts.ClearStale(ctx, m.incoming); err != nil {
			e.logger.Error("Failed to clear stale SLA alerts",
				zap.Int64("task_id", m.incoming.ID),
				zap.Error(err))
		}
	}
}

// applyStatusProgress keeps a task's progress consistent with its status.
// Milestones derive progress from their subtasks instead.
func applyStatusProgress(task *models.Task) {
	if task.IsMilestone {
		return
	}
	switch task.Status {
	case models.TaskStatusPending, models.TaskStatusCancelled:
		task.Progress = 0
	case models.TaskStatusInProgress:
		if task.Progress == 0 {
			task.Progress = 50
		}
	case models.TaskStatusCompleted:
		task.Progress = 100
	}
}

// diffChanges builds the field-level before/after map for the task
// update event
func diffChanges(original, updated *models.Task) map[string]notify.FieldChange {
	changes := make(map[string]notify.FieldChange)

	if original.Title != updated.Title {
		changes["title"] = notify.FieldChange{Old: original.Title, New: updated.Title}
	}
	if original.Description != updated.Description {
		changes["description"] = notify.FieldChange{Old: original.Description, New: updated.Description}
	}
	if original.Status != updated.Status {
		changes["status"] = notify.FieldChange{Old: original.Status, New: updated.Status}
	}
	if original.Priority != updated.Priority {
		changes["priority"] = notify.FieldChange{Old: original.Priority, New: updated.Priority}
	}
	if original.Progress != updated.Progress {
		changes["progress"] = notify.FieldChange{Old: original.Progress, New: updated.Progress}
	}
	if original.IsBlocked != updated.IsBlocked {
		changes["is_blocked"] = notify.FieldChange{Old: original.IsBlocked, New: updated.IsBlocked}
	}
	if !eqInt64Ptr(original.AssigneeID, updated.AssigneeID) {
		changes["assignee_id"] = notify.FieldChange{Old: original.AssigneeID, New: updated.AssigneeID}
	}
	if !eqInt64Ptr(original.ParentTaskID, updated.ParentTaskID) {
		changes["parent_task_id"] = notify.FieldChange{Old: original.ParentTaskID, New: updated.ParentTaskID}
	}
	if !eqInt64Ptr(original.DependsOnTaskID, updated.DependsOnTaskID) {
		changes["depends_on_task_id"] = notify.FieldChange{Old: original.DependsOnTaskID, New: updated.DependsOnTaskID}
	}
	if !eqInt64Ptr(original.DependsOnMilestoneID, updated.DependsOnMilestoneID) {
		changes["depends_on_milestone_id"] = notify.FieldChange{Old: original.DependsOnMilestoneID, New: updated.DependsOnMilestoneID}
	}
	if !eqTimePtr(original.EstimatedStartAt, updated.EstimatedStartAt) {
		changes["estimated_start_at"] = notify.FieldChange{Old: original.EstimatedStartAt, New: updated.EstimatedStartAt}
	}
	if !eqTimePtr(original.EstimatedEndAt, updated.EstimatedEndAt) {
		changes["estimated_end_at"] = notify.FieldChange{Old: original.EstimatedEndAt, New: updated.EstimatedEndAt}
	}
	if !eqTimePtr(original.SLADueDate, updated.SLADueDate) {
		changes["sla_due_date"] = notify.FieldChange{Old: original.SLADueDate, New: updated.SLADueDate}
	}
	if original.Order != updated.Order {
		changes["order"] = notify.FieldChange{Old: original.Order, New: updated.Order}
	}

	return changes
}

func eqInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
