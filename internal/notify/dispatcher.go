package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
)

// Dispatcher persists notifications and pushes the matching realtime
// events. Persistence failures surface as errors; broadcast failures are
// the hub's problem and never fail the caller.
type Dispatcher struct {
	notifications port.NotificationRepository
	users         port.UserRepository
	flows         port.FlowRepository
	tasks         port.TaskRepository
	broadcaster   port.Broadcaster
	logger        *zap.Logger
	now           func() time.Time
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(
	notifications port.NotificationRepository,
	users port.UserRepository,
	flows port.FlowRepository,
	tasks port.TaskRepository,
	broadcaster port.Broadcaster,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		flows:         flows,
		tasks:         tasks,
		broadcaster:   broadcaster,
		logger:        logger,
		now:           time.Now,
	}
}

// Dispatch persists the notification and pushes notification.sent to the
// recipient's channel
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to dispatch notification: %w", err)
	}

	d.Broadcast([]string{UserChannel(n.UserID)}, EventNotificationSent, map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"priority":   n.Priority,
		"task_id":    n.TaskID,
		"flow_id":    n.FlowID,
		"data":       n.Data,
		"created_at": n.CreatedAt.Format(time.RFC3339),
	})

	return nil
}

// Broadcast pushes an event to the given channels
func (d *Dispatcher) Broadcast(channels []string, event string, payload map[string]any) {
	if d.broadcaster == nil {
		return
	}
	d.broadcaster.Publish(channels, event, payload)
}

// TaskAssigned notifies the assignee of a new assignment
func (d *Dispatcher) TaskAssigned(ctx context.Context, task *models.Task) error {
	if task.AssigneeID == nil {
		return nil
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   *task.AssigneeID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationTaskAssigned,
		Title:    "Task assigned",
		Message:  fmt.Sprintf("You have been assigned to %q", task.Title),
		Priority: models.PriorityMedium,
	})
}

// TaskAssigneeChanged notifies the new assignee of the handover and the
// previous assignee that the task moved on
func (d *Dispatcher) TaskAssigneeChanged(ctx context.Context, task *models.Task, previousAssignee *int64) error {
	if task.AssigneeID != nil {
		err := d.Dispatch(ctx, &models.Notification{
			UserID:   *task.AssigneeID,
			TaskID:   &task.ID,
			FlowID:   &task.FlowID,
			Type:     models.NotificationTaskAssigned,
			Title:    "Task assigned",
			Message:  fmt.Sprintf("You have been assigned to %q", task.Title),
			Priority: models.PriorityMedium,
			Data: map[string]any{
				"previous_assignee": previousAssignee,
				"assigned_at":       d.now().Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}
	}

	if previousAssignee != nil && (task.AssigneeID == nil || *previousAssignee != *task.AssigneeID) {
		return d.Dispatch(ctx, &models.Notification{
			UserID:   *previousAssignee,
			TaskID:   &task.ID,
			FlowID:   &task.FlowID,
			Type:     models.NotificationTaskReassigned,
			Title:    "Task reassigned",
			Message:  fmt.Sprintf("%q has been reassigned", task.Title),
			Priority: models.PriorityLow,
		})
	}

	return nil
}

// TaskBlocked notifies the assignee that the task is waiting on a precedent
func (d *Dispatcher) TaskBlocked(ctx context.Context, task *models.Task, reason string) error {
	if task.AssigneeID == nil {
		return nil
	}
	if reason == "" {
		reason = "waiting on an incomplete precedent"
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   *task.AssigneeID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationTaskBlocked,
		Title:    "Task blocked",
		Message:  fmt.Sprintf("%q is blocked: %s", task.Title, reason),
		Priority: models.PriorityMedium,
	})
}

// TaskUnblocked notifies the assignee that the task is ready to work
func (d *Dispatcher) TaskUnblocked(ctx context.Context, task *models.Task) error {
	if task.AssigneeID == nil {
		return nil
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   *task.AssigneeID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationTaskUnblocked,
		Title:    "Task unblocked",
		Message:  fmt.Sprintf("%q is no longer blocked and is ready to start", task.Title),
		Priority: models.PriorityMedium,
	})
}

// TaskCompleted notifies the flow creator when someone else finishes a
// task, but only for creators who supervise
func (d *Dispatcher) TaskCompleted(ctx context.Context, task *models.Task) error {
	flow, err := d.flows.GetByID(ctx, task.FlowID)
	if err != nil || flow == nil {
		return err
	}
	creator, err := d.users.GetByID(ctx, flow.CreatedBy)
	if err != nil || creator == nil {
		return err
	}
	if !creator.IsSupervisor() {
		return nil
	}
	if task.AssigneeID != nil && *task.AssigneeID == creator.ID {
		return nil
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   creator.ID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationTaskCompleted,
		Title:    "Task completed",
		Message:  fmt.Sprintf("%q has been completed", task.Title),
		Priority: models.PriorityMedium,
	})
}

// MilestoneCompleted notifies the flow creator and the assignees of tasks
// waiting on the milestone
func (d *Dispatcher) MilestoneCompleted(ctx context.Context, milestone *models.Task) error {
	flow, err := d.flows.GetByID(ctx, milestone.FlowID)
	if err != nil {
		return err
	}

	var creatorID int64
	if flow != nil {
		creator, err := d.users.GetByID(ctx, flow.CreatedBy)
		if err != nil {
			return err
		}
		if creator != nil && creator.IsSupervisor() {
			creatorID = creator.ID
			err := d.Dispatch(ctx, &models.Notification{
				UserID:   creator.ID,
				TaskID:   &milestone.ID,
				FlowID:   &milestone.FlowID,
				Type:     models.NotificationMilestoneCompleted,
				Title:    "Milestone completed",
				Message:  fmt.Sprintf("Milestone %q has been completed", milestone.Title),
				Priority: models.PriorityHigh,
			})
			if err != nil {
				return err
			}
		}
	}

	dependents, err := d.tasks.ListDependents(ctx, milestone.ID)
	if err != nil {
		return err
	}
	notified := map[int64]bool{creatorID: true}
	for _, dep := range dependents {
		if dep.DependsOnMilestoneID == nil || *dep.DependsOnMilestoneID != milestone.ID {
			continue
		}
		if dep.AssigneeID == nil || notified[*dep.AssigneeID] {
			continue
		}
		notified[*dep.AssigneeID] = true
		err := d.Dispatch(ctx, &models.Notification{
			UserID:   *dep.AssigneeID,
			TaskID:   &dep.ID,
			FlowID:   &dep.FlowID,
			Type:     models.NotificationMilestoneCompleted,
			Title:    "Milestone completed",
			Message:  fmt.Sprintf("Milestone %q is done; %q may be ready to start", milestone.Title, dep.Title),
			Priority: models.PriorityMedium,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// FlowAssigned notifies the responsible user of a new flow
func (d *Dispatcher) FlowAssigned(ctx context.Context, flow *models.Flow) error {
	if flow.ResponsibleID == nil {
		return nil
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   *flow.ResponsibleID,
		FlowID:   &flow.ID,
		Type:     models.NotificationFlowAssigned,
		Title:    "Flow assigned",
		Message:  fmt.Sprintf("You are now responsible for %q", flow.Name),
		Priority: models.PriorityHigh,
	})
}

// FlowResponsibleChanged notifies the new responsible user
func (d *Dispatcher) FlowResponsibleChanged(ctx context.Context, flow *models.Flow) error {
	if flow.ResponsibleID == nil {
		return nil
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   *flow.ResponsibleID,
		FlowID:   &flow.ID,
		Type:     models.NotificationFlowResponsible,
		Title:    "Flow responsibility changed",
		Message:  fmt.Sprintf("Responsibility for %q has been transferred to you", flow.Name),
		Priority: models.PriorityHigh,
	})
}

// FlowCompleted notifies the responsible user, falling back to the creator
func (d *Dispatcher) FlowCompleted(ctx context.Context, flow *models.Flow) error {
	target := flow.CreatedBy
	if flow.ResponsibleID != nil {
		target = *flow.ResponsibleID
	}
	return d.Dispatch(ctx, &models.Notification{
		UserID:   target,
		FlowID:   &flow.ID,
		Type:     models.NotificationFlowCompleted,
		Title:    "Flow completed",
		Message:  fmt.Sprintf("%q has been completed", flow.Name),
		Priority: models.PriorityHigh,
	})
}
