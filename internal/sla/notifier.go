package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/notify"
	"github.com/taskflow/taskflow/internal/port"
)

// Sweep actions, reported per task by CheckTask
const (
	ActionNone      = ""
	ActionWarned    = "warned"
	ActionEscalated = "escalated"
)

// Stats summarizes one sweep over the deadline-carrying tasks
type Stats struct {
	Checked     int `json:"checked"`
	Warnings    int `json:"warnings_count"`
	Escalations int `json:"escalations_count"`
	Processed   int `json:"processed_count"`
}

// Notifier applies the deadline alert policy: warn the assignee after one
// day overdue, escalate to a supervisor after two. Each alert fires once
// per breach; the notified/escalated flags reset when the alert clears.
type Notifier struct {
	tasks         port.TaskRepository
	flows         port.FlowRepository
	users         port.UserRepository
	notifications port.NotificationRepository
	dispatcher    *notify.Dispatcher
	mailer        port.Mailer
	evaluator     *Evaluator
	dedupWindow   time.Duration
	autoResolve   bool
	logger        *zap.Logger
	now           func() time.Time
}

// NotifierOptions configures a Notifier
type NotifierOptions struct {
	DedupWindow time.Duration
	AutoResolve bool
}

// NewNotifier creates an SLA notifier. The mailer may be nil when
// escalation mail is disabled.
func NewNotifier(
	tasks port.TaskRepository,
	flows port.FlowRepository,
	users port.UserRepository,
	notifications port.NotificationRepository,
	dispatcher *notify.Dispatcher,
	mailer port.Mailer,
	evaluator *Evaluator,
	opts NotifierOptions,
	logger *zap.Logger,
) *Notifier {
	return &Notifier{
		tasks:         tasks,
		flows:         flows,
		users:         users,
		notifications: notifications,
		dispatcher:    dispatcher,
		mailer:        mailer,
		evaluator:     evaluator,
		dedupWindow:   opts.DedupWindow,
		autoResolve:   opts.AutoResolve,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckTask refreshes the task's breach bookkeeping and fires whichever
// alerts are due. A task two days overdue on its first check gets both
// the assignee warning and the escalation in the same pass.
func (n *Notifier) CheckTask(ctx context.Context, task *models.Task) (string, error) {
	now := n.now()

	_, changed := n.evaluator.Refresh(task, now)
	if changed {
		task.UpdatedAt = now
		if err := n.tasks.Update(ctx, task); err != nil {
			return ActionNone, err
		}
	}

	if task.Status.IsDone() || !task.SLABreached {
		return ActionNone, nil
	}

	action := ActionNone

	if task.SLADaysOverdue >= 1 && !task.SLANotifiedAssignee && task.AssigneeID != nil {
		if err := n.NotifyAssignee(ctx, task); err != nil {
			return action, err
		}
		action = ActionWarned
	}

	if task.SLADaysOverdue >= 2 && !task.SLAEscalated {
		if err := n.Escalate(ctx, task); err != nil {
			return action, err
		}
		if action == ActionWarned {
			action = ActionWarned + "+" + ActionEscalated
		} else {
			action = ActionEscalated
		}
	}

	return action, nil
}

// CheckAll sweeps every open task carrying a due date
func (n *Notifier) CheckAll(ctx context.Context) (Stats, error) {
	var stats Stats

	tasks, err := n.tasks.ListActiveWithDeadline(ctx)
	if err != nil {
		return stats, err
	}

	for _, task := range tasks {
		stats.Checked++
		action, err := n.CheckTask(ctx, task)
		if err != nil {
			n.logger.Error("SLA check failed for task",
				zap.Int64("task_id", task.ID),
				zap.Error(err))
			continue
		}
		switch action {
		case ActionWarned:
			stats.Warnings++
		case ActionEscalated:
			stats.Escalations++
		case ActionWarned + "+" + ActionEscalated:
			stats.Warnings++
			stats.Escalations++
		default:
			continue
		}
		stats.Processed++
	}

	return stats, nil
}

// NotifyAssignee sends the overdue warning to the task's assignee and
// flips the notified flag so the warning fires once per breach
func (n *Notifier) NotifyAssignee(ctx context.Context, task *models.Task) error {
	if task.AssigneeID == nil {
		return nil
	}

	ok, err := n.shouldNotify(ctx, task.ID, models.NotificationSLAWarning)
	if err != nil {
		return err
	}
	if !ok {
		n.logger.Debug("Skipping duplicate SLA warning",
			zap.Int64("task_id", task.ID))
		return nil
	}

	err = n.dispatcher.Dispatch(ctx, &models.Notification{
		UserID:   *task.AssigneeID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationSLAWarning,
		Title:    "Task overdue",
		Message:  fmt.Sprintf("%q is %d day(s) past its deadline", task.Title, task.SLADaysOverdue),
		Priority: models.PriorityUrgent,
		Data:     n.alertData(task),
	})
	if err != nil {
		return err
	}

	n.dispatcher.Broadcast(n.alertChannels(task), notify.EventSLABreached,
		notify.SLABreachPayload(task, task.SLADaysOverdue))

	now := n.now()
	task.SLANotifiedAssignee = true
	task.SLANotifiedAt = &now
	task.UpdatedAt = now
	return n.tasks.Update(ctx, task)
}

// Escalate notifies a supervisor about a task two or more days overdue,
// tells the assignee, and sends the escalation mail when configured
func (n *Notifier) Escalate(ctx context.Context, task *models.Task) error {
	ok, err := n.shouldNotify(ctx, task.ID, models.NotificationSLAEscalation)
	if err != nil {
		return err
	}
	if !ok {
		n.logger.Debug("Skipping duplicate SLA escalation",
			zap.Int64("task_id", task.ID))
		return nil
	}

	supervisor, err := n.resolveSupervisor(ctx, task)
	if err != nil {
		return err
	}
	if supervisor == nil {
		n.logger.Warn("No escalation target found for overdue task",
			zap.Int64("task_id", task.ID))
		return nil
	}

	data := n.alertData(task)
	if task.AssigneeID != nil {
		assignee, err := n.users.GetByID(ctx, *task.AssigneeID)
		if err == nil && assignee != nil {
			data["assignee_name"] = assignee.Name
		}
	}

	err = n.dispatcher.Dispatch(ctx, &models.Notification{
		UserID:   supervisor.ID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationSLAEscalation,
		Title:    "Task escalated",
		Message:  fmt.Sprintf("%q is %d day(s) overdue and needs attention", task.Title, task.SLADaysOverdue),
		Priority: models.PriorityUrgent,
		Data:     data,
	})
	if err != nil {
		return err
	}

	if task.AssigneeID != nil && *task.AssigneeID != supervisor.ID {
		err = n.dispatcher.Dispatch(ctx, &models.Notification{
			UserID:   *task.AssigneeID,
			TaskID:   &task.ID,
			FlowID:   &task.FlowID,
			Type:     models.NotificationSLAEscalationNote,
			Title:    "Task escalated to supervisor",
			Message:  fmt.Sprintf("%q has been escalated to %s", task.Title, supervisor.Name),
			Priority: models.PriorityHigh,
			Data:     n.alertData(task),
		})
		if err != nil {
			return err
		}
	}

	n.dispatcher.Broadcast(n.alertChannels(task), notify.EventSLAEscalated,
		notify.SLABreachPayload(task, task.SLADaysOverdue))

	if n.mailer != nil {
		if err := n.mailer.SendEscalation(ctx, supervisor, task, task.SLADaysOverdue); err != nil {
			n.logger.Error("Failed to send escalation mail",
				zap.Int64("task_id", task.ID),
				zap.String("to", supervisor.Email),
				zap.Error(err))
		}
	}

	now := n.now()
	task.SLAEscalated = true
	task.SLAEscalatedAt = &now
	task.UpdatedAt = now
	return n.tasks.Update(ctx, task)
}

// ClearStale removes the task's outstanding SLA alerts once its deadline
// pressure is gone and tells the assignee the alert resolved
func (n *Notifier) ClearStale(ctx context.Context, task *models.Task) error {
	deleted, err := n.notifications.DeleteByTaskAndTypes(ctx, task.ID, models.SLANotificationTypes)
	if err != nil {
		return err
	}
	if deleted == 0 || task.AssigneeID == nil {
		return nil
	}

	return n.dispatcher.Dispatch(ctx, &models.Notification{
		UserID:   *task.AssigneeID,
		TaskID:   &task.ID,
		FlowID:   &task.FlowID,
		Type:     models.NotificationSLAResolved,
		Title:    "SLA alert resolved",
		Message:  fmt.Sprintf("%q is no longer overdue", task.Title),
		Priority: models.PriorityLow,
	})
}

// ResolveOnCompletion marks a completed task's unread SLA alerts read and
// confirms the resolution to the people who were alerted
func (n *Notifier) ResolveOnCompletion(ctx context.Context, task *models.Task) error {
	if !n.autoResolve {
		return nil
	}

	marked, err := n.notifications.MarkReadByTaskAndTypes(ctx, task.ID, models.SLANotificationTypes, n.now())
	if err != nil {
		return err
	}
	if marked == 0 {
		return nil
	}

	if task.AssigneeID != nil {
		err = n.dispatcher.Dispatch(ctx, &models.Notification{
			UserID:   *task.AssigneeID,
			TaskID:   &task.ID,
			FlowID:   &task.FlowID,
			Type:     models.NotificationSLAResolved,
			Title:    "SLA alert resolved",
			Message:  fmt.Sprintf("%q was completed; its overdue alerts are resolved", task.Title),
			Priority: models.PriorityLow,
		})
		if err != nil {
			return err
		}
	}

	if task.SLAEscalated {
		supervisor, err := n.resolveSupervisor(ctx, task)
		if err != nil {
			return err
		}
		if supervisor != nil && (task.AssigneeID == nil || supervisor.ID != *task.AssigneeID) {
			return n.dispatcher.Dispatch(ctx, &models.Notification{
				UserID:   supervisor.ID,
				TaskID:   &task.ID,
				FlowID:   &task.FlowID,
				Type:     models.NotificationSLAResolved,
				Title:    "Escalated task completed",
				Message:  fmt.Sprintf("%q was completed after escalation", task.Title),
				Priority: models.PriorityLow,
			})
		}
	}

	return nil
}

// shouldNotify suppresses a repeat of the same alert type for a task
// inside the dedup window
func (n *Notifier) shouldNotify(ctx context.Context, taskID int64, typ string) (bool, error) {
	if n.dedupWindow <= 0 {
		return true, nil
	}
	exists, err := n.notifications.ExistsRecent(ctx, taskID, typ, n.now().Add(-n.dedupWindow))
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// resolveSupervisor walks the escalation chain: flow responsible, then
// flow creator, then any admin or project manager
func (n *Notifier) resolveSupervisor(ctx context.Context, task *models.Task) (*models.User, error) {
	flow, err := n.flows.GetByID(ctx, task.FlowID)
	if err != nil {
		return nil, err
	}

	if flow != nil {
		if flow.ResponsibleID != nil {
			user, err := n.users.GetByID(ctx, *flow.ResponsibleID)
			if err != nil {
				return nil, err
			}
			if user != nil {
				return user, nil
			}
		}
		user, err := n.users.GetByID(ctx, flow.CreatedBy)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	return n.users.FirstSupervisor(ctx)
}

func (n *Notifier) alertData(task *models.Task) map[string]any {
	data := map[string]any{
		"task_id":      task.ID,
		"task_title":   task.Title,
		"days_overdue": task.SLADaysOverdue,
	}
	if task.SLADueDate != nil {
		data["sla_due_date"] = task.SLADueDate.Format(time.RFC3339)
	}
	return data
}

func (n *Notifier) alertChannels(task *models.Task) []string {
	channels := []string{
		notify.TaskChannel(task.ID),
		notify.FlowChannel(task.FlowID),
	}
	if task.AssigneeID != nil {
		channels = append(channels, notify.UserChannel(*task.AssigneeID))
	}
	return channels
}
