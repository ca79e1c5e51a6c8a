package notify

import (
	"fmt"
	"time"

	"github.com/taskflow/taskflow/internal/models"
)

// Realtime event names
const (
	EventNotificationSent = "notification.sent"
	EventTaskUpdated      = "task.updated"
	EventTaskDateChanged  = "task.date_changed"
	EventSLAStatusChanged = "sla.status_changed"
	EventSLABreached      = "sla.breached"
	EventSLAEscalated     = "sla.escalated"
)

// UserChannel returns the private channel of a user
func UserChannel(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

// FlowChannel returns the channel of a flow
func FlowChannel(flowID int64) string {
	return fmt.Sprintf("flow.%d", flowID)
}

// TaskChannel returns the channel of a task
func TaskChannel(taskID int64) string {
	return fmt.Sprintf("task.%d", taskID)
}

// FieldChange is one before/after pair in a task update event
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// TaskUpdatedPayload builds the task.updated event body
func TaskUpdatedPayload(task *models.Task, changes map[string]FieldChange) map[string]any {
	return map[string]any{
		"task_id":    task.ID,
		"task_title": task.Title,
		"flow_id":    task.FlowID,
		"status":     task.Status,
		"is_blocked": task.IsBlocked,
		"progress":   task.Progress,
		"changes":    changes,
		"updated_at": task.UpdatedAt.Format(time.RFC3339),
	}
}

// TaskDateChangedPayload builds the task.date_changed event body
func TaskDateChangedPayload(task *models.Task, field string, oldValue, newValue *time.Time) map[string]any {
	return map[string]any{
		"task_id":    task.ID,
		"task_title": task.Title,
		"flow_id":    task.FlowID,
		"field_name": field,
		"old_value":  isoTime(oldValue),
		"new_value":  isoTime(newValue),
	}
}

// SLAStatusChangedPayload builds the sla.status_changed event body
func SLAStatusChangedPayload(task *models.Task, oldState, newState string) map[string]any {
	return map[string]any{
		"task_id":          task.ID,
		"task_title":       task.Title,
		"flow_id":          task.FlowID,
		"assignee_id":      task.AssigneeID,
		"old_status":       oldState,
		"new_status":       newState,
		"sla_due_date":     isoTime(task.SLADueDate),
		"estimated_end_at": isoTime(task.EstimatedEndAt),
		"message":          fmt.Sprintf("SLA status of %q changed from %s to %s", task.Title, oldState, newState),
	}
}

// SLABreachPayload builds the sla.breached and sla.escalated event bodies
func SLABreachPayload(task *models.Task, daysOverdue int) map[string]any {
	return map[string]any{
		"task_id":      task.ID,
		"task_title":   task.Title,
		"flow_id":      task.FlowID,
		"assignee_id":  task.AssigneeID,
		"days_overdue": daysOverdue,
		"sla_due_date": isoTime(task.SLADueDate),
	}
}

func isoTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
