package models

import "time"

// Notification types produced by the lifecycle engine and SLA policy
const (
	NotificationTaskAssigned       = "task_assigned"
	NotificationTaskReassigned     = "task_reassigned"
	NotificationTaskBlocked        = "task_blocked"
	NotificationTaskUnblocked      = "task_unblocked"
	NotificationTaskCompleted      = "task_completed"
	NotificationTaskOverdue        = "task_overdue"
	NotificationMilestoneCompleted = "milestone_completed"
	NotificationFlowAssigned       = "flow_assigned"
	NotificationFlowResponsible    = "flow_responsible_changed"
	NotificationFlowCompleted      = "flow_completed"
	NotificationSLAWarning         = "sla_warning"
	NotificationSLAEscalation      = "sla_escalation"
	NotificationSLAEscalationNote  = "sla_escalation_notice"
	NotificationSLAResolved        = "sla_resolved"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// SLANotificationTypes are the types purged when a task's SLA alert
// clears, and marked read on auto-resolve.
var SLANotificationTypes = []string{
	NotificationSLAWarning,
	NotificationSLAEscalation,
	NotificationTaskOverdue,
}

// Notification is an append-only record addressed to one user. It is
// mutated only by the recipient marking it read.
type Notification struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	TaskID    *int64         `json:"task_id,omitempty"`
	FlowID    *int64         `json:"flow_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  string         `json:"priority"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
