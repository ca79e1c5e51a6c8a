package models

import "time"

// TaskStatus enumerates the execution states of a task. Blocking is a
// flag on the task, not a status: a pending task can be blocked and a
// completed task never is.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusPaused     TaskStatus = "paused"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskStatusPending:    true,
	TaskStatusInProgress: true,
	TaskStatusPaused:     true,
	TaskStatusCompleted:  true,
	TaskStatusCancelled:  true,
}

// IsValid returns true if the status is a known task status
func (s TaskStatus) IsValid() bool {
	return validTaskStatuses[s]
}

// IsDone returns true for statuses that end a task's execution
func (s TaskStatus) IsDone() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// String returns the string representation of the status
func (s TaskStatus) String() string {
	return string(s)
}

// Task is a unit of work inside a flow. A milestone is a task flagged
// IsMilestone that owns subtasks and derives progress/status from them.
type Task struct {
	ID                   int64      `json:"id"`
	FlowID               int64      `json:"flow_id"`
	ParentTaskID         *int64     `json:"parent_task_id,omitempty"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	AssigneeID           *int64     `json:"assignee_id,omitempty"`
	Priority             string     `json:"priority"`
	Status               TaskStatus `json:"status"`
	IsMilestone          bool       `json:"is_milestone"`
	IsBlocked            bool       `json:"is_blocked"`
	BlockedReason        string     `json:"blocked_reason,omitempty"`
	DependsOnTaskID      *int64     `json:"depends_on_task_id,omitempty"`
	DependsOnMilestoneID *int64     `json:"depends_on_milestone_id,omitempty"`
	Order                int        `json:"order"`
	Progress             int        `json:"progress"`
	EstimatedStartAt     *time.Time `json:"estimated_start_at,omitempty"`
	EstimatedEndAt       *time.Time `json:"estimated_end_at,omitempty"`

	// SLA bookkeeping. SLADueDate mirrors EstimatedEndAt once a deadline
	// exists; the mirroring rule lives in the lifecycle engine.
	SLADueDate          *time.Time `json:"sla_due_date,omitempty"`
	SLABreached         bool       `json:"sla_breached"`
	SLABreachAt         *time.Time `json:"sla_breach_at,omitempty"`
	SLADaysOverdue      int        `json:"sla_days_overdue"`
	SLANotifiedAssignee bool       `json:"sla_notified_assignee"`
	SLANotifiedAt       *time.Time `json:"sla_notified_at,omitempty"`
	SLAEscalated        bool       `json:"sla_escalated"`
	SLAEscalatedAt      *time.Time `json:"sla_escalated_at,omitempty"`

	LastUpdatedBy *int64     `json:"last_updated_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// IsSubtask returns true if the task belongs to a milestone
func (t *Task) IsSubtask() bool {
	return t.ParentTaskID != nil
}

// HasDeadline returns true if the task carries an SLA due date
func (t *Task) HasDeadline() bool {
	return t.SLADueDate != nil
}

// Clone returns a deep copy of the task, used for before/after
// snapshots in the mutation pipeline.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ParentTaskID = cloneInt64(t.ParentTaskID)
	c.AssigneeID = cloneInt64(t.AssigneeID)
	c.DependsOnTaskID = cloneInt64(t.DependsOnTaskID)
	c.DependsOnMilestoneID = cloneInt64(t.DependsOnMilestoneID)
	c.LastUpdatedBy = cloneInt64(t.LastUpdatedBy)
	c.EstimatedStartAt = cloneTime(t.EstimatedStartAt)
	c.EstimatedEndAt = cloneTime(t.EstimatedEndAt)
	c.SLADueDate = cloneTime(t.SLADueDate)
	c.SLABreachAt = cloneTime(t.SLABreachAt)
	c.SLANotifiedAt = cloneTime(t.SLANotifiedAt)
	c.SLAEscalatedAt = cloneTime(t.SLAEscalatedAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
