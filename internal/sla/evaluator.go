package sla

import (
	"time"

	"github.com/taskflow/taskflow/internal/models"
)

// State is the deadline alert level of a task
type State string

const (
	// StateNone means no alert: no deadline, not yet past it, or the task is done
	StateNone State = "none"
	// StateWarning means the task is past due beyond the warning threshold
	StateWarning State = "warning"
	// StateCritical means the task is past due beyond the escalation threshold
	StateCritical State = "critical"
)

// Evaluator derives the alert state of a task from its due date. Both
// thresholds are measured in hours past the due date.
type Evaluator struct {
	WarningHours    int
	EscalationHours int
}

// NewEvaluator creates an evaluator with the given thresholds
func NewEvaluator(warningHours, escalationHours int) *Evaluator {
	return &Evaluator{
		WarningHours:    warningHours,
		EscalationHours: escalationHours,
	}
}

// Evaluate returns the alert state of the task at the given instant.
// Completed and cancelled tasks never alert.
func (e *Evaluator) Evaluate(task *models.Task, now time.Time) State {
	if task.Status.IsDone() {
		return StateNone
	}
	if task.SLADueDate == nil {
		return StateNone
	}
	overdue := HoursOverdue(*task.SLADueDate, now)
	if overdue <= 0 {
		return StateNone
	}
	if overdue >= float64(e.EscalationHours) {
		return StateCritical
	}
	if overdue >= float64(e.WarningHours) {
		return StateWarning
	}
	return StateNone
}

// Refresh synchronizes the task's breach bookkeeping with its current
// alert state and returns the state plus whether any field changed. When
// the state drops back to none, the notified/escalated flags reset so a
// future breach alerts again.
func (e *Evaluator) Refresh(task *models.Task, now time.Time) (State, bool) {
	state := e.Evaluate(task, now)

	if state == StateNone {
		changed := task.SLABreached || task.SLADaysOverdue != 0 ||
			task.SLANotifiedAssignee || task.SLAEscalated
		task.SLABreached = false
		task.SLABreachAt = nil
		task.SLADaysOverdue = 0
		task.SLANotifiedAssignee = false
		task.SLANotifiedAt = nil
		task.SLAEscalated = false
		task.SLAEscalatedAt = nil
		return state, changed
	}

	days := DaysOverdue(*task.SLADueDate, now)
	changed := !task.SLABreached || task.SLADaysOverdue != days
	task.SLABreached = true
	if task.SLABreachAt == nil {
		breachAt := now
		task.SLABreachAt = &breachAt
	}
	task.SLADaysOverdue = days
	return state, changed
}

// HoursOverdue returns how many hours past due the instant is; negative
// when the due date is still ahead
func HoursOverdue(due, now time.Time) float64 {
	return now.Sub(due).Hours()
}

// DaysOverdue returns the number of whole days past due, never negative
func DaysOverdue(due, now time.Time) int {
	days := int(now.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
