package models

import "time"

// DependencyType is the precedence relation of a graph edge. The
// single-column precedent references on Task behave as implicit
// finish-to-start edges.
type DependencyType string

const (
	// DependencyFinishToStart blocks the dependent until the precedent completes
	DependencyFinishToStart DependencyType = "FS"
	// DependencyStartToStart blocks the dependent only while the precedent is still pending
	DependencyStartToStart DependencyType = "SS"
	// DependencyFinishToFinish blocks finishing: relevant only while the dependent is in progress
	DependencyFinishToFinish DependencyType = "FF"
)

var validDependencyTypes = map[DependencyType]bool{
	DependencyFinishToStart:  true,
	DependencyStartToStart:   true,
	DependencyFinishToFinish: true,
}

// IsValid returns true if the dependency type is known
func (d DependencyType) IsValid() bool {
	return validDependencyTypes[d]
}

// TaskDependency is a typed precedence edge between two tasks
type TaskDependency struct {
	ID              int64          `json:"id"`
	TaskID          int64          `json:"task_id"`
	DependsOnTaskID int64          `json:"depends_on_task_id"`
	Type            DependencyType `json:"dependency_type"`
	LagDays         int            `json:"lag_days"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
