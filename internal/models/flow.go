package models

import "time"

// FlowStatus enumerates the states of a flow
type FlowStatus string

const (
	FlowStatusActive    FlowStatus = "active"
	FlowStatusPaused    FlowStatus = "paused"
	FlowStatusCompleted FlowStatus = "completed"
	FlowStatusCancelled FlowStatus = "cancelled"
)

// String returns the string representation of the status
func (s FlowStatus) String() string {
	return string(s)
}

// Flow is a project instance that owns tasks. Progress is the mean of
// its root-level tasks' progress; progress 100 and status completed are
// kept in lockstep by the rollup.
type Flow struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	ResponsibleID *int64     `json:"responsible_id,omitempty"`
	Status        FlowStatus `json:"status"`
	Progress      int        `json:"progress"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastUpdatedBy *int64     `json:"last_updated_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Clone returns a deep copy of the flow
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	c := *f
	c.ResponsibleID = cloneInt64(f.ResponsibleID)
	c.LastUpdatedBy = cloneInt64(f.LastUpdatedBy)
	c.StartedAt = cloneTime(f.StartedAt)
	c.CompletedAt = cloneTime(f.CompletedAt)
	c.DeletedAt = cloneTime(f.DeletedAt)
	return &c
}
