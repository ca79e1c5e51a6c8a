package models

import "time"

// User roles relevant to notification routing and escalation
const (
	RoleAdmin          = "admin"
	RoleProjectManager = "project_manager"
	RoleMember         = "member"
)

// User is a minimal account record: enough to assign tasks, own flows
// and resolve escalation targets.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSupervisor returns true for roles that can receive escalations
func (u *User) IsSupervisor() bool {
	return u.Role == RoleAdmin || u.Role == RoleProjectManager
}
