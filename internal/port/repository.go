package port

import (
	"context"
	"time"

	"github.com/taskflow/taskflow/internal/models"
)

// TaskFilter narrows task listings
type TaskFilter struct {
	FlowID         *int64
	AssigneeID     *int64
	Status         *models.TaskStatus
	MilestonesOnly bool
	RootOnly       bool
}

// TaskRepository persists tasks
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	// GetByID returns (nil, nil) when the task does not exist or is soft-deleted
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	List(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	ListSubtasks(ctx context.Context, parentID int64) ([]*models.Task, error)
	ListRootByFlow(ctx context.Context, flowID int64) ([]*models.Task, error)
	// ListDependents returns tasks referencing id through either
	// single-column precedent reference
	ListDependents(ctx context.Context, precedentID int64) ([]*models.Task, error)
	// ForceBlockDependents re-blocks every unblocked dependent of the
	// precedent; returns the number of rows touched
	ForceBlockDependents(ctx context.Context, precedentID int64) (int64, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	SoftDeleteSubtasks(ctx context.Context, parentID int64, at time.Time) (int64, error)
	SoftDeleteByFlow(ctx context.Context, flowID int64, at time.Time) (int64, error)
	RestoreByFlow(ctx context.Context, flowID int64) (int64, error)
	// ListActiveWithDeadline returns open tasks carrying an SLA due date
	ListActiveWithDeadline(ctx context.Context) ([]*models.Task, error)
}

// FlowRepository persists flows
type FlowRepository interface {
	Create(ctx context.Context, flow *models.Flow) error
	// GetByID returns (nil, nil) when the flow does not exist or is soft-deleted
	GetByID(ctx context.Context, id int64) (*models.Flow, error)
	Update(ctx context.Context, flow *models.Flow) error
	List(ctx context.Context) ([]*models.Flow, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	Restore(ctx context.Context, id int64) error
}

// DependencyRepository persists typed precedence edges
type DependencyRepository interface {
	Create(ctx context.Context, dep *models.TaskDependency) error
	GetByID(ctx context.Context, id int64) (*models.TaskDependency, error)
	Delete(ctx context.Context, id int64) error
	ListByTask(ctx context.Context, taskID int64) ([]*models.TaskDependency, error)
	// ListByPrecedent returns the edges pointing at a precedent task
	ListByPrecedent(ctx context.Context, dependsOnTaskID int64) ([]*models.TaskDependency, error)
	// ListByFlow returns every edge whose owning task belongs to the flow
	ListByFlow(ctx context.Context, flowID int64) ([]*models.TaskDependency, error)
	Exists(ctx context.Context, taskID, dependsOnTaskID int64) (bool, error)
}

// NotificationRepository persists notification records
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error)
	GetByID(ctx context.Context, id int64) (*models.Notification, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	// ExistsRecent reports whether a notification of the given type was
	// created for the task after the cutoff; drives duplicate suppression
	ExistsRecent(ctx context.Context, taskID int64, typ string, since time.Time) (bool, error)
	// DeleteByTaskAndTypes removes stale alerts for a task; returns count
	DeleteByTaskAndTypes(ctx context.Context, taskID int64, types []string) (int64, error)
	// MarkReadByTaskAndTypes marks unread alerts read; returns count
	MarkReadByTaskAndTypes(ctx context.Context, taskID int64, types []string, at time.Time) (int64, error)
}

// UserRepository reads account records
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// FirstSupervisor returns any admin or project manager, used as the
	// escalation fallback when a flow has neither responsible nor creator
	FirstSupervisor(ctx context.Context) (*models.User, error)
}
