package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/pkg/database"
)

const taskColumns = `id, flow_id, parent_task_id, title, description, status,
	priority, is_milestone, is_blocked, blocked_reason, progress, task_order,
	assignee_id, depends_on_task_id, depends_on_milestone_id,
	estimated_start_at, estimated_end_at,
	sla_due_date, sla_breached, sla_breach_at, sla_days_overdue,
	sla_notified_assignee, sla_notified_at, sla_escalated, sla_escalated_at,
	last_updated_by, created_at, updated_at, deleted_at`

// TaskRepository implements port.TaskRepository on sqlite
type TaskRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new task and sets its ID
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			flow_id, parent_task_id, title, description, status,
			priority, is_milestone, is_blocked, blocked_reason, progress, task_order,
			assignee_id, depends_on_task_id, depends_on_milestone_id,
			estimated_start_at, estimated_end_at,
			sla_due_date, sla_breached, sla_breach_at, sla_days_overdue,
			sla_notified_assignee, sla_notified_at, sla_escalated, sla_escalated_at,
			last_updated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		task.FlowID,
		nullInt64(task.ParentTaskID),
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.IsMilestone,
		task.IsBlocked,
		task.BlockedReason,
		task.Progress,
		task.Order,
		nullInt64(task.AssigneeID),
		nullInt64(task.DependsOnTaskID),
		nullInt64(task.DependsOnMilestoneID),
		nullTime(task.EstimatedStartAt),
		nullTime(task.EstimatedEndAt),
		nullTime(task.SLADueDate),
		task.SLABreached,
		nullTime(task.SLABreachAt),
		task.SLADaysOverdue,
		task.SLANotifiedAssignee,
		nullTime(task.SLANotifiedAt),
		task.SLAEscalated,
		nullTime(task.SLAEscalatedAt),
		nullInt64(task.LastUpdatedBy),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int64("flow_id", task.FlowID),
			zap.String("title", task.Title),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = id
	return nil
}

// GetByID retrieves a task by its ID, skipping soft-deleted rows
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND deleted_at IS NULL`

	task, err := r.scanTask(r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID",
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// Update writes the full task row
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET flow_id = ?, parent_task_id = ?, title = ?, description = ?, status = ?,
			priority = ?, is_milestone = ?, is_blocked = ?, blocked_reason = ?, progress = ?, task_order = ?,
			assignee_id = ?, depends_on_task_id = ?, depends_on_milestone_id = ?,
			estimated_start_at = ?, estimated_end_at = ?,
			sla_due_date = ?, sla_breached = ?, sla_breach_at = ?, sla_days_overdue = ?,
			sla_notified_assignee = ?, sla_notified_at = ?, sla_escalated = ?, sla_escalated_at = ?,
			last_updated_by = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		task.FlowID,
		nullInt64(task.ParentTaskID),
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.IsMilestone,
		task.IsBlocked,
		task.BlockedReason,
		task.Progress,
		task.Order,
		nullInt64(task.AssigneeID),
		nullInt64(task.DependsOnTaskID),
		nullInt64(task.DependsOnMilestoneID),
		nullTime(task.EstimatedStartAt),
		nullTime(task.EstimatedEndAt),
		nullTime(task.SLADueDate),
		task.SLABreached,
		nullTime(task.SLABreachAt),
		task.SLADaysOverdue,
		task.SLANotifiedAssignee,
		nullTime(task.SLANotifiedAt),
		task.SLAEscalated,
		nullTime(task.SLAEscalatedAt),
		nullInt64(task.LastUpdatedBy),
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update task",
			zap.Int64("id", task.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// List retrieves tasks matching the filter, ordered for display
func (r *TaskRepository) List(ctx context.Context, filter port.TaskFilter) ([]*models.Task, error) {
	var conds []string
	var args []any

	conds = append(conds, "deleted_at IS NULL")
	if filter.FlowID != nil {
		conds = append(conds, "flow_id = ?")
		args = append(args, *filter.FlowID)
	}
	if filter.AssigneeID != nil {
		conds = append(conds, "assignee_id = ?")
		args = append(args, *filter.AssigneeID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.MilestonesOnly {
		conds = append(conds, "is_milestone = 1")
	}
	if filter.RootOnly {
		conds = append(conds, "parent_task_id IS NULL")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY task_order, id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ListSubtasks retrieves the direct children of a parent, in creation order
func (r *TaskRepository) ListSubtasks(ctx context.Context, parentID int64) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE parent_task_id = ? AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, parentID)
	if err != nil {
		r.logger.Error("Failed to list subtasks",
			zap.Int64("parent_task_id", parentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ListRootByFlow retrieves a flow's top-level tasks
func (r *TaskRepository) ListRootByFlow(ctx context.Context, flowID int64) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE flow_id = ? AND parent_task_id IS NULL AND deleted_at IS NULL
		ORDER BY task_order, id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, flowID)
	if err != nil {
		r.logger.Error("Failed to list root tasks",
			zap.Int64("flow_id", flowID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list root tasks: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ListDependents retrieves tasks that name the precedent through either
// single-column reference
func (r *TaskRepository) ListDependents(ctx context.Context, precedentID int64) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE (depends_on_task_id = ? OR depends_on_milestone_id = ?) AND deleted_at IS NULL
		ORDER BY id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, precedentID, precedentID)
	if err != nil {
		r.logger.Error("Failed to list dependents",
			zap.Int64("precedent_id", precedentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

// ForceBlockDependents re-blocks every currently unblocked dependent of the
// precedent without running the resolver; used when a precedent reopens
func (r *TaskRepository) ForceBlockDependents(ctx context.Context, precedentID int64) (int64, error) {
	query := `
		UPDATE tasks
		SET is_blocked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE (depends_on_task_id = ? OR depends_on_milestone_id = ?)
			AND is_blocked = 0 AND deleted_at IS NULL
	`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, precedentID, precedentID)
	if err != nil {
		r.logger.Error("Failed to re-block dependents",
			zap.Int64("precedent_id", precedentID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to re-block dependents: %w", err)
	}

	return result.RowsAffected()
}

// SoftDelete marks a task deleted
func (r *TaskRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, at, id)
	if err != nil {
		r.logger.Error("Failed to soft-delete task",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to soft-delete task: %w", err)
	}

	return nil
}

// SoftDeleteSubtasks marks a parent's live children deleted
func (r *TaskRepository) SoftDeleteSubtasks(ctx context.Context, parentID int64, at time.Time) (int64, error) {
	query := `UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE parent_task_id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, at, parentID)
	if err != nil {
		r.logger.Error("Failed to soft-delete subtasks",
			zap.Int64("parent_task_id", parentID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to soft-delete subtasks: %w", err)
	}

	return result.RowsAffected()
}

// SoftDeleteByFlow marks every live task in a flow deleted
func (r *TaskRepository) SoftDeleteByFlow(ctx context.Context, flowID int64, at time.Time) (int64, error) {
	query := `UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE flow_id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, at, flowID)
	if err != nil {
		r.logger.Error("Failed to soft-delete flow tasks",
			zap.Int64("flow_id", flowID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to soft-delete flow tasks: %w", err)
	}

	return result.RowsAffected()
}

// RestoreByFlow undeletes every task in a flow
func (r *TaskRepository) RestoreByFlow(ctx context.Context, flowID int64) (int64, error) {
	query := `UPDATE tasks SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE flow_id = ? AND deleted_at IS NOT NULL`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, flowID)
	if err != nil {
		r.logger.Error("Failed to restore flow tasks",
			zap.Int64("flow_id", flowID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to restore flow tasks: %w", err)
	}

	return result.RowsAffected()
}

// ListActiveWithDeadline retrieves open tasks carrying an SLA due date;
// feeds the periodic deadline sweep
func (r *TaskRepository) ListActiveWithDeadline(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE sla_due_date IS NOT NULL
			AND status NOT IN ('completed', 'cancelled')
			AND deleted_at IS NULL
		ORDER BY sla_due_date, id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list tasks with deadline", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks with deadline: %w", err)
	}
	defer rows.Close()

	return r.scanTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TaskRepository) scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var parentTaskID, assigneeID, dependsOnTaskID, dependsOnMilestoneID sql.NullInt64
	var estimatedStartAt, estimatedEndAt, slaDueDate, slaBreachAt sql.NullTime
	var slaNotifiedAt, slaEscalatedAt, deletedAt sql.NullTime
	var lastUpdatedBy sql.NullInt64

	err := row.Scan(
		&task.ID,
		&task.FlowID,
		&parentTaskID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&task.IsMilestone,
		&task.IsBlocked,
		&task.BlockedReason,
		&task.Progress,
		&task.Order,
		&assigneeID,
		&dependsOnTaskID,
		&dependsOnMilestoneID,
		&estimatedStartAt,
		&estimatedEndAt,
		&slaDueDate,
		&task.SLABreached,
		&slaBreachAt,
		&task.SLADaysOverdue,
		&task.SLANotifiedAssignee,
		&slaNotifiedAt,
		&task.SLAEscalated,
		&slaEscalatedAt,
		&lastUpdatedBy,
		&task.CreatedAt,
		&task.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ParentTaskID = fromNullInt64(parentTaskID)
	task.AssigneeID = fromNullInt64(assigneeID)
	task.DependsOnTaskID = fromNullInt64(dependsOnTaskID)
	task.DependsOnMilestoneID = fromNullInt64(dependsOnMilestoneID)
	task.EstimatedStartAt = fromNullTime(estimatedStartAt)
	task.EstimatedEndAt = fromNullTime(estimatedEndAt)
	task.SLADueDate = fromNullTime(slaDueDate)
	task.SLABreachAt = fromNullTime(slaBreachAt)
	task.SLANotifiedAt = fromNullTime(slaNotifiedAt)
	task.SLAEscalatedAt = fromNullTime(slaEscalatedAt)
	task.LastUpdatedBy = fromNullInt64(lastUpdatedBy)
	task.DeletedAt = fromNullTime(deletedAt)

	return &task, nil
}

func (r *TaskRepository) scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	var tasks []*models.Task

	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// Verify interface compliance
var _ port.TaskRepository = (*TaskRepository)(nil)
