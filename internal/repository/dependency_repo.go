package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/pkg/database"
)

const dependencyColumns = `id, task_id, depends_on_task_id, dependency_type, lag_days, created_at, updated_at`

// DependencyRepository implements port.DependencyRepository on sqlite
type DependencyRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDependencyRepository creates a new dependency repository
func NewDependencyRepository(db *database.DB, logger *zap.Logger) port.DependencyRepository {
	return &DependencyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new edge and sets its ID
func (r *DependencyRepository) Create(ctx context.Context, dep *models.TaskDependency) error {
	query := `
		INSERT INTO task_dependencies (task_id, depends_on_task_id, dependency_type, lag_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		dep.TaskID,
		dep.DependsOnTaskID,
		dep.Type,
		dep.LagDays,
		dep.CreatedAt,
		dep.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create dependency",
			zap.Int64("task_id", dep.TaskID),
			zap.Int64("depends_on_task_id", dep.DependsOnTaskID),
			zap.Error(err))
		return fmt.Errorf("failed to create dependency: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	dep.ID = id
	return nil
}

// GetByID retrieves an edge by its ID
func (r *DependencyRepository) GetByID(ctx context.Context, id int64) (*models.TaskDependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM task_dependencies WHERE id = ?`

	dep, err := r.scanDependency(r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get dependency by ID",
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get dependency: %w", err)
	}

	return dep, nil
}

// Delete removes an edge
func (r *DependencyRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM task_dependencies WHERE id = ?`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete dependency",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to delete dependency: %w", err)
	}

	return nil
}

// ListByTask retrieves the edges owned by a task
func (r *DependencyRepository) ListByTask(ctx context.Context, taskID int64) ([]*models.TaskDependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM task_dependencies WHERE task_id = ? ORDER BY id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to list dependencies",
			zap.Int64("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	return r.scanDependencies(rows)
}

// ListByPrecedent retrieves the edges pointing at a precedent task;
// feeds the unlock cascade
func (r *DependencyRepository) ListByPrecedent(ctx context.Context, dependsOnTaskID int64) ([]*models.TaskDependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM task_dependencies WHERE depends_on_task_id = ? ORDER BY id`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, dependsOnTaskID)
	if err != nil {
		r.logger.Error("Failed to list dependents",
			zap.Int64("depends_on_task_id", dependsOnTaskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	defer rows.Close()

	return r.scanDependencies(rows)
}

// ListByFlow retrieves every edge whose owning task belongs to the flow;
// feeds cycle detection
func (r *DependencyRepository) ListByFlow(ctx context.Context, flowID int64) ([]*models.TaskDependency, error) {
	query := `
		SELECT d.id, d.task_id, d.depends_on_task_id, d.dependency_type, d.lag_days, d.created_at, d.updated_at
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.flow_id = ? AND t.deleted_at IS NULL
		ORDER BY d.id
	`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, flowID)
	if err != nil {
		r.logger.Error("Failed to list flow dependencies",
			zap.Int64("flow_id", flowID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list flow dependencies: %w", err)
	}
	defer rows.Close()

	return r.scanDependencies(rows)
}

// Exists reports whether an edge between the two tasks already exists
func (r *DependencyRepository) Exists(ctx context.Context, taskID, dependsOnTaskID int64) (bool, error) {
	query := `SELECT COUNT(1) FROM task_dependencies WHERE task_id = ? AND depends_on_task_id = ?`

	var count int
	err := r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, taskID, dependsOnTaskID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check dependency existence",
			zap.Int64("task_id", taskID),
			zap.Int64("depends_on_task_id", dependsOnTaskID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check dependency existence: %w", err)
	}

	return count > 0, nil
}

func (r *DependencyRepository) scanDependency(row rowScanner) (*models.TaskDependency, error) {
	var dep models.TaskDependency
	err := row.Scan(
		&dep.ID,
		&dep.TaskID,
		&dep.DependsOnTaskID,
		&dep.Type,
		&dep.LagDays,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

func (r *DependencyRepository) scanDependencies(rows *sql.Rows) ([]*models.TaskDependency, error) {
	var deps []*models.TaskDependency

	for rows.Next() {
		dep, err := r.scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}

	return deps, rows.Err()
}

// Verify interface compliance
var _ port.DependencyRepository = (*DependencyRepository)(nil)
