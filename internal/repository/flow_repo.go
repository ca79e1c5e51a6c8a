package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/pkg/database"
)

const flowColumns = `id, name, description, status, progress, created_by,
	responsible_id, started_at, completed_at, last_updated_by,
	created_at, updated_at, deleted_at`

// FlowRepository implements port.FlowRepository on sqlite
type FlowRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *database.DB, logger *zap.Logger) port.FlowRepository {
	return &FlowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new flow and sets its ID
func (r *FlowRepository) Create(ctx context.Context, flow *models.Flow) error {
	query := `
		INSERT INTO flows (
			name, description, status, progress, created_by,
			responsible_id, started_at, completed_at, last_updated_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		flow.Name,
		flow.Description,
		flow.Status,
		flow.Progress,
		flow.CreatedBy,
		nullInt64(flow.ResponsibleID),
		nullTime(flow.StartedAt),
		nullTime(flow.CompletedAt),
		nullInt64(flow.LastUpdatedBy),
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create flow",
			zap.String("name", flow.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create flow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	flow.ID = id
	return nil
}

// GetByID retrieves a flow by its ID, skipping soft-deleted rows
func (r *FlowRepository) GetByID(ctx context.Context, id int64) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = ? AND deleted_at IS NULL`

	flow, err := r.scanFlow(r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow by ID",
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	return flow, nil
}

// Update writes the full flow row
func (r *FlowRepository) Update(ctx context.Context, flow *models.Flow) error {
	query := `
		UPDATE flows
		SET name = ?, description = ?, status = ?, progress = ?,
			responsible_id = ?, started_at = ?, completed_at = ?,
			last_updated_by = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		flow.Name,
		flow.Description,
		flow.Status,
		flow.Progress,
		nullInt64(flow.ResponsibleID),
		nullTime(flow.StartedAt),
		nullTime(flow.CompletedAt),
		nullInt64(flow.LastUpdatedBy),
		flow.UpdatedAt,
		flow.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update flow",
			zap.Int64("id", flow.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update flow: %w", err)
	}

	return nil
}

// List retrieves all live flows, newest first
func (r *FlowRepository) List(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE deleted_at IS NULL ORDER BY created_at DESC, id DESC`

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list flows", zap.Error(err))
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []*models.Flow
	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, flow)
	}

	return flows, rows.Err()
}

// SoftDelete marks a flow deleted
func (r *FlowRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE flows SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, at, id)
	if err != nil {
		r.logger.Error("Failed to soft-delete flow",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to soft-delete flow: %w", err)
	}

	return nil
}

// Restore undeletes a flow
func (r *FlowRepository) Restore(ctx context.Context, id int64) error {
	query := `UPDATE flows SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NOT NULL`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to restore flow",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to restore flow: %w", err)
	}

	return nil
}

func (r *FlowRepository) scanFlow(row rowScanner) (*models.Flow, error) {
	var flow models.Flow
	var responsibleID, lastUpdatedBy sql.NullInt64
	var startedAt, completedAt, deletedAt sql.NullTime

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Description,
		&flow.Status,
		&flow.Progress,
		&flow.CreatedBy,
		&responsibleID,
		&startedAt,
		&completedAt,
		&lastUpdatedBy,
		&flow.CreatedAt,
		&flow.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.ResponsibleID = fromNullInt64(responsibleID)
	flow.LastUpdatedBy = fromNullInt64(lastUpdatedBy)
	flow.StartedAt = fromNullTime(startedAt)
	flow.CompletedAt = fromNullTime(completedAt)
	flow.DeletedAt = fromNullTime(deletedAt)

	return &flow, nil
}

// Verify interface compliance
var _ port.FlowRepository = (*FlowRepository)(nil)
