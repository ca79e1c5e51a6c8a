package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/pkg/database"
)

const notificationColumns = `id, user_id, task_id, flow_id, type, title, message, priority, data, read_at, created_at`

// NotificationRepository implements port.NotificationRepository on sqlite
type NotificationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new notification and sets its ID
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, task_id, flow_id, type, title, message, priority, data, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	data := "{}"
	if len(n.Data) > 0 {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		data = string(raw)
	}

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query,
		n.UserID,
		nullInt64(n.TaskID),
		nullInt64(n.FlowID),
		n.Type,
		n.Title,
		n.Message,
		n.Priority,
		data,
		nullTime(n.ReadAt),
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByID retrieves a notification by its ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := r.scanNotification(r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification by ID",
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListByUser retrieves a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}

	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.ExecutorFrom(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}

	return list, rows.Err()
}

// MarkRead stamps a notification read
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`

	_, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to mark notification read",
			zap.Int64("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// MarkAllRead stamps every unread notification of a user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := `UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, at, userID)
	if err != nil {
		r.logger.Error("Failed to mark all notifications read",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}

	return result.RowsAffected()
}

// ExistsRecent reports whether a notification of the given type was created
// for the task after the cutoff
func (r *NotificationRepository) ExistsRecent(ctx context.Context, taskID int64, typ string, since time.Time) (bool, error) {
	query := `SELECT COUNT(1) FROM notifications WHERE task_id = ? AND type = ? AND created_at >= ?`

	var count int
	err := r.db.ExecutorFrom(ctx).QueryRowContext(ctx, query, taskID, typ, since).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check recent notification",
			zap.Int64("task_id", taskID),
			zap.String("type", typ),
			zap.Error(err))
		return false, fmt.Errorf("failed to check recent notification: %w", err)
	}

	return count > 0, nil
}

// DeleteByTaskAndTypes removes all notifications of the given types for a
// task and returns the number removed
func (r *NotificationRepository) DeleteByTaskAndTypes(ctx context.Context, taskID int64, types []string) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}

	query := `DELETE FROM notifications WHERE task_id = ? AND type IN (` + placeholders(len(types)) + `)`
	args := make([]any, 0, len(types)+1)
	args = append(args, taskID)
	for _, t := range types {
		args = append(args, t)
	}

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete notifications by type",
			zap.Int64("task_id", taskID),
			zap.Strings("types", types),
			zap.Error(err))
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}

	return result.RowsAffected()
}

// MarkReadByTaskAndTypes stamps unread notifications of the given types
// read and returns the number stamped
func (r *NotificationRepository) MarkReadByTaskAndTypes(ctx context.Context, taskID int64, types []string, at time.Time) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}

	query := `UPDATE notifications SET read_at = ? WHERE task_id = ? AND read_at IS NULL AND type IN (` + placeholders(len(types)) + `)`
	args := make([]any, 0, len(types)+2)
	args = append(args, at, taskID)
	for _, t := range types {
		args = append(args, t)
	}

	result, err := r.db.ExecutorFrom(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to mark notifications read by type",
			zap.Int64("task_id", taskID),
			zap.Strings("types", types),
			zap.Error(err))
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	return result.RowsAffected()
}

func (r *NotificationRepository) scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var taskID, flowID sql.NullInt64
	var readAt sql.NullTime
	var data string

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&taskID,
		&flowID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Priority,
		&data,
		&readAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.TaskID = fromNullInt64(taskID)
	n.FlowID = fromNullInt64(flowID)
	n.ReadAt = fromNullTime(readAt)
	n.IsRead = readAt.Valid

	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			r.logger.Warn("Failed to unmarshal notification data",
				zap.Int64("id", n.ID),
				zap.Error(err))
		}
	}

	return &n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
