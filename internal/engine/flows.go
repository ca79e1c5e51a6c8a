package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
)

// CreateFlow persists a new flow and notifies the responsible user
func (e *Engine) CreateFlow(ctx context.Context, flow *models.Flow) error {
	if flow.Status == "" {
		flow.Status = models.FlowStatusActive
	}
	now := e.now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if err := e.flows.Create(ctx, flow); err != nil {
		return err
	}

	if flow.ResponsibleID != nil {
		if err := e.dispatcher.FlowAssigned(ctx, flow); err != nil {
			e.logger.Error("Failed to notify flow assignment",
				zap.Int64("flow_id", flow.ID),
				zap.Error(err))
		}
	}
	return nil
}

// UpdateFlow applies a full desired flow state, re-reading the current
// row first so responsibility and completion changes are detected
// against what is actually persisted
func (e *Engine) UpdateFlow(ctx context.Context, incoming *models.Flow) (*models.Flow, error) {
	var original *models.Flow

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		f, err := e.flows.GetByID(ctx, incoming.ID)
		if err != nil {
			return err
		}
		if f == nil {
			return ErrFlowNotFound
		}
		original = f

		now := e.now()
		if incoming.Status == models.FlowStatusCompleted && f.Status != models.FlowStatusCompleted &&
			incoming.CompletedAt == nil {
			incoming.CompletedAt = &now
		}
		incoming.CreatedAt = f.CreatedAt
		incoming.CreatedBy = f.CreatedBy
		incoming.UpdatedAt = now
		return e.flows.Update(ctx, incoming)
	})
	if err != nil {
		return nil, err
	}

	if !eqInt64Ptr(original.ResponsibleID, incoming.ResponsibleID) && incoming.ResponsibleID != nil {
		if err := e.dispatcher.FlowResponsibleChanged(ctx, incoming); err != nil {
			e.logger.Error("Failed to notify responsibility change",
				zap.Int64("flow_id", incoming.ID),
				zap.Error(err))
		}
	}
	if original.Status != models.FlowStatusCompleted && incoming.Status == models.FlowStatusCompleted {
		if err := e.dispatcher.FlowCompleted(ctx, incoming); err != nil {
			e.logger.Error("Failed to notify flow completion",
				zap.Int64("flow_id", incoming.ID),
				zap.Error(err))
		}
	}

	return incoming, nil
}

// DeleteFlow soft-deletes a flow and everything in it
func (e *Engine) DeleteFlow(ctx context.Context, id int64) error {
	return e.db.InTransaction(ctx, func(ctx context.Context) error {
		flow, err := e.flows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if flow == nil {
			return ErrFlowNotFound
		}

		now := e.now()
		if err := e.flows.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		count, err := e.tasks.SoftDeleteByFlow(ctx, id, now)
		if err != nil {
			return err
		}
		e.logger.Info("Flow deleted",
			zap.Int64("flow_id", id),
			zap.Int64("tasks_deleted", count))
		return nil
	})
}

// RestoreFlow undeletes a flow and its tasks
func (e *Engine) RestoreFlow(ctx context.Context, id int64) error {
	return e.db.InTransaction(ctx, func(ctx context.Context) error {
		if err := e.flows.Restore(ctx, id); err != nil {
			return err
		}
		count, err := e.tasks.RestoreByFlow(ctx, id)
		if err != nil {
			return err
		}
		e.logger.Info("Flow restored",
			zap.Int64("flow_id", id),
			zap.Int64("tasks_restored", count))
		return nil
	})
}
