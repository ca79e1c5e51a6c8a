package engine

import (
	"context"
	"strings"

	"github.com/gammazero/toposort"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
)

// AddDependency creates a typed precedence edge between two tasks of one
// flow, rejecting duplicates and anything that would close a cycle, then
// re-resolves the dependent's blocked flag
func (e *Engine) AddDependency(ctx context.Context, taskID, dependsOnTaskID int64, typ models.DependencyType, lagDays int) (*models.TaskDependency, error) {
	if taskID == dependsOnTaskID {
		return nil, ErrSelfDependency
	}
	if typ == "" {
		typ = models.DependencyFinishToStart
	}
	if !typ.IsValid() {
		return nil, ErrInvalidDependencyType
	}

	var dep *models.TaskDependency
	var m *mutation

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		task, err := e.tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		precedent, err := e.tasks.GetByID(ctx, dependsOnTaskID)
		if err != nil {
			return err
		}
		if task == nil || precedent == nil {
			return ErrTaskNotFound
		}
		if task.FlowID != precedent.FlowID {
			return ErrCrossFlowDependency
		}

		exists, err := e.deps.Exists(ctx, taskID, dependsOnTaskID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDependencyExists
		}

		if err := e.assertAcyclic(ctx, task.FlowID, taskID, dependsOnTaskID); err != nil {
			return err
		}

		now := e.now()
		dep = &models.TaskDependency{
			TaskID:          taskID,
			DependsOnTaskID: dependsOnTaskID,
			Type:            typ,
			LagDays:         lagDays,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.deps.Create(ctx, dep); err != nil {
			return err
		}

		original := task.Clone()
		blocked, reasons, err := e.resolveBlocking(ctx, task)
		if err != nil {
			return err
		}
		if blocked != task.IsBlocked || strings.Join(reasons, "; ") != task.BlockedReason {
			task.IsBlocked = blocked
			task.BlockedReason = strings.Join(reasons, "; ")
			task.UpdatedAt = now
			if err := e.tasks.Update(ctx, task); err != nil {
				return err
			}
			m = &mutation{original: original, incoming: task}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m != nil && m.original.IsBlocked != m.incoming.IsBlocked {
		var nerr error
		if m.incoming.IsBlocked {
			nerr = e.dispatcher.TaskBlocked(ctx, m.incoming, m.incoming.BlockedReason)
		} else {
			nerr = e.dispatcher.TaskUnblocked(ctx, m.incoming)
		}
		if nerr != nil {
			e.logger.Error("Failed to notify block change",
				zap.Int64("task_id", m.incoming.ID),
				zap.Error(nerr))
		}
	}

	return dep, nil
}

// RemoveDependency deletes an edge and gives the former dependent a
// chance to unlock
func (e *Engine) RemoveDependency(ctx context.Context, depID int64) error {
	var taskID int64

	err := e.db.InTransaction(ctx, func(ctx context.Context) error {
		dep, err := e.deps.GetByID(ctx, depID)
		if err != nil {
			return err
		}
		if dep == nil {
			return ErrTaskNotFound
		}
		taskID = dep.TaskID
		return e.deps.Delete(ctx, depID)
	})
	if err != nil {
		return err
	}

	_, err = e.checkAndUnlock(ctx, taskID)
	return err
}

// ListDependencies returns the edges owned by a task
func (e *Engine) ListDependencies(ctx context.Context, taskID int64) ([]*models.TaskDependency, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return e.deps.ListByTask(ctx, taskID)
}

// CheckBlocked runs the resolver read-only and reports the current
// blocking verdict with its reasons
func (e *Engine) CheckBlocked(ctx context.Context, taskID int64) (bool, []string, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return false, nil, err
	}
	if task == nil {
		return false, nil, ErrTaskNotFound
	}
	return e.resolveBlocking(ctx, task)
}

// assertAcyclic topologically sorts the flow's full precedence graph,
// single-column references included, with the candidate edge added
func (e *Engine) assertAcyclic(ctx context.Context, flowID, taskID, dependsOnTaskID int64) error {
	flowTasks, err := e.tasks.List(ctx, port.TaskFilter{FlowID: &flowID})
	if err != nil {
		return err
	}
	flowEdges, err := e.deps.ListByFlow(ctx, flowID)
	if err != nil {
		return err
	}

	var edges []toposort.Edge
	for _, t := range flowTasks {
		edges = append(edges, toposort.Edge{nil, t.ID})
		if t.DependsOnTaskID != nil {
			edges = append(edges, toposort.Edge{*t.DependsOnTaskID, t.ID})
		}
		if t.DependsOnMilestoneID != nil {
			edges = append(edges, toposort.Edge{*t.DependsOnMilestoneID, t.ID})
		}
	}
	for _, edge := range flowEdges {
		edges = append(edges, toposort.Edge{edge.DependsOnTaskID, edge.TaskID})
	}
	edges = append(edges, toposort.Edge{dependsOnTaskID, taskID})

	if _, err := toposort.Toposort(edges); err != nil {
		e.logger.Warn("Rejected dependency that would close a cycle",
			zap.Int64("task_id", taskID),
			zap.Int64("depends_on_task_id", dependsOnTaskID),
			zap.Error(err))
		return ErrDependencyCycle
	}
	return nil
}
