package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/pkg/database"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "repo_test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../migrations"))
	return db
}

func seedUser(t *testing.T, db *database.DB, name, role string) int64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(),
		`INSERT INTO users (name, email, role) VALUES (?, ?, ?)`,
		name, fmt.Sprintf("%s@example.com", name), role)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedFlow(t *testing.T, flows port.FlowRepository, createdBy int64) *models.Flow {
	t.Helper()
	flow := &models.Flow{
		Name:      "release",
		Status:    models.FlowStatusActive,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, flows.Create(context.Background(), flow))
	return flow
}

func newTask(flowID int64, title string) *models.Task {
	now := time.Now().UTC()
	return &models.Task{
		FlowID:    flowID,
		Title:     title,
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskRepository_CreateGetUpdate(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleProjectManager)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	task := newTask(flow.ID, "ship release")
	task.AssigneeID = &userID
	task.EstimatedEndAt = &due
	task.SLADueDate = &due

	require.NoError(t, tasks.Create(ctx, task))
	require.NotZero(t, task.ID, "Create should assign an ID")

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ship release", got.Title)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, userID, *got.AssigneeID)
	require.NotNil(t, got.SLADueDate)
	assert.True(t, got.SLADueDate.Equal(due), "SLADueDate round trip")
	assert.False(t, got.IsBlocked)
	assert.False(t, got.SLABreached)

	got.Status = models.TaskStatusInProgress
	got.Progress = 50
	got.IsBlocked = true
	got.BlockedReason = "waiting on review"
	require.NoError(t, tasks.Update(ctx, got))

	reloaded, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, reloaded.Status)
	assert.Equal(t, 50, reloaded.Progress)
	assert.True(t, reloaded.IsBlocked)
	assert.Equal(t, "waiting on review", reloaded.BlockedReason)
}

func TestTaskRepository_GetByID_Missing(t *testing.T) {
	db := setupDB(t)
	tasks := NewTaskRepository(db, zap.NewNop())

	got, err := tasks.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskRepository_SoftDeleteHidesRow(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	task := newTask(flow.ID, "temp")
	require.NoError(t, tasks.Create(ctx, task))
	require.NoError(t, tasks.SoftDelete(ctx, task.ID, time.Now().UTC()))

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "soft-deleted row must be hidden")

	restored, err := tasks.RestoreByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	got, err = tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "restored row must be visible again")
}

func TestTaskRepository_ListDependentsAndForceBlock(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	precedent := newTask(flow.ID, "review")
	require.NoError(t, tasks.Create(ctx, precedent))

	viaTask := newTask(flow.ID, "merge")
	viaTask.DependsOnTaskID = &precedent.ID
	require.NoError(t, tasks.Create(ctx, viaTask))

	viaMilestone := newTask(flow.ID, "announce")
	viaMilestone.DependsOnMilestoneID = &precedent.ID
	require.NoError(t, tasks.Create(ctx, viaMilestone))

	unrelated := newTask(flow.ID, "unrelated")
	require.NoError(t, tasks.Create(ctx, unrelated))

	dependents, err := tasks.ListDependents(ctx, precedent.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 2, "both reference columns count as dependents")

	blocked, err := tasks.ForceBlockDependents(ctx, precedent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), blocked)

	for _, id := range []int64{viaTask.ID, viaMilestone.ID} {
		got, err := tasks.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsBlocked, "task %d should be blocked", id)
	}
	got, err := tasks.GetByID(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.False(t, got.IsBlocked, "unrelated task must stay unblocked")

	// Already-blocked rows are not touched again
	blocked, err = tasks.ForceBlockDependents(ctx, precedent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), blocked)
}

func TestTaskRepository_ListActiveWithDeadline(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	due := time.Now().UTC().Add(-30 * time.Hour).Truncate(time.Second)

	withDeadline := newTask(flow.ID, "overdue")
	withDeadline.SLADueDate = &due
	withDeadline.Status = models.TaskStatusInProgress

	completed := newTask(flow.ID, "done")
	completed.SLADueDate = &due
	completed.Status = models.TaskStatusCompleted

	noDeadline := newTask(flow.ID, "no deadline")

	for _, task := range []*models.Task{withDeadline, completed, noDeadline} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	got, err := tasks.ListActiveWithDeadline(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "completed tasks and tasks without a deadline are skipped")
	assert.Equal(t, withDeadline.ID, got[0].ID)
}

func TestDependencyRepository_RoundTrip(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	deps := NewDependencyRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	a := newTask(flow.ID, "a")
	b := newTask(flow.ID, "b")
	require.NoError(t, tasks.Create(ctx, a))
	require.NoError(t, tasks.Create(ctx, b))

	now := time.Now().UTC()
	dep := &models.TaskDependency{
		TaskID:          b.ID,
		DependsOnTaskID: a.ID,
		Type:            models.DependencyStartToStart,
		LagDays:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, deps.Create(ctx, dep))

	exists, err := deps.Exists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	byTask, err := deps.ListByTask(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, byTask, 1)
	assert.Equal(t, models.DependencyStartToStart, byTask[0].Type)
	assert.Equal(t, 1, byTask[0].LagDays)

	byPrecedent, err := deps.ListByPrecedent(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, byPrecedent, 1)
	assert.Equal(t, b.ID, byPrecedent[0].TaskID)

	byFlow, err := deps.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, byFlow, 1)

	require.NoError(t, deps.Delete(ctx, dep.ID))
	exists, err = deps.Exists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, exists, "deleted edge must not report as existing")
}

func TestNotificationRepository_DedupAndResolve(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	tasks := NewTaskRepository(db, logger)
	notes := NewNotificationRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	task := newTask(flow.ID, "overdue")
	require.NoError(t, tasks.Create(ctx, task))

	now := time.Now().UTC().Truncate(time.Second)
	warning := &models.Notification{
		UserID:    userID,
		TaskID:    &task.ID,
		FlowID:    &flow.ID,
		Type:      models.NotificationSLAWarning,
		Title:     "Task overdue",
		Message:   "past deadline",
		Priority:  models.PriorityUrgent,
		Data:      map[string]any{"days_overdue": 1},
		CreatedAt: now,
	}
	require.NoError(t, notes.Create(ctx, warning))

	recent, err := notes.ExistsRecent(ctx, task.ID, models.NotificationSLAWarning, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, recent, "notification inside the window must dedup")

	recent, err = notes.ExistsRecent(ctx, task.ID, models.NotificationSLAWarning, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, recent, "cutoff after creation must not dedup")

	unread, err := notes.ListByUser(ctx, userID, true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.False(t, unread[0].IsRead)
	assert.NotNil(t, unread[0].Data["days_overdue"], "data payload must survive the round trip")

	marked, err := notes.MarkReadByTaskAndTypes(ctx, task.ID, models.SLANotificationTypes, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	unread, err = notes.ListByUser(ctx, userID, true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread, "resolved alert must drop out of the unread list")

	deleted, err := notes.DeleteByTaskAndTypes(ctx, task.ID, models.SLANotificationTypes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestUserRepository_FirstSupervisor(t *testing.T) {
	db := setupDB(t)
	users := NewUserRepository(db, zap.NewNop())
	ctx := context.Background()

	seedUser(t, db, "member", models.RoleMember)
	pmID := seedUser(t, db, "pm", models.RoleProjectManager)
	seedUser(t, db, "admin", models.RoleAdmin)

	got, err := users.FirstSupervisor(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pmID, got.ID, "lowest-ID supervising user wins")
}

func TestFlowRepository_SoftDeleteAndRestore(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	userID := seedUser(t, db, "sam", models.RoleMember)
	flows := NewFlowRepository(db, logger)
	flow := seedFlow(t, flows, userID)

	require.NoError(t, flows.SoftDelete(ctx, flow.ID, time.Now().UTC()))
	got, err := flows.GetByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "soft-deleted flow must be hidden")

	require.NoError(t, flows.Restore(ctx, flow.ID))
	got, err = flows.GetByID(ctx, flow.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "release", got.Name)
	assert.Equal(t, models.FlowStatusActive, got.Status)
}
