package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/notify"
	"github.com/taskflow/taskflow/internal/port"
)

// Mock repositories

type mockTaskRepo struct {
	mu             sync.Mutex
	updated        []*models.Task
	getByIDFunc    func(ctx context.Context, id int64) (*models.Task, error)
	listActiveFunc func(ctx context.Context) ([]*models.Task, error)
	updateFunc     func(ctx context.Context, task *models.Task) error
}

var _ port.TaskRepository = (*mockTaskRepo)(nil)

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error { return nil }

func (m *mockTaskRepo) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *models.Task) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, task)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, task.Clone())
	return nil
}

func (m *mockTaskRepo) List(ctx context.Context, filter port.TaskFilter) ([]*models.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) ListSubtasks(ctx context.Context, parentID int64) ([]*models.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) ListRootByFlow(ctx context.Context, flowID int64) ([]*models.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) ListDependents(ctx context.Context, precedentID int64) ([]*models.Task, error) {
	return nil, nil
}

func (m *mockTaskRepo) ForceBlockDependents(ctx context.Context, precedentID int64) (int64, error) {
	return 0, nil
}

func (m *mockTaskRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error { return nil }

func (m *mockTaskRepo) SoftDeleteSubtasks(ctx context.Context, parentID int64, at time.Time) (int64, error) {
	return 0, nil
}

func (m *mockTaskRepo) SoftDeleteByFlow(ctx context.Context, flowID int64, at time.Time) (int64, error) {
	return 0, nil
}

func (m *mockTaskRepo) RestoreByFlow(ctx context.Context, flowID int64) (int64, error) {
	return 0, nil
}

func (m *mockTaskRepo) ListActiveWithDeadline(ctx context.Context) ([]*models.Task, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx)
	}
	return nil, nil
}

type mockFlowRepo struct {
	getByIDFunc func(ctx context.Context, id int64) (*models.Flow, error)
}

var _ port.FlowRepository = (*mockFlowRepo)(nil)

func (m *mockFlowRepo) Create(ctx context.Context, flow *models.Flow) error { return nil }

func (m *mockFlowRepo) GetByID(ctx context.Context, id int64) (*models.Flow, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &models.Flow{ID: id, Name: "flow", CreatedBy: 1}, nil
}

func (m *mockFlowRepo) Update(ctx context.Context, flow *models.Flow) error { return nil }

func (m *mockFlowRepo) List(ctx context.Context) ([]*models.Flow, error) { return nil, nil }

func (m *mockFlowRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error { return nil }

func (m *mockFlowRepo) Restore(ctx context.Context, id int64) error { return nil }

type mockUserRepo struct {
	getByIDFunc         func(ctx context.Context, id int64) (*models.User, error)
	firstSupervisorFunc func(ctx context.Context) (*models.User, error)
}

var _ port.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &models.User{ID: id, Name: "user", Role: models.RoleMember}, nil
}

func (m *mockUserRepo) FirstSupervisor(ctx context.Context) (*models.User, error) {
	if m.firstSupervisorFunc != nil {
		return m.firstSupervisorFunc(ctx)
	}
	return nil, nil
}

type mockNotificationRepo struct {
	mu               sync.Mutex
	created          []*models.Notification
	existsRecentFunc func(ctx context.Context, taskID int64, typ string, since time.Time) (bool, error)
	deleteFunc       func(ctx context.Context, taskID int64, types []string) (int64, error)
	markReadFunc     func(ctx context.Context, taskID int64, types []string, at time.Time) (int64, error)
}

var _ port.NotificationRepository = (*mockNotificationRepo)(nil)

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.created) + 1)
	c := *n
	m.created = append(m.created, &c)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return 0, nil
}

func (m *mockNotificationRepo) ExistsRecent(ctx context.Context, taskID int64, typ string, since time.Time) (bool, error) {
	if m.existsRecentFunc != nil {
		return m.existsRecentFunc(ctx, taskID, typ, since)
	}
	return false, nil
}

func (m *mockNotificationRepo) DeleteByTaskAndTypes(ctx context.Context, taskID int64, types []string) (int64, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, taskID, types)
	}
	return 0, nil
}

func (m *mockNotificationRepo) MarkReadByTaskAndTypes(ctx context.Context, taskID int64, types []string, at time.Time) (int64, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, taskID, types, at)
	}
	return 0, nil
}

func (m *mockNotificationRepo) byType(typ string) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.created {
		if n.Type == typ {
			c := *n
			out = append(out, &c)
		}
	}
	return out
}

type mockMailer struct {
	mu       sync.Mutex
	sent     []int64
	sendFunc func(ctx context.Context, supervisor *models.User, task *models.Task, daysOverdue int) error
}

var _ port.Mailer = (*mockMailer)(nil)

func (m *mockMailer) SendEscalation(ctx context.Context, supervisor *models.User, task *models.Task, daysOverdue int) error {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, supervisor, task, daysOverdue)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, task.ID)
	return nil
}

var slaNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type notifierFixture struct {
	tasks    *mockTaskRepo
	flows    *mockFlowRepo
	users    *mockUserRepo
	notes    *mockNotificationRepo
	mailer   *mockMailer
	notifier *Notifier
}

func newNotifierFixture(t *testing.T, opts NotifierOptions) *notifierFixture {
	t.Helper()
	f := &notifierFixture{
		tasks:  &mockTaskRepo{},
		flows:  &mockFlowRepo{},
		users:  &mockUserRepo{},
		notes:  &mockNotificationRepo{},
		mailer: &mockMailer{},
	}

	logger := zap.NewNop()
	dispatcher := notify.NewDispatcher(f.notes, f.users, f.flows, f.tasks, nil, logger)
	f.notifier = NewNotifier(f.tasks, f.flows, f.users, f.notes, dispatcher, f.mailer,
		NewEvaluator(24, 48), opts, logger)
	f.notifier.now = func() time.Time { return slaNow }
	return f
}

func int64Ptr(v int64) *int64 { return &v }
