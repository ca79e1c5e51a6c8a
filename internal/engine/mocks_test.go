package engine

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/notify"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/internal/sla"
	"github.com/taskflow/taskflow/pkg/database"
)

// In-memory repositories backing the engine tests. They keep real state
// so cascades and rollups observe their own writes.

type memTaskRepo struct {
	mu              sync.Mutex
	nextID          int64
	tasks           map[int64]*models.Task
	forceBlockCalls []int64
	updateCount     map[int64]int
}

var _ port.TaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{
		tasks:       make(map[int64]*models.Task),
		updateCount: make(map[int64]int),
	}
}

func (m *memTaskRepo) add(task *models.Task) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == 0 {
		m.nextID++
		task.ID = m.nextID
	} else if task.ID > m.nextID {
		m.nextID = task.ID
	}
	m.tasks[task.ID] = task.Clone()
	return task
}

func (m *memTaskRepo) Create(ctx context.Context, task *models.Task) error {
	m.add(task)
	return nil
}

func (m *memTaskRepo) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.DeletedAt != nil {
		return nil, nil
	}
	return task.Clone(), nil
}

func (m *memTaskRepo) Update(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Clone()
	m.updateCount[task.ID]++
	return nil
}

func (m *memTaskRepo) List(ctx context.Context, filter port.TaskFilter) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.DeletedAt != nil {
			continue
		}
		if filter.FlowID != nil && task.FlowID != *filter.FlowID {
			continue
		}
		if filter.AssigneeID != nil && (task.AssigneeID == nil || *task.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		if filter.MilestonesOnly && !task.IsMilestone {
			continue
		}
		if filter.RootOnly && task.ParentTaskID != nil {
			continue
		}
		out = append(out, task.Clone())
	}
	sortTasksByID(out)
	return out, nil
}

func (m *memTaskRepo) ListSubtasks(ctx context.Context, parentID int64) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.DeletedAt == nil && task.ParentTaskID != nil && *task.ParentTaskID == parentID {
			out = append(out, task.Clone())
		}
	}
	sortTasksByID(out)
	return out, nil
}

func (m *memTaskRepo) ListRootByFlow(ctx context.Context, flowID int64) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.DeletedAt == nil && task.FlowID == flowID && task.ParentTaskID == nil {
			out = append(out, task.Clone())
		}
	}
	sortTasksByID(out)
	return out, nil
}

func (m *memTaskRepo) ListDependents(ctx context.Context, precedentID int64) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.DeletedAt != nil {
			continue
		}
		if (task.DependsOnTaskID != nil && *task.DependsOnTaskID == precedentID) ||
			(task.DependsOnMilestoneID != nil && *task.DependsOnMilestoneID == precedentID) {
			out = append(out, task.Clone())
		}
	}
	sortTasksByID(out)
	return out, nil
}

func (m *memTaskRepo) ForceBlockDependents(ctx context.Context, precedentID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceBlockCalls = append(m.forceBlockCalls, precedentID)
	var count int64
	for _, task := range m.tasks {
		if task.DeletedAt != nil || task.IsBlocked {
			continue
		}
		if (task.DependsOnTaskID != nil && *task.DependsOnTaskID == precedentID) ||
			(task.DependsOnMilestoneID != nil && *task.DependsOnMilestoneID == precedentID) {
			task.IsBlocked = true
			count++
		}
	}
	return count, nil
}

func (m *memTaskRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		task.DeletedAt = &at
	}
	return nil
}

func (m *memTaskRepo) SoftDeleteSubtasks(ctx context.Context, parentID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, task := range m.tasks {
		if task.DeletedAt == nil && task.ParentTaskID != nil && *task.ParentTaskID == parentID {
			task.DeletedAt = &at
			count++
		}
	}
	return count, nil
}

func (m *memTaskRepo) SoftDeleteByFlow(ctx context.Context, flowID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, task := range m.tasks {
		if task.DeletedAt == nil && task.FlowID == flowID {
			task.DeletedAt = &at
			count++
		}
	}
	return count, nil
}

func (m *memTaskRepo) RestoreByFlow(ctx context.Context, flowID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, task := range m.tasks {
		if task.DeletedAt != nil && task.FlowID == flowID {
			task.DeletedAt = nil
			count++
		}
	}
	return count, nil
}

func (m *memTaskRepo) ListActiveWithDeadline(ctx context.Context) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.DeletedAt == nil && task.SLADueDate != nil && !task.Status.IsDone() {
			out = append(out, task.Clone())
		}
	}
	sortTasksByID(out)
	return out, nil
}

func (m *memTaskRepo) get(id int64) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		return task.Clone()
	}
	return nil
}

func sortTasksByID(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}

type memFlowRepo struct {
	mu     sync.Mutex
	nextID int64
	flows  map[int64]*models.Flow
}

var _ port.FlowRepository = (*memFlowRepo)(nil)

func newMemFlowRepo() *memFlowRepo {
	return &memFlowRepo{flows: make(map[int64]*models.Flow)}
}

func (m *memFlowRepo) add(flow *models.Flow) *models.Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flow.ID == 0 {
		m.nextID++
		flow.ID = m.nextID
	} else if flow.ID > m.nextID {
		m.nextID = flow.ID
	}
	m.flows[flow.ID] = flow.Clone()
	return flow
}

func (m *memFlowRepo) Create(ctx context.Context, flow *models.Flow) error {
	m.add(flow)
	return nil
}

func (m *memFlowRepo) GetByID(ctx context.Context, id int64) (*models.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[id]
	if !ok || flow.DeletedAt != nil {
		return nil, nil
	}
	return flow.Clone(), nil
}

func (m *memFlowRepo) Update(ctx context.Context, flow *models.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[flow.ID] = flow.Clone()
	return nil
}

func (m *memFlowRepo) List(ctx context.Context) ([]*models.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Flow
	for _, flow := range m.flows {
		if flow.DeletedAt == nil {
			out = append(out, flow.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memFlowRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flow, ok := m.flows[id]; ok {
		flow.DeletedAt = &at
	}
	return nil
}

func (m *memFlowRepo) Restore(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flow, ok := m.flows[id]; ok {
		flow.DeletedAt = nil
	}
	return nil
}

func (m *memFlowRepo) get(id int64) *models.Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flow, ok := m.flows[id]; ok {
		return flow.Clone()
	}
	return nil
}

type memDependencyRepo struct {
	mu     sync.Mutex
	nextID int64
	deps   map[int64]*models.TaskDependency
	owners map[int64]int64 // task id -> flow id, for ListByFlow
}

var _ port.DependencyRepository = (*memDependencyRepo)(nil)

func newMemDependencyRepo() *memDependencyRepo {
	return &memDependencyRepo{
		deps:   make(map[int64]*models.TaskDependency),
		owners: make(map[int64]int64),
	}
}

func (m *memDependencyRepo) bind(taskID, flowID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[taskID] = flowID
}

func (m *memDependencyRepo) Create(ctx context.Context, dep *models.TaskDependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	dep.ID = m.nextID
	c := *dep
	m.deps[dep.ID] = &c
	return nil
}

func (m *memDependencyRepo) GetByID(ctx context.Context, id int64) (*models.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dep, ok := m.deps[id]
	if !ok {
		return nil, nil
	}
	c := *dep
	return &c, nil
}

func (m *memDependencyRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deps, id)
	return nil
}

func (m *memDependencyRepo) ListByTask(ctx context.Context, taskID int64) ([]*models.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskDependency
	for _, dep := range m.deps {
		if dep.TaskID == taskID {
			c := *dep
			out = append(out, &c)
		}
	}
	sortDepsByID(out)
	return out, nil
}

func (m *memDependencyRepo) ListByPrecedent(ctx context.Context, dependsOnTaskID int64) ([]*models.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskDependency
	for _, dep := range m.deps {
		if dep.DependsOnTaskID == dependsOnTaskID {
			c := *dep
			out = append(out, &c)
		}
	}
	sortDepsByID(out)
	return out, nil
}

func (m *memDependencyRepo) ListByFlow(ctx context.Context, flowID int64) ([]*models.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskDependency
	for _, dep := range m.deps {
		if m.owners[dep.TaskID] == flowID {
			c := *dep
			out = append(out, &c)
		}
	}
	sortDepsByID(out)
	return out, nil
}

func (m *memDependencyRepo) Exists(ctx context.Context, taskID, dependsOnTaskID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dep := range m.deps {
		if dep.TaskID == taskID && dep.DependsOnTaskID == dependsOnTaskID {
			return true, nil
		}
	}
	return false, nil
}

func sortDepsByID(deps []*models.TaskDependency) {
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })
}

type memNotificationRepo struct {
	mu      sync.Mutex
	nextID  int64
	created []*models.Notification
}

var _ port.NotificationRepository = (*memNotificationRepo)(nil)

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (m *memNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	c := *n
	m.created = append(m.created, &c)
	return nil
}

func (m *memNotificationRepo) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.created {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		c := *n
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memNotificationRepo) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.created {
		if n.ID == id {
			c := *n
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memNotificationRepo) MarkRead(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.created {
		if n.ID == id {
			n.ReadAt = &at
		}
	}
	return nil
}

func (m *memNotificationRepo) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.created {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (m *memNotificationRepo) ExistsRecent(ctx context.Context, taskID int64, typ string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.created {
		if n.TaskID != nil && *n.TaskID == taskID && n.Type == typ && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotificationRepo) DeleteByTaskAndTypes(ctx context.Context, taskID int64, types []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var kept []*models.Notification
	var count int64
	for _, n := range m.created {
		if n.TaskID != nil && *n.TaskID == taskID && typeSet[n.Type] {
			count++
			continue
		}
		kept = append(kept, n)
	}
	m.created = kept
	return count, nil
}

func (m *memNotificationRepo) MarkReadByTaskAndTypes(ctx context.Context, taskID int64, types []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var count int64
	for _, n := range m.created {
		if n.TaskID != nil && *n.TaskID == taskID && typeSet[n.Type] && n.ReadAt == nil {
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (m *memNotificationRepo) byType(typ string) []*models.Notification {
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

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

var _ port.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*models.User)}
}

func (m *memUserRepo) add(user *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user
}

func (m *memUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	c := *user
	return &c, nil
}

func (m *memUserRepo) FirstSupervisor(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if m.users[id].IsSupervisor() {
			c := *m.users[id]
			return &c, nil
		}
	}
	return nil, nil
}

type recordedEvent struct {
	channels []string
	event    string
	payload  map[string]any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

var _ port.Broadcaster = (*recordingBroadcaster)(nil)

func (b *recordingBroadcaster) Publish(channels []string, event string, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{channels: channels, event: event, payload: payload})
}

func (b *recordingBroadcaster) byEvent(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	tasks  *memTaskRepo
	flows  *memFlowRepo
	deps   *memDependencyRepo
	notes  *memNotificationRepo
	users  *memUserRepo
	bus    *recordingBroadcaster
	engine *Engine
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "engine_test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks: newMemTaskRepo(),
		flows: newMemFlowRepo(),
		deps:  newMemDependencyRepo(),
		notes: newMemNotificationRepo(),
		users: newMemUserRepo(),
		bus:   &recordingBroadcaster{},
	}

	logger := zap.NewNop()
	dispatcher := notify.NewDispatcher(f.notes, f.users, f.flows, f.tasks, f.bus, logger)
	evaluator := sla.NewEvaluator(24, 48)
	alerts := sla.NewNotifier(f.tasks, f.flows, f.users, f.notes, dispatcher, nil, evaluator,
		sla.NotifierOptions{DedupWindow: time.Hour, AutoResolve: true}, logger)

	f.engine = New(newTestDB(t), f.tasks, f.flows, f.deps, dispatcher, evaluator, alerts, logger)
	f.engine.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) seedFlow(flow *models.Flow) *models.Flow {
	if flow.Status == "" {
		flow.Status = models.FlowStatusActive
	}
	return f.flows.add(flow)
}

func (f *fixture) seedTask(task *models.Task) *models.Task {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	f.tasks.add(task)
	f.deps.bind(task.ID, task.FlowID)
	return task
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
