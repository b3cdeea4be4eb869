package approval

import (
	"sync"

	"github.com/aiprovidergw/gateway/internal/gwerrors"
)

// TaskStatus is a task's position in the TodoTool state machine (§4.7).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Task is one unit of work tracked by the TaskManager.
type Task struct {
	ID        string
	Status    TaskStatus
	DependsOn []string
}

// TaskManager enforces the single-active-task invariant (at most one
// task may be InProgress at any instant) and dependency gating (every
// dependency must be Completed before a dependent can leave Pending).
type TaskManager struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewTaskManager constructs an empty TaskManager.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[string]*Task)}
}

// Add registers a new task in Pending status.
func (m *TaskManager) Add(id string, dependsOn []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[id]; exists {
		return gwerrors.New(gwerrors.InvalidParameter, "task "+id+" already exists")
	}

	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	m.tasks[id] = &Task{ID: id, Status: TaskPending, DependsOn: deps}
	return nil
}

// Get returns a copy of the named task.
func (m *TaskManager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns a snapshot of every tracked task.
func (m *TaskManager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}

// Start transitions id from Pending to InProgress. It fails if another
// task already holds InProgress, or if any dependency has not reached
// Completed.
func (m *TaskManager) Start(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return gwerrors.New(gwerrors.InvalidParameter, "no such task: "+id)
	}
	if t.Status != TaskPending {
		return gwerrors.New(gwerrors.InvalidParameter, "task "+id+" is not pending")
	}

	for _, other := range m.tasks {
		if other.ID != id && other.Status == TaskInProgress {
			return gwerrors.New(gwerrors.InvalidParameter, "task "+other.ID+" is already in progress")
		}
	}

	for _, depID := range t.DependsOn {
		dep, ok := m.tasks[depID]
		if !ok || dep.Status != TaskCompleted {
			return gwerrors.New(gwerrors.InvalidParameter, "dependency "+depID+" is not completed")
		}
	}

	t.Status = TaskInProgress
	return nil
}

// Complete transitions id from InProgress to Completed.
func (m *TaskManager) Complete(id string) error {
	return m.transitionFrom(id, TaskInProgress, TaskCompleted)
}

// Block transitions id from InProgress to Blocked.
func (m *TaskManager) Block(id string) error {
	return m.transitionFrom(id, TaskInProgress, TaskBlocked)
}

// Resume transitions id from Blocked back to InProgress, subject to the
// same single-active-task invariant as Start.
func (m *TaskManager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return gwerrors.New(gwerrors.InvalidParameter, "no such task: "+id)
	}
	if t.Status != TaskBlocked {
		return gwerrors.New(gwerrors.InvalidParameter, "task "+id+" is not blocked")
	}
	for _, other := range m.tasks {
		if other.ID != id && other.Status == TaskInProgress {
			return gwerrors.New(gwerrors.InvalidParameter, "task "+other.ID+" is already in progress")
		}
	}

	t.Status = TaskInProgress
	return nil
}

// Cancel transitions id to Cancelled from any non-terminal status.
func (m *TaskManager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return gwerrors.New(gwerrors.InvalidParameter, "no such task: "+id)
	}
	if t.Status.terminal() {
		return gwerrors.New(gwerrors.InvalidParameter, "task "+id+" is already terminal")
	}

	t.Status = TaskCancelled
	return nil
}

func (m *TaskManager) transitionFrom(id string, from, to TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return gwerrors.New(gwerrors.InvalidParameter, "no such task: "+id)
	}
	if t.Status != from {
		return gwerrors.New(gwerrors.InvalidParameter, "task "+id+" is not "+string(from))
	}

	t.Status = to
	return nil
}
