package task

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// task status enum
type TaskStatus int

const (
	TaskStatusPending TaskStatus = iota
	TaskStatusRunning
	TaskStatusFinished
	TaskStatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPending:
		return "pending"
	case TaskStatusRunning:
		return "running"
	case TaskStatusFinished:
		return "finished"
	case TaskStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// statuses travel as their string form in every API payload
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Task is one compute request moving through the service.
type Task struct {
	ID         string     `json:"id"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Error      string     `json:"error,omitempty"`
	ResultKey  string     `json:"result_key,omitempty"`

	// storage keys of the two input parts
	DescriptorKey string `json:"-"`
	InputTextKey  string `json:"-"`
	// engine to notify when the task reaches a terminal status
	CallbackURL string `json:"-"`
}

// New creates a pending task with a fresh id.
func New() *Task {
	return &Task{
		ID:        uuid.NewString(),
		Status:    TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Store keeps task records in memory. Durable task state lives with the
// orchestration engine; these records back the status and result routes.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewStore() *Store {
	return &Store{
		tasks: map[string]*Task{},
	}
}

func (s *Store) Put(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Get returns a copy so callers never race with the runner's updates.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *Store) SetRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = TaskStatusRunning
		t.StartedAt = time.Now().UTC()
	}
}

func (s *Store) SetFinished(id, resultKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = TaskStatusFinished
		t.ResultKey = resultKey
		t.FinishedAt = time.Now().UTC()
	}
}

func (s *Store) SetFailed(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = TaskStatusFailed
		t.Error = message
		t.FinishedAt = time.Now().UTC()
	}
}

// Counts tallies tasks per status for the status route. Every status
// appears, so empty buckets show up as zero instead of vanishing.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, st := range []TaskStatus{TaskStatusPending, TaskStatusRunning, TaskStatusFinished, TaskStatusFailed} {
		counts[st.String()] = 0
	}
	for _, t := range s.tasks {
		counts[t.Status.String()]++
	}
	return counts
}
