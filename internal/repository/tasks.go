package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskRecord is the externally persisted mirror of one analysis job.
type TaskRecord struct {
	Ref          string          `json:"ref"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ResultData   json.RawMessage `json:"result_data,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TaskUpdate carries the fields mirrored on a job transition. Empty
// ErrorMessage and ResultData leave the stored values untouched.
type TaskUpdate struct {
	Status       string
	ErrorMessage string
	ResultData   json.RawMessage
}

// TaskStore abstracts the external task records keyed by an opaque ref.
type TaskStore interface {
	Get(ctx context.Context, ref string) (*TaskRecord, error)
	Update(ctx context.Context, ref string, update TaskUpdate) error
}

// MemoryTaskStore keeps task records in memory for local development.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*TaskRecord
	now   func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*TaskRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask registers a pending record for ref.
func (s *MemoryTaskStore) CreateTask(_ context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("task ref is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[ref] = &TaskRecord{Ref: ref, Status: "pending", UpdatedAt: s.now()}
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, ref string) (*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[ref]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *MemoryTaskStore) Update(_ context.Context, ref string, update TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[ref]
	if !ok {
		return ErrTaskNotFound
	}
	applyUpdate(task, update)
	task.UpdatedAt = s.now()
	return nil
}

func applyUpdate(task *TaskRecord, update TaskUpdate) {
	task.Status = update.Status
	if update.ErrorMessage != "" {
		task.ErrorMessage = update.ErrorMessage
	}
	if len(update.ResultData) > 0 {
		task.ResultData = append(json.RawMessage(nil), update.ResultData...)
	}
}

func cloneTask(task *TaskRecord) *TaskRecord {
	if task == nil {
		return nil
	}
	clone := *task
	clone.ResultData = append(json.RawMessage(nil), task.ResultData...)
	return &clone
}
