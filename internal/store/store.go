package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
)

// Store holds task snapshots. It is the only state shared between tasks.
type Store interface {
	Create(ctx context.Context, s domain.Snapshot) error
	Get(ctx context.Context, id string) (domain.Snapshot, error)
	Update(ctx context.Context, s domain.Snapshot) error
	List(ctx context.Context) ([]domain.Snapshot, error)
}

type Memory struct {
	mu    sync.RWMutex
	tasks map[string]domain.Snapshot
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]domain.Snapshot)}
}

func (m *Memory) Create(_ context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[s.ID]; exists {
		return ErrTaskExists
	}
	m.tasks[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.tasks[id]
	if !ok {
		return domain.Snapshot{}, ErrTaskNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Update(_ context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[s.ID]; !ok {
		return ErrTaskNotFound
	}
	m.tasks[s.ID] = s.Clone()
	return nil
}

// List returns snapshots ordered by creation time, oldest first.
func (m *Memory) List(_ context.Context) ([]domain.Snapshot, error) {
	m.mu.RLock()
	out := make([]domain.Snapshot, 0, len(m.tasks))
	for _, s := range m.tasks {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
