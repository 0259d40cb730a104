package storage

import (
	"sync"

	"cpamm/internal/model"
)

// MemoryStorage keeps events and errors in memory.
type MemoryStorage struct {
	mu     sync.Mutex
	events []model.Event
	errs   []model.InstructionError
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) PutEventBatch(events []model.Event) error {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) PutErrorBatch(errs []model.InstructionError) error {
	s.mu.Lock()
	s.errs = append(s.errs, errs...)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of the stored events.
func (s *MemoryStorage) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

// Errors returns a copy of the stored instruction errors.
func (s *MemoryStorage) Errors() []model.InstructionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InstructionError(nil), s.errs...)
}
