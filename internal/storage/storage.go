package storage

import "cpamm/internal/model"

// Storage defines a sink for pool events and rejected instructions.
type Storage interface {
	PutEventBatch(events []model.Event) error
	PutErrorBatch(errs []model.InstructionError) error
}
