package storage

import "cpamm/internal/model"

// Multi writes every batch to each sink in order and stops at the first
// error. A failed call may leave the batch in the sinks before the failing
// one; callers that retry should retry per sink, see Sinks.
type Multi []Storage

func (m Multi) PutEventBatch(events []model.Event) error {
	for _, s := range m {
		if err := s.PutEventBatch(events); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutErrorBatch(errs []model.InstructionError) error {
	for _, s := range m {
		if err := s.PutErrorBatch(errs); err != nil {
			return err
		}
	}
	return nil
}

// Sinks flattens s into the sinks that receive writes independently.
func Sinks(s Storage) []Storage {
	m, ok := s.(Multi)
	if !ok {
		return []Storage{s}
	}
	out := make([]Storage, 0, len(m))
	for _, member := range m {
		out = append(out, Sinks(member)...)
	}
	return out
}
