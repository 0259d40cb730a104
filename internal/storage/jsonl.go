package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cpamm/internal/model"
)

// JsonlStorage appends events and instruction errors to JSONL files. An
// empty errors path discards errors.
type JsonlStorage struct {
	path       string
	errorsPath string
	mu         sync.Mutex
}

func NewJsonlStorage(path, errorsPath string) *JsonlStorage {
	return &JsonlStorage{path: path, errorsPath: errorsPath}
}

// PutEventBatch appends a batch of events as JSON lines.
func (s *JsonlStorage) PutEventBatch(events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	items := make([]interface{}, 0, len(events))
	for _, event := range events {
		items = append(items, event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, items)
}

// PutErrorBatch appends a batch of rejected instructions as JSON lines.
func (s *JsonlStorage) PutErrorBatch(errs []model.InstructionError) error {
	if len(errs) == 0 || s.errorsPath == "" {
		return nil
	}
	items := make([]interface{}, 0, len(errs))
	for _, e := range errs {
		items = append(items, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.errorsPath, items)
}

func appendLines(path string, items []interface{}) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// ScanLines calls fn with every non-blank line of r, numbered from 1.
func ScanLines(r io.Reader, fn func(lineNo int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

// ReadInstructions loads an instruction journal.
func ReadInstructions(path string) ([]model.Instruction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instructions: %w", err)
	}
	defer file.Close()

	var out []model.Instruction
	err = ScanLines(file, func(lineNo int, line []byte) error {
		var in model.Instruction
		if err := json.Unmarshal(line, &in); err != nil {
			return fmt.Errorf("parse instruction line %d: %w", lineNo, err)
		}
		out = append(out, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
