package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StageState records progress through one named pipeline stage.
type StageState struct {
	// Completed counts finished units of work (sites for the crawl
	// stage).
	Completed int `json:"completed"`
	// Done marks the stage fully finished.
	Done bool `json:"done"`
	// Partial holds per-unit completion, keyed by unit name, so a
	// restarted run can skip finished units even when they completed
	// out of order.
	Partial map[string]bool `json:"partial,omitempty"`
}

// Checkpoint is the resumable state of one pipeline run.
type Checkpoint struct {
	RunID     string                 `json:"run_id"`
	StartedAt time.Time              `json:"started_at"`
	Stages    map[string]*StageState `json:"stages"`
}

// Stage returns the state for a named stage, creating it on first use.
func (c *Checkpoint) Stage(name string) *StageState {
	state, ok := c.Stages[name]
	if !ok {
		state = &StageState{Partial: make(map[string]bool)}
		c.Stages[name] = state
	}
	if state.Partial == nil {
		state.Partial = make(map[string]bool)
	}

	return state
}

// Clone returns a deep copy that is safe to marshal while the original
// keeps changing.
func (c *Checkpoint) Clone() *Checkpoint {
	out := &Checkpoint{
		RunID:     c.RunID,
		StartedAt: c.StartedAt,
		Stages:    make(map[string]*StageState, len(c.Stages)),
	}
	for name, state := range c.Stages {
		partial := make(map[string]bool, len(state.Partial))
		for unit, done := range state.Partial {
			partial[unit] = done
		}
		out.Stages[name] = &StageState{
			Completed: state.Completed,
			Done:      state.Done,
			Partial:   partial,
		}
	}

	return out
}

// CheckpointStore persists checkpoints as a JSON file with atomic
// replacement.
type CheckpointStore struct {
	mu   sync.Mutex
	path string
}

// NewCheckpointStore creates a store writing to path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Load reads the current checkpoint, or starts a fresh run with a new
// run ID when none exists or the file is unreadable.
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := &Checkpoint{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Stages:    make(map[string]*StageState),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if unmarshalErr := json.Unmarshal(data, &cp); unmarshalErr != nil {
		return fresh, nil
	}
	if cp.Stages == nil {
		cp.Stages = make(map[string]*StageState)
	}

	return &cp, nil
}

// Save atomically replaces the checkpoint on disk.
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkdirErr := os.MkdirAll(dir, 0o755); mkdirErr != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", mkdirErr)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}

	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp checkpoint: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp checkpoint: %w", closeErr)
	}

	if renameErr := os.Rename(tmp.Name(), s.path); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace checkpoint: %w", renameErr)
	}

	return nil
}

// Clear removes the checkpoint so the next run starts fresh.
func (s *CheckpointStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}

	return nil
}
