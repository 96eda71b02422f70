package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/agentflow/flow/store"
)

// Checkpoint is a full run-state snapshot (spec §6: "a checkpoint captures
// the pending queue, all scoped state, and fan-in buffers, byte for byte").
// Resuming from one must reproduce the run's observable behavior exactly as
// if it had never stopped.
type Checkpoint struct {
	ID        string                     `json:"id"`
	RunID     string                     `json:"run_id"`
	CreatedAt time.Time                  `json:"created_at"`
	Queue     []queuedMessage            `json:"queue"`
	State     map[ScopeID]map[string]any `json:"state"`
	FanIn     map[int]map[string]any     `json:"fan_in"`
	IO        map[string]map[string]any  `json:"io"`

	Paused           bool              `json:"paused"`
	ExternalRequests []ExternalRequest `json:"external_requests"`
	PortOwners       map[string]string `json:"port_owners"`

	Result    any  `json:"result,omitempty"`
	HasResult bool `json:"has_result,omitempty"`
}

// CheckpointInfo is the lightweight summary carried on a CheckpointCreated
// event, cheap enough to copy into every emitter.
type CheckpointInfo struct {
	ID        string
	RunID     string
	CreatedAt time.Time
}

// CheckpointManager commits and retrieves Checkpoints. Dispatchers call
// Commit at safe points (after a superstep completes with an empty
// in-flight handler) and Lookup when resuming a run.
type CheckpointManager interface {
	Commit(ctx context.Context, cp Checkpoint) (CheckpointInfo, error)
	Lookup(ctx context.Context, id string) (Checkpoint, error)
	Latest(ctx context.Context, runID string) (Checkpoint, error)
}

// MemoryCheckpointManager keeps every checkpoint in process memory. Suitable
// for tests and for workflows that never outlive a single process.
type MemoryCheckpointManager struct {
	byID  map[string]Checkpoint
	byRun map[string]string
}

// NewMemoryCheckpointManager creates an empty in-memory checkpoint manager.
func NewMemoryCheckpointManager() *MemoryCheckpointManager {
	return &MemoryCheckpointManager{
		byID:  make(map[string]Checkpoint),
		byRun: make(map[string]string),
	}
}

func (m *MemoryCheckpointManager) Commit(ctx context.Context, cp Checkpoint) (CheckpointInfo, error) {
	if cp.ID == "" {
		cp.ID = newID()
	}
	m.byID[cp.ID] = cp
	m.byRun[cp.RunID] = cp.ID
	return CheckpointInfo{ID: cp.ID, RunID: cp.RunID, CreatedAt: cp.CreatedAt}, nil
}

func (m *MemoryCheckpointManager) Lookup(ctx context.Context, id string) (Checkpoint, error) {
	cp, ok := m.byID[id]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return cp, nil
}

func (m *MemoryCheckpointManager) Latest(ctx context.Context, runID string) (Checkpoint, error) {
	id, ok := m.byRun[runID]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return m.Lookup(ctx, id)
}

// StoreCheckpointManager adapts a byte-oriented store.CheckpointStore into a
// CheckpointManager by JSON-encoding the Checkpoint, matching the
// JSON-serializable-state contract grounded on graph/checkpoint.go.
type StoreCheckpointManager struct {
	backend store.CheckpointStore
}

// NewStoreCheckpointManager wraps backend (e.g. a *store.SQLiteStore or
// *store.MySQLStore) as a CheckpointManager.
func NewStoreCheckpointManager(backend store.CheckpointStore) *StoreCheckpointManager {
	return &StoreCheckpointManager{backend: backend}
}

func (m *StoreCheckpointManager) Commit(ctx context.Context, cp Checkpoint) (CheckpointInfo, error) {
	if cp.ID == "" {
		cp.ID = newID()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return CheckpointInfo{}, fmt.Errorf("flow: marshal checkpoint: %w", err)
	}
	if err := m.backend.Save(ctx, cp.RunID, cp.ID, data); err != nil {
		return CheckpointInfo{}, fmt.Errorf("flow: save checkpoint: %w", err)
	}
	return CheckpointInfo{ID: cp.ID, RunID: cp.RunID, CreatedAt: cp.CreatedAt}, nil
}

func (m *StoreCheckpointManager) Lookup(ctx context.Context, id string) (Checkpoint, error) {
	data, err := m.backend.Load(ctx, id)
	if err == store.ErrNotFound {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointDeserialize, err)
	}
	return cp, nil
}

func (m *StoreCheckpointManager) Latest(ctx context.Context, runID string) (Checkpoint, error) {
	id, err := m.backend.Latest(ctx, runID)
	if err == store.ErrNotFound {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return m.Lookup(ctx, id)
}
