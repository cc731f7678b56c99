package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// EntStateStore persists investigation state on the case row. It backs the
// synchronous paths: the consulting transition confirm and state reads.
// Turn commits do not go through Save; the executor hands the engine a
// capturing store and persists the state via TurnService.CommitTurn so
// everything a turn writes lands in one fenced transaction.
type EntStateStore struct {
	client *ent.Client
}

// NewEntStateStore creates an ent-backed state store
func NewEntStateStore(client *ent.Client) *EntStateStore {
	return &EntStateStore{client: client}
}

// Load returns the case's investigation state, or (nil, nil) before the
// first save. A missing case is ErrNotFound.
func (s *EntStateStore) Load(ctx context.Context, caseID string) (*state.InvestigationState, error) {
	c, err := s.client.FaultCase.Get(ctx, caseID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load case state: %w", err)
	}
	if c.InvestigationState == nil || *c.InvestigationState == "" {
		return nil, nil
	}

	var st state.InvestigationState
	if err := json.Unmarshal([]byte(*c.InvestigationState), &st); err != nil {
		return nil, fmt.Errorf("failed to decode case state: %w", err)
	}

	return &st, nil
}

// Save serializes and writes the state onto the case row
func (s *EntStateStore) Save(_ context.Context, caseID string, st *state.InvestigationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode case state: %w", err)
	}

	// Use background context with timeout for critical write
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = s.client.FaultCase.UpdateOneID(caseID).
		SetInvestigationState(string(data)).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save case state: %w", err)
	}

	return nil
}

// MemStateStore is an in-memory state store for tests and single-process
// use. Snapshots are deep-copied on the way in and out, so callers never
// share mutable state with the store.
type MemStateStore struct {
	mu     sync.RWMutex
	states map[string]*state.InvestigationState
}

// NewMemStateStore creates an empty in-memory state store
func NewMemStateStore() *MemStateStore {
	return &MemStateStore{states: make(map[string]*state.InvestigationState)}
}

// Load returns a copy of the stored state, or (nil, nil) when absent
func (s *MemStateStore) Load(_ context.Context, caseID string) (*state.InvestigationState, error) {
	s.mu.RLock()
	st, ok := s.states[caseID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	cp, err := st.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy case state: %w", err)
	}

	return cp, nil
}

// Save stores a copy of the state
func (s *MemStateStore) Save(_ context.Context, caseID string, st *state.InvestigationState) error {
	cp, err := st.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy case state: %w", err)
	}

	s.mu.Lock()
	s.states[caseID] = cp
	s.mu.Unlock()

	return nil
}

// Delete removes a case's state. Used by tests.
func (s *MemStateStore) Delete(caseID string) {
	s.mu.Lock()
	delete(s.states, caseID)
	s.mu.Unlock()
}
