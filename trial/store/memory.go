// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/trialdb/trial"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory enforces the same keys, foreign keys and checks as the SQL schema.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	projects   map[string]struct{}
	conditions map[string]struct{}
	treatments map[string]struct{}
	subjects   map[trial.SubjectKey]trial.Subject
	samples    map[string]trial.Sample
	cellCounts map[string]trial.CellCount
}

var _ trial.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() memoryState {
	return memoryState{
		projects:   make(map[string]struct{}),
		conditions: make(map[string]struct{}),
		treatments: make(map[string]struct{}),
		subjects:   make(map[trial.SubjectKey]trial.Subject),
		samples:    make(map[string]trial.Sample),
		cellCounts: make(map[string]trial.CellCount),
	}
}

// EnsureSchema is a no-op; relations exist from construction.
func (m *Memory) EnsureSchema(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(trial.Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()

	if err := fn(&memoryWriter{st: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k := range s.projects {
		c.projects[k] = struct{}{}
	}
	for k := range s.conditions {
		c.conditions[k] = struct{}{}
	}
	for k := range s.treatments {
		c.treatments[k] = struct{}{}
	}
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.samples {
		c.samples[k] = v
	}
	for k, v := range s.cellCounts {
		c.cellCounts[k] = v
	}
	return c
}

type memoryWriter struct {
	st *memoryState
}

func (w *memoryWriter) UpsertProject(_ context.Context, id string) error {
	if id == "" {
		return notNull(trial.RelationProject, id, "project_id")
	}
	w.st.projects[id] = struct{}{}
	return nil
}

func (w *memoryWriter) UpsertCondition(_ context.Context, name string) error {
	if name == "" {
		return notNull(trial.RelationCondition, name, "condition_name")
	}
	w.st.conditions[name] = struct{}{}
	return nil
}

func (w *memoryWriter) UpsertTreatment(_ context.Context, id string) error {
	if id == "" {
		return notNull(trial.RelationTreatment, id, "treatment_id")
	}
	w.st.treatments[id] = struct{}{}
	return nil
}

func (w *memoryWriter) UpsertSubject(_ context.Context, s trial.Subject) error {
	key := s.Key().String()
	if _, ok := w.st.projects[s.ProjectID]; !ok {
		return foreignKey(trial.RelationSubject, key, "project %q", s.ProjectID)
	}
	if _, ok := w.st.conditions[s.ConditionName]; !ok {
		return foreignKey(trial.RelationSubject, key, "condition %q", s.ConditionName)
	}
	if s.TreatmentID != "" {
		if _, ok := w.st.treatments[s.TreatmentID]; !ok {
			return foreignKey(trial.RelationSubject, key, "treatment %q", s.TreatmentID)
		}
	}
	if s.Age < 0 {
		return check(trial.RelationSubject, key, "age must be >= 0, got %d", s.Age)
	}
	if !s.Sex.Valid() {
		return check(trial.RelationSubject, key, "sex must be M or F, got %q", s.Sex)
	}
	w.st.subjects[s.Key()] = s
	return nil
}

func (w *memoryWriter) InsertSample(_ context.Context, s trial.Sample) error {
	if _, ok := w.st.samples[s.SampleID]; ok {
		return &trial.DuplicateKeyError{Relation: trial.RelationSample, Key: s.SampleID}
	}
	if _, ok := w.st.subjects[s.SubjectKey()]; !ok {
		return foreignKey(trial.RelationSample, s.SampleID, "subject %s", s.SubjectKey())
	}
	if !s.Response.Valid() {
		return check(trial.RelationSample, s.SampleID, "response must be y or n, got %q", s.Response)
	}
	w.st.samples[s.SampleID] = s
	return nil
}

func (w *memoryWriter) InsertCellCount(_ context.Context, c trial.CellCount) error {
	if _, ok := w.st.cellCounts[c.SampleID]; ok {
		return &trial.DuplicateKeyError{Relation: trial.RelationCellCount, Key: c.SampleID}
	}
	if _, ok := w.st.samples[c.SampleID]; !ok {
		return foreignKey(trial.RelationCellCount, c.SampleID, "sample %q", c.SampleID)
	}
	for _, v := range []int64{c.BCell, c.CD8TCell, c.CD4TCell, c.NKCell, c.Monocyte} {
		if v < 0 {
			return check(trial.RelationCellCount, c.SampleID, "counts must be >= 0, got %d", v)
		}
	}
	w.st.cellCounts[c.SampleID] = c
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) Counts(context.Context) (trial.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return trial.Counts{
		Projects:   int64(len(m.state.projects)),
		Conditions: int64(len(m.state.conditions)),
		Treatments: int64(len(m.state.treatments)),
		Subjects:   int64(len(m.state.subjects)),
		Samples:    int64(len(m.state.samples)),
		CellCounts: int64(len(m.state.cellCounts)),
	}, nil
}

func (m *Memory) GetSubject(_ context.Context, key trial.SubjectKey) (*trial.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.state.subjects[key]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", key, trial.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) GetSample(_ context.Context, id string) (*trial.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.state.samples[id]
	if !ok {
		return nil, fmt.Errorf("sample %q: %w", id, trial.ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) GetCellCount(_ context.Context, id string) (*trial.CellCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.state.cellCounts[id]
	if !ok {
		return nil, fmt.Errorf("cell count %q: %w", id, trial.ErrNotFound)
	}
	return &c, nil
}

func foreignKey(relation, key, format string, args ...any) error {
	return &trial.ConstraintError{
		Relation:   relation,
		Key:        key,
		Constraint: "foreign key",
		Err:        fmt.Errorf("missing "+format, args...),
	}
}

func check(relation, key, format string, args ...any) error {
	return &trial.ConstraintError{
		Relation:   relation,
		Key:        key,
		Constraint: "check",
		Err:        fmt.Errorf(format, args...),
	}
}

func notNull(relation, key, column string) error {
	return &trial.ConstraintError{
		Relation:   relation,
		Key:        key,
		Constraint: "not null",
		Err:        fmt.Errorf("%s is empty", column),
	}
}
