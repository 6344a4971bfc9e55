package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend keeps appointments in process memory, in insertion order.
// It serves development runs without a spreadsheet or database.
type MemoryBackend struct {
	mu    sync.RWMutex
	rows  []Appointment
	index map[string]int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{index: map[string]int{}}
}

func (m *MemoryBackend) ReadAllRows(_ context.Context) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Appointment, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *MemoryBackend) AppendRow(_ context.Context, rec Appointment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotTakenLocked(rec) {
		return "", &SlotTakenError{Slot: rec.Slot()}
	}
	rec.ID = uuid.NewString()
	m.index[rec.ID] = len(m.rows)
	m.rows = append(m.rows, rec)
	return rec.ID, nil
}

func (m *MemoryBackend) UpdateRow(_ context.Context, rec Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[rec.ID]
	if !ok {
		return &NotFoundError{ID: rec.ID}
	}
	if m.slotTakenLocked(rec) {
		return &SlotTakenError{Slot: rec.Slot()}
	}
	m.rows[i] = rec
	return nil
}

func (m *MemoryBackend) FindRow(_ context.Context, id string) (Appointment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return Appointment{}, false, nil
	}
	return m.rows[i], true, nil
}

// slotTakenLocked mirrors the unique index the SQL backend carries.
func (m *MemoryBackend) slotTakenLocked(rec Appointment) bool {
	if rec.Status == StatusCancelled {
		return false
	}
	for _, r := range m.rows {
		if r.ID != rec.ID && r.Occupies(rec.Slot()) {
			return true
		}
	}
	return false
}
