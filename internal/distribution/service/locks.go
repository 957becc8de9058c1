package service

import (
	"sync"

	"github.com/google/uuid"
)

// unitLocks provides one mutex per unit id so rotations for different units
// never contend. Queue admin mutations take the same lock as rotation: a
// reorder racing an assignment would otherwise lose updates.
type unitLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newUnitLocks() *unitLocks {
	return &unitLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the unit's mutex and returns its unlock function.
func (l *unitLocks) Lock(unitID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[unitID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[unitID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
