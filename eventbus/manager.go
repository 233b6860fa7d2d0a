package eventbus

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Manager creates and looks up Buses keyed by task id, reference-counting
// them so a bus is only torn down once every holder has released it. Two
// racing first-references to the same task id are collapsed by a
// singleflight.Group rather than producing two buses.
type Manager struct {
	mu         sync.Mutex
	buses      map[string]*entry
	bufferSize int
	group      singleflight.Group
}

type entry struct {
	bus    *Bus
	refs   int
}

func NewManager(bufferSize int) *Manager {
	return &Manager{buses: make(map[string]*entry), bufferSize: bufferSize}
}

// GetOrCreate returns the Bus for taskID, creating it (with one reference)
// if it does not exist, or incrementing its reference count if it does.
// Callers must pair every GetOrCreate with a Release.
func (m *Manager) GetOrCreate(taskID string) *Bus {
	_, _, _ = m.group.Do(taskID, func() (any, error) {
		m.mu.Lock()
		if _, ok := m.buses[taskID]; !ok {
			m.buses[taskID] = &entry{bus: NewBus(m.bufferSize)}
		}
		m.mu.Unlock()
		return nil, nil
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.buses[taskID]
	e.refs++
	return e.bus
}

// Lookup returns the Bus for taskID without affecting its reference count,
// or nil if no bus is registered for that id.
func (m *Manager) Lookup(taskID string) *Bus {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.buses[taskID]
	if !ok {
		return nil
	}
	return e.bus
}

// Release decrements taskID's reference count; at zero, the bus is
// finished (if not already) and removed from the manager.
func (m *Manager) Release(taskID string) {
	m.mu.Lock()
	e, ok := m.buses[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.refs--
	done := e.refs <= 0
	if done {
		delete(m.buses, taskID)
	}
	m.mu.Unlock()

	if done {
		e.bus.Finish()
	}
}

// Count reports the number of live buses, for tests and diagnostics.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buses)
}
