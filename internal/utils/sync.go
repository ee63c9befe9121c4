package utils

import (
	"sync"
)

// OptionalMutex locks only when the owning object was created without
// ExternallySynchronized. Copies share the same underlying lock.
type OptionalMutex struct {
	mutex *sync.Mutex
}

func NewOptionalMutex(externallySynchronized bool) OptionalMutex {
	if externallySynchronized {
		return OptionalMutex{}
	}
	return OptionalMutex{mutex: &sync.Mutex{}}
}

// Enabled reports whether Lock actually locks
func (m OptionalMutex) Enabled() bool {
	return m.mutex != nil
}

func (m OptionalMutex) Lock() {
	if m.mutex != nil {
		m.mutex.Lock()
	}
}

func (m OptionalMutex) Unlock() {
	if m.mutex != nil {
		m.mutex.Unlock()
	}
}

// OptionalRWMutex is the reader/writer form of OptionalMutex
type OptionalRWMutex struct {
	mutex *sync.RWMutex
}

func NewOptionalRWMutex(externallySynchronized bool) OptionalRWMutex {
	if externallySynchronized {
		return OptionalRWMutex{}
	}
	return OptionalRWMutex{mutex: &sync.RWMutex{}}
}

func (m OptionalRWMutex) Enabled() bool {
	return m.mutex != nil
}

func (m OptionalRWMutex) Lock() {
	if m.mutex != nil {
		m.mutex.Lock()
	}
}

func (m OptionalRWMutex) Unlock() {
	if m.mutex != nil {
		m.mutex.Unlock()
	}
}

func (m OptionalRWMutex) RLock() {
	if m.mutex != nil {
		m.mutex.RLock()
	}
}

func (m OptionalRWMutex) RUnlock() {
	if m.mutex != nil {
		m.mutex.RUnlock()
	}
}
