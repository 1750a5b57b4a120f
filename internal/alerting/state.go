package alerting

import (
	"sync"
	"time"
)

// Cause classifies why an alert condition holds.
type Cause string

const (
	CauseHighTemp    Cause = "HIGH_TEMP"
	CauseLowTemp     Cause = "LOW_TEMP"
	CauseSensorFault Cause = "SENSOR_FAULT"
)

// deviceState is the alert tracking state for one device. Guarded by its
// own mutex so evaluations for different devices never contend.
type deviceState struct {
	mu           sync.Mutex
	active       bool
	cause        Cause
	since        time.Time
	lastDispatch time.Time
}

// stateMap lazily creates per-device states. The outer lock is held only
// for map access, never across an evaluation.
type stateMap struct {
	mu      sync.Mutex
	devices map[string]*deviceState
}

func newStateMap() *stateMap {
	return &stateMap{devices: make(map[string]*deviceState)}
}

func (m *stateMap) get(deviceID string) *deviceState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.devices[deviceID]
	if !ok {
		st = &deviceState{}
		m.devices[deviceID] = st
	}
	return st
}

func (m *stateMap) snapshot() map[string]*deviceState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*deviceState, len(m.devices))
	for id, st := range m.devices {
		out[id] = st
	}
	return out
}

func (m *stateMap) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = make(map[string]*deviceState)
}
