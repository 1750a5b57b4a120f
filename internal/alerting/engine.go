// Package alerting evaluates fused readings against the configured
// thresholds and decides when notifications may be dispatched. Detection is
// never suppressed; only the dispatch side effect is rate-limited per
// device.
package alerting

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/fusion"
	"github.com/hbenali/sensor-hub/internal/settings"
)

// DebounceWindow is the minimum interval between notification dispatches
// for the same device. Repeat alerts inside the window still produce
// records with correct alert fields, they just don't notify again.
const DebounceWindow = 10 * time.Second

// Evaluation is the outcome of one threshold check.
type Evaluation struct {
	Alert    bool
	Cause    Cause
	Dispatch bool
}

// DeviceStatus is a read-only view of one device's alert tracking state.
type DeviceStatus struct {
	DeviceID     string    `json:"device_id"`
	Active       bool      `json:"active"`
	Cause        Cause     `json:"cause,omitempty"`
	Since        time.Time `json:"since,omitempty"`
	LastDispatch time.Time `json:"last_dispatch,omitempty"`
}

// Engine holds per-device alert state and applies the debounce rule.
type Engine struct {
	states *stateMap
	window time.Duration
	logger *zap.Logger
}

// NewEngine creates an engine with the standard debounce window.
func NewEngine(logger *zap.Logger) *Engine {
	return NewEngineWithWindow(DebounceWindow, logger)
}

// NewEngineWithWindow creates an engine with a custom debounce window.
func NewEngineWithWindow(window time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		states: newStateMap(),
		window: window,
		logger: logger,
	}
}

// Evaluate decides whether the fused reading is an alert condition and
// whether notifications should be dispatched for it. Evaluations for the
// same device are serialized; different devices proceed concurrently.
func (e *Engine) Evaluate(deviceID string, res fusion.Result, th settings.Thresholds, now time.Time) Evaluation {
	cause := classify(res, th)

	st := e.states.get(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if cause == "" {
		if st.active {
			e.logger.Info("alert cleared",
				zap.String("device_id", deviceID),
				zap.String("cause", string(st.cause)))
		}
		st.active = false
		st.cause = ""
		return Evaluation{}
	}

	ev := Evaluation{Alert: true, Cause: cause}

	if !st.active {
		st.since = now
		e.logger.Info("alert raised",
			zap.String("device_id", deviceID),
			zap.String("cause", string(cause)))
	} else if st.cause != cause {
		e.logger.Info("alert cause changed",
			zap.String("device_id", deviceID),
			zap.String("from", string(st.cause)),
			zap.String("to", string(cause)))
	}
	st.active = true
	st.cause = cause

	// Dispatch only when the window since the last dispatch has elapsed,
	// regardless of cause changes inside the window.
	if st.lastDispatch.IsZero() || now.Sub(st.lastDispatch) >= e.window {
		st.lastDispatch = now
		ev.Dispatch = true
	}

	return ev
}

// Status returns the tracking state of every known device, sorted by id.
func (e *Engine) Status() []DeviceStatus {
	devices := e.states.snapshot()

	out := make([]DeviceStatus, 0, len(devices))
	for id, st := range devices {
		st.mu.Lock()
		out = append(out, DeviceStatus{
			DeviceID:     id,
			Active:       st.active,
			Cause:        st.cause,
			Since:        st.since,
			LastDispatch: st.lastDispatch,
		})
		st.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Reset drops all tracking state. The next qualifying evaluation for any
// device dispatches immediately.
func (e *Engine) Reset() {
	e.states.reset()
	e.logger.Info("alert tracking state reset")
}

// classify applies the decision order: sensor fault, then high, then low.
func classify(res fusion.Result, th settings.Thresholds) Cause {
	switch {
	case !res.Trusted:
		return CauseSensorFault
	case res.Temperature > th.MaxTemperature:
		return CauseHighTemp
	case res.Temperature < th.MinTemperature:
		return CauseLowTemp
	default:
		return ""
	}
}
