// ABOUTME: Classifies model readiness into an observable state with a title and message
// ABOUTME: Monitor caches the last state, logs transitions and can poll in the background

package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/model"
)

// Reason explains why the model is unavailable.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonModelDownloading
	ReasonDeviceIneligible
	ReasonFeatureDisabled
	ReasonUnknown
)

// String returns the reason name used in logs.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonModelDownloading:
		return "model_downloading"
	case ReasonDeviceIneligible:
		return "device_ineligible"
	case ReasonFeatureDisabled:
		return "feature_disabled"
	default:
		return "unknown"
	}
}

// Title is a short heading for the reason.
func (r Reason) Title() string {
	switch r {
	case ReasonNone:
		return "Available"
	case ReasonModelDownloading:
		return "Model Downloading"
	case ReasonDeviceIneligible:
		return "Device Not Supported"
	case ReasonFeatureDisabled:
		return "AI Disabled"
	default:
		return "Unavailable"
	}
}

// Message is a user-facing explanation of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return "The AI model is ready."
	case ReasonModelDownloading:
		return "The AI model is being prepared. This may take a few minutes."
	case ReasonDeviceIneligible:
		return "This client is not supported by the AI model."
	case ReasonFeatureDisabled:
		return "AI features are not enabled. Check your gateway token and settings."
	default:
		return "The AI model is currently unavailable."
	}
}

// State is the observable availability of the model.
type State struct {
	Available bool
	Reason    Reason
	Title     string
	Message   string
}

// Ready is the available state.
var Ready = newState(ReasonNone)

func newState(r Reason) State {
	return State{
		Available: r == ReasonNone,
		Reason:    r,
		Title:     r.Title(),
		Message:   r.Message(),
	}
}

// Unavailable returns the unavailable state for r.
func Unavailable(r Reason) State {
	if r == ReasonNone {
		r = ReasonUnknown
	}
	return newState(r)
}

// Classify maps a provider answer to a State. A failed check is Unknown.
func Classify(a model.Availability, err error) State {
	if err != nil {
		return Unavailable(ReasonUnknown)
	}
	switch a {
	case model.AvailabilityReady:
		return Ready
	case model.AvailabilityNotReady:
		return Unavailable(ReasonModelDownloading)
	case model.AvailabilityIneligible:
		return Unavailable(ReasonDeviceIneligible)
	case model.AvailabilityDisabled:
		return Unavailable(ReasonFeatureDisabled)
	default:
		return Unavailable(ReasonUnknown)
	}
}

// Checker reports raw availability. model.Provider satisfies it.
type Checker interface {
	Availability(ctx context.Context) (model.Availability, error)
}

// Monitor tracks the availability of a Checker.
type Monitor struct {
	checker Checker
	logger  *slog.Logger

	mu      sync.RWMutex
	state   State
	checked bool
}

// NewMonitor creates a monitor. Until the first Check the state is Unknown.
func NewMonitor(checker Checker, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checker: checker,
		logger:  logger.With("component", "availability"),
		state:   Unavailable(ReasonUnknown),
	}
}

// Check queries the checker, stores and returns the classified state.
func (m *Monitor) Check(ctx context.Context) State {
	a, err := m.checker.Availability(ctx)
	state := Classify(a, err)

	m.mu.Lock()
	prev, checked := m.state, m.checked
	m.state = state
	m.checked = true
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("availability check failed", "error", err)
	}
	if !checked || prev != state {
		m.logger.Info("availability changed",
			"available", state.Available,
			"reason", state.Reason.String(),
			"raw", a.String())
	}
	return state
}

// State returns the last checked state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Watch re-checks every interval until ctx is done and calls fn whenever
// the state differs from the previous check.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, fn func(State)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := m.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := m.Check(ctx)
			if ctx.Err() != nil {
				return
			}
			if state != last {
				last = state
				if fn != nil {
					fn(state)
				}
			}
		}
	}
}
