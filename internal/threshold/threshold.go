package threshold

import (
	"time"

	"tempwatch/internal/models"
)

// State is the monitor's current classification of the reading.
type State string

const (
	StateBelow State = "BELOW"
	StateAbove State = "ABOVE"
)

// Config parameterizes the threshold machine. Immutable for the process
// lifetime.
type Config struct {
	// Value above which the sensor is considered in alert
	Threshold float64

	// Margin below the threshold required before recovery; 0 disables it
	Hysteresis float64

	// Suppress recovery notifications; state still flips internally
	OnAboveOnly bool

	// Optional label used in messages
	SensorName string
}

// Outcome classifies what a single Observe call did.
type Outcome int

const (
	// OutcomeNoChange means the reading did not cross a boundary.
	OutcomeNoChange Outcome = iota
	// OutcomeInitialized means the first reading set the initial state.
	OutcomeInitialized
	// OutcomeStale means the reading was not newer than the last accepted
	// one and was skipped.
	OutcomeStale
	// OutcomeFired means the state moved BELOW -> ABOVE.
	OutcomeFired
	// OutcomeRecovered means the state moved ABOVE -> BELOW.
	OutcomeRecovered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInitialized:
		return "initialized"
	case OutcomeStale:
		return "stale"
	case OutcomeFired:
		return "fired"
	case OutcomeRecovered:
		return "recovered"
	default:
		return "no_change"
	}
}

// Transition records a single state change and the reading that caused it.
type Transition struct {
	From    State
	To      State
	Reading models.Reading
}

// Result is what the machine reports for one reading.
type Result struct {
	Outcome    Outcome
	State      State
	Transition *Transition

	// Suppressed is set on recovery transitions when OnAboveOnly is
	// configured: the state change is real but no notification goes out.
	Suppressed bool
}

// Evaluate is the pure transition function. The fire edge is strict > against
// the raw threshold; the recovery edge is strict < against
// threshold - hysteresis, so a value oscillating just under the threshold
// stays in alert.
func Evaluate(state State, value float64, cfg Config) (State, bool) {
	switch state {
	case StateBelow:
		if value > cfg.Threshold {
			return StateAbove, true
		}
	case StateAbove:
		if value < cfg.Threshold-cfg.Hysteresis {
			return StateBelow, true
		}
	}
	return state, false
}

// Classify returns the state a value maps to on its own, used for initial
// state determination.
func Classify(value float64, cfg Config) State {
	if value > cfg.Threshold {
		return StateAbove
	}
	return StateBelow
}

// Machine owns the alert state. It is pure decision logic: no I/O, no clock,
// no locking. The caller sequences readings into it one at a time.
type Machine struct {
	cfg         Config
	state       State
	initialized bool
	lastAt      time.Time
}

// NewMachine creates an uninitialized machine; the first observed reading
// determines the initial state.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg, state: StateBelow}
}

// State returns the current alert state.
func (m *Machine) State() State { return m.state }

// Initialized reports whether a first reading has been accepted.
func (m *Machine) Initialized() bool { return m.initialized }

// Observe feeds one reading through the machine. The state changes at most
// once per call. Readings whose timestamp is not newer than the last accepted
// reading are skipped without touching the state.
func (m *Machine) Observe(r models.Reading) Result {
	if m.initialized && !r.ObservedAt.After(m.lastAt) {
		return Result{Outcome: OutcomeStale, State: m.state}
	}

	if !m.initialized {
		m.initialized = true
		m.state = Classify(r.Value, m.cfg)
		m.lastAt = r.ObservedAt
		return Result{Outcome: OutcomeInitialized, State: m.state}
	}

	m.lastAt = r.ObservedAt

	next, changed := Evaluate(m.state, r.Value, m.cfg)
	if !changed {
		return Result{Outcome: OutcomeNoChange, State: m.state}
	}

	t := &Transition{From: m.state, To: next, Reading: r}
	m.state = next

	if next == StateAbove {
		return Result{Outcome: OutcomeFired, State: next, Transition: t}
	}
	return Result{
		Outcome:    OutcomeRecovered,
		State:      next,
		Transition: t,
		Suppressed: m.cfg.OnAboveOnly,
	}
}
