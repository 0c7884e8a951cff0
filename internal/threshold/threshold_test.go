package threshold_test

import (
	"strings"
	"testing"
	"time"

	"tempwatch/internal/models"
	"tempwatch/internal/threshold"
)

func reading(value float64, at time.Time) models.Reading {
	return models.Reading{Value: value, ObservedAt: at}
}

func TestEvaluate(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}

	tests := []struct {
		name        string
		state       threshold.State
		value       float64
		wantState   threshold.State
		wantChanged bool
	}{
		{"below stays below", threshold.StateBelow, 25.0, threshold.StateBelow, false},
		{"below at threshold stays below", threshold.StateBelow, 30.0, threshold.StateBelow, false},
		{"below just above fires", threshold.StateBelow, 30.01, threshold.StateAbove, true},
		{"fire edge ignores hysteresis", threshold.StateBelow, 30.1, threshold.StateAbove, true},
		{"above stays above", threshold.StateAbove, 35.0, threshold.StateAbove, false},
		{"above in dead band stays above", threshold.StateAbove, 29.8, threshold.StateAbove, false},
		{"dead band lower bound stays above", threshold.StateAbove, 29.7, threshold.StateAbove, false},
		{"dead band upper bound stays above", threshold.StateAbove, 30.0, threshold.StateAbove, false},
		{"below recovery edge recovers", threshold.StateAbove, 29.69, threshold.StateBelow, true},
		{"well below recovers", threshold.StateAbove, 25.0, threshold.StateBelow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := threshold.Evaluate(tt.state, tt.value, cfg)
			if got != tt.wantState || changed != tt.wantChanged {
				t.Errorf("Evaluate(%v, %v) = (%v, %v), want (%v, %v)",
					tt.state, tt.value, got, changed, tt.wantState, tt.wantChanged)
			}
		})
	}
}

func TestEvaluateZeroHysteresis(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0}

	// At the threshold exactly: neither edge crosses
	if _, changed := threshold.Evaluate(threshold.StateBelow, 30.0, cfg); changed {
		t.Error("value equal to threshold should not fire")
	}
	if _, changed := threshold.Evaluate(threshold.StateAbove, 30.0, cfg); changed {
		t.Error("value equal to threshold should not recover")
	}

	if state, changed := threshold.Evaluate(threshold.StateAbove, 29.99, cfg); !changed || state != threshold.StateBelow {
		t.Errorf("expected recovery below threshold, got (%v, %v)", state, changed)
	}
}

func TestMachineInitialization(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value float64
		want  threshold.State
	}{
		{"first reading below", 29.5, threshold.StateBelow},
		{"first reading above", 31.0, threshold.StateAbove},
		{"first reading at threshold", 30.0, threshold.StateBelow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := threshold.NewMachine(cfg)
			res := m.Observe(reading(tt.value, base))

			if res.Outcome != threshold.OutcomeInitialized {
				t.Fatalf("expected initialized outcome, got %v", res.Outcome)
			}
			if res.Transition != nil {
				t.Error("initialization must not produce a transition")
			}
			if m.State() != tt.want {
				t.Errorf("expected initial state %v, got %v", tt.want, m.State())
			}
		})
	}
}

func TestMachineFireScenario(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3, SensorName: "boiler"}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	res := m.Observe(reading(29.5, base))
	if res.Outcome != threshold.OutcomeInitialized || m.State() != threshold.StateBelow {
		t.Fatalf("expected below after first reading, got %v/%v", res.Outcome, m.State())
	}

	res = m.Observe(reading(30.2, base.Add(10*time.Second)))
	if res.Outcome != threshold.OutcomeFired {
		t.Fatalf("expected fire, got %v", res.Outcome)
	}
	if res.Transition == nil || res.Transition.From != threshold.StateBelow || res.Transition.To != threshold.StateAbove {
		t.Fatalf("unexpected transition: %+v", res.Transition)
	}

	msg := threshold.BuildMessage(res.Transition, cfg, time.UTC)
	for _, want := range []string{"30.20", "30.00", "boiler", "ABOVE"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestMachineDeadBand(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(reading(31.0, base))
	if m.State() != threshold.StateAbove {
		t.Fatal("setup: expected above state")
	}

	// 29.8 is inside [29.7, 30.0]: no premature recovery
	res := m.Observe(reading(29.8, base.Add(10*time.Second)))
	if res.Outcome != threshold.OutcomeNoChange || m.State() != threshold.StateAbove {
		t.Errorf("expected no change in dead band, got %v/%v", res.Outcome, m.State())
	}
}

func TestMachineRecovery(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(reading(31.0, base))
	res := m.Observe(reading(29.6, base.Add(10*time.Second)))

	if res.Outcome != threshold.OutcomeRecovered {
		t.Fatalf("expected recovery, got %v", res.Outcome)
	}
	if res.Suppressed {
		t.Error("recovery must not be suppressed without on_above_only")
	}
	if m.State() != threshold.StateBelow {
		t.Errorf("expected below after recovery, got %v", m.State())
	}

	msg := threshold.BuildMessage(res.Transition, cfg, time.UTC)
	if !strings.Contains(msg, "RECOVERED") || !strings.Contains(msg, "29.60") {
		t.Errorf("unexpected recovery message: %q", msg)
	}
}

func TestMachineIdempotence(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(reading(25.0, base))
	for i := 1; i <= 10; i++ {
		res := m.Observe(reading(25.0+float64(i)*0.1, base.Add(time.Duration(i)*10*time.Second)))
		if res.Outcome != threshold.OutcomeNoChange {
			t.Fatalf("reading %d: expected no change, got %v", i, res.Outcome)
		}
	}
}

func TestMachineSuppression(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3, OnAboveOnly: true}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(reading(29.5, base))

	res := m.Observe(reading(30.2, base.Add(10*time.Second)))
	if res.Outcome != threshold.OutcomeFired || res.Suppressed {
		t.Fatalf("fire must never be suppressed, got %v suppressed=%v", res.Outcome, res.Suppressed)
	}

	res = m.Observe(reading(29.0, base.Add(20*time.Second)))
	if res.Outcome != threshold.OutcomeRecovered {
		t.Fatalf("expected recovery, got %v", res.Outcome)
	}
	if !res.Suppressed {
		t.Error("recovery should be suppressed with on_above_only")
	}
	// Internal state still flips
	if m.State() != threshold.StateBelow {
		t.Errorf("suppression must not block the state change, got %v", m.State())
	}
}

func TestMachineStaleReading(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0, Hysteresis: 0.3}
	m := threshold.NewMachine(cfg)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(reading(29.5, base))

	// Older timestamp, even with a crossing value, is skipped
	res := m.Observe(reading(35.0, base.Add(-time.Minute)))
	if res.Outcome != threshold.OutcomeStale {
		t.Fatalf("expected stale outcome, got %v", res.Outcome)
	}
	if m.State() != threshold.StateBelow {
		t.Errorf("stale reading must not change state, got %v", m.State())
	}

	// Same timestamp is also skipped
	res = m.Observe(reading(35.0, base))
	if res.Outcome != threshold.OutcomeStale {
		t.Errorf("expected stale outcome for equal timestamp, got %v", res.Outcome)
	}
}

func TestBuildMessageTimezone(t *testing.T) {
	cfg := threshold.Config{Threshold: 30.0}
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tr := &threshold.Transition{
		From:    threshold.StateBelow,
		To:      threshold.StateAbove,
		Reading: reading(30.2, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}

	msg := threshold.BuildMessage(tr, cfg, loc)
	if !strings.Contains(msg, "14:00:00+02:00") {
		t.Errorf("expected timestamp in Berlin time with offset, got %q", msg)
	}
	if !strings.Contains(msg, "Sensor") {
		t.Errorf("expected default sensor label, got %q", msg)
	}
}

func TestBuildTestMessage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	msg := threshold.BuildTestMessage("", now, time.UTC)
	if !strings.Contains(msg, "Temperature Monitor") {
		t.Errorf("expected default label, got %q", msg)
	}

	msg = threshold.BuildTestMessage("boiler", now, time.UTC)
	if !strings.Contains(msg, "boiler") {
		t.Errorf("expected sensor label, got %q", msg)
	}
}
