package models

import (
	"errors"
	"math"
	"time"
)

// Reading is a single temperature observation from the data source.
// Immutable once obtained; consumed exactly once per poll cycle.
type Reading struct {
	// Measured value in degrees Celsius
	Value float64 `json:"value"`

	// Timestamp recorded by the sensor/database
	ObservedAt time.Time `json:"observed_at"`
}

// Validation errors
var (
	ErrValueNotFinite = errors.New("reading value is NaN or infinite")
	ErrZeroTimestamp  = errors.New("reading timestamp cannot be zero")
)

// Validate checks that the reading is well-formed before it reaches the
// threshold machine.
func (r Reading) Validate() error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return ErrValueNotFinite
	}

	if r.ObservedAt.IsZero() {
		return ErrZeroTimestamp
	}

	return nil
}
