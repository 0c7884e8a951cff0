package threshold

import (
	"fmt"
	"time"
)

// BuildMessage renders the notification text for a transition. Values are
// formatted to two decimals and the timestamp in the given location,
// RFC3339 with offset.
func BuildMessage(t *Transition, cfg Config, loc *time.Location) string {
	sensor := cfg.SensorName
	if sensor == "" {
		sensor = "Sensor"
	}

	ts := formatTimestamp(t.Reading.ObservedAt, loc)

	if t.To == StateAbove {
		return fmt.Sprintf("🚨 %s temperature is ABOVE threshold: %.2f°C (threshold %.2f°C) at %s.",
			sensor, t.Reading.Value, cfg.Threshold, ts)
	}
	return fmt.Sprintf("✅ %s temperature has RECOVERED: %.2f°C (threshold %.2f°C) at %s.",
		sensor, t.Reading.Value, cfg.Threshold, ts)
}

// BuildTestMessage renders the default message for the direct-notify test
// path.
func BuildTestMessage(sensorName string, now time.Time, loc *time.Location) string {
	sensor := sensorName
	if sensor == "" {
		sensor = "Temperature Monitor"
	}
	return fmt.Sprintf("🔧 Test notification from %s at %s.", sensor, formatTimestamp(now, loc))
}

func formatTimestamp(ts time.Time, loc *time.Location) string {
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts.Format(time.RFC3339)
}
