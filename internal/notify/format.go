package notify

import (
	"fmt"
	"math"
	"strings"
)

const unknown = "—"

// FormatETA renders seconds as "4m 5s" or "45s", and "—" when unknown.
func FormatETA(seconds *float64) string {
	if seconds == nil || math.IsInf(*seconds, 0) || math.IsNaN(*seconds) {
		return unknown
	}
	s := math.Max(0, *seconds)
	m := int(s / 60)
	sec := int(math.Mod(s, 60))
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

// FormatDistance renders meters as kilometers with two decimals.
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatSpeed renders m/s as km/h, "—" when unknown.
func FormatSpeed(mps *float64) string {
	if mps == nil {
		return unknown
	}
	return fmt.Sprintf("%.1f km/h", *mps*3.6)
}

// AlertsSummary lists fired thresholds, e.g. "Alerts: 5m, 3m".
func AlertsSummary(fired []int) string {
	if len(fired) == 0 {
		return "Alerts: none"
	}
	labels := make([]string, 0, len(fired))
	for i := len(fired) - 1; i >= 0; i-- {
		labels = append(labels, ThresholdLabel(fired[i]))
	}
	return "Alerts: " + strings.Join(labels, ", ")
}
