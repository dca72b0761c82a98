package domain

import "time"

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is one operator-facing alert row.
type Alert struct {
	ID           int64
	CreatedAt    time.Time
	Message      string
	Severity     AlertSeverity
	Metadata     map[string]any
	Acknowledged bool
}
