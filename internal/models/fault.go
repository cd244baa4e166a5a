package models

import "time"

// FaultEvent is a grid fault record. The REST path returns this shape
// directly; the GraphQL path is translated onto it (eventType becomes
// fault_type, durationMs becomes duration_ms, and so on).
//
// SensorID, VoltageDrop and Description only appear on REST responses;
// EventID and ResolvedAt only on GraphQL ones. Absence of either set is
// not an error.
type FaultEvent struct {
	ID          int64      `json:"id,omitempty"`
	EventID     string     `json:"event_id,omitempty"`
	SensorID    string     `json:"sensor_id,omitempty"`
	Severity    string     `json:"severity"`
	FaultType   string     `json:"fault_type"`
	Location    string     `json:"location"`
	Timestamp   time.Time  `json:"timestamp"`
	DurationMs  int64      `json:"duration_ms"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	VoltageDrop *float64   `json:"voltage_drop,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Fault severities as emitted by the backend.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)
