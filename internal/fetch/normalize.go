package fetch

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/grid-monitor/dashboard/internal/models"
)

// Response normalization: pure mapping from the GraphQL schema's camelCase
// payloads onto the REST wire shapes, so downstream consumers never learn
// which transport served a call. Mappers are total — absent optional fields
// default instead of failing — and deterministic. Shape guards run before
// any element mapping so upstream schema drift fails with ErrInvalidData
// rather than a panic.

type gqlVoltageReading struct {
	ID        int64   `json:"id"`
	SensorID  string  `json:"sensorId"`
	Location  string  `json:"location"`
	VoltageL1 float64 `json:"voltageL1"`
	VoltageL2 float64 `json:"voltageL2"`
	VoltageL3 float64 `json:"voltageL3"`
	Frequency float64 `json:"frequency"`
	Timestamp string  `json:"timestamp"`
}

type gqlPowerQuality struct {
	ID               int64   `json:"id"`
	SensorID         string  `json:"sensorId"`
	Location         string  `json:"location"`
	THDVoltage       float64 `json:"thdVoltage"`
	THDCurrent       float64 `json:"thdCurrent"`
	PowerFactor      float64 `json:"powerFactor"`
	VoltageImbalance float64 `json:"voltageImbalance"`
	FlickerSeverity  float64 `json:"flickerSeverity"`
	Timestamp        string  `json:"timestamp"`
}

type gqlFaultEvent struct {
	ID         int64   `json:"id"`
	EventID    string  `json:"eventId"`
	Severity   string  `json:"severity"`
	EventType  string  `json:"eventType"`
	Location   string  `json:"location"`
	Timestamp  string  `json:"timestamp"`
	DurationMs int64   `json:"durationMs"`
	Resolved   bool    `json:"resolved"`
	ResolvedAt *string `json:"resolvedAt"`
}

type gqlSensorStats struct {
	TotalSensors      int     `json:"totalSensors"`
	ActiveSensors     int     `json:"activeSensors"`
	OfflineSensors    int     `json:"offlineSensors"`
	FaultCount24h     int     `json:"faultCount24h"`
	ViolationCount24h int     `json:"violationCount24h"`
	AvgVoltage        float64 `json:"avgVoltage"`
	AvgPowerFactor    float64 `json:"avgPowerFactor"`
	MinVoltage        float64 `json:"minVoltage"`
	MaxVoltage        float64 `json:"maxVoltage"`
}

// listShaped reports whether raw holds a JSON array.
func listShaped(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// parseTimestamp decodes the backend's DateTime serializations. A value
// that cannot be parsed maps to the zero time rather than an error.
func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func normalizeVoltage(raw json.RawMessage) ([]models.VoltageReading, error) {
	if raw == nil {
		return nil, invalidData("voltageReadings collection missing")
	}
	if !listShaped(raw) {
		return nil, invalidData("voltageReadings is not a list")
	}
	var rows []gqlVoltageReading
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, invalidData("voltageReadings: %v", err)
	}

	readings := make([]models.VoltageReading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, models.VoltageReading{
			ID:        row.ID,
			SensorID:  row.SensorID,
			Location:  row.Location,
			VoltageL1: row.VoltageL1,
			VoltageL2: row.VoltageL2,
			VoltageL3: row.VoltageL3,
			Frequency: row.Frequency,
			Timestamp: parseTimestamp(row.Timestamp),
		})
	}
	return readings, nil
}

func normalizePowerQuality(raw json.RawMessage) ([]models.PowerQualityMetric, error) {
	if raw == nil {
		return nil, invalidData("powerQuality collection missing")
	}
	if !listShaped(raw) {
		return nil, invalidData("powerQuality is not a list")
	}
	var rows []gqlPowerQuality
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, invalidData("powerQuality: %v", err)
	}

	metrics := make([]models.PowerQualityMetric, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, models.PowerQualityMetric{
			ID:               row.ID,
			SensorID:         row.SensorID,
			Location:         row.Location,
			THDVoltage:       row.THDVoltage,
			THDCurrent:       row.THDCurrent,
			PowerFactor:      row.PowerFactor,
			VoltageImbalance: row.VoltageImbalance,
			FlickerSeverity:  row.FlickerSeverity,
			Timestamp:        parseTimestamp(row.Timestamp),
		})
	}
	return metrics, nil
}

func normalizeFaults(raw json.RawMessage) ([]models.FaultEvent, error) {
	if raw == nil {
		return nil, invalidData("faultEvents collection missing")
	}
	if !listShaped(raw) {
		return nil, invalidData("faultEvents is not a list")
	}
	var rows []gqlFaultEvent
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, invalidData("faultEvents: %v", err)
	}

	faults := make([]models.FaultEvent, 0, len(rows))
	for _, row := range rows {
		fault := models.FaultEvent{
			ID:         row.ID,
			EventID:    row.EventID,
			Severity:   row.Severity,
			FaultType:  row.EventType,
			Location:   row.Location,
			Timestamp:  parseTimestamp(row.Timestamp),
			DurationMs: row.DurationMs,
			Resolved:   row.Resolved,
		}
		if row.ResolvedAt != nil {
			resolvedAt := parseTimestamp(*row.ResolvedAt)
			fault.ResolvedAt = &resolvedAt
		}
		faults = append(faults, fault)
	}
	return faults, nil
}

func normalizeStats(stats *gqlSensorStats) (*models.FleetStats, error) {
	if stats == nil {
		return nil, invalidData("sensorStats missing")
	}
	return &models.FleetStats{
		TotalSensors:      stats.TotalSensors,
		ActiveSensors:     stats.ActiveSensors,
		OfflineSensors:    stats.OfflineSensors,
		TotalFaults24h:    stats.FaultCount24h,
		QualityViolations: stats.ViolationCount24h,
		AvgVoltage:        stats.AvgVoltage,
		AvgPowerFactor:    stats.AvgPowerFactor,
		MinVoltage:        stats.MinVoltage,
		MaxVoltage:        stats.MaxVoltage,
	}, nil
}
