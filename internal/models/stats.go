package models

import "time"

// FleetStats is the aggregated fleet-wide statistics record.
//
// The two transports disagree on coverage: REST omits min/max voltage,
// GraphQL may omit offline_sensors. Optional fields that a transport does
// not provide stay at their zero value; that is not a fetch failure.
type FleetStats struct {
	TotalSensors      int     `json:"total_sensors"`
	ActiveSensors     int     `json:"active_sensors"`
	OfflineSensors    int     `json:"offline_sensors,omitempty"`
	TotalFaults24h    int     `json:"total_faults_24h"`
	QualityViolations int     `json:"quality_violations"`
	AvgVoltage        float64 `json:"avg_voltage"`
	MinVoltage        float64 `json:"min_voltage,omitempty"`
	MaxVoltage        float64 `json:"max_voltage,omitempty"`
	AvgPowerFactor    float64 `json:"avg_power_factor,omitempty"`
}

// SensorStatus is the per-sensor health snapshot. REST only; there is no
// GraphQL equivalent for this resource.
type SensorStatus struct {
	SensorID             string    `json:"sensor_id"`
	SensorType           string    `json:"sensor_type"`
	Location             string    `json:"location"`
	LastReadingTimestamp time.Time `json:"last_reading_timestamp"`
	IsOperational        bool      `json:"is_operational"`
	SecondsSinceUpdate   int       `json:"seconds_since_update"`
	LatestValue          float64   `json:"latest_value"`
}
