// Package models contains domain types for the Grid Monitor Dashboard.
package models

import "time"

// VoltageReading is a three-phase voltage sample from one grid sensor.
// Field names follow the upstream REST wire format; the GraphQL path is
// normalized onto this same shape so consumers never see which transport
// served a call.
type VoltageReading struct {
	ID        int64     `json:"id,omitempty"`
	SensorID  string    `json:"sensor_id"`
	Location  string    `json:"location"`
	VoltageL1 float64   `json:"voltage_l1"`
	VoltageL2 float64   `json:"voltage_l2"`
	VoltageL3 float64   `json:"voltage_l3"`
	Frequency float64   `json:"frequency"`
	Timestamp time.Time `json:"timestamp"`
}

// PowerQualityMetric is one power-quality analysis sample.
type PowerQualityMetric struct {
	ID               int64     `json:"id,omitempty"`
	SensorID         string    `json:"sensor_id"`
	Location         string    `json:"location"`
	THDVoltage       float64   `json:"thd_voltage"`
	THDCurrent       float64   `json:"thd_current"`
	PowerFactor      float64   `json:"power_factor"`
	VoltageImbalance float64   `json:"voltage_imbalance"`
	FlickerSeverity  float64   `json:"flicker_severity"`
	Timestamp        time.Time `json:"timestamp"`
}
