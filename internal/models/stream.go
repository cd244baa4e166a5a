package models

// LiveEnvelope is one message from the backend's SSE stream. Any of the
// three deltas may be absent; an envelope with none is valid and ignored.
type LiveEnvelope struct {
	Timestamp    string              `json:"timestamp"`
	Voltage      *VoltageReading     `json:"voltage,omitempty"`
	PowerQuality *PowerQualityMetric `json:"power_quality,omitempty"`
	Fault        *FaultEvent         `json:"fault,omitempty"`
}

// LiveSnapshot is the dashboard-facing view of the bounded live-data
// windows maintained by the session controller.
type LiveSnapshot struct {
	Voltage      []VoltageReading     `json:"voltage"`
	PowerQuality []PowerQualityMetric `json:"power_quality"`
	Faults       []FaultEvent         `json:"faults"` // newest first
}
