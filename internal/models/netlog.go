package models

import "time"

// RequestKind identifies how a fetch operation went over the wire.
type RequestKind string

const (
	RequestKindGet     RequestKind = "GET"
	RequestKindPost    RequestKind = "POST"
	RequestKindGraphQL RequestKind = "GRAPHQL"
)

// RequestOutcome is the terminal state of an instrumented fetch.
type RequestOutcome string

const (
	OutcomeSuccess RequestOutcome = "success"
	OutcomeError   RequestOutcome = "error"
)

// RequestRecord is one entry in the dashboard's network log. Records are
// created by the fetcher around every transport call, never mutated
// afterwards, and evicted oldest-first beyond the log's cap.
type RequestRecord struct {
	ID          int64          `json:"id"`
	Endpoint    string         `json:"endpoint"` // REST path or GraphQL operation name
	Kind        RequestKind    `json:"kind"`
	Outcome     RequestOutcome `json:"outcome"`
	RequestData any            `json:"request_data,omitempty"`
	Response    string         `json:"response,omitempty"` // short summary, not the full body
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Timestamp   time.Time      `json:"timestamp"`
}
