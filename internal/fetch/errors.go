// Package fetch is the unified data-fetching layer of the dashboard: a
// REST transport, a GraphQL transport, and an orchestrator that hides the
// difference between them behind one set of per-resource operations.
package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by both transports. Callers branch on these with
// errors.Is; the concrete transport failure is carried in the wrap chain.
var (
	// ErrTokenExpired signals that authorization has lapsed. A REST 401
	// and a GraphQL unauthorized error both surface as exactly this value
	// so the session layer can force re-authentication regardless of the
	// active transport.
	ErrTokenExpired = errors.New("token expired")

	// ErrNotInitialized is returned by the GraphQL client when a request
	// is attempted before SetToken has ever been called.
	ErrNotInitialized = errors.New("graphql client not initialized")

	// ErrInvalidData signals that an upstream response violated the
	// schema contract (collection absent or not list-shaped). It is
	// raised before any element mapping runs.
	ErrInvalidData = errors.New("invalid upstream data")
)

// HTTPError is a non-2xx, non-401 REST response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// invalidData wraps ErrInvalidData with a description of the violated field.
func invalidData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}
