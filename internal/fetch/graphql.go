package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

// GraphQLClient wraps the single /graphql endpoint. It is re-armable: the
// session layer calls SetToken whenever the credential changes, and every
// request after that carries the new bearer header. Requests before the
// first SetToken fail with ErrNotInitialized.
type GraphQLClient struct {
	client *graphql.Client
	logger *zap.Logger

	mu    sync.RWMutex
	token string
	armed bool
}

// NewGraphQLClient creates a GraphQL transport bound to endpoint.
func NewGraphQLClient(endpoint string, timeout time.Duration, logger *zap.Logger) *GraphQLClient {
	httpClient := &http.Client{Timeout: timeout}
	return &GraphQLClient{
		client: graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient)),
		logger: logger,
	}
}

// SetToken (re)arms the client with a bearer token. An empty token arms the
// client for unauthenticated requests. Safe to call repeatedly.
func (c *GraphQLClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.armed = true
	c.mu.Unlock()
}

// Request executes a named query. vars may be nil. out receives the decoded
// data payload. An upstream unauthorized failure surfaces as ErrTokenExpired,
// matching the REST transport's 401 mapping; anything else propagates.
func (c *GraphQLClient) Request(ctx context.Context, operation, document string, vars map[string]any, out any) error {
	c.mu.RLock()
	token, armed := c.token, c.armed
	c.mu.RUnlock()

	if !armed {
		return ErrNotInitialized
	}

	req := graphql.NewRequest(document)
	for name, value := range vars {
		req.Var(name, value)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := c.client.Run(ctx, req, out); err != nil {
		if isUnauthorized(err) {
			c.logger.Warn("graphql request unauthorized", zap.String("operation", operation))
			return ErrTokenExpired
		}
		return fmt.Errorf("graphql %s: %w", operation, err)
	}
	return nil
}

// Mutate executes a named mutation. No separate semantics from Request.
func (c *GraphQLClient) Mutate(ctx context.Context, operation, document string, vars map[string]any, out any) error {
	return c.Request(ctx, operation, document, vars, out)
}

// isUnauthorized detects the 401-equivalent shapes the backend produces:
// a raw 401 status from the transport, or a GraphQL error message from the
// JWT layer.
func isUnauthorized(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "not authenticated") ||
		strings.Contains(msg, "could not validate credentials")
}
