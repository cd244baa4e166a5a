// Package stream maintains the live-update channel: one long-lived
// Server-Sent Events subscription per authenticated session, independent
// of the REST/GraphQL polling choice.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/models"
)

// Handler receives each decoded live envelope in arrival order.
type Handler func(env models.LiveEnvelope)

// Subscription is a cancellable handle on one open SSE connection.
// Close is safe to call repeatedly; only the first call tears the
// connection down.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close terminates the subscription. Idempotent by contract, not by
// accident: repeated closes are no-ops.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Done is closed when the reader goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe opens the SSE stream and dispatches envelopes to onMessage
// from a background goroutine until Close is called or the upstream ends
// the stream. The token travels as a query parameter for EventSource
// parity with the browser client. Malformed event payloads are logged and
// dropped; they never terminate the channel.
func Subscribe(ctx context.Context, streamURL, token string, onMessage Handler, logger *zap.Logger) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	// No client timeout: the connection is expected to stay open until
	// cancelled.
	client := resty.New().SetDoNotParseResponse(true)

	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("token", token).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		Get(streamURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() == http.StatusUnauthorized {
		body.Close()
		cancel()
		return nil, fetch.ErrTokenExpired
	}
	if resp.StatusCode() != http.StatusOK {
		body.Close()
		cancel()
		return nil, &fetch.HTTPError{Status: resp.StatusCode()}
	}

	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go readLoop(body, onMessage, logger, sub.done)

	return sub, nil
}

// readLoop consumes the event stream line by line. Events arrive as one
// or more "data:" lines terminated by a blank line.
func readLoop(body io.ReadCloser, onMessage Handler, logger *zap.Logger, done chan struct{}) {
	defer close(done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				dispatch(data.String(), onMessage, logger)
				data.Reset()
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Comment lines (":") and "event:"/"id:" fields are ignored; the
		// backend only emits default "message" events.
	}

	if data.Len() > 0 {
		dispatch(data.String(), onMessage, logger)
	}

	if err := scanner.Err(); err != nil && !isClosedError(err) {
		logger.Warn("live stream ended", zap.Error(err))
	}
}

func dispatch(payload string, onMessage Handler, logger *zap.Logger) {
	var env models.LiveEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Warn("dropping malformed live update", zap.Error(err))
		return
	}
	onMessage(env)
}

func isClosedError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "use of closed network connection")
}
