// internal/provider/client.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"herdvest-agent/internal/util"

	"github.com/gorilla/websocket"
)

// Client is the wallet provider boundary: request/response calls in the
// de facto {method, params} -> result | {code, message} shape, plus an
// optional push-event stream.
type Client interface {
	// Installed is a pure capability probe with no side effects.
	Installed(ctx context.Context) bool
	// Request performs one provider call. A provider-level rejection is
	// returned as *RPCError; transport failures wrap util.ErrNetworkFailure.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	// Events opens the push-event stream. The returned channel closes when
	// the stream dies or ctx is canceled; the caller falls back to polling.
	Events(ctx context.Context) (<-chan Event, error)
}

// HTTPClient talks to a provider over HTTP, with events over websocket.
type HTTPClient struct {
	url       string
	eventsURL string
	http      *http.Client
	logger    *slog.Logger
	nextID    atomic.Int64
}

// NewHTTPClient creates a provider client. An empty url means no provider
// is installed; every call then fails with util.ErrNotInstalled.
func NewHTTPClient(url, eventsURL string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		url:       url,
		eventsURL: eventsURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// Installed probes the provider endpoint with a lightweight read call.
func (c *HTTPClient) Installed(ctx context.Context) bool {
	if c.url == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.Request(probeCtx, "web3_clientVersion", nil)
	if err != nil {
		// A structured provider error still proves something is listening.
		return IsCode(err, CodeUnsupportedMethod)
	}
	return true
}

func (c *HTTPClient) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.url == "" {
		return nil, util.ErrNotInstalled
	}

	body, err := json.Marshal(rpcRequest{ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: malformed provider response: %v", util.ErrNetworkFailure, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Events dials the provider's websocket event endpoint and forwards frames
// until the connection drops or ctx is canceled.
func (c *HTTPClient) Events(ctx context.Context) (<-chan Event, error) {
	if c.eventsURL == "" {
		return nil, fmt.Errorf("%w: no event stream endpoint configured", util.ErrNetworkFailure)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.eventsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial provider event stream: %v", util.ErrNetworkFailure, err)
	}

	events := make(chan Event, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("provider event stream closed", "error", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
