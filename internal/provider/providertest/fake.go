// internal/provider/providertest/fake.go

// Package providertest provides a scripted in-memory wallet provider for
// tests.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/util"
)

// Responder produces the result of one provider method call.
type Responder func(params any) (json.RawMessage, error)

// Fake implements provider.Client with per-method scripted responses and
// a pushable event stream.
type Fake struct {
	mu         sync.Mutex
	installed  bool
	responders map[string]Responder
	calls      map[string]int
	events     chan provider.Event
	streamOff  bool
}

// NewFake creates an installed provider with no scripted methods; every
// unscripted call fails with an unsupported-method error.
func NewFake() *Fake {
	return &Fake{
		installed:  true,
		responders: make(map[string]Responder),
		calls:      make(map[string]int),
		events:     make(chan provider.Event, 16),
	}
}

// SetInstalled toggles the capability probe.
func (f *Fake) SetInstalled(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = v
}

// DisableEvents makes the push-event stream unavailable, forcing callers
// onto their poll backstop.
func (f *Fake) DisableEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamOff = true
}

// Handle scripts a method with a custom responder.
func (f *Fake) Handle(method string, r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[method] = r
}

// HandleResult scripts a method to return a fixed raw JSON result.
func (f *Fake) HandleResult(method, rawJSON string) {
	f.Handle(method, func(any) (json.RawMessage, error) {
		return json.RawMessage(rawJSON), nil
	})
}

// HandleError scripts a method to fail with a provider error code.
func (f *Fake) HandleError(method string, code int, message string) {
	f.Handle(method, func(any) (json.RawMessage, error) {
		return nil, &provider.RPCError{Code: code, Message: message}
	})
}

// Calls reports how many times a method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// PushEvent delivers a push notification to the event stream.
func (f *Fake) PushEvent(ev provider.Event) {
	f.events <- ev
}

func (f *Fake) Installed(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed
}

func (f *Fake) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	if !f.installed {
		f.mu.Unlock()
		return nil, util.ErrNotInstalled
	}
	f.calls[method]++
	r := f.responders[method]
	f.mu.Unlock()

	if r == nil {
		return nil, &provider.RPCError{Code: provider.CodeUnsupportedMethod, Message: "method not supported: " + method}
	}
	return r(params)
}

func (f *Fake) Events(ctx context.Context) (<-chan provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamOff {
		return nil, errors.New("event stream unavailable")
	}
	return f.events, nil
}
