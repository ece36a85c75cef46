// Package testutil provides scripted decision providers for tests: fully
// deterministic, no upstream, with call recording.
package testutil

import (
	"context"
	"sync"

	"github.com/d-andres/AgenticRealm/core"
)

// HandleFunc answers one request in a scripted provider.
type HandleFunc func(ctx context.Context, req core.Request) core.Response

// ScriptedProvider is a core.Provider whose behavior is supplied per test.
// It records every handled request and counts calls so assertions can check
// routing and fairness.
type ScriptedProvider struct {
	ProviderName string
	ProviderRole core.Role
	OnHandle     HandleFunc

	// FailConnect makes Connect return an error.
	FailConnect error

	mu      sync.Mutex
	conn    bool
	handled []core.Request
}

// NewScripted builds a provider that succeeds every request with the given
// static result unless OnHandle is replaced.
func NewScripted(name string, role core.Role, result map[string]any) *ScriptedProvider {
	p := &ScriptedProvider{ProviderName: name, ProviderRole: role}
	p.OnHandle = func(_ context.Context, req core.Request) core.Response {
		return core.Response{
			RequestID: req.ID,
			Role:      req.Role,
			Action:    req.Action,
			Success:   true,
			Result:    result,
			Metadata:  core.Metadata{Provider: name},
		}
	}
	return p
}

// Name implements core.Provider.
func (p *ScriptedProvider) Name() string { return p.ProviderName }

// Role implements core.Provider.
func (p *ScriptedProvider) Role() core.Role { return p.ProviderRole }

// Connect implements core.Provider.
func (p *ScriptedProvider) Connect(context.Context) error {
	if p.FailConnect != nil {
		return p.FailConnect
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = true
	return nil
}

// Disconnect implements core.Provider.
func (p *ScriptedProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = false
	return nil
}

// Connected implements core.Provider.
func (p *ScriptedProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Listen implements core.Provider.
func (p *ScriptedProvider) Listen(ctx context.Context) { <-ctx.Done() }

// Handle implements core.Provider, recording the request before delegating.
func (p *ScriptedProvider) Handle(ctx context.Context, req core.Request) core.Response {
	p.mu.Lock()
	p.handled = append(p.handled, req)
	p.mu.Unlock()
	return p.OnHandle(ctx, req)
}

// Calls returns how many requests this provider has handled.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handled)
}

// Handled returns a copy of every request seen so far.
func (p *ScriptedProvider) Handled() []core.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Request, len(p.handled))
	copy(out, p.handled)
	return out
}

// FailingProvider always responds with a structured failure.
func FailingProvider(name string, role core.Role) *ScriptedProvider {
	p := &ScriptedProvider{ProviderName: name, ProviderRole: role}
	p.OnHandle = func(_ context.Context, req core.Request) core.Response {
		return core.FailureResponse(req, "upstream_error", "scripted failure")
	}
	return p
}

// BlockingProvider blocks in Handle until the request context is cancelled,
// then reports a timeout failure. Used to exercise dispatch deadlines.
func BlockingProvider(name string, role core.Role, release <-chan struct{}) *ScriptedProvider {
	p := &ScriptedProvider{ProviderName: name, ProviderRole: role}
	p.OnHandle = func(ctx context.Context, req core.Request) core.Response {
		select {
		case <-ctx.Done():
			return core.FailureResponse(req, "timeout", ctx.Err().Error())
		case <-release:
			return core.Response{
				RequestID: req.ID, Role: req.Role, Action: req.Action,
				Success: true,
				Result:  map[string]any{"trust_delta": 0.2, "mood": "late"},
			}
		}
	}
	return p
}
