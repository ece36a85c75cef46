// Package pool implements the Agent Pool: a registry and load balancer over
// decision providers. Providers register under a role; requests for a role
// rotate round-robin among its providers, broadcasts fan out to all of them.
//
// Round-robin is used instead of random or sticky selection because it gives
// deterministic, testable load distribution with O(1) state. The rotation
// cursor is the only state shared between concurrent requests for the same
// role; it is guarded by the pool mutex, and provider invocation always
// happens outside that lock so a slow provider never serializes the pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/logging"
)

// ErrNoProvider is returned by Register paths and reported (as a failure
// response) by Request when a role has no registered provider.
var ErrNoProvider = errors.New("no provider registered for role")

// ErrDuplicateName rejects registration of a second provider with a name
// already in use.
var ErrDuplicateName = errors.New("provider name already registered")

// RoleHealth summarizes one role's providers.
type RoleHealth struct {
	Registered int `json:"registered"`
	Connected  int `json:"connected"`
}

// Options configures a Pool.
type Options struct {
	Logger logging.Logger
}

// Pool routes requests to registered providers with per-role round-robin
// rotation. All methods are safe for concurrent use.
type Pool struct {
	logger logging.Logger

	mu        sync.Mutex
	providers map[core.Role][]core.Provider
	cursor    map[core.Role]int
	requests  uint64
}

// New constructs an empty pool.
func New(optFns ...func(o *Options)) *Pool {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pool{
		logger:    opts.Logger,
		providers: make(map[core.Role][]core.Provider),
		cursor:    make(map[core.Role]int),
	}
}

// Register connects the provider and appends it to its role's rotation. A
// failed Connect fails the registration; the provider is not added.
func (p *Pool) Register(ctx context.Context, prov core.Provider) error {
	p.mu.Lock()
	dup := p.hasNameLocked(prov.Role(), prov.Name())
	p.mu.Unlock()
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicateName, prov.Name())
	}

	// Connect outside the lock; it may probe a remote API.
	if err := prov.Connect(ctx); err != nil {
		return fmt.Errorf("connect provider %s: %w", prov.Name(), err)
	}

	p.mu.Lock()
	// A concurrent Register may have claimed the name while Connect ran.
	if p.hasNameLocked(prov.Role(), prov.Name()) {
		p.mu.Unlock()
		_ = prov.Disconnect(ctx)
		return fmt.Errorf("%w: %s", ErrDuplicateName, prov.Name())
	}
	p.providers[prov.Role()] = append(p.providers[prov.Role()], prov)
	p.mu.Unlock()
	p.logger.Info("provider registered", "name", prov.Name(), "role", string(prov.Role()))
	return nil
}

func (p *Pool) hasNameLocked(role core.Role, name string) bool {
	for _, existing := range p.providers[role] {
		if existing.Name() == name {
			return true
		}
	}
	return false
}

// Unregister disconnects the named provider and removes it from its role's
// rotation.
func (p *Pool) Unregister(ctx context.Context, name string) error {
	p.mu.Lock()
	var found core.Provider
	for role, provs := range p.providers {
		for i, prov := range provs {
			if prov.Name() == name {
				found = prov
				p.providers[role] = append(provs[:i], provs[i+1:]...)
				if len(p.providers[role]) == 0 {
					delete(p.providers, role)
					delete(p.cursor, role)
				} else if p.cursor[role] >= len(p.providers[role]) {
					p.cursor[role] = 0
				}
				break
			}
		}
		if found != nil {
			break
		}
	}
	p.mu.Unlock()

	if found == nil {
		return fmt.Errorf("provider %s not registered", name)
	}
	if err := found.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect provider %s: %w", name, err)
	}
	p.logger.Info("provider unregistered", "name", name)
	return nil
}

// next picks the provider for a role and advances the rotation cursor. The
// cursor moves on every call regardless of the eventual outcome, so load
// distribution stays fair even when some providers fail.
func (p *Pool) next(role core.Role) (core.Provider, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	provs := p.providers[role]
	if len(provs) == 0 {
		return nil, false
	}
	idx := p.cursor[role] % len(provs)
	p.cursor[role] = (idx + 1) % len(provs)
	p.requests++
	return provs[idx], true
}

// Request routes one request to the next provider for the role and returns
// its response unchanged. An empty role rotation yields a structured
// "no_provider" failure response rather than an error, so callers can fall
// back to a deterministic path uniformly.
func (p *Pool) Request(ctx context.Context, role core.Role, action string, reqContext map[string]any) core.Response {
	req := core.NewRequest(role, action, reqContext)
	prov, ok := p.next(role)
	if !ok {
		p.logger.Warn("no provider for role", "role", string(role), "action", action)
		return core.FailureResponse(req, "no_provider", ErrNoProvider.Error())
	}
	resp := prov.Handle(ctx, req)
	resp.Metadata.Provider = prov.Name()
	return resp
}

// Broadcast sends the action to every provider currently registered for the
// role concurrently and collects all responses, including failures: one
// provider's failure never short-circuits the others.
func (p *Pool) Broadcast(ctx context.Context, role core.Role, action string, reqContext map[string]any) []core.Response {
	p.mu.Lock()
	provs := make([]core.Provider, len(p.providers[role]))
	copy(provs, p.providers[role])
	p.mu.Unlock()

	if len(provs) == 0 {
		return nil
	}

	responses := make([]core.Response, len(provs))
	var wg sync.WaitGroup
	for i, prov := range provs {
		wg.Add(1)
		go func(i int, prov core.Provider) {
			defer wg.Done()
			req := core.NewRequest(role, action, reqContext)
			resp := prov.Handle(ctx, req)
			resp.Metadata.Provider = prov.Name()
			responses[i] = resp
		}(i, prov)
	}
	wg.Wait()
	return responses
}

// Health reports per-role registered and connected provider counts.
func (p *Pool) Health() map[core.Role]RoleHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[core.Role]RoleHealth, len(p.providers))
	for role, provs := range p.providers {
		h := RoleHealth{Registered: len(provs)}
		for _, prov := range provs {
			if prov.Connected() {
				h.Connected++
			}
		}
		out[role] = h
	}
	return out
}

// RequestCount returns the total number of requests routed so far.
func (p *Pool) RequestCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Shutdown disconnects every provider and empties the pool.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	var all []core.Provider
	for _, provs := range p.providers {
		all = append(all, provs...)
	}
	p.providers = make(map[core.Role][]core.Provider)
	p.cursor = make(map[core.Role]int)
	p.mu.Unlock()

	for _, prov := range all {
		if err := prov.Disconnect(ctx); err != nil {
			p.logger.Warn("provider disconnect failed", "name", prov.Name(), "error", err)
		}
	}
}
