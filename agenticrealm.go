// Package agenticrealm provides a high-level façade over the orchestration
// engine, agent pool, scenario registry and instance store, enabling rapid
// construction of live, procedurally generated worlds. Most applications
// interact with this package by:
//  1. Creating a Realm via New() (optionally overriding default in-memory services)
//  2. Registering one or more decision providers (rule-based or LLM-backed)
//  3. Creating instances, joining player agents and submitting actions
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply the SQLite store and a
// structured logger.
package agenticrealm

import (
	"context"
	"time"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/engine"
	"github.com/d-andres/AgenticRealm/logging"
	"github.com/d-andres/AgenticRealm/pool"
	"github.com/d-andres/AgenticRealm/scenario"
	"github.com/d-andres/AgenticRealm/store"
	"github.com/d-andres/AgenticRealm/world"
)

// Options configures the Realm instance.
type Options struct {
	// InstanceStore persists instances across restarts (defaults to
	// in-memory).
	InstanceStore store.InstanceStore

	// Templates is the scenario template registry. The built-in market
	// square template is always added when absent.
	Templates *scenario.Registry

	// TickInterval is the per-instance tick cadence.
	TickInterval time.Duration
	// DispatchTimeout bounds every outbound AI call.
	DispatchTimeout time.Duration
	// AutonomousCadence is the idle-dispatch period in ticks.
	AutonomousCadence uint64

	// Seed fixes the engine's action RNG for reproducible runs.
	Seed int64

	// Logger (defaults to a text slog logger at info level).
	Logger *logging.RealmLogger
}

// Realm is the high-level façade aggregating the engine, pool, bus and
// stores.
type Realm struct {
	opts   Options
	pool   *pool.Pool
	bus    *core.EventBus
	engine *engine.Engine
}

// New creates a Realm with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Realm, error) {
	opts := Options{
		InstanceStore:     store.NewInMemoryStore(),
		Templates:         scenario.NewRegistry(),
		TickInterval:      time.Second,
		DispatchTimeout:   8 * time.Second,
		AutonomousCadence: 30,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.DefaultConfig())
	}
	if _, ok := opts.Templates.Get("market_square"); !ok {
		if err := opts.Templates.Add(scenario.MarketSquareTemplate()); err != nil {
			return nil, err
		}
	}

	p := pool.New(func(o *pool.Options) { o.Logger = opts.Logger.WithComponent("pool") })
	bus := core.NewEventBus()

	eng, err := engine.New(func(o *engine.Options) {
		o.Pool = p
		o.Store = opts.InstanceStore
		o.Bus = bus
		o.Templates = opts.Templates
		o.Logger = opts.Logger
		o.TickInterval = opts.TickInterval
		o.DispatchTimeout = opts.DispatchTimeout
		o.AutonomousCadence = opts.AutonomousCadence
		o.Seed = opts.Seed
	})
	if err != nil {
		return nil, err
	}

	return &Realm{opts: opts, pool: p, bus: bus, engine: eng}, nil
}

// RegisterProvider connects and registers a decision provider with the pool.
func (r *Realm) RegisterProvider(ctx context.Context, prov core.Provider) error {
	return r.pool.Register(ctx, prov)
}

// UnregisterProvider disconnects and removes a provider by name.
func (r *Realm) UnregisterProvider(ctx context.Context, name string) error {
	return r.pool.Unregister(ctx, name)
}

// PoolHealth reports per-role registered/connected provider counts.
func (r *Realm) PoolHealth() map[core.Role]pool.RoleHealth { return r.pool.Health() }

// Dispatch gives collaborators outside the tick loop direct pool access
// (e.g. ad-hoc generation or judging).
func (r *Realm) Dispatch(ctx context.Context, role core.Role, action string, reqContext map[string]any) core.Response {
	return r.pool.Request(ctx, role, action, reqContext)
}

// CreateInstance creates a pending instance and starts asynchronous
// generation; poll InstanceStatus for pending → generating → active.
func (r *Realm) CreateInstance(ctx context.Context, templateID string) (string, error) {
	return r.engine.CreateInstance(ctx, templateID)
}

// InstanceStatus reports an instance's lifecycle state.
func (r *Realm) InstanceStatus(instanceID string) (scenario.Status, error) {
	return r.engine.InstanceStatus(instanceID)
}

// GenerationFailure returns why a stopped instance failed to generate, nil
// otherwise.
func (r *Realm) GenerationFailure(instanceID string) error {
	return r.engine.GenerationFailure(instanceID)
}

// JoinInstance adds a player agent to an active instance.
func (r *Realm) JoinInstance(ctx context.Context, instanceID, agentID string) error {
	return r.engine.JoinInstance(ctx, instanceID, agentID)
}

// SubmitAction applies one player action synchronously and returns its
// deterministic outcome. It never waits on an AI dispatch.
func (r *Realm) SubmitAction(instanceID, agentID string, kind scenario.ActionKind, params map[string]any) (*engine.Outcome, error) {
	return r.engine.SubmitAction(instanceID, agentID, kind, params)
}

// WorldSnapshot returns a detached copy of an instance's world.
func (r *Realm) WorldSnapshot(instanceID string) (*world.Snapshot, error) {
	return r.engine.WorldSnapshot(instanceID)
}

// StopInstance terminally stops an instance and persists a final snapshot.
func (r *Realm) StopInstance(ctx context.Context, instanceID string) error {
	return r.engine.StopInstance(ctx, instanceID)
}

// DeleteInstance stops an instance and removes it from the registry and the
// store, leaving no durable record.
func (r *Realm) DeleteInstance(ctx context.Context, instanceID string) error {
	return r.engine.DeleteInstance(ctx, instanceID)
}

// Resume restarts every instance the store reports active. Call once on
// process start, before serving traffic.
func (r *Realm) Resume(ctx context.Context) error { return r.engine.Resume(ctx) }

// Shutdown stops all tick loops, persists snapshots, disconnects providers
// and closes the store.
func (r *Realm) Shutdown(ctx context.Context) error {
	err := r.engine.Shutdown(ctx)
	if cerr := r.opts.InstanceStore.Close(); err == nil {
		err = cerr
	}
	return err
}
