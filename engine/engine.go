// Package engine runs the live worlds: it owns the registry of scenario
// instances, drives one tick loop per instance, dispatches NPC decisions
// through the agent pool without ever blocking a player-facing call, and
// writes instances through to the store on every lifecycle transition.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/logging"
	"github.com/d-andres/AgenticRealm/pool"
	"github.com/d-andres/AgenticRealm/scenario"
	"github.com/d-andres/AgenticRealm/store"
	"github.com/d-andres/AgenticRealm/world"
)

// ErrInstanceNotFound is returned when the referenced instance is not in the
// registry.
var ErrInstanceNotFound = errors.New("engine: instance not found")

// Options configure an Engine.
type Options struct {
	Pool      *pool.Pool
	Store     store.InstanceStore
	Bus       *core.EventBus
	Templates *scenario.Registry
	Logger    *logging.RealmLogger

	// TickInterval is the cadence of each instance's tick loop.
	TickInterval time.Duration
	// DispatchTimeout bounds every outbound AI dispatch; on expiry the result
	// is discarded, never applied.
	DispatchTimeout time.Duration
	// AutonomousCadence is the tick period of the autonomous phase: every
	// Nth tick, NPCs untouched by reactions get an idle dispatch.
	AutonomousCadence uint64

	// Seed fixes the action RNG for reproducible runs; zero seeds from the
	// clock.
	Seed int64
}

type entry struct {
	inst   *scenario.Instance
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine orchestrates all live scenario instances in the process.
//
// Each instance runs its own goroutine and timer, so a slow AI call on one
// world never delays another. World state is only ever touched under the
// owning instance's lock; the engine holds no cross-instance lock.
type Engine struct {
	opts      Options
	generator *scenario.Generator
	logger    *logging.RealmLogger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu        sync.RWMutex
	instances map[string]*entry

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New constructs an Engine. Pool, Store, Bus and Templates are required.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		TickInterval:      time.Second,
		DispatchTimeout:   8 * time.Second,
		AutonomousCadence: 30,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Pool == nil || opts.Store == nil || opts.Bus == nil || opts.Templates == nil {
		return nil, fmt.Errorf("engine: pool, store, bus and templates are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.DefaultConfig())
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:       opts,
		generator:  scenario.NewGenerator(func(o *scenario.GeneratorOptions) { o.Logger = opts.Logger.WithComponent("generator") }),
		logger:     opts.Logger.WithComponent("engine"),
		rootCtx:    ctx,
		rootCancel: cancel,
		instances:  map[string]*entry{},
		rng:        rand.New(rand.NewSource(seed)),
	}
	return e, nil
}

// CreateInstance creates a pending instance for the template and kicks off
// generation in the background. It returns the instance id immediately;
// callers poll InstanceStatus for pending → generating → active (or stopped
// on generation failure).
func (e *Engine) CreateInstance(ctx context.Context, templateID string) (string, error) {
	tmpl, ok := e.opts.Templates.Get(templateID)
	if !ok {
		return "", fmt.Errorf("engine: unknown template %q", templateID)
	}
	inst := scenario.NewInstance(tmpl)

	e.mu.Lock()
	e.instances[inst.ID] = &entry{inst: inst, done: make(chan struct{})}
	e.mu.Unlock()

	if err := e.persist(ctx, inst, nil); err != nil {
		e.logger.Warn("persist failed on create", "instance", inst.ID, "error", err)
	}

	go e.generate(inst)
	return inst.ID, nil
}

// generate runs the staged generation protocol for a fresh instance and, on
// success, activates it and starts its tick loop.
func (e *Engine) generate(inst *scenario.Instance) {
	started := time.Now()
	inst.SetStatus(scenario.StatusGenerating)
	_ = e.persist(e.rootCtx, inst, nil)

	st, err := e.generator.Generate(e.rootCtx, inst.Template, e.PoolDecision())
	e.logger.LogGeneration(inst.Template.ID, time.Since(started), err)
	if err != nil {
		inst.SetGenerationError(err)
		_ = e.persist(e.rootCtx, inst, nil)
		return
	}

	inst.AttachState(st)
	if !inst.SetStatus(scenario.StatusActive) {
		// Stopped while generating; keep the record terminal.
		_ = e.persist(e.rootCtx, inst, nil)
		return
	}
	inst.Lock()
	snap, snapErr := st.Snapshot()
	inst.Unlock()
	if snapErr != nil {
		snap = nil
	}
	_ = e.persist(e.rootCtx, inst, snap)

	e.startLoop(inst)
}

// PoolDecision adapts the agent pool into the generator's DecisionFunc: each
// stage becomes one scenario_generator request, and a failure response
// becomes an error the generator can retry on.
func (e *Engine) PoolDecision() scenario.DecisionFunc {
	return func(ctx context.Context, stage string, stageCtx map[string]any) (map[string]any, error) {
		resp := e.opts.Pool.Request(ctx, core.RoleScenarioGenerator, stage, stageCtx)
		if !resp.Success {
			return nil, fmt.Errorf("stage %s: %v", stage, resp.Result["message"])
		}
		return resp.Result, nil
	}
}

// InstanceStatus reports the lifecycle state of an instance.
func (e *Engine) InstanceStatus(instanceID string) (scenario.Status, error) {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return "", err
	}
	return ent.inst.Status(), nil
}

// GenerationFailure returns the recorded generation error for a stopped
// instance, nil otherwise.
func (e *Engine) GenerationFailure(instanceID string) error {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return err
	}
	return ent.inst.GenerationErr()
}

// JoinInstance adds a player agent to an active instance, spawning its entity
// at the centre of the world with the template's starting gold.
func (e *Engine) JoinInstance(ctx context.Context, instanceID, agentID string) error {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return err
	}
	inst := ent.inst
	if inst.Status() != scenario.StatusActive {
		return &ActionError{Code: ReasonNotActive, Message: "instance is not active"}
	}

	inst.Lock()
	st := inst.State()
	if _, exists := st.Players[agentID]; exists {
		inst.Unlock()
		return nil
	}
	player := &world.PlayerAgent{
		Entity: world.Entity{
			ID:   agentID,
			Name: agentID,
			Pos:  world.Position{X: st.Width / 2, Y: st.Height / 2},
		},
		Gold:   inst.Template.StartingGold,
		Health: 100,
	}
	if err := st.AddPlayer(player); err != nil {
		inst.Unlock()
		return &ActionError{Code: ReasonInvalidParams, Message: err.Error()}
	}
	pos := player.Pos
	nearby := nearbyNPCIDs(st, pos, perceptionRadius)
	inst.Unlock()

	inst.AddPlayer(agentID)
	e.opts.Bus.Publish(withPos(core.NewGameEvent(inst.ID, core.KindSystemNotice, agentID, nearby,
		map[string]any{"notice": "player_joined"}), pos))
	e.logger.Info("player joined", "instance", inst.ID, "agent", agentID)

	if err := e.persist(ctx, inst, nil); err != nil {
		e.logger.Warn("persist failed on join", "instance", inst.ID, "error", err)
	}
	return nil
}

// StopInstance halts the tick loop, marks the instance stopped and persists a
// final snapshot. Stopping is terminal.
func (e *Engine) StopInstance(ctx context.Context, instanceID string) error {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return err
	}
	inst := ent.inst
	inst.SetStatus(scenario.StatusStopped)
	e.stopLoop(ent)
	e.opts.Bus.Clear(inst.ID)

	var snap *world.Snapshot
	if st := inst.State(); st != nil {
		inst.Lock()
		snap, _ = st.Snapshot()
		inst.Unlock()
	}
	if err := e.persist(ctx, inst, snap); err != nil {
		return err
	}
	e.logger.Info("instance stopped", "instance", inst.ID)
	return nil
}

// DeleteInstance stops the instance if it is still running and removes it
// from both the registry and the store. Unlike StopInstance it leaves no
// durable record behind.
func (e *Engine) DeleteInstance(ctx context.Context, instanceID string) error {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return err
	}
	ent.inst.SetStatus(scenario.StatusStopped)
	e.stopLoop(ent)
	e.opts.Bus.Clear(instanceID)

	e.mu.Lock()
	delete(e.instances, instanceID)
	e.mu.Unlock()

	if err := e.opts.Store.Delete(ctx, instanceID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.logger.Info("instance deleted", "instance", instanceID)
	return nil
}

// Snapshot persists the current world state of an instance on demand.
func (e *Engine) Snapshot(ctx context.Context, instanceID string) error {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return err
	}
	inst := ent.inst
	st := inst.State()
	if st == nil {
		return &ActionError{Code: ReasonNotActive, Message: "instance has no world yet"}
	}
	inst.Lock()
	snap, snapErr := st.Snapshot()
	inst.Unlock()
	if snapErr != nil {
		return snapErr
	}
	return e.persist(ctx, inst, snap)
}

// Resume loads every active record from the store and restarts its tick
// loop. Called once on process start, before serving traffic.
func (e *Engine) Resume(ctx context.Context) error {
	records, err := e.opts.Store.ListActive(ctx)
	if err != nil {
		return err
	}
	g, _ := errgroup.WithContext(ctx)
	for _, rec := range records {
		g.Go(func() error {
			tmpl, ok := e.opts.Templates.Get(rec.TemplateID)
			if !ok {
				return fmt.Errorf("resume %s: unknown template %q", rec.InstanceID, rec.TemplateID)
			}
			var snap world.Snapshot
			if err := json.Unmarshal(rec.Snapshot, &snap); err != nil {
				return fmt.Errorf("resume %s: corrupt snapshot: %w", rec.InstanceID, err)
			}
			st, err := world.FromSnapshot(&snap)
			if err != nil {
				return fmt.Errorf("resume %s: %w", rec.InstanceID, err)
			}
			inst := scenario.RestoreInstance(rec.InstanceID, tmpl, st, rec.Players, uint64(rec.Turn))

			e.mu.Lock()
			e.instances[inst.ID] = &entry{inst: inst, done: make(chan struct{})}
			e.mu.Unlock()

			e.startLoop(inst)
			e.logger.Info("instance resumed", "instance", inst.ID, "template", tmpl.ID, "turn", rec.Turn)
			return nil
		})
	}
	return g.Wait()
}

// Shutdown stops every tick loop, persists final snapshots and shuts the
// pool's providers down. The engine is unusable afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.rootCancel()

	e.mu.RLock()
	entries := make([]*entry, 0, len(e.instances))
	for _, ent := range e.instances {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ent := range entries {
		g.Go(func() error {
			e.stopLoop(ent)
			inst := ent.inst
			var snap *world.Snapshot
			if st := inst.State(); st != nil {
				inst.Lock()
				snap, _ = st.Snapshot()
				inst.Unlock()
			}
			return e.persist(gctx, inst, snap)
		})
	}
	err := g.Wait()
	e.opts.Pool.Shutdown(ctx)
	e.logger.Info("engine shut down", "instances", len(entries))
	return err
}

// Instances returns the ids of all registered instances.
func (e *Engine) Instances() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.instances))
	for id := range e.instances {
		out = append(out, id)
	}
	return out
}

// WorldSnapshot returns a detached copy of an instance's world for read-only
// inspection (APIs, debugging); it never exposes the live state.
func (e *Engine) WorldSnapshot(instanceID string) (*world.Snapshot, error) {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return nil, err
	}
	inst := ent.inst
	st := inst.State()
	if st == nil {
		return nil, &ActionError{Code: ReasonNotActive, Message: "instance has no world yet"}
	}
	inst.Lock()
	defer inst.Unlock()
	return st.Snapshot()
}

func (e *Engine) lookup(instanceID string) (*entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return ent, nil
}

// persist writes the instance's durable record through to the store. snap may
// be nil when no world exists yet (or when only metadata changed and the
// previous snapshot should be kept — the store upsert overwrites, so callers
// pass the current snapshot whenever one exists).
func (e *Engine) persist(ctx context.Context, inst *scenario.Instance, snap *world.Snapshot) error {
	e.mu.RLock()
	_, registered := e.instances[inst.ID]
	e.mu.RUnlock()
	if !registered {
		// Deleted while a background step was still running; do not
		// resurrect the record.
		return nil
	}
	rec := store.Record{
		InstanceID: inst.ID,
		TemplateID: inst.Template.ID,
		Status:     string(inst.Status()),
		Players:    inst.Players(),
		CreatedAt:  inst.CreatedAt(),
	}
	if err := inst.GenerationErr(); err != nil {
		rec.FailReason = err.Error()
	}
	if snap == nil {
		if st := inst.State(); st != nil {
			inst.Lock()
			snap, _ = st.Snapshot()
			inst.Unlock()
		}
	}
	if snap != nil {
		raw, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		rec.Snapshot = raw
		rec.Turn = snap.Turn
	}
	return e.opts.Store.Save(ctx, rec)
}

func (e *Engine) chance(p float64) bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < p
}
