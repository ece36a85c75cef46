package scenario

import (
	"sync"
	"time"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/world"
)

// Status is the lifecycle state of a scenario instance. Transitions only move
// forward: Pending → Generating → Active, and any state → Stopped.
type Status string

const (
	// StatusPending means the instance exists but generation has not begun.
	StatusPending Status = "pending"
	// StatusGenerating means the generator is building the world.
	StatusGenerating Status = "generating"
	// StatusActive means the world is live and ticking.
	StatusActive Status = "active"
	// StatusStopped means the instance was stopped or generation failed; a
	// stopped instance never becomes active again.
	StatusStopped Status = "stopped"
)

// Instance is one concrete, live world derived from a template.
//
// The mutex is the single serialization point for the instance's world state:
// action handlers mutate between ticks, the engine inside its tick, and both
// lock here. Status reads/writes go through the same lock.
type Instance struct {
	ID       string
	Template *Template

	mu        sync.Mutex
	status    Status
	state     *world.State
	players   []string
	tick      uint64
	createdAt time.Time
	lastSeen  time.Time

	// GenerationErr records why generation failed when status is Stopped
	// without ever having been Active.
	generationErr error
}

// NewInstance creates a pending instance for the template.
func NewInstance(tmpl *Template) *Instance {
	now := nowUTC()
	return &Instance{
		ID:        core.NewID(),
		Template:  tmpl,
		status:    StatusPending,
		createdAt: now,
		lastSeen:  now,
	}
}

// RestoreInstance rebuilds a previously persisted instance: same id, already
// active, world attached, tick counter and player roster carried over.
func RestoreInstance(id string, tmpl *Template, st *world.State, players []string, tick uint64) *Instance {
	now := nowUTC()
	return &Instance{
		ID:        id,
		Template:  tmpl,
		status:    StatusActive,
		state:     st,
		players:   append([]string(nil), players...),
		tick:      tick,
		createdAt: now,
		lastSeen:  now,
	}
}

// Lock acquires the instance's state lock. Callers own the critical section
// until Unlock and may access State() freely within it.
func (in *Instance) Lock() { in.mu.Lock() }

// Unlock releases the instance's state lock.
func (in *Instance) Unlock() { in.mu.Unlock() }

// Status returns the current lifecycle state.
func (in *Instance) Status() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

// SetStatus transitions the lifecycle state. Invalid backward transitions are
// ignored so a racing stop cannot be undone by a late generation step.
func (in *Instance) SetStatus(s Status) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.status == StatusStopped && s != StatusStopped {
		return false
	}
	in.status = s
	in.lastSeen = nowUTC()
	return true
}

// SetGenerationError records a terminal generation failure and stops the
// instance.
func (in *Instance) SetGenerationError(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.generationErr = err
	in.status = StatusStopped
}

// GenerationErr returns the recorded generation failure, if any.
func (in *Instance) GenerationErr() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.generationErr
}

// AttachState installs the generated world. Called once, between Generating
// and Active.
func (in *Instance) AttachState(st *world.State) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = st
}

// State returns the world state. Callers must hold the instance lock while
// reading or mutating it.
func (in *Instance) State() *world.State { return in.state }

// Touch refreshes the last-activity timestamp.
func (in *Instance) Touch() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.lastSeen = nowUTC()
}

// TouchLocked refreshes the last-activity timestamp. Callers must hold the
// instance lock; the mutex is not reentrant.
func (in *Instance) TouchLocked() {
	in.lastSeen = nowUTC()
}

// CreatedAt returns the creation timestamp.
func (in *Instance) CreatedAt() time.Time { return in.createdAt }

// LastSeen returns the last-activity timestamp.
func (in *Instance) LastSeen() time.Time {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastSeen
}

// NextTick increments and returns the tick counter. Engine use only.
func (in *Instance) NextTick() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tick++
	return in.tick
}

// Tick returns the current tick counter.
func (in *Instance) Tick() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tick
}

// AddPlayer records a joined player id. The corresponding entity is added to
// the world by the engine under the same lock.
func (in *Instance) AddPlayer(agentID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, p := range in.players {
		if p == agentID {
			return
		}
	}
	in.players = append(in.players, agentID)
}

// Players returns a copy of the joined player ids.
func (in *Instance) Players() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, len(in.players))
	copy(out, in.players)
	return out
}
