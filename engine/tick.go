package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/scenario"
	"github.com/d-andres/AgenticRealm/world"
)

// perceptionRadius bounds which NPCs are considered close enough to notice
// an event that does not target them directly.
const perceptionRadius = 150.0

// startLoop launches the instance's tick goroutine. Each instance gets its
// own timer so a slow dispatch on one world never delays another.
func (e *Engine) startLoop(inst *scenario.Instance) {
	e.mu.Lock()
	ent, ok := e.instances[inst.ID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if ent.cancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.rootCtx)
	ent.cancel = cancel
	done := ent.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if inst.Status() != scenario.StatusActive {
					return
				}
				e.tick(ctx, inst)
			}
		}
	}()
}

// stopLoop cancels the instance's tick goroutine and waits for it to exit.
// Safe to call for instances whose loop never started.
func (e *Engine) stopLoop(ent *entry) {
	e.mu.Lock()
	cancel := ent.cancel
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-ent.done
}

// tick runs one cycle for an instance.
//
// Reaction Phase: every event queued before this drain is grouped by affected
// NPC and each touched NPC gets exactly one npc_reaction dispatch carrying the
// batched payloads. Autonomous Phase: every AutonomousCadence-th tick, NPCs
// the Reaction Phase did not touch get an npc_idle dispatch. Both phases are
// fire-and-forget: the tick never waits on a dispatch, results are applied
// asynchronously under the instance lock, and a dispatch that outlives its
// timeout is discarded.
func (e *Engine) tick(ctx context.Context, inst *scenario.Instance) {
	started := time.Now()
	tickN := inst.NextTick()
	events := e.opts.Bus.Drain(inst.ID)

	byNPC := map[string][]core.GameEvent{}
	for _, ev := range events {
		for _, id := range ev.NPCIDs {
			byNPC[id] = append(byNPC[id], ev)
		}
	}

	dispatched := 0
	for npcID, evs := range byNPC {
		if e.dispatchNPC(ctx, inst, npcID, "npc_reaction", evs) {
			dispatched++
		}
	}

	if e.opts.AutonomousCadence > 0 && tickN%e.opts.AutonomousCadence == 0 {
		inst.Lock()
		st := inst.State()
		var idle []string
		for id := range st.NPCs {
			if _, touched := byNPC[id]; !touched {
				idle = append(idle, id)
			}
		}
		inst.Unlock()
		for _, npcID := range idle {
			if e.dispatchNPC(ctx, inst, npcID, "npc_idle", nil) {
				dispatched++
			}
		}
	}

	e.logger.LogTick(inst.ID, tickN, len(events), dispatched, time.Since(started))
}

// dispatchNPC snapshots the NPC's visible state, captures its epoch and fires
// the request into the pool on its own goroutine. Reports whether a dispatch
// was actually started.
func (e *Engine) dispatchNPC(ctx context.Context, inst *scenario.Instance, npcID, action string, events []core.GameEvent) bool {
	inst.Lock()
	st := inst.State()
	npc, ok := st.NPCs[npcID]
	if !ok {
		inst.Unlock()
		return false
	}
	epoch := npc.Epoch
	reqCtx := npcContext(npc, st, events)
	inst.Unlock()

	// The triggering agent, for trust attribution. The most recent event
	// wins when a batch spans several agents.
	agentID := ""
	for _, ev := range events {
		if ev.AgentID != "" {
			agentID = ev.AgentID
		}
	}

	go func() {
		dctx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
		defer cancel()

		started := time.Now()
		resultCh := make(chan core.Response, 1)
		go func() {
			resultCh <- e.opts.Pool.Request(dctx, core.RoleNPCAdmin, action, reqCtx)
		}()

		select {
		case <-dctx.Done():
			// Abandoned: whatever the provider eventually returns must not
			// touch the world.
			e.logger.LogDispatch(string(core.RoleNPCAdmin), action, time.Since(started), false, true)
		case resp := <-resultCh:
			e.logger.LogDispatch(string(core.RoleNPCAdmin), action, time.Since(started), resp.Success, false)
			if resp.Success {
				e.applyNPCResult(inst, npcID, agentID, epoch, resp.Result)
			}
		}
	}()
	return true
}

// npcContext builds the provider-visible view of one NPC plus the batched
// event payloads. Caller holds the instance lock.
func npcContext(npc *world.NPC, st *world.State, events []core.GameEvent) map[string]any {
	trust := make(map[string]float64, len(npc.Trust))
	for k, v := range npc.Trust {
		trust[k] = v
	}
	evRows := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		evRows = append(evRows, map[string]any{
			"kind":     string(ev.Kind),
			"agent_id": ev.AgentID,
			"data":     ev.Data,
			"x":        ev.X,
			"y":        ev.Y,
		})
	}
	return map[string]any{
		"npc_id":       npc.ID,
		"name":         npc.Name,
		"job":          npc.Job,
		"personality":  npc.Personality,
		"mood":         npc.Mood,
		"trust":        trust,
		"skills":       npc.Skills,
		"last_message": npc.LastMessage,
		"position":     map[string]any{"x": npc.Pos.X, "y": npc.Pos.Y},
		"world_width":  st.Width,
		"world_height": st.Height,
		"world_turn":   st.Turn,
		"events":       evRows,
	}
}

// applyNPCResult writes a resolved dispatch onto the NPC, but only if the
// NPC's epoch still matches the one captured at dispatch time; a mismatch
// means the world moved on and the result is stale. Recognized fields:
// trust_delta, mood, last_message, patrol_target. Anything else is ignored.
func (e *Engine) applyNPCResult(inst *scenario.Instance, npcID, agentID string, epoch uint64, result map[string]any) {
	inst.Lock()
	defer inst.Unlock()

	st := inst.State()
	if st == nil {
		return
	}
	npc, ok := st.NPCs[npcID]
	if !ok || npc.Epoch != epoch {
		return
	}
	npc.Epoch++

	if d, ok := floatField(result, "trust_delta"); ok && agentID != "" {
		npc.AdjustTrust(agentID, d)
	}
	if m, ok := result["mood"].(string); ok && m != "" {
		npc.Mood = m
	}
	if msg, ok := result["last_message"].(string); ok && msg != "" {
		npc.LastMessage = msg
	}
	if pt, ok := result["patrol_target"].(map[string]any); ok {
		x, xok := floatField(pt, "x")
		y, yok := floatField(pt, "y")
		if xok && yok {
			pos := world.Position{X: x, Y: y}
			if st.InBounds(pos) {
				npc.PatrolTarget = &pos
			}
		}
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// nearbyNPCIDs lists the NPCs close enough to perceive something happening at
// pos. Caller holds the instance lock.
func nearbyNPCIDs(st *world.State, pos world.Position, radius float64) []string {
	var out []string
	for _, row := range st.Nearby(pos, radius, "") {
		if row.Kind == world.KindNPC {
			out = append(out, row.ID)
		}
	}
	return out
}

func withPos(ev core.GameEvent, pos world.Position) core.GameEvent {
	ev.X = pos.X
	ev.Y = pos.Y
	return ev
}
