package rule

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/scenario"
	"github.com/d-andres/AgenticRealm/world"
)

func newConnected(t *testing.T, seed int64) *Provider {
	t.Helper()
	p := New("rules", core.RoleNPCAdmin, func(o *Options) { o.Seed = seed })
	require.NoError(t, p.Connect(context.Background()))
	return p
}

func TestProvider_ImplementsProvider(t *testing.T) {
	var _ core.Provider = (*Provider)(nil)
}

func TestProvider_NotConnected(t *testing.T) {
	p := New("rules", core.RoleNPCAdmin)
	resp := p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "npc_idle", nil))
	assert.False(t, resp.Success)
	assert.Equal(t, "not_connected", resp.Result["error"])
}

func TestProvider_UnknownAction(t *testing.T) {
	p := newConnected(t, 1)
	resp := p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "summon_dragon", nil))
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown_action", resp.Result["error"])
}

func TestProvider_SameSeedSameWorld(t *testing.T) {
	a := newConnected(t, 99)
	b := newConnected(t, 99)
	stageCtx := map[string]any{"num_stores_min": 3, "num_stores_max": 6}

	ra := a.Handle(context.Background(), core.NewRequest(core.RoleScenarioGenerator, "generate_stores", stageCtx))
	rb := b.Handle(context.Background(), core.NewRequest(core.RoleScenarioGenerator, "generate_stores", stageCtx))
	require.True(t, ra.Success)
	assert.Equal(t, ra.Result, rb.Result)

	ra = a.Handle(context.Background(), core.NewRequest(core.RoleScenarioGenerator, "generate_npcs", nil))
	rb = b.Handle(context.Background(), core.NewRequest(core.RoleScenarioGenerator, "generate_npcs", nil))
	require.True(t, ra.Success)
	assert.Equal(t, ra.Result, rb.Result)
}

// reactionEvent mirrors the shape the tick loop puts in a dispatch context:
// the action kind plus the action's outcome payload.
func reactionEvent(kind string, data map[string]any) map[string]any {
	return map[string]any{"kind": kind, "agent_id": "player-1", "data": data, "x": 10.0, "y": 10.0}
}

func TestProvider_NPCReactionTrustMapping(t *testing.T) {
	p := newConnected(t, 7)
	react := func(ev map[string]any) map[string]any {
		resp := p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "npc_reaction", map[string]any{
			"events": []any{ev},
		}))
		require.True(t, resp.Success)
		return resp.Result
	}

	result := react(reactionEvent("steal", map[string]any{"stolen": false}))
	assert.Equal(t, "hostile", result["mood"])
	assert.InDelta(t, -3*world.TrustRejectDecrement, result["trust_delta"].(float64), 1e-9)

	result = react(reactionEvent("negotiate", map[string]any{"accepted": true, "offer": 120}))
	assert.Equal(t, "pleased", result["mood"])
	assert.InDelta(t, world.TrustAcceptIncrement, result["trust_delta"].(float64), 1e-9)

	result = react(reactionEvent("negotiate", map[string]any{"accepted": false, "offer": 1}))
	assert.Equal(t, "annoyed", result["mood"])
	assert.InDelta(t, -world.TrustRejectDecrement, result["trust_delta"].(float64), 1e-9)

	result = react(reactionEvent("buy", map[string]any{"price": 100}))
	assert.Equal(t, "pleased", result["mood"])
	assert.InDelta(t, world.TrustAcceptIncrement, result["trust_delta"].(float64), 1e-9)

	result = react(reactionEvent("hire", map[string]any{"hired": false}))
	assert.Equal(t, "wary", result["mood"])
	assert.InDelta(t, 0.0, result["trust_delta"].(float64), 1e-9)

	result = react(reactionEvent("talk", map[string]any{"message": "hello"}))
	assert.Equal(t, "curious", result["mood"])
}

func TestProvider_NPCIdleStaysInBounds(t *testing.T) {
	p := newConnected(t, 3)
	for i := 0; i < 10; i++ {
		resp := p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "npc_idle", map[string]any{
			"world_width": 400.0, "world_height": 300.0,
		}))
		require.True(t, resp.Success)
		target := resp.Result["patrol_target"].(map[string]any)
		x := target["x"].(float64)
		y := target["y"].(float64)
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, 400.0)
		assert.GreaterOrEqual(t, y, 0.0)
		assert.Less(t, y, 300.0)
	}
}

func TestProvider_NPCDecisionFollowsTrustFloor(t *testing.T) {
	p := newConnected(t, 5)
	trust := 0.5
	base := 100.0
	floor := world.MinAcceptablePrice(base, trust)

	resp := p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "npc_decision", map[string]any{
		"npc_trust": trust, "item_value": base, "offered_price": floor,
	}))
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Result["accepted"])
	assert.InDelta(t, world.TrustAcceptIncrement, resp.Result["trust_delta"].(float64), 1e-9)
	assert.InDelta(t, floor, resp.Result["min_price"].(float64), 1e-9)

	resp = p.Handle(context.Background(), core.NewRequest(core.RoleNPCAdmin, "npc_decision", map[string]any{
		"npc_trust": trust, "item_value": base, "offered_price": floor - 1,
	}))
	require.True(t, resp.Success)
	assert.Equal(t, false, resp.Result["accepted"])
	assert.InDelta(t, -world.TrustRejectDecrement, resp.Result["trust_delta"].(float64), 1e-9)
}

// The deterministic provider must be able to generate a complete valid world
// end to end, since it is the fallback when no LLM provider is registered.
func TestProvider_GeneratesValidWorld(t *testing.T) {
	p := New("rules", core.RoleScenarioGenerator, func(o *Options) { o.Seed = 42 })
	require.NoError(t, p.Connect(context.Background()))

	decide := func(ctx context.Context, stage string, stageCtx map[string]any) (map[string]any, error) {
		resp := p.Handle(ctx, core.NewRequest(core.RoleScenarioGenerator, stage, stageCtx))
		if !resp.Success {
			return nil, fmt.Errorf("stage %s failed: %v", stage, resp.Result["message"])
		}
		return resp.Result, nil
	}

	tmpl := scenario.MarketSquareTemplate()
	st, err := scenario.NewGenerator().Generate(context.Background(), tmpl, decide)
	require.NoError(t, err)

	assert.True(t, tmpl.NumStores.Contains(len(st.Stores)))
	assert.True(t, tmpl.NumNPCs.Contains(len(st.NPCs)))
	assert.True(t, tmpl.NumItems.Contains(len(st.Items)))

	for _, store := range st.Stores {
		assert.NotEmptyf(t, store.Inventory, "store %s has no items", store.ID)
	}
	for _, npc := range st.NPCs {
		assert.Truef(t, tmpl.AllowsJob(npc.Job), "npc %s has job %q outside the template vocabulary", npc.ID, npc.Job)
		assert.GreaterOrEqual(t, npc.BaseTrust, 0.0)
		assert.LessOrEqual(t, npc.BaseTrust, 1.0)
	}

	require.NotEmpty(t, st.TargetItemID)
	target := st.Items[st.TargetItemID]
	require.NotNil(t, target)
	holder := st.StoreHolding(target.ID)
	require.NotNil(t, holder)
}
