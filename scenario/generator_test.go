package scenario

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedDecider replays fixed stage outputs and records every call, so tests
// can assert on retry behavior and stage ordering.
type cannedDecider struct {
	outputs map[string]map[string]any
	calls   []struct {
		stage string
		ctx   map[string]any
	}
}

func (d *cannedDecider) decide(_ context.Context, stage string, stageCtx map[string]any) (map[string]any, error) {
	d.calls = append(d.calls, struct {
		stage string
		ctx   map[string]any
	}{stage, stageCtx})
	out, ok := d.outputs[stage]
	if !ok {
		return nil, fmt.Errorf("no canned output for %s", stage)
	}
	return out, nil
}

func validOutputs() map[string]map[string]any {
	stores := []any{}
	for i := 1; i <= 3; i++ {
		stores = append(stores, map[string]any{
			"store_id":               fmt.Sprintf("s%d", i),
			"name":                   fmt.Sprintf("Store %d", i),
			"proprietor":             fmt.Sprintf("Prop %d", i),
			"proprietor_personality": "grumpy but fair",
			"store_type":             "general",
			"pricing_multiplier":     1.5,
		})
	}
	npcs := []any{}
	jobs := []string{"shopkeeper", "guard", "thief", "merchant"}
	for i := 1; i <= 4; i++ {
		npcs = append(npcs, map[string]any{
			"npc_id":        fmt.Sprintf("n%d", i),
			"name":          fmt.Sprintf("Prop %d", i),
			"job":           jobs[i-1],
			"personality":   "quiet",
			"skills":        map[string]any{"stealth": 6, "persuasion": 4},
			"initial_trust": 0.4,
			"hiring_cost":   40,
		})
	}
	items := []any{}
	for i := 1; i <= 10; i++ {
		items = append(items, map[string]any{
			"item_id":   fmt.Sprintf("i%d", i),
			"name":      fmt.Sprintf("Item %d", i),
			"value":     50 + 10*i,
			"rarity":    "common",
			"tradeable": true,
			"store_id":  fmt.Sprintf("s%d", (i%3)+1),
		})
	}
	return map[string]map[string]any{
		StageGenerateStores:      {"stores": stores},
		StageGenerateNPCs:        {"npcs": npcs},
		StageAssignItemsToStores: {"items": items},
		StageSelectTargetItem:    {"item_id": "i3", "reason": "affordable"},
	}
}

func TestGenerator_HappyPathBuildsConsistentWorld(t *testing.T) {
	tmpl := MarketSquareTemplate()
	d := &cannedDecider{outputs: validOutputs()}

	st, err := NewGenerator().Generate(context.Background(), tmpl, d.decide)
	require.NoError(t, err)

	// Counts within template ranges, ids unique across kinds.
	assert.True(t, tmpl.NumStores.Contains(len(st.Stores)))
	assert.True(t, tmpl.NumNPCs.Contains(len(st.NPCs)))
	assert.True(t, tmpl.NumItems.Contains(len(st.Items)))

	seen := map[string]bool{}
	for id := range st.Stores {
		assert.False(t, seen[id])
		seen[id] = true
	}
	for id := range st.NPCs {
		assert.False(t, seen[id])
		seen[id] = true
	}
	for id := range st.Items {
		assert.False(t, seen[id])
		seen[id] = true
	}

	// Every store stocks at least one item.
	for _, store := range st.Stores {
		assert.NotEmpty(t, store.Inventory, "store %s has no items", store.ID)
	}

	// The objective is set, placed and affordable within the budget bound.
	require.NotEmpty(t, st.TargetItemID)
	target := st.Items[st.TargetItemID]
	holder := st.StoreHolding(st.TargetItemID)
	require.NotNil(t, holder)
	price := st.ListPrice(holder, target)
	best := 0
	vals := []int{}
	for _, it := range st.Items {
		if it.ID != st.TargetItemID && it.Tradeable {
			vals = append(vals, it.Value)
		}
	}
	for i := 0; i < 3 && i < len(vals); i++ {
		top := 0
		for _, v := range vals {
			if v > top {
				top = v
			}
		}
		best += top
		for j, v := range vals {
			if v == top {
				vals = append(vals[:j], vals[j+1:]...)
				break
			}
		}
	}
	limit := tmpl.StartingGold + best
	assert.LessOrEqual(t, price, limit)

	// NPCs got default positions, in bounds, with generated dispositions.
	for _, npc := range st.NPCs {
		assert.True(t, st.InBounds(npc.Pos))
		assert.InDelta(t, 0.4, npc.BaseTrust, 1e-9)
		assert.Equal(t, "neutral", npc.Mood)
	}

	// Stages ran in protocol order.
	require.Len(t, d.calls, 4)
	assert.Equal(t, StageGenerateStores, d.calls[0].stage)
	assert.Equal(t, StageGenerateNPCs, d.calls[1].stage)
	assert.Equal(t, StageAssignItemsToStores, d.calls[2].stage)
	assert.Equal(t, StageSelectTargetItem, d.calls[3].stage)
}

func TestGenerator_DuplicateItemIDFailsAfterStrictRetry(t *testing.T) {
	tmpl := MarketSquareTemplate()
	outputs := validOutputs()
	items := outputs[StageAssignItemsToStores]["items"].([]any)
	items[1].(map[string]any)["item_id"] = "i1" // collide with the first row
	d := &cannedDecider{outputs: outputs}

	st, err := NewGenerator().Generate(context.Background(), tmpl, d.decide)
	require.Nil(t, st, "no partially generated world may escape")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageAssignItemsToStores, genErr.Stage)
	assert.True(t, genErr.Retried)
	assert.Contains(t, genErr.Reason, "duplicate item id")

	// Exactly one retry, carrying the strict flag and the violation.
	var itemCalls []map[string]any
	for _, c := range d.calls {
		if c.stage == StageAssignItemsToStores {
			itemCalls = append(itemCalls, c.ctx)
		}
	}
	require.Len(t, itemCalls, 2)
	_, strictOnFirst := itemCalls[0]["strict"]
	assert.False(t, strictOnFirst)
	assert.Equal(t, true, itemCalls[1]["strict"])
	assert.Contains(t, itemCalls[1]["violations"], "duplicate item id")
}

func TestGenerator_JobOutsideVocabularyIsRejected(t *testing.T) {
	tmpl := MarketSquareTemplate()
	outputs := validOutputs()
	npcs := outputs[StageGenerateNPCs]["npcs"].([]any)
	npcs[0].(map[string]any)["job"] = "dragon_tamer"
	d := &cannedDecider{outputs: outputs}

	_, err := NewGenerator().Generate(context.Background(), tmpl, d.decide)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageGenerateNPCs, genErr.Stage)
	assert.Contains(t, genErr.Reason, "dragon_tamer")
}

func TestGenerator_SchemaViolationRecoversOnRetry(t *testing.T) {
	tmpl := MarketSquareTemplate()
	good := validOutputs()

	// First call returns garbage, the strict retry returns the valid shape.
	badOnce := true
	decide := func(ctx context.Context, stage string, stageCtx map[string]any) (map[string]any, error) {
		if stage == StageGenerateStores && badOnce {
			badOnce = false
			return map[string]any{"stores": "not a list"}, nil
		}
		return good[stage], nil
	}

	st, err := NewGenerator().Generate(context.Background(), tmpl, decide)
	require.NoError(t, err)
	assert.Len(t, st.Stores, 3)
}

func TestGenerator_DeciderErrorAbortsAfterRetry(t *testing.T) {
	tmpl := MarketSquareTemplate()
	decide := func(ctx context.Context, stage string, stageCtx map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("upstream offline")
	}

	_, err := NewGenerator().Generate(context.Background(), tmpl, decide)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageGenerateStores, genErr.Stage)
	assert.Contains(t, genErr.Reason, "upstream offline")
}
