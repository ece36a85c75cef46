// Package rule implements a deterministic, zero-dependency decision provider.
// It serves two purposes: a fallback when no LLM provider is registered for a
// role, and a reproducible backend for tests and local development. All of
// its answers derive from the formulas in the world package and a seeded
// random source, so a given seed always produces the same world.
package rule

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/world"
)

// Options configures a rule provider.
type Options struct {
	// Seed fixes the random source; zero means time-seeded.
	Seed int64
}

// Provider is a deterministic core.Provider. A single instance may be
// registered under any role; it answers every generation stage and NPC
// action the engine dispatches.
type Provider struct {
	name string
	role core.Role

	mu        sync.Mutex
	rng       *rand.Rand
	connected bool
}

// New constructs a rule provider for the given role.
func New(name string, role core.Role, optFns ...func(o *Options)) *Provider {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Provider{
		name: name,
		role: role,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// Role implements core.Provider.
func (p *Provider) Role() core.Role { return p.role }

// Connect implements core.Provider. A rule provider has no upstream; it is
// connected as soon as asked.
func (p *Provider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect implements core.Provider.
func (p *Provider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// Connected implements core.Provider.
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Listen implements core.Provider. There is nothing to probe; the loop just
// holds liveness until the context ends.
func (p *Provider) Listen(ctx context.Context) {
	<-ctx.Done()
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// Handle implements core.Provider. Safe for concurrent calls; the shared
// random source is the only guarded state.
func (p *Provider) Handle(_ context.Context, req core.Request) core.Response {
	if !p.Connected() {
		return core.FailureResponse(req, "not_connected", "rule provider is not connected")
	}

	var result map[string]any
	switch req.Action {
	case "generate_stores":
		result = p.generateStores(req.Context)
	case "generate_npcs":
		result = p.generateNPCs(req.Context)
	case "assign_items_to_stores":
		result = p.assignItems(req.Context)
	case "select_target_item":
		result = p.selectTarget(req.Context)
	case "npc_reaction":
		result = p.npcReaction(req.Context)
	case "npc_idle":
		result = p.npcIdle(req.Context)
	case "npc_decision", "npc_interaction":
		result = p.npcDecision(req.Context)
	default:
		return core.FailureResponse(req, "unknown_action", fmt.Sprintf("unknown action %q", req.Action))
	}

	return core.Response{
		RequestID: req.ID,
		Role:      req.Role,
		Action:    req.Action,
		Success:   true,
		Result:    result,
		Reasoning: "deterministic rule evaluation",
		Metadata:  core.Metadata{Provider: p.name, Model: "rules"},
	}
}

func (p *Provider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		return 0
	}
	return p.rng.Intn(n)
}

func (p *Provider) float() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *Provider) rangeCount(ctx map[string]any, minKey, maxKey string, def int) int {
	lo := intFrom(ctx, minKey, def)
	hi := intFrom(ctx, maxKey, def)
	if hi <= lo {
		return lo
	}
	return lo + p.intn(hi-lo+1)
}

var (
	storeNames = []string{
		"The Gilded Scale", "Rusty Lantern Goods", "Moth & Candle", "Ironwood Traders",
		"The Velvet Satchel", "Coppervein Curios", "Saltmarsh Supply", "The Broken Compass",
	}
	proprietorNames = []string{
		"Maren Oakhart", "Teodor Vash", "Isolde Finch", "Garrick Thorne",
		"Petra Duskwind", "Corvin Alefield", "Nadia Stillwater", "Emrys Cole",
	}
	npcNames = []string{
		"Bram Fenwick", "Ysolde Marr", "Dorian Ash", "Keth Varga",
		"Luna Calder", "Orrin Blackwell", "Sable Nix", "Tamsin Reed",
		"Hollis Crane", "Vera Doyle",
	}
	personalities = []string{
		"gruff but fair", "endlessly curious", "suspicious of strangers",
		"cheerful haggler", "quietly calculating", "superstitious", "ambitious",
	}
	storeTypes = []string{"general", "specialty", "black_market", "rare"}
	itemNames  = []string{
		"Lodestone Compass", "Etched Silver Flask", "Moonglass Pendant", "Tanner's Prybar",
		"Sealed Cipher Scroll", "Dragonbone Dice", "Warded Lockbox", "Elk-Hide Satchel",
		"Hollow Coin", "Sunstone Shard", "Night-Dyed Cloak", "Whisperwood Flute",
		"Barnacle Idol", "Astrolabe Fragment", "Quicksilver Vial", "Ember Lens",
		"Grimstone Ring", "Lacquered Fan", "Falcon Hood", "Smuggler's Map",
	}
	moods = []string{"wary", "curious", "annoyed", "cheerful", "suspicious", "amused"}
)

func (p *Provider) generateStores(ctx map[string]any) map[string]any {
	n := p.rangeCount(ctx, "num_stores_min", "num_stores_max", 4)
	stores := make([]any, 0, n)
	for i := 0; i < n; i++ {
		stores = append(stores, map[string]any{
			"store_id":               fmt.Sprintf("store_%02d", i+1),
			"name":                   storeNames[(i+p.intn(len(storeNames)))%len(storeNames)],
			"proprietor":             proprietorNames[(i+p.intn(len(proprietorNames)))%len(proprietorNames)],
			"proprietor_personality": personalities[p.intn(len(personalities))],
			"store_type":             storeTypes[p.intn(len(storeTypes))],
			"pricing_multiplier":     1.0 + p.float()*2.0,
		})
	}
	return map[string]any{"stores": stores}
}

func (p *Provider) generateNPCs(ctx map[string]any) map[string]any {
	n := p.rangeCount(ctx, "num_npcs_min", "num_npcs_max", 6)
	jobs := stringsFrom(ctx, "allowed_jobs")
	if len(jobs) == 0 {
		jobs = []string{"shopkeeper", "guard", "merchant"}
	}
	npcs := make([]any, 0, n)
	for i := 0; i < n; i++ {
		job := jobs[i%len(jobs)]
		skills := map[string]any{
			"persuasion": 1 + p.intn(10),
			"appraisal":  1 + p.intn(10),
		}
		if job == "thief" || job == "fence" {
			skills["stealth"] = 1 + p.intn(10)
		}
		npcs = append(npcs, map[string]any{
			"npc_id":        fmt.Sprintf("npc_%02d", i+1),
			"name":          npcNames[(i+p.intn(len(npcNames)))%len(npcNames)],
			"job":           job,
			"personality":   personalities[p.intn(len(personalities))],
			"skills":        skills,
			"initial_trust": 0.2 + p.float()*0.4,
			"hiring_cost":   25 + p.intn(150),
		})
	}
	return map[string]any{"npcs": npcs}
}

func (p *Provider) assignItems(ctx map[string]any) map[string]any {
	n := p.rangeCount(ctx, "num_items_min", "num_items_max", 12)
	storeIDs := stringsFrom(ctx, "store_ids")
	if len(storeIDs) == 0 {
		storeIDs = []string{"store_01"}
	}
	rarities := []string{"common", "common", "uncommon", "uncommon", "rare", "legendary"}
	items := make([]any, 0, n)
	for i := 0; i < n; i++ {
		rarity := rarities[p.intn(len(rarities))]
		value := 10 + p.intn(90)
		switch rarity {
		case "uncommon":
			value = 60 + p.intn(140)
		case "rare":
			value = 200 + p.intn(300)
		case "legendary":
			value = 500 + p.intn(500)
		}
		// Round-robin placement guarantees every store gets at least one
		// item whenever n >= len(storeIDs).
		items = append(items, map[string]any{
			"item_id":   fmt.Sprintf("item_%02d", i+1),
			"name":      itemNames[i%len(itemNames)],
			"value":     value,
			"rarity":    rarity,
			"tradeable": p.intn(10) > 1,
			"store_id":  storeIDs[i%len(storeIDs)],
		})
	}
	return map[string]any{"items": items}
}

func (p *Provider) selectTarget(ctx map[string]any) map[string]any {
	maxPrice := intFrom(ctx, "max_price", 0)
	rows, _ := ctx["items"].([]map[string]any)
	if rows == nil {
		if anyRows, ok := ctx["items"].([]any); ok {
			for _, r := range anyRows {
				if m, ok := r.(map[string]any); ok {
					rows = append(rows, m)
				}
			}
		}
	}
	// Pick the most valuable item that stays within the reachable budget so
	// the objective is challenging but never impossible.
	bestID := ""
	bestPrice := -1
	for _, row := range rows {
		id, _ := row["item_id"].(string)
		price := intFrom(row, "price", 0)
		if id == "" || (maxPrice > 0 && price > maxPrice) {
			continue
		}
		if price > bestPrice {
			bestID, bestPrice = id, price
		}
	}
	if bestID == "" {
		// Nothing fits the advertised budget; the cheapest item is the
		// closest to reachable.
		for _, row := range rows {
			id, _ := row["item_id"].(string)
			price := intFrom(row, "price", 0)
			if id == "" {
				continue
			}
			if bestPrice < 0 || price < bestPrice {
				bestID, bestPrice = id, price
			}
		}
	}
	return map[string]any{
		"item_id":      bestID,
		"why_valuable": "the most coveted piece the market can realistically yield",
	}
}

func (p *Provider) npcReaction(ctx map[string]any) map[string]any {
	delta := 0.0
	mood := "neutral"
	events, _ := ctx["events"].([]map[string]any)
	if events == nil {
		if anyRows, ok := ctx["events"].([]any); ok {
			for _, r := range anyRows {
				if m, ok := r.(map[string]any); ok {
					events = append(events, m)
				}
			}
		}
	}
	for _, ev := range events {
		kind, _ := ev["kind"].(string)
		data, _ := ev["data"].(map[string]any)
		switch kind {
		case "negotiate", "trade":
			if boolFrom(data, "accepted") {
				delta += world.TrustAcceptIncrement
				mood = "pleased"
			} else {
				delta -= world.TrustRejectDecrement
				mood = "annoyed"
			}
		case "buy":
			delta += world.TrustAcceptIncrement
			mood = "pleased"
		case "hire":
			if boolFrom(data, "hired") {
				mood = "pleased"
			} else {
				mood = "wary"
			}
		case "steal":
			// An attempt is enough; whether it succeeded only changes what
			// was lost, not how the NPC feels about the thief.
			delta -= 3 * world.TrustRejectDecrement
			mood = "hostile"
		case "talk", "observe":
			mood = "curious"
		}
	}
	return map[string]any{
		"trust_delta":  delta,
		"mood":         mood,
		"last_message": "I've seen what you did.",
	}
}

func (p *Provider) npcIdle(ctx map[string]any) map[string]any {
	width := floatFrom(ctx, "world_width", 800)
	height := floatFrom(ctx, "world_height", 600)
	return map[string]any{
		"mood":         moods[p.intn(len(moods))],
		"last_message": "Just another day at the market.",
		"patrol_target": map[string]any{
			"x": p.float() * width,
			"y": p.float() * height,
		},
	}
}

func (p *Provider) npcDecision(ctx map[string]any) map[string]any {
	trust := floatFrom(ctx, "npc_trust", world.DefaultTrust)
	base := floatFrom(ctx, "item_value", 0)
	offer := floatFrom(ctx, "offered_price", 0)
	accepted, delta := world.EvaluateOffer(offer, base, trust)
	msg := "That offer insults me."
	if accepted {
		msg = "You have a deal."
	}
	return map[string]any{
		"accepted":     accepted,
		"trust_delta":  delta,
		"min_price":    world.MinAcceptablePrice(base, trust),
		"last_message": msg,
	}
}

func intFrom(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func boolFrom(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func floatFrom(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func stringsFrom(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
