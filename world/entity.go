// Package world holds the authoritative in-memory representation of a
// generated scenario world: entities, inventories, per-NPC trust and mood,
// and the deterministic trust/negotiation/theft formulas layered under
// AI-provided deltas.
package world

// EntityKind discriminates the entity variants in a world.
type EntityKind string

const (
	// KindStore is a shop with a proprietor, pricing and an inventory.
	KindStore EntityKind = "store"
	// KindNPC is an autonomous non-player character.
	KindNPC EntityKind = "npc"
	// KindItem is a purchasable / tradeable object.
	KindItem EntityKind = "item"
	// KindPlayerAgent is a player-controlled agent that joined the instance.
	KindPlayerAgent EntityKind = "player_agent"
)

// Position is a point in world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity carries the fields common to every world object. IDs are unique
// within an instance and are never reused after deletion for the lifetime of
// that instance.
type Entity struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
	Pos  Position   `json:"pos"`
}

// Item is a concrete object placed in a store or carried in an inventory.
type Item struct {
	Entity
	Value       int    `json:"value"`
	Rarity      string `json:"rarity"`
	Description string `json:"description,omitempty"`
	Tradeable   bool   `json:"tradeable"`
}

// Store is a shop. Inventory holds item ids; the items themselves live in the
// state's entity map so transfers are pointer-free id moves.
type Store struct {
	Entity
	Proprietor        string   `json:"proprietor"`
	ProprietorPersona string   `json:"proprietor_persona,omitempty"`
	StoreType         string   `json:"store_type"`
	PricingMultiplier float64  `json:"pricing_multiplier"`
	Inventory         []string `json:"inventory"`
}

// NPC is an autonomous character. Trust is a sparse map keyed by player agent
// id; use TrustFor / AdjustTrust rather than reading the map directly so the
// first-contact default and clamping stay consistent.
//
// Epoch increments every time the engine applies (or deliberately discards) a
// dispatched decision for this NPC; in-flight dispatches capture the epoch at
// send time and their results are dropped if it moved.
type NPC struct {
	Entity
	Job          string             `json:"job"`
	Personality  string             `json:"personality,omitempty"`
	Skills       map[string]int     `json:"skills,omitempty"`
	Trust        map[string]float64 `json:"trust,omitempty"`
	BaseTrust    float64            `json:"base_trust,omitempty"`
	Mood         string             `json:"mood,omitempty"`
	LastMessage  string             `json:"last_message,omitempty"`
	Inventory    []string           `json:"inventory,omitempty"`
	HiringCost   int                `json:"hiring_cost,omitempty"`
	HiredBy      string             `json:"hired_by,omitempty"`
	PatrolTarget *Position          `json:"patrol_target,omitempty"`
	Epoch        uint64             `json:"-"`
}

// TrustFor returns this NPC's trust toward agentID. First contact defaults
// to the NPC's generated base disposition, or DefaultTrust when none was set,
// without recording anything.
func (n *NPC) TrustFor(agentID string) float64 {
	if t, ok := n.Trust[agentID]; ok {
		return t
	}
	if n.BaseTrust > 0 {
		return n.BaseTrust
	}
	return DefaultTrust
}

// AdjustTrust adds delta to the trust toward agentID, clamped to [0, 1].
// First contact starts from the TrustFor baseline.
func (n *NPC) AdjustTrust(agentID string, delta float64) float64 {
	if n.Trust == nil {
		n.Trust = map[string]float64{}
	}
	t := clamp(n.TrustFor(agentID)+delta, 0, 1)
	n.Trust[agentID] = t
	return t
}

// Skill returns the named skill level, zero when absent.
func (n *NPC) Skill(name string) int { return n.Skills[name] }

// PlayerAgent is a player-controlled entity that joined the instance.
type PlayerAgent struct {
	Entity
	Gold         int      `json:"gold"`
	Health       int      `json:"health"`
	Score        float64  `json:"score"`
	Inventory    []string `json:"inventory,omitempty"`
	ActionsTaken int      `json:"actions_taken"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
