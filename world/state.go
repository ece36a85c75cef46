package world

import (
	"fmt"
	"math"
	"sort"
)

// State is the authoritative world state of one scenario instance: every
// entity, the turn counter and the scenario objective.
//
// State is deliberately not internally synchronized. Exactly one logical
// owner mutates it at a time — player-action handlers between ticks, the
// engine inside its own tick — and both serialize through the owning
// instance's mutex. No cross-instance lock is ever needed.
type State struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Turn   int     `json:"turn"`

	Stores  map[string]*Store       `json:"stores"`
	NPCs    map[string]*NPC         `json:"npcs"`
	Items   map[string]*Item        `json:"items"`
	Players map[string]*PlayerAgent `json:"players"`

	// TargetItemID is the scenario objective chosen at generation time.
	TargetItemID string `json:"target_item_id,omitempty"`

	// retired holds ids of deleted entities; they are never reissued for the
	// lifetime of the instance.
	retired map[string]struct{}
}

// NewState creates an empty world with the given bounds.
func NewState(width, height float64) *State {
	return &State{
		Width:   width,
		Height:  height,
		Stores:  map[string]*Store{},
		NPCs:    map[string]*NPC{},
		Items:   map[string]*Item{},
		Players: map[string]*PlayerAgent{},
		retired: map[string]struct{}{},
	}
}

// InBounds reports whether a position lies inside the world rectangle.
func (s *State) InBounds(p Position) bool {
	return p.X >= 0 && p.X <= s.Width && p.Y >= 0 && p.Y <= s.Height
}

func (s *State) idTaken(id string) bool {
	if _, ok := s.retired[id]; ok {
		return true
	}
	_, a := s.Stores[id]
	_, b := s.NPCs[id]
	_, c := s.Items[id]
	_, d := s.Players[id]
	return a || b || c || d
}

// claimID reserves id, failing if it is in use or was ever retired.
func (s *State) claimID(id string) error {
	if id == "" {
		return fmt.Errorf("empty entity id")
	}
	if s.idTaken(id) {
		return fmt.Errorf("entity id %q already used in this instance", id)
	}
	return nil
}

// AddStore inserts a store, enforcing id uniqueness.
func (s *State) AddStore(st *Store) error {
	if err := s.claimID(st.ID); err != nil {
		return err
	}
	st.Kind = KindStore
	s.Stores[st.ID] = st
	return nil
}

// AddNPC inserts an NPC, enforcing id uniqueness.
func (s *State) AddNPC(n *NPC) error {
	if err := s.claimID(n.ID); err != nil {
		return err
	}
	n.Kind = KindNPC
	if n.Trust == nil {
		n.Trust = map[string]float64{}
	}
	s.NPCs[n.ID] = n
	return nil
}

// AddItem inserts an item, enforcing id uniqueness.
func (s *State) AddItem(it *Item) error {
	if err := s.claimID(it.ID); err != nil {
		return err
	}
	it.Kind = KindItem
	s.Items[it.ID] = it
	return nil
}

// AddPlayer inserts a player agent, enforcing id uniqueness.
func (s *State) AddPlayer(p *PlayerAgent) error {
	if err := s.claimID(p.ID); err != nil {
		return err
	}
	p.Kind = KindPlayerAgent
	s.Players[p.ID] = p
	return nil
}

// RemoveEntity deletes an entity of any kind and retires its id so it can
// never be reused within this instance.
func (s *State) RemoveEntity(id string) bool {
	found := false
	if _, ok := s.Stores[id]; ok {
		delete(s.Stores, id)
		found = true
	}
	if _, ok := s.NPCs[id]; ok {
		delete(s.NPCs, id)
		found = true
	}
	if _, ok := s.Items[id]; ok {
		delete(s.Items, id)
		found = true
	}
	if _, ok := s.Players[id]; ok {
		delete(s.Players, id)
		found = true
	}
	if found {
		s.retired[id] = struct{}{}
	}
	return found
}

// GuardCount is the number of NPCs currently employed as guards, used by the
// theft success formula.
func (s *State) GuardCount() int {
	n := 0
	for _, npc := range s.NPCs {
		if npc.Job == "guard" || npc.Job == "bouncer" {
			n++
		}
	}
	return n
}

// NearbyEntity is one row of an Observe result.
type NearbyEntity struct {
	ID       string     `json:"id"`
	Kind     EntityKind `json:"kind"`
	Name     string     `json:"name"`
	Distance float64    `json:"distance"`
	Pos      Position   `json:"pos"`
}

// Nearby returns all stores, NPCs and players within radius of pos, nearest
// first, excluding excludeID.
func (s *State) Nearby(pos Position, radius float64, excludeID string) []NearbyEntity {
	var out []NearbyEntity
	consider := func(e Entity) {
		if e.ID == excludeID {
			return
		}
		d := math.Hypot(e.Pos.X-pos.X, e.Pos.Y-pos.Y)
		if d <= radius {
			out = append(out, NearbyEntity{ID: e.ID, Kind: e.Kind, Name: e.Name, Distance: d, Pos: e.Pos})
		}
	}
	for _, st := range s.Stores {
		consider(st.Entity)
	}
	for _, npc := range s.NPCs {
		consider(npc.Entity)
	}
	for _, p := range s.Players {
		consider(p.Entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// StoreHolding returns the store whose inventory contains itemID, or nil.
func (s *State) StoreHolding(itemID string) *Store {
	for _, st := range s.Stores {
		for _, id := range st.Inventory {
			if id == itemID {
				return st
			}
		}
	}
	return nil
}

// RemoveFromStore takes itemID out of the store's inventory. Reports whether
// it was present.
func (st *Store) RemoveItem(itemID string) bool {
	for i, id := range st.Inventory {
		if id == itemID {
			st.Inventory = append(st.Inventory[:i], st.Inventory[i+1:]...)
			return true
		}
	}
	return false
}

// ListPrice is the price a store asks for an item before negotiation.
func (s *State) ListPrice(st *Store, it *Item) int {
	m := st.PricingMultiplier
	if m <= 0 {
		m = 1
	}
	return int(math.Round(float64(it.Value) * m))
}
