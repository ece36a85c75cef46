package world

import "encoding/json"

// Snapshot is the serializable form of a State, written through to the
// instance store on status transitions and explicit snapshot requests, and
// read back to resume instances after a restart.
type Snapshot struct {
	Width        float64        `json:"width"`
	Height       float64        `json:"height"`
	Turn         int            `json:"turn"`
	TargetItemID string         `json:"target_item_id,omitempty"`
	Stores       []*Store       `json:"stores"`
	NPCs         []*NPC         `json:"npcs"`
	Items        []*Item        `json:"items"`
	Players      []*PlayerAgent `json:"players"`
	RetiredIDs   []string       `json:"retired_ids,omitempty"`
}

// Snapshot captures the current state. The caller must hold the owning
// instance's lock; the returned value shares no mutable references with the
// live state.
func (s *State) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		Width:        s.Width,
		Height:       s.Height,
		Turn:         s.Turn,
		TargetItemID: s.TargetItemID,
	}
	for _, st := range s.Stores {
		snap.Stores = append(snap.Stores, st)
	}
	for _, n := range s.NPCs {
		snap.NPCs = append(snap.NPCs, n)
	}
	for _, it := range s.Items {
		snap.Items = append(snap.Items, it)
	}
	for _, p := range s.Players {
		snap.Players = append(snap.Players, p)
	}
	for id := range s.retired {
		snap.RetiredIDs = append(snap.RetiredIDs, id)
	}
	// Deep copy through JSON so later state mutation cannot corrupt a
	// snapshot already handed to the store.
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var out Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FromSnapshot rebuilds a State from its serialized form.
func FromSnapshot(snap *Snapshot) (*State, error) {
	s := NewState(snap.Width, snap.Height)
	s.Turn = snap.Turn
	s.TargetItemID = snap.TargetItemID
	for _, st := range snap.Stores {
		if err := s.AddStore(st); err != nil {
			return nil, err
		}
	}
	for _, n := range snap.NPCs {
		if err := s.AddNPC(n); err != nil {
			return nil, err
		}
	}
	for _, it := range snap.Items {
		if err := s.AddItem(it); err != nil {
			return nil, err
		}
	}
	for _, p := range snap.Players {
		if err := s.AddPlayer(p); err != nil {
			return nil, err
		}
	}
	for _, id := range snap.RetiredIDs {
		s.retired[id] = struct{}{}
	}
	return s, nil
}
