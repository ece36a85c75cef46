package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/scenario"
	"github.com/d-andres/AgenticRealm/world"
)

// Action rejection reason codes. Stable strings so callers can branch without
// parsing messages.
const (
	ReasonNotActive        = "not_active"
	ReasonUnknownAgent     = "unknown_agent"
	ReasonActionNotAllowed = "action_not_allowed"
	ReasonInvalidParams    = "invalid_params"
	ReasonInsufficientGold = "insufficient_gold"
	ReasonOutOfBounds      = "out_of_bounds"
	ReasonMaxTurns         = "max_turns"
)

// ActionError is a synchronous action rejection. No state was mutated when
// one is returned.
type ActionError struct {
	Code    string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action rejected (%s): %s", e.Code, e.Message)
}

// Outcome is the synchronous result of a player action. NPC reactions to the
// action happen later, on the tick loop; the outcome only reflects the
// deterministic part.
type Outcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Turn    int            `json:"turn"`
}

// Typed parameter shapes, one per action kind. SubmitAction decodes the raw
// params map into the shape for the requested kind and rejects anything that
// does not fit.

// MoveParams moves the player a fixed step in a cardinal direction.
type MoveParams struct {
	Direction string `json:"direction"`
}

// ObserveParams surveys the player's surroundings.
type ObserveParams struct {
	Radius float64 `json:"radius,omitempty"`
}

// TalkParams addresses an NPC.
type TalkParams struct {
	NPCID   string `json:"npc_id"`
	Message string `json:"message,omitempty"`
}

// NegotiateParams makes a gold offer for an item held by a store.
type NegotiateParams struct {
	ItemID string `json:"item_id"`
	Offer  int    `json:"offer"`
}

// BuyParams purchases an item at its list price.
type BuyParams struct {
	ItemID string `json:"item_id"`
}

// HireParams attempts to put an NPC on the player's payroll.
type HireParams struct {
	NPCID string `json:"npc_id"`
}

// StealParams attempts to take an item from a store, optionally through a
// hired helper whose relevant skill improves the odds.
type StealParams struct {
	ItemID      string `json:"item_id"`
	HelperNPCID string `json:"helper_npc_id,omitempty"`
}

// TradeParams swaps one of the player's items for one of an NPC's.
type TradeParams struct {
	NPCID       string `json:"npc_id"`
	OfferItemID string `json:"offer_item_id"`
	WantItemID  string `json:"want_item_id"`
}

const (
	moveStep      = 10.0
	observeRadius = 100.0
	// Players carry no skill sheet; hire rolls use a fixed average
	// persuasion so trust remains the dominant factor.
	playerPersuasion = 5
)

// SubmitAction applies one pre-validated player action to an instance. The
// whole mutation is synchronous under the instance lock, a GameEvent is
// published for the tick loop's Reaction Phase, and the call returns without
// ever waiting on an AI dispatch.
func (e *Engine) SubmitAction(instanceID, agentID string, kind scenario.ActionKind, params map[string]any) (*Outcome, error) {
	ent, err := e.lookup(instanceID)
	if err != nil {
		return nil, err
	}
	inst := ent.inst
	if inst.Status() != scenario.StatusActive {
		return nil, &ActionError{Code: ReasonNotActive, Message: "instance is not active"}
	}
	if !inst.Template.Allows(kind) {
		return nil, &ActionError{Code: ReasonActionNotAllowed, Message: fmt.Sprintf("template %s does not allow %s", inst.Template.ID, kind)}
	}

	inst.Lock()
	defer inst.Unlock()

	st := inst.State()
	player, ok := st.Players[agentID]
	if !ok {
		return nil, &ActionError{Code: ReasonUnknownAgent, Message: "agent has not joined this instance"}
	}
	if st.Turn >= inst.Template.MaxTurns {
		return nil, &ActionError{Code: ReasonMaxTurns, Message: "maximum turns reached"}
	}

	var (
		outcome *Outcome
		ev      core.GameEvent
	)
	switch kind {
	case scenario.ActionMove:
		var p MoveParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleMove(inst, st, player, p)
	case scenario.ActionObserve:
		var p ObserveParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleObserve(inst, st, player, p)
	case scenario.ActionTalk:
		var p TalkParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleTalk(inst, st, player, p)
	case scenario.ActionNegotiate:
		var p NegotiateParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleNegotiate(inst, st, player, p)
	case scenario.ActionBuy:
		var p BuyParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleBuy(inst, st, player, p)
	case scenario.ActionHire:
		var p HireParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleHire(inst, st, player, p)
	case scenario.ActionSteal:
		var p StealParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleSteal(inst, st, player, p)
	case scenario.ActionTrade:
		var p TradeParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		outcome, ev, err = e.handleTrade(inst, st, player, p)
	default:
		return nil, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("unknown action kind %q", kind)}
	}
	if err != nil {
		return nil, err
	}

	st.Turn++
	player.ActionsTaken++
	inst.TouchLocked()

	outcome.Turn = st.Turn
	if outcome.Data == nil {
		outcome.Data = map[string]any{}
	}
	outcome.Data["stats"] = map[string]any{
		"gold":          player.Gold,
		"health":        player.Health,
		"score":         player.Score,
		"actions_taken": player.ActionsTaken,
		"turn":          st.Turn,
	}

	e.opts.Bus.Publish(ev)
	return outcome, nil
}

func (e *Engine) handleMove(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p MoveParams) (*Outcome, core.GameEvent, error) {
	next := player.Pos
	switch p.Direction {
	case "up":
		next.Y -= moveStep
	case "down":
		next.Y += moveStep
	case "left":
		next.X -= moveStep
	case "right":
		next.X += moveStep
	default:
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("invalid direction %q", p.Direction)}
	}
	if !st.InBounds(next) {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonOutOfBounds, Message: "move leaves the world"}
	}
	player.Pos = next

	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionMove), player.ID,
		nearbyNPCIDs(st, next, perceptionRadius),
		map[string]any{"direction": p.Direction}), next)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("moved %s", p.Direction),
		Data:    map[string]any{"position": next},
	}, ev, nil
}

func (e *Engine) handleObserve(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p ObserveParams) (*Outcome, core.GameEvent, error) {
	radius := p.Radius
	if radius <= 0 {
		radius = observeRadius
	}
	nearby := st.Nearby(player.Pos, radius, player.ID)

	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionObserve), player.ID,
		nearbyNPCIDs(st, player.Pos, radius),
		map[string]any{"radius": radius}), player.Pos)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("observed %d entities within %.0f units", len(nearby), radius),
		Data:    map[string]any{"nearby": nearby, "radius": radius},
	}, ev, nil
}

func (e *Engine) handleTalk(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p TalkParams) (*Outcome, core.GameEvent, error) {
	npc, ok := st.NPCs[p.NPCID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such npc %q", p.NPCID)}
	}

	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionTalk), player.ID,
		[]string{npc.ID},
		map[string]any{"message": p.Message}), npc.Pos)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("you speak to %s", npc.Name),
		Data: map[string]any{
			"npc_id":       npc.ID,
			"npc_name":     npc.Name,
			"mood":         npc.Mood,
			"last_message": npc.LastMessage,
			"trust":        npc.TrustFor(player.ID),
		},
	}, ev, nil
}

func (e *Engine) handleNegotiate(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p NegotiateParams) (*Outcome, core.GameEvent, error) {
	item, ok := st.Items[p.ItemID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such item %q", p.ItemID)}
	}
	holder := st.StoreHolding(p.ItemID)
	if holder == nil {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "item is not for sale"}
	}
	if p.Offer <= 0 {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "offer must be positive"}
	}
	if p.Offer > player.Gold {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInsufficientGold, Message: fmt.Sprintf("offer %d exceeds gold %d", p.Offer, player.Gold)}
	}

	// The proprietor's stand-in for trust purposes is the nearest NPC tied
	// to the store by name, falling back to the store-wide default.
	seller := proprietorNPC(st, holder)
	trust := world.DefaultTrust
	if seller != nil {
		trust = seller.TrustFor(player.ID)
	}

	accepted, delta := world.EvaluateOffer(float64(p.Offer), float64(item.Value), trust)
	newTrust := trust
	if seller != nil {
		newTrust = seller.AdjustTrust(player.ID, delta)
	}

	npcIDs := nearbyNPCIDs(st, holder.Pos, perceptionRadius)
	if seller != nil {
		npcIDs = appendUnique(npcIDs, seller.ID)
	}
	data := map[string]any{
		"item_id":  item.ID,
		"offer":    p.Offer,
		"accepted": accepted,
		"trust":    newTrust,
	}
	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionNegotiate), player.ID, npcIDs, data), holder.Pos)

	if !accepted {
		return &Outcome{
			Success: false,
			Message: fmt.Sprintf("%s rejects your offer of %d gold for %s", holder.Proprietor, p.Offer, item.Name),
			Data:    data,
		}, ev, nil
	}

	holder.RemoveItem(item.ID)
	player.Gold -= p.Offer
	player.Inventory = append(player.Inventory, item.ID)
	e.scoreAcquisition(st, player, item, data)

	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("%s accepts %d gold for %s", holder.Proprietor, p.Offer, item.Name),
		Data:    data,
	}, ev, nil
}

func (e *Engine) handleBuy(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p BuyParams) (*Outcome, core.GameEvent, error) {
	item, ok := st.Items[p.ItemID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such item %q", p.ItemID)}
	}
	holder := st.StoreHolding(p.ItemID)
	if holder == nil {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "item is not for sale"}
	}
	price := st.ListPrice(holder, item)
	if price > player.Gold {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInsufficientGold, Message: fmt.Sprintf("price %d exceeds gold %d", price, player.Gold)}
	}

	holder.RemoveItem(item.ID)
	player.Gold -= price
	player.Inventory = append(player.Inventory, item.ID)

	data := map[string]any{"item_id": item.ID, "price": price, "store_id": holder.ID}
	e.scoreAcquisition(st, player, item, data)

	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionBuy), player.ID,
		nearbyNPCIDs(st, holder.Pos, perceptionRadius), data), holder.Pos)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("bought %s for %d gold", item.Name, price),
		Data:    data,
	}, ev, nil
}

func (e *Engine) handleHire(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p HireParams) (*Outcome, core.GameEvent, error) {
	npc, ok := st.NPCs[p.NPCID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such npc %q", p.NPCID)}
	}
	if npc.HiredBy == player.ID {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("%s already works for you", npc.Name)}
	}
	cost := npc.HiringCost
	if cost <= 0 {
		cost = 50
	}
	if cost > player.Gold {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInsufficientGold, Message: fmt.Sprintf("hiring cost %d exceeds gold %d", cost, player.Gold)}
	}

	trust := npc.TrustFor(player.ID)
	chance := world.HireSuccessChance(playerPersuasion, trust)
	hired := e.chance(chance)

	data := map[string]any{"npc_id": npc.ID, "cost": cost, "chance": chance, "hired": hired}
	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionHire), player.ID, []string{npc.ID}, data), npc.Pos)

	if !hired {
		npc.AdjustTrust(player.ID, -world.TrustRejectDecrement)
		return &Outcome{
			Success: false,
			Message: fmt.Sprintf("%s declines your offer of employment", npc.Name),
			Data:    data,
		}, ev, nil
	}

	player.Gold -= cost
	npc.HiredBy = player.ID
	npc.AdjustTrust(player.ID, world.TrustAcceptIncrement)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("%s now works for you (%d gold)", npc.Name, cost),
		Data:    data,
	}, ev, nil
}

func (e *Engine) handleSteal(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p StealParams) (*Outcome, core.GameEvent, error) {
	item, ok := st.Items[p.ItemID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such item %q", p.ItemID)}
	}
	holder := st.StoreHolding(p.ItemID)
	if holder == nil {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "item is not in any store"}
	}

	skill := 0
	var helper *world.NPC
	if p.HelperNPCID != "" {
		helper, ok = st.NPCs[p.HelperNPCID]
		if !ok {
			return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such npc %q", p.HelperNPCID)}
		}
		if helper.HiredBy != player.ID {
			return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("%s does not work for you", helper.Name)}
		}
		skill = helper.Skill("stealth")
		if s := helper.Skill("theft"); s > skill {
			skill = s
		}
	}

	chance := world.TheftSuccessChance(skill, st.GuardCount())
	stolen := e.chance(chance)

	npcIDs := nearbyNPCIDs(st, holder.Pos, perceptionRadius)
	if helper != nil {
		npcIDs = appendUnique(npcIDs, helper.ID)
	}
	data := map[string]any{"item_id": item.ID, "store_id": holder.ID, "chance": chance, "stolen": stolen}
	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionSteal), player.ID, npcIDs, data), holder.Pos)

	if !stolen {
		player.Score = math.Max(0, player.Score-5)
		if seller := proprietorNPC(st, holder); seller != nil {
			seller.AdjustTrust(player.ID, -2*world.TrustRejectDecrement)
		}
		return &Outcome{
			Success: false,
			Message: fmt.Sprintf("the theft of %s fails and draws attention", item.Name),
			Data:    data,
		}, ev, nil
	}

	holder.RemoveItem(item.ID)
	player.Inventory = append(player.Inventory, item.ID)
	e.scoreAcquisition(st, player, item, data)
	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("you slip away with %s", item.Name),
		Data:    data,
	}, ev, nil
}

func (e *Engine) handleTrade(inst *scenario.Instance, st *world.State, player *world.PlayerAgent, p TradeParams) (*Outcome, core.GameEvent, error) {
	npc, ok := st.NPCs[p.NPCID]
	if !ok {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("no such npc %q", p.NPCID)}
	}
	offerItem, ok := st.Items[p.OfferItemID]
	if !ok || !containsID(player.Inventory, p.OfferItemID) {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "you do not hold the offered item"}
	}
	wantItem, ok := st.Items[p.WantItemID]
	if !ok || !containsID(npc.Inventory, p.WantItemID) {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: fmt.Sprintf("%s does not hold that item", npc.Name)}
	}
	if !offerItem.Tradeable || !wantItem.Tradeable {
		return nil, core.GameEvent{}, &ActionError{Code: ReasonInvalidParams, Message: "one of the items cannot be traded"}
	}

	trust := npc.TrustFor(player.ID)
	accepted, delta := world.EvaluateOffer(float64(offerItem.Value), float64(wantItem.Value), trust)
	newTrust := npc.AdjustTrust(player.ID, delta)

	data := map[string]any{
		"npc_id":   npc.ID,
		"offered":  offerItem.ID,
		"wanted":   wantItem.ID,
		"accepted": accepted,
		"trust":    newTrust,
	}
	ev := withPos(core.NewGameEvent(inst.ID, core.EventKind(scenario.ActionTrade), player.ID, []string{npc.ID}, data), npc.Pos)

	if !accepted {
		return &Outcome{
			Success: false,
			Message: fmt.Sprintf("%s refuses to trade %s for %s", npc.Name, wantItem.Name, offerItem.Name),
			Data:    data,
		}, ev, nil
	}

	player.Inventory = removeID(player.Inventory, offerItem.ID)
	npc.Inventory = removeID(npc.Inventory, wantItem.ID)
	player.Inventory = append(player.Inventory, wantItem.ID)
	npc.Inventory = append(npc.Inventory, offerItem.ID)
	e.scoreAcquisition(st, player, wantItem, data)

	return &Outcome{
		Success: true,
		Message: fmt.Sprintf("%s trades %s for your %s", npc.Name, wantItem.Name, offerItem.Name),
		Data:    data,
	}, ev, nil
}

// scoreAcquisition rewards obtaining the scenario's target item: the earlier
// it happens, the higher the score.
func (e *Engine) scoreAcquisition(st *world.State, player *world.PlayerAgent, item *world.Item, data map[string]any) {
	if item.ID != st.TargetItemID {
		return
	}
	player.Score += math.Max(0, 100-float64(st.Turn)*0.5)
	data["objective_complete"] = true
}

// proprietorNPC finds the NPC playing a store's proprietor, matched by name.
// Generated worlds usually give shopkeepers a matching NPC; nil when the
// proprietor is purely decorative.
func proprietorNPC(st *world.State, s *world.Store) *world.NPC {
	for _, npc := range st.NPCs {
		if npc.Name == s.Proprietor {
			return npc
		}
	}
	return nil
}

func decodeParams(raw map[string]any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return &ActionError{Code: ReasonInvalidParams, Message: err.Error()}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &ActionError{Code: ReasonInvalidParams, Message: err.Error()}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func appendUnique(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}
